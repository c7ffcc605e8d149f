package token

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/mcoot/relaygate/internal/dependencies/clock"
	"github.com/mcoot/relaygate/internal/model"
)

// Errors. Messages are shown to clients after "authentication failed: ".
var (
	ErrNoSecret         = errors.New("token secret is not configured")
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token has expired, please refresh it")
	ErrIdentityMismatch = errors.New("token was issued for a different account")
)

// Issuer signs and validates login tokens with a keyed BLAKE2b MAC.
//
// Token layout: base64url(payload) "." base64url(mac), where payload is
// "account_id:user_id:issued_unix:name".
type Issuer struct {
	key      []byte
	clock    clock.Clock
	validity time.Duration
}

// Config holds configuration for the token issuer
type Config struct {
	Secret   string
	Validity time.Duration
}

// DefaultConfig returns default issuer configuration
func DefaultConfig() Config {
	return Config{Validity: 24 * time.Hour}
}

// New creates an Issuer
func New(cfg Config, clk clock.Clock) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	if cfg.Validity == 0 {
		cfg.Validity = DefaultConfig().Validity
	}

	key := []byte(cfg.Secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}

	return &Issuer{key: key, clock: clk, validity: cfg.Validity}, nil
}

// Issue creates a token binding accountID and userID to name
func (i *Issuer) Issue(accountID model.AccountID, userID model.UserID, name string) (string, error) {
	payload := fmt.Sprintf("%d:%d:%d:%s", accountID, userID, i.clock.Now().Unix(), name)
	mac, err := i.sign([]byte(payload))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(mac), nil
}

// Validate checks token against the claimed ids and returns the name it was issued for
func (i *Issuer) Validate(accountID model.AccountID, userID model.UserID, token string) (string, error) {
	encPayload, encMAC, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrMalformed
	}

	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return "", ErrMalformed
	}
	mac, err := base64.RawURLEncoding.DecodeString(encMAC)
	if err != nil {
		return "", ErrMalformed
	}

	expected, err := i.sign(payload)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare(mac, expected) != 1 {
		return "", ErrInvalidSignature
	}

	fields := strings.SplitN(string(payload), ":", 4)
	if len(fields) != 4 {
		return "", ErrMalformed
	}
	tokAccount, err1 := strconv.ParseInt(fields[0], 10, 32)
	tokUser, err2 := strconv.ParseInt(fields[1], 10, 32)
	issued, err3 := strconv.ParseInt(fields[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", ErrMalformed
	}

	if model.AccountID(tokAccount) != accountID || model.UserID(tokUser) != userID {
		return "", ErrIdentityMismatch
	}
	if i.clock.Now().After(time.Unix(issued, 0).Add(i.validity)) {
		return "", ErrExpired
	}

	return fields[3], nil
}

func (i *Issuer) sign(payload []byte) ([]byte, error) {
	h, err := blake2b.New256(i.key)
	if err != nil {
		return nil, fmt.Errorf("init mac: %w", err)
	}
	h.Write(payload)
	return h.Sum(nil), nil
}
