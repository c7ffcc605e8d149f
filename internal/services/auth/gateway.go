package auth

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcoot/relaygate/internal/model"
)

const tracerName = "github.com/mcoot/relaygate/internal/services/auth"

// MinFragmentationLimit is the smallest fragmentation limit a client may report
const MinFragmentationLimit = 1300

// DefaultBanReason is shown when a ban carries no reason
const DefaultBanReason = "No reason given"

// TokenValidator verifies a login token and returns the verified display name
type TokenValidator interface {
	Validate(accountID model.AccountID, userID model.UserID, token string) (string, error)
}

// ProfileService fetches a user's entry
type ProfileService interface {
	GetUser(ctx context.Context, accountID model.AccountID) (*model.UserEntry, error)
}

// RoleResolver computes a user's effective role
type RoleResolver interface {
	Compute(ids []string) model.ComputedRole
}

// WhitelistSource reports whether whitelist mode is enabled
type WhitelistSource interface {
	Whitelist() bool
}

// Request is the identity a client claims at login
type Request struct {
	AccountID          model.AccountID
	UserID             model.UserID
	Name               string
	Token              string
	FragmentationLimit uint16
}

// Identity is the outcome of a successful authentication.
// Entry is nil in standalone mode.
type Identity struct {
	Name  string
	Entry *model.UserEntry
	Role  model.ComputedRole
}

// Gateway decides whether a login may proceed
type Gateway struct {
	standalone bool
	tokens     TokenValidator
	profiles   ProfileService
	roles      RoleResolver
	whitelist  WhitelistSource
	tracer     trace.Tracer
	logger     *slog.Logger
}

// Config holds the gateway's collaborators
type Config struct {
	Standalone bool
	Tokens     TokenValidator
	Profiles   ProfileService
	Roles      RoleResolver
	Whitelist  WhitelistSource
}

// NewGateway creates a new Gateway. Tokens and Profiles may be nil in standalone mode.
func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	return &Gateway{
		standalone: cfg.Standalone,
		tokens:     cfg.Tokens,
		profiles:   cfg.Profiles,
		roles:      cfg.Roles,
		whitelist:  cfg.Whitelist,
		tracer:     otel.Tracer(tracerName),
		logger:     logger.With(slog.String("component", "auth")),
	}
}

// Standalone reports whether authentication is bypassed
func (g *Gateway) Standalone() bool {
	return g.standalone
}

// Authenticate runs the login checks in order and stops at the first failure.
// Malformed requests are rejected before any external call.
//
// Each call is traced with the global OpenTelemetry tracer provider.
func (g *Gateway) Authenticate(ctx context.Context, req Request) (*Identity, error) {
	ctx, span := g.tracer.Start(ctx, "auth.authenticate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("relay.account_id", int(req.AccountID)),
			attribute.Bool("relay.standalone", g.standalone),
		),
	)
	defer span.End()

	identity, err := g.authenticate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login rejected")
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return identity, nil
}

func (g *Gateway) authenticate(ctx context.Context, req Request) (*Identity, error) {
	if req.FragmentationLimit < MinFragmentationLimit {
		return nil, &FragmentationLimitError{Limit: req.FragmentationLimit}
	}
	if req.AccountID <= 0 || req.UserID <= 0 {
		return nil, &InvalidIDError{AccountID: int32(req.AccountID), UserID: int32(req.UserID)}
	}

	if g.standalone {
		return &Identity{Name: req.Name, Role: g.roles.Compute(nil)}, nil
	}

	name, err := g.tokens.Validate(req.AccountID, req.UserID, req.Token)
	if err != nil {
		return nil, &InvalidTokenError{Reason: err.Error(), Err: err}
	}

	entry, err := g.profiles.GetUser(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		g.logger.Warn("user fetch failed",
			slog.Int("account_id", int(req.AccountID)),
			slog.String("error", err.Error()),
		)
		return nil, &FetchError{Err: err}
	}

	if entry.IsBanned {
		reason := entry.ViolationReason
		if reason == "" {
			reason = DefaultBanReason
		}
		return nil, &BannedError{Reason: reason, Expiry: entry.ViolationExpiry}
	}

	if g.whitelist != nil && g.whitelist.Whitelist() && !entry.IsWhitelisted {
		return nil, ErrNotWhitelisted
	}

	return &Identity{
		Name:  name,
		Entry: entry,
		Role:  g.roles.Compute(entry.UserRoles),
	}, nil
}
