// Package session runs the per-connection state machine: crypto handshake,
// login and admission into the relay-wide registry.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/events"
	"github.com/mcoot/relaygate/internal/model"
)

// Errors
var (
	ErrTerminated      = errors.New("session terminated")
	ErrRateLimited     = errors.New("inbound rate limit exceeded")
	ErrVersionMismatch = errors.New("protocol version mismatch")
	ErrUnhandledPacket = errors.New("unhandled packet")
)

// State is the session's position in its lifecycle
type State int

const (
	StateUnauthenticated State = iota
	StateCryptoReady
	StateAuthenticated
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateCryptoReady:
		return "crypto_ready"
	case StateAuthenticated:
		return "authenticated"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Conn is the transport side of a session. Send must deliver frames in call order.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Close() error
	RemoteAddr() string
}

type evictCommand struct {
	reason string
}

// Session is one client connection.
// Handlers run only on the session's own goroutine; other goroutines interact
// through Enqueue, Evict and Terminate.
type Session struct {
	id     string
	addr   string
	conn   Conn
	hub    *Hub
	logger *slog.Logger

	crypto cryptobox.Slot

	accountID   atomic.Int32
	userID      atomic.Int32
	claimSecret atomic.Uint32
	fragLimit   atomic.Uint32

	mu        sync.Mutex
	role      model.ComputedRole
	account   model.AccountData
	userEntry *model.UserEntry

	// admitted is true between a successful registry Admit and the matching Release
	admitted   atomic.Bool
	terminated atomic.Bool
	// announced is set once the login event has been published
	announced atomic.Bool

	ctx     context.Context
	cancel  context.CancelFunc
	inbound chan []byte
	control chan evictCommand
	limiter *rate.Limiter

	connectedAt time.Time
}

func newSession(ctx context.Context, hub *Hub, conn Conn) *Session {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(ctx)

	var limiter *rate.Limiter
	if hub.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(hub.opts.MessagesPerSecond, hub.opts.Burst)
	}

	return &Session{
		id:   id,
		addr: conn.RemoteAddr(),
		conn: conn,
		hub:  hub,
		logger: hub.logger.With(
			slog.String("session_id", id),
			slog.String("addr", conn.RemoteAddr()),
		),
		ctx:         ctx,
		cancel:      cancel,
		inbound:     make(chan []byte, hub.opts.InboundBuffer),
		control:     make(chan evictCommand, 1),
		limiter:     limiter,
		connectedAt: hub.clock.Now(),
	}
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the transport address the session was accepted from
func (s *Session) RemoteAddr() string {
	return s.addr
}

// Context is cancelled when the session terminates
func (s *Session) Context() context.Context {
	return s.ctx
}

// AccountID returns the logged-in account, or 0 before login
func (s *Session) AccountID() model.AccountID {
	return model.AccountID(s.accountID.Load())
}

func (s *Session) UserID() model.UserID {
	return model.UserID(s.userID.Load())
}

// ClaimSecret is the client-chosen key later used to bind a datagram channel
func (s *Session) ClaimSecret() uint32 {
	return s.claimSecret.Load()
}

func (s *Session) FragmentationLimit() uint16 {
	return uint16(s.fragLimit.Load())
}

// Authenticated reports whether login has completed
func (s *Session) Authenticated() bool {
	return s.accountID.Load() > 0
}

func (s *Session) Terminated() bool {
	return s.terminated.Load()
}

// State derives the lifecycle state from the session's fields
func (s *Session) State() State {
	switch {
	case s.terminated.Load():
		return StateTerminated
	case s.Authenticated():
		return StateAuthenticated
	case s.crypto.Established():
		return StateCryptoReady
	default:
		return StateUnauthenticated
	}
}

// Role returns the role computed at login
func (s *Session) Role() model.ComputedRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// AccountData returns a copy of the player's display profile
func (s *Session) AccountData() model.AccountData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// UserEntry returns a copy of the entry fetched at login, or nil
func (s *Session) UserEntry() *model.UserEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userEntry == nil {
		return nil
	}
	entry := *s.userEntry
	return &entry
}

// Enqueue hands an inbound frame to the session goroutine.
// Exceeding the rate limit terminates the session.
func (s *Session) Enqueue(frame []byte) error {
	if s.terminated.Load() {
		return ErrTerminated
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Warn("rate limit exceeded, closing session")
		s.hub.metrics.RateLimited()
		s.Terminate()
		return ErrRateLimited
	}

	select {
	case s.inbound <- frame:
		return nil
	case <-s.ctx.Done():
		return ErrTerminated
	}
}

// Evict asks the session to disconnect with reason. Safe from any goroutine;
// the session sends the notice and terminates on its own goroutine.
func (s *Session) Evict(reason string) {
	if s.terminated.Load() {
		return
	}
	select {
	case s.control <- evictCommand{reason: reason}:
	default:
	}
}

// Terminate ends the session. Idempotent and safe from any goroutine.
// The registry slot, if held, is released exactly once.
func (s *Session) Terminate() {
	if !s.terminated.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.release()
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("close transport", slog.String("error", err.Error()))
	}
}

func (s *Session) release() {
	if !s.admitted.CompareAndSwap(true, false) {
		return
	}
	if err := s.hub.registry.Release(s.AccountID(), s); err != nil {
		s.logger.Error("registry release failed",
			slog.Int("account_id", int(s.AccountID())),
			slog.String("error", err.Error()),
		)
	}
}

// Run processes inbound frames and control commands in arrival order until
// the session terminates.
func (s *Session) Run() {
	defer func() {
		s.Terminate()
		s.hub.unregister(s)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return

		case cmd := <-s.control:
			s.handleEvict(cmd.reason)
			return

		case frame := <-s.inbound:
			// an eviction queued behind this frame still wins the next iteration
			if err := s.HandleFrame(s.ctx, frame); err != nil {
				s.logError(err)
			}
		}
	}
}

func (s *Session) handleEvict(reason string) {
	s.hub.metrics.Eviction()
	s.logger.Info("session evicted", slog.String("reason", reason))
	s.hub.publish(s, events.Event{Type: events.TypeEvicted, Reason: reason})
	s.disconnect(s.ctx, reason)
}

func (s *Session) logError(err error) {
	switch {
	case errors.Is(err, ErrTerminated), errors.Is(err, context.Canceled):
		s.logger.Debug("handler stopped", slog.String("error", err.Error()))
	default:
		s.logger.Warn("packet handling failed", slog.String("error", err.Error()))
	}
}
