package session

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/dependencies/clock"
	"github.com/mcoot/relaygate/internal/events"
	"github.com/mcoot/relaygate/internal/metrics"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/protocol"
	"github.com/mcoot/relaygate/internal/registry"
	"github.com/mcoot/relaygate/internal/services/auth"
)

// Authenticator decides whether a login may proceed
type Authenticator interface {
	Authenticate(ctx context.Context, req auth.Request) (*auth.Identity, error)
}

// RoleCatalog exposes the server's roles to logged-in clients
type RoleCatalog interface {
	AllRoles() []model.Role
	SpecialUserData(entry *model.UserEntry) *model.SpecialUserData
}

// RuntimeSettings are the central-server settings sessions read at login
type RuntimeSettings interface {
	Maintenance() bool
	TPS() uint32
}

// EventSink receives session lifecycle events
type EventSink interface {
	Publish(ev events.Event)
}

// Options tune per-session behaviour
type Options struct {
	// MessagesPerSecond and Burst bound inbound frames; zero disables the limit
	MessagesPerSecond rate.Limit
	Burst             int
	// InboundBuffer is how many frames may queue before the reader blocks
	InboundBuffer int
}

// DefaultOptions returns default session options
func DefaultOptions() Options {
	return Options{
		MessagesPerSecond: 100,
		Burst:             200,
		InboundBuffer:     64,
	}
}

// Deps are the collaborators shared by every session
type Deps struct {
	Codec    *protocol.Codec
	Keys     *cryptobox.KeyPair
	Auth     Authenticator
	Roles    RoleCatalog
	Settings RuntimeSettings
	Registry *registry.Registry
	Metrics  *metrics.Metrics
	Clock    clock.Clock
	// Events is optional
	Events EventSink
}

// Hub creates sessions and tracks the live ones
type Hub struct {
	codec    *protocol.Codec
	keys     *cryptobox.KeyPair
	auth     Authenticator
	roles    RoleCatalog
	settings RuntimeSettings
	registry *registry.Registry
	metrics  *metrics.Metrics
	clock    clock.Clock
	events   EventSink
	opts     Options
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewHub creates a Hub
func NewHub(deps Deps, opts Options, logger *slog.Logger) *Hub {
	if opts.InboundBuffer <= 0 {
		opts.InboundBuffer = DefaultOptions().InboundBuffer
	}
	return &Hub{
		codec:    deps.Codec,
		keys:     deps.Keys,
		auth:     deps.Auth,
		roles:    deps.Roles,
		settings: deps.Settings,
		registry: deps.Registry,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		events:   deps.Events,
		opts:     opts,
		logger:   logger.With(slog.String("component", "session")),
		sessions: make(map[*Session]struct{}),
	}
}

// Open creates a session for conn and registers it. The caller starts Run and
// feeds frames through Enqueue. The session terminates when ctx is cancelled.
func (h *Hub) Open(ctx context.Context, conn Conn) *Session {
	s := newSession(ctx, h, conn)

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	total := len(h.sessions)
	h.mu.Unlock()

	h.metrics.SessionOpened()
	s.logger.Info("session opened", slog.Int("total_sessions", total))
	return s
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	total := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.metrics.SessionClosed()
	if s.announced.Load() && !h.superseded(s) {
		h.publish(s, events.Event{Type: events.TypeLogout})
	}
	s.logger.Info("session closed",
		slog.Duration("connection_duration", h.clock.Now().Sub(s.connectedAt)),
		slog.Int("total_sessions", total),
	)
}

// superseded reports whether another session now holds s's account
func (h *Hub) superseded(s *Session) bool {
	holder, ok := h.registry.Holder(s.AccountID())
	return ok && holder.ID() != s.ID()
}

// publish stamps ev with the session's identity and hands it to the sink
func (h *Hub) publish(s *Session, ev events.Event) {
	if h.events == nil {
		return
	}
	ev.SessionID = s.ID()
	ev.Addr = s.RemoteAddr()
	if ev.AccountID == 0 {
		ev.AccountID = s.AccountID()
		ev.Name = s.AccountData().Name
	}
	ev.At = h.clock.Now()
	h.events.Publish(ev)
}

// Count returns the number of live sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Sessions returns a snapshot of the live sessions
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAll asks every live session to disconnect with reason
func (h *Hub) CloseAll(reason string) {
	sessions := h.Sessions()
	for _, s := range sessions {
		s.Evict(reason)
	}
	h.logger.Info("closing all sessions", slog.Int("sessions", len(sessions)))
}
