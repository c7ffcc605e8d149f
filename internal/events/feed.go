// Package events streams session lifecycle events to admin subscribers over
// server-sent events.
package events

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/relaygate/internal/model"
)

// Event types
const (
	TypeLogin       = "login"
	TypeLoginFailed = "login_failed"
	TypeLogout      = "logout"
	TypeEvicted     = "evicted"
)

// Event is one session lifecycle change
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Addr      string          `json:"addr,omitempty"`
	AccountID model.AccountID `json:"account_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	At        time.Time       `json:"at"`
}

// Feed fans events out to every subscriber. Slow subscribers miss events
// rather than blocking publishers.
type Feed struct {
	clients map[*Subscriber]bool
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// NewFeed creates a Feed. Call Run to start delivering.
func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		clients:    make(map[*Subscriber]bool),
		logger:     logger.With(slog.String("component", "events")),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run delivers events until Close is called
func (f *Feed) Run() {
	for {
		select {
		case sub := <-f.register:
			f.mu.Lock()
			f.clients[sub] = true
			count := len(f.clients)
			f.mu.Unlock()
			f.logger.Info("event subscriber registered", slog.Int("subscribers", count))

		case sub := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[sub]; ok {
				delete(f.clients, sub)
				close(sub.send)
			}
			count := len(f.clients)
			f.mu.Unlock()
			f.logger.Info("event subscriber unregistered",
				slog.Duration("connection_duration", time.Since(sub.connectedAt)),
				slog.Int("subscribers", count))

		case message := <-f.broadcast:
			f.mu.RLock()
			dropped := 0
			for sub := range f.clients {
				select {
				case sub.send <- message:
				default:
					dropped++
				}
			}
			f.mu.RUnlock()
			if dropped > 0 {
				f.logger.Warn("event dropped for slow subscribers", slog.Int("dropped", dropped))
			}

		case <-f.done:
			f.mu.Lock()
			for sub := range f.clients {
				close(sub.send)
				delete(f.clients, sub)
			}
			f.mu.Unlock()
			return
		}
	}
}

// Publish queues ev for every subscriber
func (f *Feed) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}

	select {
	case f.broadcast <- formatMessage(ev.Type, string(data)):
	default:
		f.logger.Warn("event dropped, feed buffer full", slog.String("type", ev.Type))
	}
}

// Close stops the feed and ends every subscription
func (f *Feed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// SubscriberCount returns the number of live subscribers
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

func (f *Feed) subscribe(sub *Subscriber) bool {
	select {
	case f.register <- sub:
		return true
	case <-f.done:
		return false
	}
}

func (f *Feed) unsubscribe(sub *Subscriber) {
	select {
	case f.unregister <- sub:
	case <-f.done:
	}
}

// formatMessage renders one SSE message. Each data line gets its own prefix.
func formatMessage(eventName, data string) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(eventName)
	b.WriteByte('\n')

	data = strings.ReplaceAll(data, "\r", "")
	data = strings.TrimSuffix(data, "\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}
