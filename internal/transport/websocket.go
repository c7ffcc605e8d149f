package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/relaygate/internal/protocol"
)

// WSConfig holds websocket transport settings
type WSConfig struct {
	Addr string
	Path string
	// CheckOrigin validates the Origin header; nil allows every origin
	CheckOrigin  func(r *http.Request) bool
	IdleTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default websocket transport settings
func DefaultWSConfig() WSConfig {
	return WSConfig{
		Addr:         ":4202",
		Path:         "/ws",
		IdleTimeout:  60 * time.Second,
		PingInterval: 54 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// WSServer accepts websocket connections. Each binary message is one frame.
type WSServer struct {
	cfg      WSConfig
	opener   Opener
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewWSServer creates a WSServer
func NewWSServer(cfg WSConfig, opener Opener, logger *slog.Logger) *WSServer {
	defaults := DefaultWSConfig()
	if cfg.Path == "" {
		cfg.Path = defaults.Path
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &WSServer{
		cfg:    cfg,
		opener: opener,
		logger: logger.With(slog.String("component", "websocket")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Handler returns the upgrade handler, for mounting on an existing mux
func (s *WSServer) Handler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handleUpgrade(ctx, w, r)
	})
}

// Listen binds the listen address
func (s *WSServer) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *WSServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close releases a listener that was bound but never served
func (s *WSServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil || s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

// Serve runs the HTTP server until ctx is cancelled
func (s *WSServer) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s.Handler(ctx))

	s.mu.Lock()
	ln := s.listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("websocket transport listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("path", s.cfg.Path),
	)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *WSServer) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := newWSConn(ws, r.RemoteAddr, s.cfg.WriteTimeout)
	sess := s.opener.Open(ctx, conn)
	go sess.Run()
	go conn.pingLoop(sess.Context(), s.cfg.PingInterval)
	defer sess.Terminate()

	ws.SetReadLimit(protocol.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !sess.Terminated() {
				s.logger.Debug("unexpected websocket close",
					slog.String("session_id", sess.ID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))

		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := sess.Enqueue(data); err != nil {
			return
		}
	}
}

// wsConn implements session.Conn over a websocket.
// gorilla/websocket allows one concurrent writer, so writes share a mutex.
type wsConn struct {
	mu           sync.Mutex
	ws           *websocket.Conn
	remoteAddr   string
	writeTimeout time.Duration
	closed       bool
}

func newWSConn(ws *websocket.Conn, remoteAddr string, writeTimeout time.Duration) *wsConn {
	return &wsConn{ws: ws, remoteAddr: remoteAddr, writeTimeout: writeTimeout}
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.remoteAddr
}

func (c *wsConn) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
