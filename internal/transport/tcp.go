package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mcoot/relaygate/internal/session"
)

// Opener creates sessions for accepted connections
type Opener interface {
	Open(ctx context.Context, conn session.Conn) *session.Session
}

// TCPConfig holds TCP transport settings
type TCPConfig struct {
	Addr string
	// IdleTimeout closes connections that send nothing for this long
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultTCPConfig returns default TCP transport settings
func DefaultTCPConfig() TCPConfig {
	return TCPConfig{
		Addr:         ":4201",
		IdleTimeout:  90 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// TCPServer accepts raw TCP connections carrying length-prefixed frames
type TCPServer struct {
	cfg    TCPConfig
	opener Opener
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewTCPServer creates a TCPServer
func NewTCPServer(cfg TCPConfig, opener Opener, logger *slog.Logger) *TCPServer {
	defaults := DefaultTCPConfig()
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	return &TCPServer{
		cfg:    cfg,
		opener: opener,
		logger: logger.With(slog.String("component", "tcp")),
	}
}

// Listen binds the listen address. Serve must be called afterwards.
func (s *TCPServer) Listen() error {
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
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener is closed.
// Sessions are derived from ctx and end with it.
func (s *TCPServer) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	s.logger.Info("tcp transport listening", slog.String("addr", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, nc)
		}()
	}
}

// Close stops accepting and waits for connection handlers to finish
func (s *TCPServer) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	s.wg.Wait()
	return err
}

func (s *TCPServer) handle(ctx context.Context, nc net.Conn) {
	if tcp, ok := nc.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	conn := &tcpConn{conn: nc, writeTimeout: s.cfg.WriteTimeout}
	sess := s.opener.Open(ctx, conn)
	go sess.Run()
	defer sess.Terminate()

	reader := bufio.NewReader(nc)
	for {
		_ = nc.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		frame, err := ReadFrame(reader)
		if err != nil {
			if !sess.Terminated() && !isClosedConn(err) {
				s.logger.Debug("read failed",
					slog.String("session_id", sess.ID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		if err := sess.Enqueue(frame); err != nil {
			return
		}
	}
}

// tcpConn implements session.Conn over a net.Conn
type tcpConn struct {
	mu           sync.Mutex
	conn         net.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func (c *tcpConn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return WriteFrame(c.conn, frame)
}

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}
