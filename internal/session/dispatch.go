package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mcoot/relaygate/internal/protocol"
)

// HandleFrame decodes one inbound frame and dispatches it.
// Unknown packet ids are logged and dropped; undecodable frames end the session.
func (s *Session) HandleFrame(ctx context.Context, frame []byte) error {
	pkt, err := s.hub.codec.Decode(frame, s.cipher())
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownPacket) {
			s.logger.Debug("dropping unknown packet", slog.String("error", err.Error()))
			return nil
		}
		s.logger.Warn("protocol violation", slog.String("error", err.Error()))
		s.Terminate()
		return err
	}
	return s.Dispatch(ctx, pkt)
}

// Dispatch routes a decoded packet to its handler
func (s *Session) Dispatch(ctx context.Context, pkt protocol.Packet) error {
	if s.terminated.Load() {
		return ErrTerminated
	}
	s.hub.metrics.Packet(strconv.Itoa(int(pkt.ID())))

	switch p := pkt.(type) {
	case *protocol.PingPacket:
		return s.HandlePing(ctx, p)
	case *protocol.CryptoHandshakeStartPacket:
		return s.HandleCryptoHandshake(ctx, p)
	case *protocol.KeepalivePacket:
		return s.HandleKeepalive(ctx, p)
	case *protocol.LoginPacket:
		return s.HandleLogin(ctx, p)
	case *protocol.DisconnectPacket:
		return s.HandleDisconnect(ctx, p)
	case *protocol.KeepaliveTCPPacket:
		return s.HandleKeepaliveTCP(ctx, p)
	case *protocol.ConnectionTestPacket:
		return s.HandleConnectionTest(ctx, p)
	default:
		return fmt.Errorf("%w: %d", ErrUnhandledPacket, pkt.ID())
	}
}

// send encodes pkt and writes it to the transport. Sending on a terminated
// session does nothing.
func (s *Session) send(ctx context.Context, pkt protocol.Packet) error {
	if s.terminated.Load() {
		return nil
	}
	frame, err := s.hub.codec.Encode(pkt, s.cipher())
	if err != nil {
		return fmt.Errorf("encode packet %d: %w", pkt.ID(), err)
	}
	if err := s.conn.Send(ctx, frame); err != nil {
		return fmt.Errorf("send packet %d: %w", pkt.ID(), err)
	}
	return nil
}

// disconnect sends a ServerDisconnectPacket and terminates
func (s *Session) disconnect(ctx context.Context, message string) {
	s.sendThenTerminate(ctx, &protocol.ServerDisconnectPacket{Message: message})
}

// sendThenTerminate delivers a final packet before closing the session
func (s *Session) sendThenTerminate(ctx context.Context, pkt protocol.Packet) {
	if err := s.send(ctx, pkt); err != nil {
		s.logger.Debug("final packet not delivered", slog.String("error", err.Error()))
	}
	s.Terminate()
}

// cipher returns the session box as a protocol.Cipher, or nil before the handshake
func (s *Session) cipher() protocol.Cipher {
	if box := s.crypto.Get(); box != nil {
		return box
	}
	return nil
}
