package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/events"
	"github.com/mcoot/relaygate/internal/metrics"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/protocol"
	"github.com/mcoot/relaygate/internal/services/auth"
)

func (s *Session) HandlePing(ctx context.Context, p *protocol.PingPacket) error {
	return s.send(ctx, &protocol.PingResponsePacket{
		PingID:      p.PingID,
		PlayerCount: s.hub.registry.PlayerCount(),
	})
}

// HandleCryptoHandshake checks the client's protocol version and installs the
// session box. A version mismatch or a second handshake ends the session.
func (s *Session) HandleCryptoHandshake(ctx context.Context, p *protocol.CryptoHandshakeStartPacket) error {
	if p.Protocol != protocol.Version && p.Protocol != protocol.VersionProbe {
		s.hub.metrics.Handshake(metrics.HandshakeMismatch)
		s.sendThenTerminate(ctx, &protocol.ProtocolMismatchPacket{Protocol: protocol.Version})
		return fmt.Errorf("%w: client %d, server %d", ErrVersionMismatch, p.Protocol, protocol.Version)
	}

	serverKey, err := s.crypto.Establish(p.Key, s.hub.keys)
	if errors.Is(err, cryptobox.ErrAlreadyEstablished) {
		s.hub.metrics.Handshake(metrics.HandshakeDuplicate)
		s.logger.Warn("protocol violation: second crypto handshake")
		s.disconnect(ctx, MsgSecondHandshake)
		return err
	}
	if err != nil {
		s.hub.metrics.Handshake(metrics.HandshakeFailed)
		s.Terminate()
		return fmt.Errorf("crypto handshake: %w", err)
	}

	if p.Protocol == protocol.VersionProbe {
		s.hub.metrics.Handshake(metrics.HandshakeProbe)
	} else {
		s.hub.metrics.Handshake(metrics.HandshakeOK)
	}
	return s.send(ctx, &protocol.CryptoHandshakeResponsePacket{Key: serverKey})
}

// HandleKeepalive answers with the player count. Dropped before login.
func (s *Session) HandleKeepalive(ctx context.Context, _ *protocol.KeepalivePacket) error {
	if !s.Authenticated() {
		return nil
	}
	return s.send(ctx, &protocol.KeepaliveResponsePacket{
		PlayerCount: s.hub.registry.PlayerCount(),
	})
}

func (s *Session) HandleKeepaliveTCP(ctx context.Context, _ *protocol.KeepaliveTCPPacket) error {
	if !s.Authenticated() {
		return nil
	}
	return s.send(ctx, &protocol.KeepaliveTCPResponsePacket{})
}

func (s *Session) HandleDisconnect(_ context.Context, _ *protocol.DisconnectPacket) error {
	s.Terminate()
	return nil
}

func (s *Session) HandleConnectionTest(ctx context.Context, p *protocol.ConnectionTestPacket) error {
	return s.send(ctx, &protocol.ConnectionTestResponsePacket{
		UID:  p.UID,
		Data: p.Data,
	})
}

// HandleLogin runs the login checks and admits the player. Every rejection
// sends exactly one failure packet and ends the session. Logging in again on
// an authenticated session does nothing.
func (s *Session) HandleLogin(ctx context.Context, p *protocol.LoginPacket) error {
	if s.Authenticated() {
		s.logger.Debug("ignoring login on authenticated session")
		return nil
	}
	start := s.hub.clock.Now()

	if s.hub.settings.Maintenance() {
		s.hub.metrics.Login(metrics.LoginMaintenance, s.hub.clock.Now().Sub(start))
		s.disconnect(ctx, MsgMaintenance)
		return nil
	}

	identity, err := s.hub.auth.Authenticate(s.ctx, auth.Request{
		AccountID:          model.AccountID(p.AccountID),
		UserID:             model.UserID(p.UserID),
		Name:               p.Name,
		Token:              p.Token,
		FragmentationLimit: p.FragmentationLimit,
	})
	if err != nil {
		failure, result := loginFailure(err)
		s.hub.metrics.Login(result, s.hub.clock.Now().Sub(start))
		s.logger.Info("login rejected",
			slog.Int("account_id", int(p.AccountID)),
			slog.String("result", result),
			slog.String("error", err.Error()),
		)
		s.hub.publish(s, events.Event{
			Type:      events.TypeLoginFailed,
			AccountID: model.AccountID(p.AccountID),
			Name:      p.Name,
			Reason:    result,
		})
		if failure == nil {
			s.Terminate()
			return nil
		}
		s.sendThenTerminate(ctx, failure)
		return nil
	}

	// the session may have ended while the gateway was waiting on the network
	if s.terminated.Load() {
		s.hub.metrics.Login(metrics.LoginAborted, s.hub.clock.Now().Sub(start))
		return ErrTerminated
	}

	accountID := model.AccountID(p.AccountID)
	if prior := s.hub.registry.Admit(accountID, s); prior != nil && prior != s {
		prior.Evict(MsgEvicted)
	}
	s.accountID.Store(p.AccountID)
	s.admitted.Store(true)
	if s.terminated.Load() {
		// Terminate ran between Admit and the flag; release here instead
		s.release()
		return ErrTerminated
	}

	s.userID.Store(p.UserID)
	s.claimSecret.Store(p.SecretKey)
	s.fragLimit.Store(uint32(p.FragmentationLimit))

	special := s.hub.roles.SpecialUserData(identity.Entry)
	s.mu.Lock()
	s.role = identity.Role
	s.userEntry = identity.Entry
	s.account = model.AccountData{
		AccountID:       accountID,
		UserID:          model.UserID(p.UserID),
		Name:            identity.Name,
		Icons:           p.Icons,
		SpecialUserData: special,
	}
	s.mu.Unlock()

	if s.terminated.Load() {
		s.hub.metrics.Login(metrics.LoginAborted, s.hub.clock.Now().Sub(start))
		return ErrTerminated
	}
	s.hub.metrics.Login(metrics.LoginOK, s.hub.clock.Now().Sub(start))

	s.logger.Info("login successful",
		slog.String("name", identity.Name),
		slog.Int("account_id", int(accountID)),
	)
	s.announced.Store(true)
	s.hub.publish(s, events.Event{Type: events.TypeLogin})

	return s.send(ctx, &protocol.LoggedInPacket{
		TPS:             s.hub.settings.TPS(),
		SpecialUserData: special,
		AllRoles:        s.hub.roles.AllRoles(),
	})
}
