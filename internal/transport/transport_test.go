package transport

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/relaygate/internal/config"
	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/dependencies/clock"
	"github.com/mcoot/relaygate/internal/metrics"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/protocol"
	"github.com/mcoot/relaygate/internal/registry"
	"github.com/mcoot/relaygate/internal/services/auth"
	"github.com/mcoot/relaygate/internal/services/roles"
	"github.com/mcoot/relaygate/internal/session"
	"github.com/mcoot/relaygate/internal/testutil"
)

type TransportSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	keys     *cryptobox.KeyPair
	registry *registry.Registry
	hub      *session.Hub
	tcp      *TCPServer
	served   chan error
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	var err error
	s.keys, err = cryptobox.GenerateKeyPair()
	s.Require().NoError(err)
	roleManager, err := roles.New(roles.DefaultRoles())
	s.Require().NoError(err)

	central := config.NewCentral(config.DefaultCentral())
	s.registry = registry.New(clock.New(), testutil.NopLogger())
	s.hub = session.NewHub(session.Deps{
		Codec: protocol.NewCodec(),
		Keys:  s.keys,
		Auth: auth.NewGateway(auth.Config{
			Standalone: true,
			Roles:      roleManager,
			Whitelist:  central,
		}, testutil.NopLogger()),
		Roles:    roleManager,
		Settings: central,
		Registry: s.registry,
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Clock:    clock.New(),
	}, session.DefaultOptions(), testutil.NopLogger())

	s.tcp = NewTCPServer(TCPConfig{Addr: "127.0.0.1:0"}, s.hub, testutil.NopLogger())
	s.Require().NoError(s.tcp.Listen())
	s.served = make(chan error, 1)
	go func() { s.served <- s.tcp.Serve(s.ctx) }()
}

func (s *TransportSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.served:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("tcp server did not stop")
	}
	s.NoError(s.tcp.Close())
}

func (s *TransportSuite) dial() *Client {
	client, err := Dial(s.ctx, s.tcp.Addr().String())
	s.Require().NoError(err)
	s.Require().NoError(client.SetDeadline(time.Now().Add(5 * time.Second)))
	s.T().Cleanup(func() { _ = client.Close() })
	return client
}

func (s *TransportSuite) TestFrameRoundTrip() {
	var buf bytes.Buffer
	s.Require().NoError(WriteFrame(&buf, []byte("hello")))
	s.Require().NoError(WriteFrame(&buf, nil))

	first, err := ReadFrame(&buf)
	s.Require().NoError(err)
	s.Equal([]byte("hello"), first)

	second, err := ReadFrame(&buf)
	s.Require().NoError(err)
	s.Empty(second)
}

func (s *TransportSuite) TestReadFrameRejectsOversizedPrefix() {
	buf := bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff})

	_, err := ReadFrame(buf)
	s.ErrorIs(err, ErrFrameTooLarge)
}

func (s *TransportSuite) TestTCPHandshakePingAndLogin() {
	client := s.dial()

	serverKey, err := client.Handshake(protocol.Version)
	s.Require().NoError(err)
	s.Equal(s.keys.Public, serverKey)

	pong, err := client.Ping(9)
	s.Require().NoError(err)
	s.Equal(uint32(9), pong.PingID)

	resp, err := client.Login(&protocol.LoginPacket{
		AccountID:          42,
		UserID:             7,
		Name:               "robtop",
		Icons:              model.DefaultIcons(),
		FragmentationLimit: 1400,
	})
	s.Require().NoError(err)
	_, ok := resp.(*protocol.LoggedInPacket)
	s.Require().True(ok)

	s.Eventually(func() bool { return s.registry.PlayerCount() == 1 }, time.Second, 10*time.Millisecond)
}

func (s *TransportSuite) TestTCPDisconnectReleasesPlayer() {
	client := s.dial()
	_, err := client.Handshake(protocol.Version)
	s.Require().NoError(err)
	_, err = client.Login(&protocol.LoginPacket{AccountID: 1, UserID: 1, FragmentationLimit: 1400})
	s.Require().NoError(err)
	s.Require().Equal(uint32(1), s.registry.PlayerCount())

	s.Require().NoError(client.Close())

	s.Eventually(func() bool { return s.registry.PlayerCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	s.Eventually(func() bool { return s.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func (s *TransportSuite) TestTCPVersionMismatch() {
	client := s.dial()

	_, err := client.Handshake(protocol.Version + 1)
	s.ErrorIs(err, ErrProtocolMismatch)

	_, err = client.Receive()
	s.Error(err)
}

func (s *TransportSuite) TestTCPVersionProbe() {
	client := s.dial()

	_, err := client.Handshake(protocol.VersionProbe)
	s.NoError(err)
}

func (s *TransportSuite) TestWebsocketHandshake() {
	ws := NewWSServer(WSConfig{}, s.hub, testutil.NopLogger())
	server := httptest.NewServer(ws.Handler(s.ctx))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	defer conn.Close()

	codec := protocol.NewCodec()
	clientKeys, _ := cryptobox.GenerateKeyPair()
	frame, err := codec.Encode(&protocol.CryptoHandshakeStartPacket{Protocol: protocol.Version, Key: clientKeys.Public}, nil)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteMessage(websocket.BinaryMessage, frame))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, data, err := conn.ReadMessage()
	s.Require().NoError(err)
	s.Equal(websocket.BinaryMessage, msgType)

	pkt, err := codec.Decode(data, nil)
	s.Require().NoError(err)
	resp, ok := pkt.(*protocol.CryptoHandshakeResponsePacket)
	s.Require().True(ok)
	s.Equal(s.keys.Public, resp.Key)
}
