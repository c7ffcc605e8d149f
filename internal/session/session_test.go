package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/relaygate/internal/config"
	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/dependencies/mocks"
	"github.com/mcoot/relaygate/internal/events"
	"github.com/mcoot/relaygate/internal/metrics"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/protocol"
	"github.com/mcoot/relaygate/internal/registry"
	"github.com/mcoot/relaygate/internal/services/auth"
	"github.com/mcoot/relaygate/internal/services/roles"
	"github.com/mcoot/relaygate/internal/services/token"
	"github.com/mcoot/relaygate/internal/testutil"
)

var errConnClosed = errors.New("connection closed")

// recordingConn captures every frame a session sends
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *recordingConn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) RemoteAddr() string {
	return "198.51.100.7:50000"
}

func (c *recordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordingConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

// countingAuth wraps an Authenticator and counts calls
type countingAuth struct {
	mu    sync.Mutex
	calls int
	next  Authenticator
}

func (a *countingAuth) Authenticate(ctx context.Context, req auth.Request) (*auth.Identity, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.next.Authenticate(ctx, req)
}

func (a *countingAuth) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// stubProfiles serves canned user entries
type stubProfiles struct {
	mu      sync.Mutex
	entries map[model.AccountID]*model.UserEntry
	err     error
	count   int
}

func (p *stubProfiles) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *stubProfiles) GetUser(ctx context.Context, accountID model.AccountID) (*model.UserEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	if p.err != nil {
		return nil, p.err
	}
	if entry, ok := p.entries[accountID]; ok {
		copied := *entry
		return &copied, nil
	}
	return model.NewUserEntry(accountID), nil
}

// recordingEvents keeps every published event
type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEvents) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recordingEvents) Last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingEvents) Find(typ string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return events.Event{}, false
}

type SessionSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *mocks.MockClock
	keys     *cryptobox.KeyPair
	codec    *protocol.Codec
	central  *config.Central
	issuer   *token.Issuer
	roles    *roles.Manager
	profiles *stubProfiles
	auth     *countingAuth
	registry *registry.Registry
	events   *recordingEvents
	hub      *Hub
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	var err error
	s.keys, err = cryptobox.GenerateKeyPair()
	s.Require().NoError(err)
	s.issuer, err = token.New(token.Config{Secret: "session-test", Validity: time.Hour}, s.clock)
	s.Require().NoError(err)
	s.roles, err = roles.New(roles.DefaultRoles())
	s.Require().NoError(err)

	s.codec = protocol.NewCodec()
	s.central = config.NewCentral(config.DefaultCentral())
	s.profiles = &stubProfiles{entries: map[model.AccountID]*model.UserEntry{}}
	s.registry = registry.New(s.clock, testutil.NopLogger())
	s.events = &recordingEvents{}
	s.hub = s.newHub(false, DefaultOptions())
}

func (s *SessionSuite) newHub(standalone bool, opts Options) *Hub {
	s.auth = &countingAuth{next: auth.NewGateway(auth.Config{
		Standalone: standalone,
		Tokens:     s.issuer,
		Profiles:   s.profiles,
		Roles:      s.roles,
		Whitelist:  s.central,
	}, testutil.NopLogger())}

	return NewHub(Deps{
		Codec:    s.codec,
		Keys:     s.keys,
		Auth:     s.auth,
		Roles:    s.roles,
		Settings: s.central,
		Registry: s.registry,
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Clock:    s.clock,
		Events:   s.events,
	}, opts, testutil.NopLogger())
}

// open creates a session on a recording connection without starting Run
func (s *SessionSuite) open() (*Session, *recordingConn) {
	conn := &recordingConn{}
	return s.hub.Open(s.ctx, conn), conn
}

// start opens a session and runs it on its own goroutine
func (s *SessionSuite) start() (*Session, *recordingConn) {
	sess, conn := s.open()
	go sess.Run()
	return sess, conn
}

// packets decodes everything the session sent. Server packets are never encrypted.
func (s *SessionSuite) packets(conn *recordingConn) []protocol.Packet {
	var out []protocol.Packet
	for _, frame := range conn.Frames() {
		pkt, err := s.codec.Decode(frame, nil)
		s.Require().NoError(err)
		out = append(out, pkt)
	}
	return out
}

func (s *SessionSuite) lastPacket(conn *recordingConn) protocol.Packet {
	pkts := s.packets(conn)
	s.Require().NotEmpty(pkts)
	return pkts[len(pkts)-1]
}

func (s *SessionSuite) frame(pkt protocol.Packet, cipher protocol.Cipher) []byte {
	frame, err := s.codec.Encode(pkt, cipher)
	s.Require().NoError(err)
	return frame
}

// handshake performs the crypto handshake from the client side and returns the client box
func (s *SessionSuite) handshake(sess *Session) *cryptobox.Box {
	clientKeys, err := cryptobox.GenerateKeyPair()
	s.Require().NoError(err)

	err = sess.HandleFrame(s.ctx, s.frame(&protocol.CryptoHandshakeStartPacket{
		Protocol: protocol.Version,
		Key:      clientKeys.Public,
	}, nil))
	s.Require().NoError(err)

	box, err := cryptobox.NewBox(&s.keys.Public, &clientKeys.Secret)
	s.Require().NoError(err)
	return box
}

func (s *SessionSuite) loginPacket(accountID int32, name string) *protocol.LoginPacket {
	tok, err := s.issuer.Issue(model.AccountID(accountID), 1, name)
	s.Require().NoError(err)
	return &protocol.LoginPacket{
		SecretKey:          0xC0FFEE,
		AccountID:          accountID,
		UserID:             1,
		Name:               "claimed-" + name,
		Token:              tok,
		Icons:              model.DefaultIcons(),
		FragmentationLimit: 1400,
	}
}

// login runs the handshake and sends an encrypted login frame
func (s *SessionSuite) login(sess *Session, pkt *protocol.LoginPacket) {
	box := s.handshake(sess)
	err := sess.HandleFrame(s.ctx, s.frame(pkt, box))
	s.Require().NoError(err)
}

// Stateless packets

func (s *SessionSuite) TestPingBeforeHandshake() {
	sess, conn := s.open()

	err := sess.Dispatch(s.ctx, &protocol.PingPacket{PingID: 77})
	s.Require().NoError(err)

	resp, ok := s.lastPacket(conn).(*protocol.PingResponsePacket)
	s.Require().True(ok)
	s.Equal(uint32(77), resp.PingID)
	s.Zero(resp.PlayerCount)
	s.Equal(StateUnauthenticated, sess.State())
}

func (s *SessionSuite) TestConnectionTestEchoes() {
	sess, conn := s.open()

	err := sess.Dispatch(s.ctx, &protocol.ConnectionTestPacket{UID: 5, Data: []byte{1, 2, 3}})
	s.Require().NoError(err)

	resp, ok := s.lastPacket(conn).(*protocol.ConnectionTestResponsePacket)
	s.Require().True(ok)
	s.Equal(uint32(5), resp.UID)
	s.Equal([]byte{1, 2, 3}, resp.Data)
}

func (s *SessionSuite) TestDisconnectTerminates() {
	sess, conn := s.open()

	err := sess.Dispatch(s.ctx, &protocol.DisconnectPacket{})
	s.Require().NoError(err)

	s.Equal(StateTerminated, sess.State())
	s.True(conn.Closed())
	s.Empty(conn.Frames())
}

func (s *SessionSuite) TestKeepalivesDroppedBeforeLogin() {
	sess, conn := s.open()
	s.handshake(sess)
	before := len(conn.Frames())

	s.NoError(sess.Dispatch(s.ctx, &protocol.KeepalivePacket{}))
	s.NoError(sess.Dispatch(s.ctx, &protocol.KeepaliveTCPPacket{}))

	s.Len(conn.Frames(), before)
	s.False(sess.Terminated())
}

// Crypto handshake

func (s *SessionSuite) TestHandshakeEstablishesCrypto() {
	sess, conn := s.open()
	s.handshake(sess)

	resp, ok := s.lastPacket(conn).(*protocol.CryptoHandshakeResponsePacket)
	s.Require().True(ok)
	s.Equal(s.keys.Public, resp.Key)
	s.Equal(StateCryptoReady, sess.State())
}

func (s *SessionSuite) TestHandshakeVersionProbeAccepted() {
	sess, conn := s.open()
	clientKeys, _ := cryptobox.GenerateKeyPair()

	err := sess.Dispatch(s.ctx, &protocol.CryptoHandshakeStartPacket{Protocol: protocol.VersionProbe, Key: clientKeys.Public})
	s.Require().NoError(err)

	_, ok := s.lastPacket(conn).(*protocol.CryptoHandshakeResponsePacket)
	s.True(ok)
	s.Equal(StateCryptoReady, sess.State())
}

func (s *SessionSuite) TestHandshakeVersionMismatch() {
	sess, conn := s.open()
	clientKeys, _ := cryptobox.GenerateKeyPair()

	err := sess.Dispatch(s.ctx, &protocol.CryptoHandshakeStartPacket{Protocol: protocol.Version - 1, Key: clientKeys.Public})
	s.ErrorIs(err, ErrVersionMismatch)

	pkts := s.packets(conn)
	s.Require().Len(pkts, 1)
	resp, ok := pkts[0].(*protocol.ProtocolMismatchPacket)
	s.Require().True(ok)
	s.Equal(protocol.Version, resp.Protocol)
	s.True(sess.Terminated())
	s.False(sess.crypto.Established())
}

func (s *SessionSuite) TestSecondHandshakeIsRejected() {
	sess, conn := s.open()
	s.handshake(sess)
	first := sess.crypto.Get()

	clientKeys, _ := cryptobox.GenerateKeyPair()
	err := sess.Dispatch(s.ctx, &protocol.CryptoHandshakeStartPacket{Protocol: protocol.Version, Key: clientKeys.Public})
	s.ErrorIs(err, cryptobox.ErrAlreadyEstablished)

	resp, ok := s.lastPacket(conn).(*protocol.ServerDisconnectPacket)
	s.Require().True(ok)
	s.Equal(MsgSecondHandshake, resp.Message)
	s.True(sess.Terminated())
	s.Same(first, sess.crypto.Get())
}

func (s *SessionSuite) TestZeroClientKeyTerminates() {
	sess, conn := s.open()

	err := sess.Dispatch(s.ctx, &protocol.CryptoHandshakeStartPacket{Protocol: protocol.Version})
	s.ErrorIs(err, cryptobox.ErrZeroPublicKey)
	s.True(sess.Terminated())
	s.Empty(conn.Frames())
}

// Frame handling

func (s *SessionSuite) TestUnknownPacketIsDropped() {
	sess, conn := s.open()

	w := protocol.NewByteWriter(8)
	w.WriteU16(12345)
	w.WriteU8(0)

	err := sess.HandleFrame(s.ctx, w.Bytes())
	s.NoError(err)
	s.False(sess.Terminated())
	s.Empty(conn.Frames())
}

func (s *SessionSuite) TestUnencryptedLoginTerminates() {
	sess, _ := s.open()
	s.handshake(sess)

	w := protocol.NewByteWriter(32)
	w.WriteU16(protocol.LoginPacketID)
	w.WriteU8(0)
	w.WriteU32(1)

	err := sess.HandleFrame(s.ctx, w.Bytes())
	s.ErrorIs(err, protocol.ErrMustBeEncrypted)
	s.True(sess.Terminated())
	s.Zero(s.auth.Calls())
}

func (s *SessionSuite) TestEncryptedFrameBeforeHandshakeTerminates() {
	sess, _ := s.open()

	otherKeys, _ := cryptobox.GenerateKeyPair()
	box, _ := cryptobox.NewBox(&s.keys.Public, &otherKeys.Secret)

	err := sess.HandleFrame(s.ctx, s.frame(s.loginPacket(1, "a"), box))
	s.ErrorIs(err, protocol.ErrNoCipher)
	s.True(sess.Terminated())
}

func (s *SessionSuite) TestTruncatedFrameTerminates() {
	sess, _ := s.open()

	err := sess.HandleFrame(s.ctx, []byte{0x27})
	s.ErrorIs(err, protocol.ErrMalformed)
	s.True(sess.Terminated())
}

func (s *SessionSuite) TestDispatchAfterTerminate() {
	sess, conn := s.open()
	sess.Terminate()

	err := sess.Dispatch(s.ctx, &protocol.PingPacket{PingID: 1})
	s.ErrorIs(err, ErrTerminated)
	s.Empty(conn.Frames())
}

func (s *SessionSuite) TestServerPacketFromClientIsUnhandled() {
	sess, _ := s.open()

	err := sess.Dispatch(s.ctx, &protocol.LoginFailedPacket{Message: "?"})
	s.ErrorIs(err, ErrUnhandledPacket)
	s.False(sess.Terminated())
}

// Lifecycle

func (s *SessionSuite) TestTerminateIsIdempotent() {
	sess, conn := s.open()

	sess.Terminate()
	sess.Terminate()

	s.True(sess.Terminated())
	s.True(conn.Closed())
	s.Error(sess.Context().Err())
}

func (s *SessionSuite) TestRunUnregistersOnExit() {
	sess, conn := s.start()
	s.Equal(1, s.hub.Count())

	s.Require().NoError(sess.Enqueue(s.frame(&protocol.DisconnectPacket{}, nil)))

	s.Eventually(func() bool { return s.hub.Count() == 0 }, time.Second, 5*time.Millisecond)
	s.True(conn.Closed())
}

func (s *SessionSuite) TestRunProcessesFramesInOrder() {
	sess, conn := s.start()

	for i := uint32(1); i <= 5; i++ {
		s.Require().NoError(sess.Enqueue(s.frame(&protocol.PingPacket{PingID: i}, nil)))
	}

	s.Eventually(func() bool { return len(conn.Frames()) == 5 }, time.Second, 5*time.Millisecond)
	for i, pkt := range s.packets(conn) {
		s.Equal(uint32(i+1), pkt.(*protocol.PingResponsePacket).PingID)
	}
	sess.Terminate()
}

func (s *SessionSuite) TestRateLimitTerminates() {
	s.hub = s.newHub(false, Options{MessagesPerSecond: 1, Burst: 1})
	sess, _ := s.open()

	s.Require().NoError(sess.Enqueue(s.frame(&protocol.PingPacket{}, nil)))
	err := sess.Enqueue(s.frame(&protocol.PingPacket{}, nil))

	s.ErrorIs(err, ErrRateLimited)
	s.True(sess.Terminated())
}

func (s *SessionSuite) TestEnqueueAfterTerminate() {
	sess, _ := s.open()
	sess.Terminate()

	err := sess.Enqueue([]byte{0, 0, 0})
	s.ErrorIs(err, ErrTerminated)
}

func (s *SessionSuite) TestCloseAllDisconnectsSessions() {
	a, connA := s.start()
	b, connB := s.start()

	s.hub.CloseAll(MsgServerShutdown)

	s.Eventually(func() bool { return a.Terminated() && b.Terminated() }, time.Second, 5*time.Millisecond)
	for _, conn := range []*recordingConn{connA, connB} {
		resp, ok := s.lastPacket(conn).(*protocol.ServerDisconnectPacket)
		s.Require().True(ok)
		s.Equal(MsgServerShutdown, resp.Message)
	}
	s.Eventually(func() bool { return s.hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func (s *SessionSuite) TestStateString() {
	s.Equal("crypto_ready", StateCryptoReady.String())
	s.Equal("terminated", StateTerminated.String())
}
