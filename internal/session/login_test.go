package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcoot/relaygate/internal/config"
	"github.com/mcoot/relaygate/internal/events"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/protocol"
	"github.com/mcoot/relaygate/internal/services/auth"
)

// blockingAuth waits for the session context before answering
type blockingAuth struct {
	started chan struct{}
}

func (a *blockingAuth) Authenticate(ctx context.Context, req auth.Request) (*auth.Identity, error) {
	close(a.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

// terminatingRoles ends the session while its login is being completed
type terminatingRoles struct {
	RoleCatalog
	victim *Session
}

func (r *terminatingRoles) SpecialUserData(entry *model.UserEntry) *model.SpecialUserData {
	r.victim.Terminate()
	return r.RoleCatalog.SpecialUserData(entry)
}

func (s *SessionSuite) TestLoginSucceeds() {
	sess, conn := s.open()
	s.profiles.entries[42] = &model.UserEntry{AccountID: 42, UserRoles: []string{"mod"}}

	s.login(sess, s.loginPacket(42, "robtop"))

	resp, ok := s.lastPacket(conn).(*protocol.LoggedInPacket)
	s.Require().True(ok)
	s.Equal(uint32(30), resp.TPS)
	s.Require().NotNil(resp.SpecialUserData)
	s.Equal([]string{"mod"}, resp.SpecialUserData.Roles)
	s.Len(resp.AllRoles, len(s.roles.AllRoles()))

	s.Equal(StateAuthenticated, sess.State())
	s.Equal(model.AccountID(42), sess.AccountID())
	s.Equal(model.UserID(1), sess.UserID())
	s.Equal(uint32(0xC0FFEE), sess.ClaimSecret())
	s.Equal(uint16(1400), sess.FragmentationLimit())
	s.Equal(uint32(1), s.registry.PlayerCount())
	s.True(s.registry.GlobalRoom().Has(42))

	account := sess.AccountData()
	s.Equal("robtop", account.Name)
	s.Equal(model.DefaultIcons(), account.Icons)
	s.True(sess.Role().CanModerate())
	s.Require().NotNil(sess.UserEntry())
	s.Equal([]string{"mod"}, sess.UserEntry().UserRoles)
}

func (s *SessionSuite) TestLoginUsesCentralTPS() {
	s.central.Update(config.CentralSnapshot{TPS: 240})
	sess, conn := s.open()

	s.login(sess, s.loginPacket(1, "a"))

	resp, ok := s.lastPacket(conn).(*protocol.LoggedInPacket)
	s.Require().True(ok)
	s.Equal(uint32(240), resp.TPS)
}

func (s *SessionSuite) TestStandaloneLoginUsesClaimedName() {
	s.hub = s.newHub(true, DefaultOptions())
	sess, conn := s.open()

	pkt := s.loginPacket(42, "robtop")
	pkt.Token = ""
	s.login(sess, pkt)

	_, ok := s.lastPacket(conn).(*protocol.LoggedInPacket)
	s.Require().True(ok)
	s.Equal("claimed-robtop", sess.AccountData().Name)
	s.Nil(sess.UserEntry())
	s.Equal(uint32(1), s.registry.PlayerCount())
}

func (s *SessionSuite) TestBannedLogin() {
	s.profiles.entries[42] = &model.UserEntry{AccountID: 42, IsBanned: true, ViolationReason: "cheating", ViolationExpiry: 1735689600}
	sess, conn := s.open()

	s.login(sess, s.loginPacket(42, "robtop"))

	resp, ok := s.lastPacket(conn).(*protocol.ServerBannedPacket)
	s.Require().True(ok)
	s.Equal("cheating", resp.Message)
	s.Equal(int64(1735689600), resp.Timestamp)
	s.True(sess.Terminated())
	s.Zero(s.registry.PlayerCount())
	s.False(s.registry.GlobalRoom().Has(42))
}

func (s *SessionSuite) TestBannedWithoutReason() {
	s.profiles.entries[42] = &model.UserEntry{AccountID: 42, IsBanned: true}
	sess, conn := s.open()

	s.login(sess, s.loginPacket(42, "robtop"))

	resp, ok := s.lastPacket(conn).(*protocol.ServerBannedPacket)
	s.Require().True(ok)
	s.Equal("No reason given", resp.Message)
}

func (s *SessionSuite) TestMaintenanceSkipsAuthentication() {
	s.central.SetMaintenance(true)
	sess, conn := s.open()

	s.login(sess, s.loginPacket(42, "robtop"))

	resp, ok := s.lastPacket(conn).(*protocol.ServerDisconnectPacket)
	s.Require().True(ok)
	s.Equal(MsgMaintenance, resp.Message)
	s.Zero(s.auth.Calls())
	s.True(sess.Terminated())
	s.Zero(s.registry.PlayerCount())
}

func (s *SessionSuite) TestFragmentationLimitBoundary() {
	low, lowConn := s.open()
	pkt := s.loginPacket(1, "a")
	pkt.FragmentationLimit = 1299
	s.login(low, pkt)

	resp, ok := s.lastPacket(lowConn).(*protocol.ServerDisconnectPacket)
	s.Require().True(ok)
	s.Equal("The client fragmentation limit is too low (1299 bytes) to be accepted", resp.Message)
	s.True(low.Terminated())

	ok1300, conn1300 := s.open()
	pkt = s.loginPacket(2, "b")
	pkt.FragmentationLimit = 1300
	s.login(ok1300, pkt)

	_, ok = s.lastPacket(conn1300).(*protocol.LoggedInPacket)
	s.True(ok)
	s.Equal(uint32(1), s.registry.PlayerCount())
}

func (s *SessionSuite) TestInvalidIDs() {
	sess, conn := s.open()
	pkt := s.loginPacket(1, "a")
	pkt.AccountID = 0
	pkt.UserID = -3

	s.login(sess, pkt)

	pkts := s.packets(conn)
	resp, ok := pkts[len(pkts)-1].(*protocol.LoginFailedPacket)
	s.Require().True(ok)
	s.Equal("Invalid account/user ID was sent (0 and -3). Please note that you must be signed into a Geometry Dash account before connecting.", resp.Message)
	s.True(sess.Terminated())
	s.Zero(s.profiles.calls())
}

func (s *SessionSuite) TestInvalidToken() {
	sess, conn := s.open()
	pkt := s.loginPacket(42, "robtop")
	pkt.Token = "garbage"

	s.login(sess, pkt)

	resp, ok := s.lastPacket(conn).(*protocol.LoginFailedPacket)
	s.Require().True(ok)
	s.Equal("authentication failed: malformed token", resp.Message)
	s.True(sess.Terminated())
}

func (s *SessionSuite) TestExpiredToken() {
	pkt := s.loginPacket(42, "robtop")
	s.clock.Advance(2 * time.Hour)
	sess, conn := s.open()

	s.login(sess, pkt)

	resp, ok := s.lastPacket(conn).(*protocol.LoginFailedPacket)
	s.Require().True(ok)
	s.Equal("authentication failed: token has expired, please refresh it", resp.Message)
}

func (s *SessionSuite) TestWhitelistRejection() {
	s.central.Update(config.CentralSnapshot{TPS: 30, Whitelist: true})
	sess, conn := s.open()

	s.login(sess, s.loginPacket(42, "robtop"))

	resp, ok := s.lastPacket(conn).(*protocol.LoginFailedPacket)
	s.Require().True(ok)
	s.Equal(MsgNotWhitelisted, resp.Message)
	s.Zero(s.registry.PlayerCount())
}

func (s *SessionSuite) TestFetchErrorHidesDetails() {
	s.profiles.err = errors.New("dial tcp 10.1.2.3:443: i/o timeout")
	sess, conn := s.open()

	s.login(sess, s.loginPacket(42, "robtop"))

	resp, ok := s.lastPacket(conn).(*protocol.LoginFailedPacket)
	s.Require().True(ok)
	s.Equal(MsgFetchFailed, resp.Message)
	s.NotContains(resp.Message, "10.1.2.3")
}

func (s *SessionSuite) TestExactlyOneFailurePacket() {
	s.profiles.entries[42] = &model.UserEntry{AccountID: 42, IsBanned: true}
	sess, conn := s.open()
	s.handshake(sess)
	before := len(conn.Frames())

	s.NoError(sess.Dispatch(s.ctx, s.loginPacket(42, "robtop")))
	s.Len(conn.Frames(), before+1)

	// the session is closed; further packets produce nothing
	s.ErrorIs(sess.Dispatch(s.ctx, &protocol.PingPacket{}), ErrTerminated)
	s.Len(conn.Frames(), before+1)
}

func (s *SessionSuite) TestReloginIsNoop() {
	sess, conn := s.open()
	s.login(sess, s.loginPacket(42, "robtop"))
	before := len(conn.Frames())

	err := sess.Dispatch(s.ctx, s.loginPacket(43, "other"))
	s.Require().NoError(err)

	s.Len(conn.Frames(), before)
	s.Equal(model.AccountID(42), sess.AccountID())
	s.Equal(uint32(1), s.registry.PlayerCount())
	s.Equal(1, s.auth.Calls())
}

func (s *SessionSuite) TestKeepalivesAfterLogin() {
	sess, conn := s.open()
	s.login(sess, s.loginPacket(42, "robtop"))

	s.Require().NoError(sess.Dispatch(s.ctx, &protocol.KeepalivePacket{}))
	resp, ok := s.lastPacket(conn).(*protocol.KeepaliveResponsePacket)
	s.Require().True(ok)
	s.Equal(uint32(1), resp.PlayerCount)

	s.Require().NoError(sess.Dispatch(s.ctx, &protocol.KeepaliveTCPPacket{}))
	_, ok = s.lastPacket(conn).(*protocol.KeepaliveTCPResponsePacket)
	s.True(ok)
}

func (s *SessionSuite) TestTerminateReleasesAdmission() {
	sess, _ := s.open()
	s.login(sess, s.loginPacket(42, "robtop"))
	s.Require().Equal(uint32(1), s.registry.PlayerCount())

	sess.Terminate()
	s.Zero(s.registry.PlayerCount())
	s.False(s.registry.GlobalRoom().Has(42))

	sess.Terminate()
	s.Zero(s.registry.PlayerCount())
}

func (s *SessionSuite) TestSecondLoginEvictsFirst() {
	first, firstConn := s.start()
	second, secondConn := s.start()

	s.login(first, s.loginPacket(42, "robtop"))
	s.Require().Equal(uint32(1), s.registry.PlayerCount())

	s.login(second, s.loginPacket(42, "robtop"))

	s.Eventually(first.Terminated, time.Second, 5*time.Millisecond)
	resp, ok := s.lastPacket(firstConn).(*protocol.ServerDisconnectPacket)
	s.Require().True(ok)
	s.Equal(MsgEvicted, resp.Message)

	_, ok = s.lastPacket(secondConn).(*protocol.LoggedInPacket)
	s.True(ok)
	s.False(second.Terminated())
	s.Equal(uint32(1), s.registry.PlayerCount())
	s.True(s.registry.GlobalRoom().Has(42))

	holder, ok := s.registry.Holder(42)
	s.Require().True(ok)
	s.Equal(second.ID(), holder.ID())

	second.Terminate()
	s.Zero(s.registry.PlayerCount())
}

func (s *SessionSuite) TestConcurrentDistinctLogins() {
	s.hub = s.newHub(true, DefaultOptions())
	const n = 40

	sessions := make([]*Session, n)
	for i := range sessions {
		sessions[i], _ = s.open()
		s.handshake(sessions[i])
	}

	var wg sync.WaitGroup
	for i, sess := range sessions {
		wg.Add(1)
		go func(i int, sess *Session) {
			defer wg.Done()
			_ = sess.Dispatch(s.ctx, &protocol.LoginPacket{
				AccountID:          int32(i + 1),
				UserID:             int32(i + 1),
				Name:               fmt.Sprintf("player-%d", i),
				FragmentationLimit: 1400,
			})
		}(i, sess)
	}
	wg.Wait()

	s.Equal(uint32(n), s.registry.PlayerCount())
	s.Equal(n, s.registry.GlobalRoom().Len())

	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			sess.Terminate()
		}(sess)
	}
	wg.Wait()
	s.Zero(s.registry.PlayerCount())
}

func (s *SessionSuite) TestConcurrentLoginsWithRepeatedAccounts() {
	s.hub = s.newHub(true, DefaultOptions())
	const n = 40
	const distinct = 10

	sessions := make([]*Session, n)
	for i := range sessions {
		sessions[i], _ = s.open()
		s.handshake(sessions[i])
	}

	var wg sync.WaitGroup
	for i, sess := range sessions {
		wg.Add(1)
		go func(i int, sess *Session) {
			defer wg.Done()
			account := int32(i%distinct + 1)
			_ = sess.Dispatch(s.ctx, &protocol.LoginPacket{
				AccountID:          account,
				UserID:             account,
				Name:               fmt.Sprintf("player-%d", account),
				FragmentationLimit: 1400,
			})
		}(i, sess)
	}
	wg.Wait()

	s.Equal(uint32(distinct), s.registry.PlayerCount())
	s.Equal(distinct, s.registry.GlobalRoom().Len())
	for account := 1; account <= distinct; account++ {
		holder, ok := s.registry.Holder(model.AccountID(account))
		s.Require().True(ok)
		s.NotEmpty(holder.ID())
	}

	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			sess.Terminate()
		}(sess)
	}
	wg.Wait()
	s.Zero(s.registry.PlayerCount())
	s.Zero(s.registry.GlobalRoom().Len())
}

func (s *SessionSuite) TestTerminateDuringAdmissionLeavesNoRoomEntry() {
	sess, conn := s.open()
	s.hub.roles = &terminatingRoles{RoleCatalog: s.roles, victim: sess}
	s.handshake(sess)
	before := len(conn.Frames())

	err := sess.Dispatch(s.ctx, s.loginPacket(42, "robtop"))
	s.ErrorIs(err, ErrTerminated)

	s.True(sess.Terminated())
	s.Zero(s.registry.PlayerCount())
	s.False(s.registry.GlobalRoom().Has(42))
	s.Zero(s.registry.GlobalRoom().Len())
	_, held := s.registry.Holder(42)
	s.False(held)

	s.Len(conn.Frames(), before)
	_, loggedIn := s.events.Find(events.TypeLogin)
	s.False(loggedIn)

	s.hub.unregister(sess)
	_, loggedOut := s.events.Find(events.TypeLogout)
	s.False(loggedOut)
}

func (s *SessionSuite) TestTerminateDuringAuthenticationAbortsLogin() {
	blocking := &blockingAuth{started: make(chan struct{})}
	s.hub.auth = blocking
	sess, conn := s.open()
	s.handshake(sess)
	before := len(conn.Frames())

	done := make(chan error, 1)
	go func() {
		done <- sess.Dispatch(s.ctx, s.loginPacket(42, "robtop"))
	}()

	<-blocking.started
	sess.Terminate()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("login did not return after terminate")
	}
	s.Len(conn.Frames(), before)
	s.Zero(s.registry.PlayerCount())
	s.False(s.registry.GlobalRoom().Has(42))
}
