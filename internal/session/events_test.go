package session

import (
	"time"

	"github.com/mcoot/relaygate/internal/events"
	"github.com/mcoot/relaygate/internal/metrics"
	"github.com/mcoot/relaygate/internal/model"
)

func (s *SessionSuite) TestLoginPublishesEvent() {
	sess, _ := s.open()
	s.login(sess, s.loginPacket(42, "robtop"))

	s.Equal([]string{events.TypeLogin}, s.events.Types())
	ev := s.events.Last()
	s.Equal(sess.ID(), ev.SessionID)
	s.Equal(model.AccountID(42), ev.AccountID)
	s.Equal("robtop", ev.Name)
	s.Equal("198.51.100.7:50000", ev.Addr)
	s.Equal(s.clock.Now(), ev.At)
}

func (s *SessionSuite) TestRejectedLoginPublishesClaimedAccount() {
	s.profiles.entries[42] = &model.UserEntry{AccountID: 42, IsBanned: true}
	sess, _ := s.open()
	s.login(sess, s.loginPacket(42, "robtop"))

	s.Equal([]string{events.TypeLoginFailed}, s.events.Types())
	ev := s.events.Last()
	s.Equal(model.AccountID(42), ev.AccountID)
	s.Equal(metrics.LoginBanned, ev.Reason)
}

func (s *SessionSuite) TestEvictedSessionDoesNotPublishLogout() {
	first, _ := s.start()
	s.login(first, s.loginPacket(42, "robtop"))

	second, _ := s.start()
	s.login(second, s.loginPacket(42, "robtop"))

	s.Eventually(func() bool { return s.hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	s.ElementsMatch([]string{events.TypeLogin, events.TypeLogin, events.TypeEvicted}, s.events.Types())

	ev, ok := s.events.Find(events.TypeEvicted)
	s.Require().True(ok)
	s.Equal(first.ID(), ev.SessionID)

	second.Terminate()
	s.Eventually(func() bool {
		_, ok := s.events.Find(events.TypeLogout)
		return ok
	}, time.Second, 5*time.Millisecond)

	ev, _ = s.events.Find(events.TypeLogout)
	s.Equal(second.ID(), ev.SessionID)
	s.Equal(model.AccountID(42), ev.AccountID)
	s.Len(s.events.Types(), 4)
}
