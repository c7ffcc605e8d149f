package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/relaygate/internal/config"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/testutil"
)

type ClientSuite struct {
	suite.Suite
	server   *httptest.Server
	central  *config.Central
	client   *Client
	ctx      context.Context
	users    map[string]model.UserEntry
	settings config.CentralSnapshot
	hits     atomic.Int32
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.users = map[string]model.UserEntry{
		"7": {AccountID: 7, UserRoles: []string{"mod"}, IsBanned: true, ViolationReason: "spam"},
	}
	s.settings = config.CentralSnapshot{Maintenance: true, TPS: 60, Whitelist: true}
	s.hits.Store(0)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /gs/user/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if r.Header.Get("Authorization") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		entry, ok := s.users[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(entry)
	})
	mux.HandleFunc("GET /gs/config", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(s.settings)
	})
	mux.HandleFunc("GET /gs/user/500", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	s.server = httptest.NewServer(mux)
	s.central = config.NewCentral(config.DefaultCentral())
	s.client = New(Config{BaseURL: s.server.URL + "/", Password: "secret"}, s.central, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) TestGetUserKnown() {
	entry, err := s.client.GetUser(s.ctx, 7)
	s.Require().NoError(err)
	s.True(entry.IsBanned)
	s.Equal("spam", entry.ViolationReason)
	s.Equal([]string{"mod"}, entry.UserRoles)
}

func (s *ClientSuite) TestGetUserUnknownReturnsBlankEntry() {
	entry, err := s.client.GetUser(s.ctx, 8)
	s.Require().NoError(err)
	s.Equal(model.AccountID(8), entry.AccountID)
	s.False(entry.IsBanned)
	s.NotNil(entry.UserRoles)
}

func (s *ClientSuite) TestGetUserServerError() {
	_, err := s.client.GetUser(s.ctx, 500)
	s.ErrorIs(err, ErrUnexpectedStatus)
}

func (s *ClientSuite) TestGetUserWrongPassword() {
	client := New(Config{BaseURL: s.server.URL, Password: "nope"}, s.central, testutil.NopLogger())

	_, err := client.GetUser(s.ctx, 7)
	s.ErrorIs(err, ErrUnauthorized)
}

func (s *ClientSuite) TestGetUserUnreachable() {
	client := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, s.central, testutil.NopLogger())

	_, err := client.GetUser(s.ctx, 7)
	s.Error(err)
}

func (s *ClientSuite) TestGetUserHonoursContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.client.GetUser(ctx, 7)
	s.ErrorIs(err, context.Canceled)
}

func (s *ClientSuite) TestRefreshAppliesSettings() {
	err := s.client.Refresh(s.ctx)
	s.Require().NoError(err)

	s.Equal(s.settings, s.central.Snapshot())
}

func (s *ClientSuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.client.Run(ctx)
		close(done)
	}()

	s.Eventually(func() bool { return s.central.Maintenance() }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("Run did not return after cancel")
	}
}
