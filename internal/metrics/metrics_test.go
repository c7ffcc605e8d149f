package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Handshake(HandshakeOK)
	m.Handshake(HandshakeOK)
	m.Login(LoginBanned, 10*time.Millisecond)
	m.Packet("ping")
	m.Eviction()

	assert.Equal(t, 2.0, promtest.ToFloat64(m.handshakes.WithLabelValues(HandshakeOK)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.logins.WithLabelValues(LoginBanned)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.packets.WithLabelValues("ping")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.evictions))
}

func TestActiveSessionsGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 1.0, promtest.ToFloat64(m.activeSessions))
}

func TestPlayerCountGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	count := uint32(3)
	m.RegisterPlayerCount(func() uint32 { return count })

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "relaygate_players_online" {
			found = true
			assert.Equal(t, 3.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
