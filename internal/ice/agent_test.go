// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package ice

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidatePriorityFormula(t *testing.T) {
	host := NewCandidate(CandidateTypeHost, ComponentRTP, "10.0.0.1", 5000, ProtoTypeUDP)
	srflx := NewCandidate(CandidateTypeServerReflexive, ComponentRTP, "1.2.3.4", 5000, ProtoTypeUDP)
	relay := NewCandidate(CandidateTypeRelay, ComponentRTP, "5.6.7.8", 5000, ProtoTypeUDP)

	// type preference dominates: host > srflx > relay
	assert.Greater(t, host.Priority, srflx.Priority)
	assert.Greater(t, srflx.Priority, relay.Priority)

	// RFC 8445 §5.1.2.1 with type pref 126, local pref 65535, component 1
	assert.Equal(t, uint32(126<<24|65535<<8|255), host.Priority)

	// RTCP component scores lower
	rtcp := NewCandidate(CandidateTypeHost, ComponentRTCP, "10.0.0.1", 5001, ProtoTypeUDP)
	assert.Equal(t, host.Priority-1, rtcp.Priority)
}

func TestFoundationGrouping(t *testing.T) {
	a := NewCandidate(CandidateTypeHost, ComponentRTP, "10.0.0.1", 5000, ProtoTypeUDP)
	b := NewCandidate(CandidateTypeHost, ComponentRTCP, "10.0.0.1", 5001, ProtoTypeUDP)
	c := NewCandidate(CandidateTypeHost, ComponentRTP, "10.0.0.2", 5000, ProtoTypeUDP)
	d := NewCandidate(CandidateTypeServerReflexive, ComponentRTP, "10.0.0.1", 5000, ProtoTypeUDP)

	// same type+base+proto share a foundation regardless of component/port
	assert.Equal(t, a.Foundation, b.Foundation)
	assert.NotEqual(t, a.Foundation, c.Foundation)
	assert.NotEqual(t, a.Foundation, d.Foundation)
}

func TestCandidateMarshalRoundTrip(t *testing.T) {
	c := NewCandidate(CandidateTypeServerReflexive, ComponentRTP, "203.0.113.5", 40123, ProtoTypeUDP)
	c.RelatedAddress, c.RelatedPort = "10.0.0.17", 5000

	parsed, err := UnmarshalCandidate(c.Marshal())
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	parsed, err = UnmarshalCandidate("candidate:" + c.Marshal())
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	_, err = UnmarshalCandidate("not a candidate")
	assert.Error(t, err)
}

func TestPairPriorityFormula(t *testing.T) {
	local := NewCandidate(CandidateTypeHost, ComponentRTP, "10.0.0.1", 5000, ProtoTypeUDP)
	remote := NewCandidate(CandidateTypeServerReflexive, ComponentRTP, "10.0.0.2", 6000, ProtoTypeUDP)
	pair := &CandidatePair{Local: local, Remote: remote}

	g, d := uint64(local.Priority), uint64(remote.Priority)
	expected := (1<<32)*d + 2*g + 1 // g > d, controlling
	assert.Equal(t, expected, pair.Priority(true))

	expectedControlled := (1<<32)*d + 2*g // g(remote) < d(local) from controlled view
	assert.Equal(t, expectedControlled, pair.Priority(false))
}

func TestURLParsing(t *testing.T) {
	u, err := ParseURL("stun:stun.l.google.com:19302")
	require.NoError(t, err)
	assert.Equal(t, SchemeTypeSTUN, u.Scheme)
	assert.Equal(t, "stun.l.google.com", u.Host)
	assert.Equal(t, 19302, u.Port)
	assert.Equal(t, ProtoTypeUDP, u.Proto)

	u, err = ParseURL("turn:example.org?transport=tcp")
	require.NoError(t, err)
	assert.Equal(t, SchemeTypeTURN, u.Scheme)
	assert.Equal(t, 3478, u.Port)
	assert.Equal(t, ProtoTypeTCP, u.Proto)

	u, err = ParseURL("turns:example.org")
	require.NoError(t, err)
	assert.Equal(t, 5349, u.Port)
	assert.True(t, u.IsSecure())

	_, err = ParseURL("http://example.org")
	assert.Error(t, err)
}

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	a, err := NewAgent(AgentConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func agentPort(a *Agent) int {
	return a.udp.LocalAddr().(*net.UDPAddr).Port
}

func TestChecklistInvariantOnePerFoundation(t *testing.T) {
	a := newTestAgent(t)

	a.mu.Lock()
	local := NewCandidate(CandidateTypeHost, ComponentRTP, "127.0.0.1", agentPort(a), ProtoTypeUDP)
	a.localCandidates = append(a.localCandidates, local)
	a.mu.Unlock()

	// two remotes on different base addresses, so each has its own foundation
	a.AddRemoteCandidate(NewCandidate(CandidateTypeHost, ComponentRTP, "127.0.0.2", 10001, ProtoTypeUDP))
	a.AddRemoteCandidate(NewCandidate(CandidateTypeHost, ComponentRTP, "127.0.0.3", 10002, ProtoTypeUDP))

	checklist := a.Checklist()
	require.Len(t, checklist, 2)

	// pairs are sorted by priority and unfrozen per foundation
	seen := map[string]int{}
	for _, p := range checklist {
		if p.State == CandidatePairStateWaiting {
			seen[p.foundationKey()]++
		}
	}
	for key, count := range seen {
		assert.LessOrEqualf(t, count, 1, "foundation %s unfroze %d pairs", key, count)
	}
}

func TestNomination(t *testing.T) {
	controlling := newTestAgent(t)
	controlled := newTestAgent(t)

	wireUp := func(local, remote *Agent) {
		ufrag, pwd := remote.LocalCredentials()
		local.SetRemoteCredentials(ufrag, pwd)

		local.mu.Lock()
		hostCandidate := NewCandidate(CandidateTypeHost, ComponentRTP, "127.0.0.1", agentPort(local), ProtoTypeUDP)
		local.localCandidates = append(local.localCandidates, hostCandidate)
		local.mu.Unlock()

		local.AddRemoteCandidate(NewCandidate(CandidateTypeHost, ComponentRTP, "127.0.0.1", agentPort(remote), ProtoTypeUDP))
		local.AddRemoteCandidate(nil)
	}
	wireUp(controlling, controlled)
	wireUp(controlled, controlling)

	var controllingStates []ConnectionState
	controlling.OnConnectionStateChange(func(s ConnectionState) {
		controllingStates = append(controllingStates, s)
	})

	require.NoError(t, controlled.StartConnectivityChecks(false))
	require.NoError(t, controlling.StartConnectivityChecks(true))

	type connResult struct {
		conn net.Conn
		err  error
	}
	connCh := make(chan connResult, 2)
	go func() {
		c, err := controlling.Conn()
		connCh <- connResult{c, err}
	}()
	go func() {
		c, err := controlled.Conn()
		connCh <- connResult{c, err}
	}()

	conns := make([]net.Conn, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case r := <-connCh:
			require.NoError(t, r.err)
			conns = append(conns, r.conn)
		case <-time.After(20 * time.Second):
			t.Fatal("nomination did not complete")
		}
	}

	// the selected pair is nominated and succeeded on both sides
	for _, a := range []*Agent{controlling, controlled} {
		pair := a.SelectedCandidatePair()
		require.NotNil(t, pair)
		assert.True(t, pair.Nominated)
		assert.Equal(t, CandidatePairStateSucceeded, pair.State)
	}

	// data flows over the selected pair
	_, err := conns[0].Write([]byte("payload"))
	require.NoError(t, err)
	buf := make([]byte, 1500)
	n, err := conns[1].Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))

	assert.Contains(t, controllingStates, ConnectionStateConnected)
}
