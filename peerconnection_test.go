// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeerConnection(t *testing.T) {
	pc := newTestPeerConnection(t)

	assert.Equal(t, SignalingStateStable, pc.SignalingState())
	assert.Equal(t, ICEConnectionStateNew, pc.ICEConnectionState())
	assert.Equal(t, PeerConnectionStateNew, pc.ConnectionState())
	assert.Equal(t, ICEGatheringStateNew, pc.ICEGatheringState())
}

func TestSetLocalDescriptionInvalidTransition(t *testing.T) {
	pc := newTestPeerConnection(t)

	// answer from stable must fail synchronously with a typed error
	err := pc.SetLocalDescription(SessionDescription{Type: SDPTypeAnswer, SDP: "v=0"})
	require.Error(t, err)
	var modErr *InvalidModificationError
	assert.ErrorAs(t, err, &modErr)

	// the connection is unaffected
	assert.Equal(t, SignalingStateStable, pc.SignalingState())
}

func TestCreateAnswerWithoutRemote(t *testing.T) {
	pc := newTestPeerConnection(t)

	_, err := pc.CreateAnswer()
	var stateErr *InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestAddICECandidateBeforeRemoteDescription(t *testing.T) {
	pc := newTestPeerConnection(t)

	err := pc.AddICECandidate(ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 1234 typ host"})
	var stateErr *InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestAddTrackRejectsDuplicates(t *testing.T) {
	pc := newTestPeerConnection(t)

	track := NewTrackLocal(RTPCodecTypeAudio, "audio", "stream")
	_, err := pc.AddTrack(track)
	require.NoError(t, err)

	_, err = pc.AddTrack(track)
	var accessErr *InvalidAccessError
	assert.ErrorAs(t, err, &accessErr)
}

func TestCreateDataChannelValidation(t *testing.T) {
	pc := newTestPeerConnection(t)

	lifetime := uint16(1000)
	retransmits := uint16(3)
	_, err := pc.CreateDataChannel("bad", &DataChannelInit{
		MaxPacketLifeTime: &lifetime,
		MaxRetransmits:    &retransmits,
	})
	var typeErr *TypeError
	assert.ErrorAs(t, err, &typeErr)

	dc, err := pc.CreateDataChannel("good", nil)
	require.NoError(t, err)
	assert.Equal(t, "good", dc.Label())
	assert.True(t, dc.Ordered())
	assert.Equal(t, DataChannelStateConnecting, dc.ReadyState())

	// not open yet
	var stateErr *InvalidStateError
	assert.ErrorAs(t, dc.Send([]byte("x")), &stateErr)
}

func TestCertificateFingerprint(t *testing.T) {
	cert, err := GenerateCertificate()
	require.NoError(t, err)
	assert.False(t, cert.Expired())

	fingerprint, err := cert.Fingerprint()
	require.NoError(t, err)
	assert.Contains(t, fingerprint, "sha-256 ")

	// matchesFingerprint accepts our own cert
	parts := fingerprint[len("sha-256 "):]
	assert.NoError(t, matchesFingerprint(cert.der, "sha-256", parts))
	assert.ErrorIs(t, matchesFingerprint(cert.der, "sha-256", "00:11"), errFingerprintMismatch)
}

func TestICEServerValidation(t *testing.T) {
	_, err := NewPeerConnection(Configuration{
		ICEServers: []ICEServer{{URLs: []string{"turn:example.org"}}},
	})
	var accessErr *InvalidAccessError
	assert.ErrorAs(t, err, &accessErr)

	pc, err := NewPeerConnection(Configuration{
		ICEServers: []ICEServer{{
			URLs:       []string{"turn:example.org"},
			Username:   "user",
			Credential: "pass",
		}},
	})
	require.NoError(t, err)
	_ = pc.Close()
}

// signalPair exchanges descriptions and trickled candidates between two
// local peer connections. Candidates that surface before the destination has
// a remote description are buffered until it does.
func signalPair(t *testing.T, offerer, answerer *PeerConnection) {
	t.Helper()

	var mu sync.Mutex
	ready := map[*PeerConnection]bool{}
	pending := map[*PeerConnection][]ICECandidateInit{}

	forward := func(dst *PeerConnection) func(*ICECandidate) {
		return func(c *ICECandidate) {
			if c == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ready[dst] {
				_ = dst.AddICECandidate(c.ToJSON())
			} else {
				pending[dst] = append(pending[dst], c.ToJSON())
			}
		}
	}
	markReady := func(dst *PeerConnection) {
		mu.Lock()
		defer mu.Unlock()
		ready[dst] = true
		for _, c := range pending[dst] {
			_ = dst.AddICECandidate(c)
		}
		pending[dst] = nil
	}

	offerer.OnICECandidate(forward(answerer))
	answerer.OnICECandidate(forward(offerer))

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))
	require.NoError(t, answerer.SetRemoteDescription(offer))
	markReady(answerer)

	answer, err := answerer.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(answer))
	require.NoError(t, offerer.SetRemoteDescription(answer))
	markReady(offerer)
}

func TestDataChannelEndToEnd(t *testing.T) {
	offerer := newTestPeerConnection(t)
	answerer := newTestPeerConnection(t)

	dc, err := offerer.CreateDataChannel("e2e", nil)
	require.NoError(t, err)

	received := make(chan string, 1)
	answerer.OnDataChannel(func(remote *DataChannel) {
		remote.OnMessage(func(msg DataChannelMessage) {
			if msg.IsString {
				select {
				case received <- string(msg.Data):
				default:
				}
			}
		})
	})

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	signalPair(t, offerer, answerer)

	select {
	case <-opened:
	case <-time.After(30 * time.Second):
		t.Fatal("data channel never opened")
	}

	require.NoError(t, dc.SendText("ping over webrtc"))

	select {
	case msg := <-received:
		assert.Equal(t, "ping over webrtc", msg)
	case <-time.After(30 * time.Second):
		t.Fatal("message never arrived")
	}

	assert.Equal(t, PeerConnectionStateConnected, offerer.ConnectionState())
}
