// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package turn

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjhorn/webrtc/internal/stun"
)

func TestChannelDataRoundTrip(t *testing.T) {
	cd := ChannelData{Number: 0x4000, Data: []byte{0xde, 0xad, 0xbe, 0xef, 0x99}}
	raw, err := cd.Marshal()
	require.NoError(t, err)

	assert.True(t, IsChannelData(raw))
	// detection rule: (first_byte & 0xC0) == 0x40
	assert.Equal(t, byte(0x40), raw[0]&0xC0)

	var decoded ChannelData
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, cd.Number, decoded.Number)
	assert.Equal(t, cd.Data, decoded.Data)
}

func TestChannelDataRejectsBadNumber(t *testing.T) {
	cd := ChannelData{Number: 0x3fff}
	_, err := cd.Marshal()
	assert.ErrorIs(t, err, errInvalidChannelNumber)

	cd.Number = 0x8000
	_, err = cd.Marshal()
	assert.ErrorIs(t, err, errInvalidChannelNumber)
}

// turnServerStub answers Allocate with a 401 challenge first and success
// once credentials are present, exercising the challenge-response path.
type turnServerStub struct {
	t          *testing.T
	mu         sync.Mutex
	client     *stun.Client
	realm      string
	nonce      string
	sawAuth    bool
	staleOnce  bool
}

func (s *turnServerStub) handle(raw []byte, _ net.Addr) error {
	m := stun.New()
	if err := stun.Decode(raw, m); err != nil {
		return err
	}
	if m.Type.Class == stun.ClassIndication {
		return nil
	}

	var resp *stun.Message
	var err error
	if !m.Contains(stun.AttrMessageIntegrity) {
		resp, err = stun.Build(
			stun.TransactionIDSetter(m.TransactionID),
			stun.MessageType{Method: m.Type.Method, Class: stun.ClassErrorResponse},
			stun.CodeUnauthorized,
			stun.NewRealm(s.realm),
			stun.NewNonce(s.nonce),
		)
	} else if s.staleOnce {
		s.staleOnce = false
		s.nonce = "nonce-2"
		resp, err = stun.Build(
			stun.TransactionIDSetter(m.TransactionID),
			stun.MessageType{Method: m.Type.Method, Class: stun.ClassErrorResponse},
			stun.CodeStaleNonce,
			stun.NewRealm(s.realm),
			stun.NewNonce(s.nonce),
		)
	} else {
		s.mu.Lock()
		s.sawAuth = true
		s.mu.Unlock()
		resp, err = stun.Build(
			stun.TransactionIDSetter(m.TransactionID),
			stun.MessageType{Method: m.Type.Method, Class: stun.ClassSuccessResponse},
			stun.XORRelayedAddress{IP: net.ParseIP("192.0.2.15"), Port: 50000},
			stun.XORMappedAddress{IP: net.ParseIP("198.51.100.2"), Port: 40000},
			stun.UInt32Attribute{Attr: stun.AttrLifetime, Value: 600},
		)
	}
	if err != nil {
		return err
	}

	// deliver asynchronously like a real socket would
	go s.client.HandleInbound(resp)
	return nil
}

func TestAllocateChallengeResponse(t *testing.T) {
	server := &turnServerStub{t: t, realm: "example.org", nonce: "nonce-1"}
	stunClient := stun.NewClient(stun.ClientConfig{
		RTO:   time.Hour,
		Write: server.handle,
	})
	server.client = stunClient
	defer stunClient.Close()

	client := NewClient(ClientConfig{
		ServerAddr: &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 3478},
		Username:   "user",
		Password:   "pass",
		STUNClient: stunClient,
	})

	relay, err := client.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.15", relay.IP.String())
	assert.Equal(t, 50000, relay.Port)
	assert.True(t, server.sawAuth)
	assert.Equal(t, "example.org", client.realm)

	_, err = client.Allocate()
	assert.ErrorIs(t, err, ErrAlreadyAllocated)
}

func TestStaleNonceIsTransparent(t *testing.T) {
	server := &turnServerStub{t: t, realm: "example.org", nonce: "nonce-1", staleOnce: true}
	stunClient := stun.NewClient(stun.ClientConfig{
		RTO:   time.Hour,
		Write: server.handle,
	})
	server.client = stunClient
	defer stunClient.Close()

	client := NewClient(ClientConfig{
		ServerAddr: &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 3478},
		Username:   "user",
		Password:   "pass",
		STUNClient: stunClient,
	})

	_, err := client.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "nonce-2", client.nonce)
}

func TestDataIndicationDispatch(t *testing.T) {
	client := NewClient(ClientConfig{
		ServerAddr: &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 3478},
	})

	var got []byte
	var from *net.UDPAddr
	client.OnData = func(data []byte, peer *net.UDPAddr) {
		got = data
		from = peer
	}

	ind, err := stun.Build(
		stun.TransactionID,
		stun.MessageType{Method: stun.MethodData, Class: stun.ClassIndication},
		stun.XORPeerAddress{IP: net.ParseIP("192.0.2.5"), Port: 1234},
		stun.RawAttribute{Type: stun.AttrData, Value: []byte("hello")},
	)
	require.NoError(t, err)

	assert.True(t, client.HandleInbound(ind.Raw, nil))
	assert.Equal(t, []byte("hello"), got)
	require.NotNil(t, from)
	assert.Equal(t, 1234, from.Port)
}
