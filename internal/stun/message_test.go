// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stun

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingXORMappedAddressRoundTrip(t *testing.T) {
	// seed scenario: server reflects 10.0.0.1:3478 through XOR-MAPPED-ADDRESS
	tid := [TransactionIDSize]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C}

	resp, err := Build(
		TransactionIDSetter(tid),
		BindingSuccess,
		XORMappedAddress{IP: net.ParseIP("10.0.0.1"), Port: 3478},
	)
	require.NoError(t, err)

	decoded := New()
	require.NoError(t, Decode(resp.Raw, decoded))
	assert.Equal(t, tid, decoded.TransactionID)

	var addr XORMappedAddress
	require.NoError(t, addr.GetFrom(decoded))
	assert.True(t, addr.IP.Equal(net.ParseIP("10.0.0.1")))
	assert.Equal(t, 3478, addr.Port)
}

func TestMessageTypeValue(t *testing.T) {
	for _, tt := range []struct {
		in  MessageType
		out uint16
	}{
		{MessageType{Method: MethodBinding, Class: ClassRequest}, 0x0001},
		{MessageType{Method: MethodBinding, Class: ClassSuccessResponse}, 0x0101},
		{MessageType{Method: MethodBinding, Class: ClassErrorResponse}, 0x0111},
		{MessageType{Method: MethodBinding, Class: ClassIndication}, 0x0011},
		{MessageType{Method: MethodAllocate, Class: ClassRequest}, 0x0003},
		{MessageType{Method: MethodCreatePermission, Class: ClassRequest}, 0x0008},
	} {
		assert.Equal(t, tt.out, tt.in.Value())

		var decoded MessageType
		decoded.ReadValue(tt.out)
		assert.Equal(t, tt.in, decoded)
	}
}

func TestMessageIntegrity(t *testing.T) {
	integrity := NewShortTermIntegrity("thepassword")

	m, err := Build(
		TransactionID,
		BindingRequest,
		NewUsername("remote:local"),
		UInt32Attribute{Attr: AttrPriority, Value: 1234},
		integrity,
		Fingerprint,
	)
	require.NoError(t, err)

	decoded := New()
	require.NoError(t, Decode(m.Raw, decoded))

	require.NoError(t, decoded.Check(integrity, Fingerprint))

	// attributes survive the round trip
	username, err := decoded.GetUsername()
	require.NoError(t, err)
	assert.Equal(t, "remote:local", username)

	// wrong key must be rejected
	wrong := NewShortTermIntegrity("not-the-password")
	assert.ErrorIs(t, decoded.Check(wrong), ErrIntegrityMismatch)
}

func TestFingerprintDetectsCorruption(t *testing.T) {
	m, err := Build(TransactionID, BindingRequest, NewSoftware("webrtc"), Fingerprint)
	require.NoError(t, err)

	decoded := New()
	require.NoError(t, Decode(m.Raw, decoded))
	require.NoError(t, decoded.Check(Fingerprint))

	// flip a bit in the SOFTWARE attribute
	corrupted := append([]byte(nil), m.Raw...)
	corrupted[messageHeaderSize+attributeHeaderSize] ^= 0x01
	decoded = New()
	require.NoError(t, Decode(corrupted, decoded))
	assert.ErrorIs(t, decoded.Check(Fingerprint), ErrFingerprintMismatch)
}

func TestFingerprintMustFollowIntegrity(t *testing.T) {
	m, err := Build(TransactionID, BindingRequest, Fingerprint)
	require.NoError(t, err)

	integrity := NewShortTermIntegrity("pwd")
	assert.ErrorIs(t, integrity.AddTo(m), ErrFingerprintBeforeIntegrity)
}

func TestDecodeRejectsBadCookie(t *testing.T) {
	m, err := Build(TransactionID, BindingRequest)
	require.NoError(t, err)

	raw := append([]byte(nil), m.Raw...)
	raw[4] = 0x00

	assert.ErrorIs(t, Decode(raw, New()), ErrInvalidMagicCookie)
}

func TestIsMessage(t *testing.T) {
	m, err := Build(TransactionID, BindingRequest)
	require.NoError(t, err)
	assert.True(t, IsMessage(m.Raw))

	assert.False(t, IsMessage([]byte{0x80, 0x01}))
	// DTLS content types land in 20..63
	dtls := make([]byte, messageHeaderSize)
	dtls[0] = 22
	assert.False(t, IsMessage(dtls))
}

func TestErrorCodeAttribute(t *testing.T) {
	m, err := Build(TransactionID, BindingError, CodeRoleConflict)
	require.NoError(t, err)

	decoded := New()
	require.NoError(t, Decode(m.Raw, decoded))

	var code ErrorCodeAttribute
	require.NoError(t, code.GetFrom(decoded))
	assert.Equal(t, CodeRoleConflict, code.Code)
	assert.Equal(t, "Role Conflict", string(code.Reason))
}

func TestFlagAndUintAttributes(t *testing.T) {
	m, err := Build(
		TransactionID,
		BindingRequest,
		FlagAttribute{Attr: AttrUseCandidate},
		UInt64Attribute{Attr: AttrICEControlling, Value: 0xdeadbeefcafe},
	)
	require.NoError(t, err)

	decoded := New()
	require.NoError(t, Decode(m.Raw, decoded))
	assert.True(t, decoded.Contains(AttrUseCandidate))

	var tieBreaker UInt64Attribute
	tieBreaker.Attr = AttrICEControlling
	require.NoError(t, tieBreaker.GetFrom(decoded))
	assert.Equal(t, uint64(0xdeadbeefcafe), tieBreaker.Value)
}
