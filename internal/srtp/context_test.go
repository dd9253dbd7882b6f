// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package srtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjhorn/webrtc/internal/rtp"
)

var (
	testMasterKey     = []byte{0x0d, 0xcd, 0x21, 0x3e, 0x4c, 0xbc, 0xf2, 0x8f, 0x01, 0x7f, 0x69, 0x94, 0x40, 0x1e, 0x28, 0x89}
	testMasterSalt    = []byte{0x62, 0x77, 0x60, 0x38, 0xc0, 0x6d, 0xc9, 0x41, 0x9f, 0x6d, 0xd9, 0x43}
	testMasterSalt14  = append(append([]byte{}, testMasterSalt...), 0x3a, 0x41)
)

func buildTestPacket(t *testing.T, ssrc uint32, seq uint16) []byte {
	t.Helper()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      5000,
			SSRC:           ssrc,
		},
		Payload: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05},
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	return raw
}

func newPair(t *testing.T, profile ProtectionProfile) (protect, unprotect *Context) {
	t.Helper()
	salt := testMasterSalt
	if profile == ProtectionProfileAes128CmHmacSha1_80 {
		salt = testMasterSalt14
	}
	var err error
	protect, err = CreateContext(testMasterKey, salt, profile)
	require.NoError(t, err)
	unprotect, err = CreateContext(testMasterKey, salt, profile)
	require.NoError(t, err)
	return protect, unprotect
}

func TestRTPRoundTripAllProfiles(t *testing.T) {
	for _, profile := range []ProtectionProfile{
		ProtectionProfileAes128CmHmacSha1_80,
		ProtectionProfileAeadAes128Gcm,
	} {
		protect, unprotect := newPair(t, profile)

		plain := buildTestPacket(t, 0x11223344, 5000)
		encrypted, err := protect.EncryptRTP(plain)
		require.NoErrorf(t, err, "%s", profile)
		assert.NotEqualf(t, plain, encrypted, "%s payload must change", profile)

		decrypted, err := unprotect.DecryptRTP(encrypted)
		require.NoErrorf(t, err, "%s", profile)
		assert.Equalf(t, plain, decrypted, "%s", profile)
	}
}

func TestRTPTamperDetected(t *testing.T) {
	for _, profile := range []ProtectionProfile{
		ProtectionProfileAes128CmHmacSha1_80,
		ProtectionProfileAeadAes128Gcm,
	} {
		protect, unprotect := newPair(t, profile)

		encrypted, err := protect.EncryptRTP(buildTestPacket(t, 0xcafe, 1))
		require.NoError(t, err)

		// flip the last byte, which belongs to the auth tag
		encrypted[len(encrypted)-1] ^= 0x01
		_, err = unprotect.DecryptRTP(encrypted)
		assert.Errorf(t, err, "%s must reject tampered packet", profile)
	}
}

func TestRTPReplayRejected(t *testing.T) {
	protect, unprotect := newPair(t, ProtectionProfileAes128CmHmacSha1_80)

	// accept 100, 101, 103
	for _, seq := range []uint16{100, 101, 103} {
		encrypted, err := protect.EncryptRTP(buildTestPacket(t, 0xabcd, seq))
		require.NoError(t, err)
		_, err = unprotect.DecryptRTP(encrypted)
		require.NoError(t, err)
	}

	// replaying 100 is rejected
	replayProtect, _ := newPair(t, ProtectionProfileAes128CmHmacSha1_80)
	encrypted, err := replayProtect.EncryptRTP(buildTestPacket(t, 0xabcd, 100))
	require.NoError(t, err)
	_, err = unprotect.DecryptRTP(encrypted)
	assert.ErrorIs(t, err, errDuplicated)
}

func TestRTPRolloverCounter(t *testing.T) {
	protect, unprotect := newPair(t, ProtectionProfileAes128CmHmacSha1_80)

	// receiving 65535 then 0 advances the ROC: index 65536 is accepted
	encrypted, err := protect.EncryptRTP(buildTestPacket(t, 0xabcd, 0xffff))
	require.NoError(t, err)
	_, err = unprotect.DecryptRTP(encrypted)
	require.NoError(t, err)

	encrypted, err = protect.EncryptRTP(buildTestPacket(t, 0xabcd, 0x0000))
	require.NoError(t, err)
	_, err = unprotect.DecryptRTP(encrypted)
	require.NoError(t, err)

	state := unprotect.getSRTPSSRCState(0xabcd)
	assert.Equal(t, uint64(0x10000), state.index)
}

func TestROCGuessing(t *testing.T) {
	s := &srtpSSRCState{}
	assert.Equal(t, uint64(100), s.nextIndex(100))
	s.index, s.hasIndex = 100, true

	// small forward step keeps ROC
	assert.Equal(t, uint64(101), s.nextIndex(101))

	// wrap chooses ROC+1
	s.index = 0xffff
	assert.Equal(t, uint64(0x10000), s.nextIndex(0))

	// late packet after wrap chooses ROC-1
	s.index = 0x10002
	assert.Equal(t, uint64(0xfffe), s.nextIndex(0xfffe))
}

func TestRTCPRoundTrip(t *testing.T) {
	for _, profile := range []ProtectionProfile{
		ProtectionProfileAes128CmHmacSha1_80,
		ProtectionProfileAeadAes128Gcm,
	} {
		protect, unprotect := newPair(t, profile)

		// a minimal receiver report: V=2, PT=201, length=1, ssrc
		plain := []byte{0x81, 0xc9, 0x00, 0x01, 0x00, 0x00, 0xca, 0xfe, 0x11, 0x22, 0x33, 0x44}
		encrypted, err := protect.EncryptRTCP(plain)
		require.NoErrorf(t, err, "%s", profile)

		decrypted, err := unprotect.DecryptRTCP(encrypted)
		require.NoErrorf(t, err, "%s", profile)
		assert.Equalf(t, plain, decrypted, "%s", profile)

		// replay of the same SRTCP index is rejected
		_, err = unprotect.DecryptRTCP(encrypted)
		assert.ErrorIsf(t, err, errDuplicated, "%s", profile)
	}
}

func TestCreateContextValidatesKeySizes(t *testing.T) {
	_, err := CreateContext(testMasterKey[:8], testMasterSalt14, ProtectionProfileAes128CmHmacSha1_80)
	assert.ErrorIs(t, err, errShortKey)

	_, err = CreateContext(testMasterKey, testMasterSalt, ProtectionProfileAes128CmHmacSha1_80)
	assert.ErrorIs(t, err, errShortKey)

	_, err = CreateContext(testMasterKey, testMasterSalt14, ProtectionProfile(0x9999))
	assert.ErrorIs(t, err, errNoSuchProfile)
}

func TestKeyMaterialLengths(t *testing.T) {
	n, err := ProtectionProfileAes128CmHmacSha1_80.KeyMaterialLen()
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	n, err = ProtectionProfileAeadAes128Gcm.KeyMaterialLen()
	require.NoError(t, err)
	assert.Equal(t, 56, n)
}
