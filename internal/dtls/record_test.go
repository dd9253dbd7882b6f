// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHeaderRoundTrip(t *testing.T) {
	h := recordHeader{
		contentType:    contentTypeHandshake,
		version:        dtls1_2,
		epoch:          3,
		sequenceNumber: 0x0000AABBCCDDEE,
		length:         512,
	}
	raw := h.marshal()
	require.Len(t, raw, recordHeaderSize)

	var decoded recordHeader
	require.NoError(t, decoded.unmarshal(raw))
	assert.Equal(t, h, decoded)
}

func TestRecordHeaderRejectsUnknownContentType(t *testing.T) {
	raw := make([]byte, recordHeaderSize)
	raw[0] = 99
	var h recordHeader
	assert.ErrorIs(t, h.unmarshal(raw), errInvalidContentType)
}

func TestUnpackDatagramMultipleRecords(t *testing.T) {
	r1 := (&record{header: recordHeader{contentType: contentTypeHandshake, version: dtls1_2}, payload: []byte{1, 2, 3}}).marshal()
	r2 := (&record{header: recordHeader{contentType: contentTypeChangeCipherSpec, version: dtls1_2}, payload: []byte{1}}).marshal()

	pkts, err := unpackDatagram(append(append([]byte{}, r1...), r2...))
	require.NoError(t, err)
	require.Len(t, pkts, 2)
	assert.Equal(t, r1, pkts[0])
	assert.Equal(t, r2, pkts[1])

	_, err = unpackDatagram(r1[:5])
	assert.Error(t, err)
}

func newTestCipherPair(t *testing.T, id CipherSuiteID) (client, server *cipherSuite) {
	t.Helper()
	master := make([]byte, prfMasterSecretLength)
	clientRandom := make([]byte, prfRandomLength)
	serverRandom := make([]byte, prfRandomLength)
	for i := range master {
		master[i] = byte(i * 3)
	}

	var err error
	client, err = cipherSuiteForID(id)
	require.NoError(t, err)
	require.NoError(t, client.init(master, clientRandom, serverRandom, true))

	server, err = cipherSuiteForID(id)
	require.NoError(t, err)
	require.NoError(t, server.init(master, clientRandom, serverRandom, false))
	return client, server
}

func TestRecordEncryptionRoundTrip(t *testing.T) {
	for _, id := range []CipherSuiteID{
		TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	} {
		client, server := newTestCipherPair(t, id)

		rec := &record{
			header: recordHeader{
				contentType:    contentTypeApplicationData,
				version:        dtls1_2,
				epoch:          1,
				sequenceNumber: 42,
			},
			payload: []byte("protected application data"),
		}

		wire, err := client.encrypt(rec)
		require.NoErrorf(t, err, "%s", id)

		var h recordHeader
		require.NoError(t, h.unmarshal(wire))
		plain, err := server.decrypt(&h, wire[recordHeaderSize:])
		require.NoErrorf(t, err, "%s", id)
		assert.Equalf(t, []byte("protected application data"), plain, "%s", id)
	}
}

func TestRecordEncryptionDetectsTampering(t *testing.T) {
	for _, id := range []CipherSuiteID{
		TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	} {
		client, server := newTestCipherPair(t, id)

		rec := &record{
			header: recordHeader{
				contentType:    contentTypeApplicationData,
				version:        dtls1_2,
				epoch:          1,
				sequenceNumber: 7,
			},
			payload: []byte("payload"),
		}
		wire, err := client.encrypt(rec)
		require.NoError(t, err)

		// flip a ciphertext byte
		tampered := append([]byte(nil), wire...)
		tampered[len(tampered)-1] ^= 0x01
		var h recordHeader
		require.NoError(t, h.unmarshal(tampered))
		_, err = server.decrypt(&h, tampered[recordHeaderSize:])
		assert.Errorf(t, err, "%s ciphertext flip", id)

		// flip an AAD byte (the epoch in the header)
		tampered = append([]byte(nil), wire...)
		tampered[4] ^= 0x01
		require.NoError(t, h.unmarshal(tampered))
		_, err = server.decrypt(&h, tampered[recordHeaderSize:])
		assert.Errorf(t, err, "%s AAD flip", id)
	}
}

func TestAEADAdditionalDataUsesPlaintextLength(t *testing.T) {
	h := &recordHeader{
		contentType:    contentTypeHandshake,
		version:        dtls1_2,
		epoch:          1,
		sequenceNumber: 2,
		length:         999, // ciphertext length, must not leak into AAD
	}
	aad := generateAEADAdditionalData(h, 5)
	assert.Len(t, aad, 13)
	assert.Equal(t, byte(0), aad[11])
	assert.Equal(t, byte(5), aad[12])
}
