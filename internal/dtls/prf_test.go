// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The canonical TLS 1.2 P_SHA256 test vector.
func TestPRFSha256Vector(t *testing.T) {
	secret, err := hex.DecodeString("9bbe436ba940f017b17652849a71db35")
	require.NoError(t, err)
	seed, err := hex.DecodeString("a0ba9f936cda311827a6f796ffd5198c")
	require.NoError(t, err)
	expected := "e3f229ba727be17b8d122620557cd453c2aab21d07c3d495329b52d4e61edb5a" +
		"6b301791e90d35c9c9a46b4e14baf9af0fa022f7077def17abfd3797c0564bab" +
		"4fbc91666e9def9b97fce34f796789baa48082d122ee42c5a72e5a5110fff701" +
		"87347b66"

	out, err := prf(secret, "test label", seed, 100, sha256.New)
	require.NoError(t, err)
	assert.Equal(t, expected, hex.EncodeToString(out))
}

func TestPRFDeterministic(t *testing.T) {
	master := make([]byte, prfMasterSecretLength)
	clientRandom := make([]byte, prfRandomLength)
	serverRandom := make([]byte, prfRandomLength)
	for i := range clientRandom {
		clientRandom[i] = byte(i)
		serverRandom[i] = byte(255 - i)
	}

	a, err := prfEncryptionKeys(master, clientRandom, serverRandom, 16, 4, sha256.New)
	require.NoError(t, err)
	b, err := prfEncryptionKeys(master, clientRandom, serverRandom, 16, 4, sha256.New)
	require.NoError(t, err)

	assert.Equal(t, a.clientWriteKey, b.clientWriteKey)
	assert.Equal(t, a.serverWriteKey, b.serverWriteKey)
	assert.Equal(t, a.clientWriteIV, b.clientWriteIV)
	assert.Equal(t, a.serverWriteIV, b.serverWriteIV)
	assert.NotEqual(t, a.clientWriteKey, a.serverWriteKey)
	assert.Len(t, a.clientWriteKey, 16)
	assert.Len(t, a.clientWriteIV, 4)
}

func TestVerifyDataLabels(t *testing.T) {
	master := []byte("master-secret-material-for-test-")
	transcript := []byte("handshake messages")

	client, err := prfVerifyDataClient(master, transcript, sha256.New)
	require.NoError(t, err)
	server, err := prfVerifyDataServer(master, transcript, sha256.New)
	require.NoError(t, err)

	assert.Len(t, client, prfVerifyDataLength)
	assert.Len(t, server, prfVerifyDataLength)
	assert.NotEqual(t, client, server)
}

func TestUint48RoundTrip(t *testing.T) {
	b := make([]byte, 6)
	putUint48(b, 0x0000FEDCBA9876)
	assert.Equal(t, uint64(0xFEDCBA9876), uint48(b))
}
