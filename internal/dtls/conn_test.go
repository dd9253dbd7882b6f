// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handshakeResult struct {
	conn *Conn
	err  error
}

func pipeHandshake(t *testing.T, clientConfig, serverConfig *Config) (*Conn, *Conn) {
	t.Helper()
	pipeA, pipeB := net.Pipe()

	clientCh := make(chan handshakeResult, 1)
	serverCh := make(chan handshakeResult, 1)

	go func() {
		conn, err := Client(pipeA, clientConfig)
		clientCh <- handshakeResult{conn, err}
	}()
	go func() {
		conn, err := Server(pipeB, serverConfig)
		serverCh <- handshakeResult{conn, err}
	}()

	var client, server *Conn
	for i := 0; i < 2; i++ {
		select {
		case r := <-clientCh:
			require.NoError(t, r.err, "client handshake")
			client = r.conn
		case r := <-serverCh:
			require.NoError(t, r.err, "server handshake")
			server = r.conn
		case <-time.After(20 * time.Second):
			t.Fatal("handshake timed out")
		}
	}
	return client, server
}

func testConfigs(t *testing.T) (*Config, *Config) {
	t.Helper()
	_, clientKey, clientDER, err := GenerateSelfSigned()
	require.NoError(t, err)
	_, serverKey, serverDER, err := GenerateSelfSigned()
	require.NoError(t, err)

	verifyAgainst := func(expectedDER []byte) func(*x509.Certificate) error {
		expected := sha256.Sum256(expectedDER)
		return func(cert *x509.Certificate) error {
			actual := sha256.Sum256(cert.Raw)
			if !bytes.Equal(expected[:], actual[:]) {
				return errFingerprintMismatch
			}
			return nil
		}
	}

	clientConfig := &Config{
		Certificate:           clientDER,
		PrivateKey:            clientKey,
		SRTPProtectionProfiles: []SRTPProtectionProfile{SRTP_AEAD_AES_128_GCM, SRTP_AES128_CM_HMAC_SHA1_80},
		ExtendedMasterSecret:  true,
		VerifyPeerCertificate: verifyAgainst(serverDER),
		RetransmitInterval:    250 * time.Millisecond,
	}
	serverConfig := &Config{
		Certificate:              serverDER,
		PrivateKey:               serverKey,
		SRTPProtectionProfiles:   []SRTPProtectionProfile{SRTP_AEAD_AES_128_GCM, SRTP_AES128_CM_HMAC_SHA1_80},
		ExtendedMasterSecret:     true,
		RequireClientCertificate: true,
		VerifyPeerCertificate:    verifyAgainst(clientDER),
		RetransmitInterval:       250 * time.Millisecond,
	}
	return clientConfig, serverConfig
}

func TestHandshakeWithCookieExchange(t *testing.T) {
	clientConfig, serverConfig := testConfigs(t)

	client, server := pipeHandshake(t, clientConfig, serverConfig)
	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	assert.Equal(t, TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, client.ConnectionState().CipherSuiteID)
	assert.True(t, client.ConnectionState().ExtendedMasterSecret)
	assert.True(t, server.ConnectionState().ExtendedMasterSecret)

	// the transcripts fed to EMS and Finished must agree byte for byte
	assert.Equal(t, server.HandshakeLog(), client.HandshakeLog())

	// both sides negotiated the same SRTP profile
	clientProfile, ok := client.SelectedSRTPProtectionProfile()
	require.True(t, ok)
	serverProfile, ok := server.SelectedSRTPProtectionProfile()
	require.True(t, ok)
	assert.Equal(t, clientProfile, serverProfile)
	assert.Equal(t, SRTP_AEAD_AES_128_GCM, clientProfile)

	// RFC 5764 exporter is identical on both ends
	clientMaterial, err := client.ExportKeyingMaterial("EXTRACTOR-dtls_srtp", 56)
	require.NoError(t, err)
	serverMaterial, err := server.ExportKeyingMaterial("EXTRACTOR-dtls_srtp", 56)
	require.NoError(t, err)
	assert.Equal(t, clientMaterial, serverMaterial)
	assert.Equal(t, hex.EncodeToString(clientMaterial), hex.EncodeToString(serverMaterial))
}

func TestApplicationDataRoundTrip(t *testing.T) {
	clientConfig, serverConfig := testConfigs(t)
	client, server := pipeHandshake(t, clientConfig, serverConfig)
	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	for i := 0; i < 5; i++ {
		msg := []byte(fmt.Sprintf("message %d", i))
		_, err := client.Write(msg)
		require.NoError(t, err)

		buf := make([]byte, 8192)
		n, err := server.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, msg, buf[:n])

		reply := []byte(fmt.Sprintf("reply %d", i))
		_, err = server.Write(reply)
		require.NoError(t, err)

		n, err = client.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, reply, buf[:n])
	}
}

func TestHandshakeWithoutCookie(t *testing.T) {
	clientConfig, serverConfig := testConfigs(t)
	clientConfig.InsecureSkipHelloVerify = true
	serverConfig.InsecureSkipHelloVerify = true

	client, server := pipeHandshake(t, clientConfig, serverConfig)
	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	assert.Equal(t, server.HandshakeLog(), client.HandshakeLog())
}

func TestHandshakeChaCha20(t *testing.T) {
	clientConfig, serverConfig := testConfigs(t)
	clientConfig.CipherSuites = []CipherSuiteID{TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256}
	serverConfig.CipherSuites = []CipherSuiteID{TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256}

	client, server := pipeHandshake(t, clientConfig, serverConfig)
	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	assert.Equal(t, TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256, client.ConnectionState().CipherSuiteID)

	_, err := client.Write([]byte("over chacha"))
	require.NoError(t, err)
	buf := make([]byte, 1024)
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("over chacha"), buf[:n])
}

func TestHandshakeRejectsWrongFingerprint(t *testing.T) {
	clientConfig, serverConfig := testConfigs(t)

	// client pins a fingerprint that can not match the server's cert
	clientConfig.VerifyPeerCertificate = func(*x509.Certificate) error {
		return errFingerprintMismatch
	}

	pipeA, pipeB := net.Pipe()
	defer func() {
		_ = pipeA.Close()
		_ = pipeB.Close()
	}()

	go func() {
		_, _ = Server(pipeB, serverConfig)
	}()

	_, err := Client(pipeA, clientConfig)
	assert.ErrorIs(t, err, errFingerprintMismatch)
}

func TestCipherSuiteNegotiationFailure(t *testing.T) {
	clientConfig, serverConfig := testConfigs(t)
	clientConfig.CipherSuites = []CipherSuiteID{TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256}
	serverConfig.CipherSuites = []CipherSuiteID{TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256}

	pipeA, pipeB := net.Pipe()
	defer func() {
		_ = pipeA.Close()
		_ = pipeB.Close()
	}()

	serverErr := make(chan error, 1)
	go func() {
		_, err := Server(pipeB, serverConfig)
		serverErr <- err
	}()
	go func() {
		_, _ = Client(pipeA, clientConfig)
	}()

	select {
	case err := <-serverErr:
		assert.ErrorIs(t, err, errCipherSuiteNoIntersection)
	case <-time.After(20 * time.Second):
		t.Fatal("server never failed")
	}
}
