// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"crypto/x509"
	"time"

	"github.com/pion/logging"
)

// SRTPProtectionProfile is a use_srtp extension value (RFC 5764 §4.1.2).
type SRTPProtectionProfile uint16

// Supported SRTP protection profiles.
const (
	SRTP_AES128_CM_HMAC_SHA1_80 SRTPProtectionProfile = 0x0001
	SRTP_AEAD_AES_128_GCM       SRTPProtectionProfile = 0x0007
)

// Config is used to configure a DTLS client or server.
type Config struct {
	// Certificate is the DER-encoded leaf presented to the peer. Required.
	Certificate []byte
	// PrivateKey signs the key exchange (server) or CertificateVerify
	// (client). *ecdsa.PrivateKey or *rsa.PrivateKey.
	PrivateKey interface{}

	// CipherSuites overrides the default preference order.
	CipherSuites []CipherSuiteID

	// SRTPProtectionProfiles enables the use_srtp extension.
	SRTPProtectionProfiles []SRTPProtectionProfile

	// VerifyPeerCertificate authenticates the peer leaf certificate. In
	// WebRTC this checks the certificate digest against the SDP
	// fingerprint; chain validation is not performed.
	VerifyPeerCertificate func(certificate *x509.Certificate) error

	// RequireClientCertificate makes a server send CertificateRequest.
	RequireClientCertificate bool

	// InsecureSkipHelloVerify disables the cookie exchange; servers answer
	// flight 1 with flight 4 directly.
	InsecureSkipHelloVerify bool

	// RetransmitInterval is the initial flight retransmit timer. One
	// second when zero, doubling to a minute (RFC 6347 §4.2.4.1).
	RetransmitInterval time.Duration

	// ExtendedMasterSecret offers and requires RFC 7627 when the peer
	// supports it.
	ExtendedMasterSecret bool

	LoggerFactory logging.LoggerFactory
}

const (
	defaultRetransmitInterval = time.Second
	maxRetransmitInterval     = 60 * time.Second
	handshakeTimeout          = 30 * time.Second
)
