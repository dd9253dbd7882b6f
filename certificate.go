// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"github.com/sjhorn/webrtc/internal/dtls"
)

// Certificate represents an X.509 certificate used to authenticate WebRTC
// communications. The SDP fingerprint, not a CA chain, is what the peer
// verifies.
type Certificate struct {
	privateKey *ecdsa.PrivateKey
	x509Cert   *x509.Certificate
	der        []byte
}

// GenerateCertificate creates an ephemeral self-signed certificate for DTLS.
func GenerateCertificate() (*Certificate, error) {
	cert, key, der, err := dtls.GenerateSelfSigned()
	if err != nil {
		return nil, err
	}
	return &Certificate{privateKey: key, x509Cert: cert, der: der}, nil
}

// Expired reports whether the certificate validity window has passed.
func (c Certificate) Expired() bool {
	if c.x509Cert == nil {
		return true
	}
	return !time.Now().Before(c.x509Cert.NotAfter)
}

// Fingerprint returns the SDP fingerprint line value for the certificate:
// the lowercase algorithm name and the colon-separated hex digest.
func (c Certificate) Fingerprint() (string, error) {
	digest := sha256.Sum256(c.der)

	parts := make([]string, len(digest))
	for i, b := range digest {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return fmt.Sprintf("sha-256 %s", strings.Join(parts, ":")), nil
}

// matchesFingerprint checks a remote DER certificate against an SDP
// fingerprint attribute value.
func matchesFingerprint(der []byte, algorithm, value string) error {
	if !strings.EqualFold(algorithm, "sha-256") {
		return &NotSupportedError{Err: fmt.Errorf("%w: fingerprint algorithm %q", ErrUnknownType, algorithm)}
	}

	digest := sha256.Sum256(der)
	parts := make([]string, len(digest))
	for i, b := range digest {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	if !strings.EqualFold(strings.Join(parts, ":"), value) {
		return errFingerprintMismatch
	}
	return nil
}
