// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/curve25519"
)

// namedCurve is a TLS supported-groups registry value.
type namedCurve uint16

// Supported curves.
const (
	namedCurveP256   namedCurve = 0x0017 // secp256r1 (23)
	namedCurveX25519 namedCurve = 0x001d // x25519 (29)
)

const ellipticCurveTypeNamedCurve byte = 0x03

// namedCurveKeypair is an ephemeral ECDHE keypair.
type namedCurveKeypair struct {
	curve      namedCurve
	publicKey  []byte
	privateKey []byte
}

func generateKeypair(curve namedCurve) (*namedCurveKeypair, error) {
	switch curve {
	case namedCurveX25519:
		private := make([]byte, curve25519.ScalarSize)
		if _, err := rand.Read(private); err != nil {
			return nil, err
		}
		public, err := curve25519.X25519(private, curve25519.Basepoint)
		if err != nil {
			return nil, err
		}
		return &namedCurveKeypair{curve, public, private}, nil

	case namedCurveP256:
		private, x, y, err := elliptic.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		return &namedCurveKeypair{curve, elliptic.Marshal(elliptic.P256(), x, y), private}, nil

	default:
		return nil, fmt.Errorf("%w: %x", errInvalidNamedCurve, uint16(curve))
	}
}

func curveX25519SharedSecret(privateKey, publicKey []byte) ([]byte, error) {
	return curve25519.X25519(privateKey, publicKey)
}

func curveP256SharedSecret(privateKey, publicKey []byte) ([]byte, error) {
	x, y := elliptic.Unmarshal(elliptic.P256(), publicKey)
	if x == nil {
		return nil, errInvalidNamedCurve
	}
	resultX, _ := elliptic.P256().ScalarMult(x, y, privateKey)

	out := make([]byte, 32)
	resultX.FillBytes(out)
	return out, nil
}

// Signature hash/algorithm pairs from the TLS registry.
const (
	hashAlgorithmSHA256    byte = 4
	signatureAlgorithmRSA   byte = 1
	signatureAlgorithmECDSA byte = 3
)

// valueKeySignatureInput builds client_random || server_random || ec_params,
// the digitally-signed portion of ServerKeyExchange.
func valueKeySignatureInput(clientRandom, serverRandom, publicKey []byte, curve namedCurve) []byte {
	serverECDHParams := make([]byte, 4)
	serverECDHParams[0] = ellipticCurveTypeNamedCurve
	binary.BigEndian.PutUint16(serverECDHParams[1:], uint16(curve))
	serverECDHParams[3] = byte(len(publicKey))

	plaintext := []byte{}
	plaintext = append(plaintext, clientRandom...)
	plaintext = append(plaintext, serverRandom...)
	plaintext = append(plaintext, serverECDHParams...)
	plaintext = append(plaintext, publicKey...)
	return plaintext
}

// generateKeySignature signs the ServerKeyExchange parameters with the
// long-term certificate key.
func generateKeySignature(clientRandom, serverRandom, publicKey []byte, curve namedCurve, privateKey interface{}) ([]byte, error) {
	msg := valueKeySignatureInput(clientRandom, serverRandom, publicKey, curve)
	digest := sha256.Sum256(msg)

	switch key := privateKey.(type) {
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, key, digest[:])
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	default:
		return nil, errInvalidSignature
	}
}

// verifyKeySignature checks the peer's ServerKeyExchange signature against
// the public key of its certificate.
func verifyKeySignature(clientRandom, serverRandom, publicKey []byte, curve namedCurve, rawCertificate, signature []byte) error {
	cert, err := x509.ParseCertificate(rawCertificate)
	if err != nil {
		return err
	}

	msg := valueKeySignatureInput(clientRandom, serverRandom, publicKey, curve)
	digest := sha256.Sum256(msg)

	switch pub := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest[:], signature) {
			return errInvalidSignature
		}
		return nil
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
	default:
		return errInvalidSignature
	}
}

// generateCertificateVerify signs the handshake transcript for the
// CertificateVerify message.
func generateCertificateVerify(handshakeBodies []byte, privateKey interface{}) ([]byte, error) {
	digest := sha256.Sum256(handshakeBodies)

	switch key := privateKey.(type) {
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, key, digest[:])
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	default:
		return nil, errInvalidSignature
	}
}

// verifyCertificateVerify checks a CertificateVerify signature.
func verifyCertificateVerify(handshakeBodies, rawCertificate, signature []byte) error {
	cert, err := x509.ParseCertificate(rawCertificate)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(handshakeBodies)

	switch pub := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest[:], signature) {
			return errInvalidSignature
		}
		return nil
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
	default:
		return errInvalidSignature
	}
}

// GenerateSelfSigned issues an ephemeral ECDSA P-256 certificate for DTLS.
// WebRTC authenticates certificates by SDP fingerprint rather than a chain
// of trust, so nothing beyond the keypair matters.
func GenerateSelfSigned() (*x509.Certificate, *ecdsa.PrivateKey, []byte, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, nil, err
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Version:      2,
		IsCA:         true,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour * 30),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}

	raw, err := x509.CreateCertificate(rand.Reader, &template, &template, privateKey.Public(), privateKey)
	if err != nil {
		return nil, nil, nil, err
	}
	cert, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil, nil, nil, err
	}
	return cert, privateKey, raw, nil
}
