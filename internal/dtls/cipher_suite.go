// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherSuiteID is a TLS cipher suite registry value.
type CipherSuiteID uint16

// Supported cipher suites.
const (
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256       CipherSuiteID = 0xC02B
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256         CipherSuiteID = 0xC02F
	TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384       CipherSuiteID = 0xC02C
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384         CipherSuiteID = 0xC030
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256 CipherSuiteID = 0xCCA9
	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256   CipherSuiteID = 0xCCA8
)

func (c CipherSuiteID) String() string {
	switch c {
	case TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:
		return "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"
	case TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:
		return "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"
	case TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384:
		return "TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384"
	case TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:
		return "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384"
	case TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256:
		return "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256"
	case TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256:
		return "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256"
	default:
		return fmt.Sprintf("unknown(%#x)", uint16(c))
	}
}

type clientCertificateType byte

const (
	clientCertificateTypeRSASign   clientCertificateType = 1
	clientCertificateTypeECDSASign clientCertificateType = 64
)

const (
	gcmExplicitNonceLen = 8
	gcmTagLength        = 16
)

type aeadStyle int

const (
	aeadStyleGCM aeadStyle = iota
	aeadStyleChaCha20
)

// cipherSuite holds the negotiated algorithms plus, after init, the
// directional AEADs and implicit nonces for record protection.
type cipherSuite struct {
	id       CipherSuiteID
	certType clientCertificateType
	keyLen   int
	ivLen    int
	style    aeadStyle
	hash     func() hash.Hash

	localAEAD, remoteAEAD       cipher.AEAD
	localWriteIV, remoteWriteIV []byte
	initialized                 bool
}

func cipherSuiteForID(id CipherSuiteID) (*cipherSuite, error) {
	switch id {
	case TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:
		return &cipherSuite{id: id, certType: clientCertificateTypeECDSASign, keyLen: 16, ivLen: 4, style: aeadStyleGCM, hash: sha256.New}, nil
	case TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:
		return &cipherSuite{id: id, certType: clientCertificateTypeRSASign, keyLen: 16, ivLen: 4, style: aeadStyleGCM, hash: sha256.New}, nil
	case TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384:
		return &cipherSuite{id: id, certType: clientCertificateTypeECDSASign, keyLen: 32, ivLen: 4, style: aeadStyleGCM, hash: sha512.New384}, nil
	case TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:
		return &cipherSuite{id: id, certType: clientCertificateTypeRSASign, keyLen: 32, ivLen: 4, style: aeadStyleGCM, hash: sha512.New384}, nil
	case TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256:
		return &cipherSuite{id: id, certType: clientCertificateTypeECDSASign, keyLen: 32, ivLen: 12, style: aeadStyleChaCha20, hash: sha256.New}, nil
	case TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256:
		return &cipherSuite{id: id, certType: clientCertificateTypeRSASign, keyLen: 32, ivLen: 12, style: aeadStyleChaCha20, hash: sha256.New}, nil
	default:
		return nil, fmt.Errorf("%w: %#x", errInvalidCipherSuite, uint16(id))
	}
}

// defaultCipherSuites is the server preference order.
func defaultCipherSuites() []CipherSuiteID {
	return []CipherSuiteID{
		TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}

func newAEAD(style aeadStyle, key []byte) (cipher.AEAD, error) {
	switch style {
	case aeadStyleGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case aeadStyleChaCha20:
		return chacha20poly1305.New(key)
	default:
		return nil, errInvalidCipherSuite
	}
}

// init derives the key block and prepares both AEAD directions.
func (c *cipherSuite) init(masterSecret, clientRandom, serverRandom []byte, isClient bool) error {
	keys, err := prfEncryptionKeys(masterSecret, clientRandom, serverRandom, c.keyLen, c.ivLen, c.hash)
	if err != nil {
		return err
	}

	var localKey, remoteKey []byte
	if isClient {
		localKey, remoteKey = keys.clientWriteKey, keys.serverWriteKey
		c.localWriteIV, c.remoteWriteIV = keys.clientWriteIV, keys.serverWriteIV
	} else {
		localKey, remoteKey = keys.serverWriteKey, keys.clientWriteKey
		c.localWriteIV, c.remoteWriteIV = keys.serverWriteIV, keys.clientWriteIV
	}

	if c.localAEAD, err = newAEAD(c.style, localKey); err != nil {
		return err
	}
	if c.remoteAEAD, err = newAEAD(c.style, remoteKey); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// encrypt protects a record in place, returning the full wire bytes.
func (c *cipherSuite) encrypt(rec *record) ([]byte, error) {
	payload := rec.payload
	additionalData := generateAEADAdditionalData(&rec.header, len(payload))

	switch c.style {
	case aeadStyleGCM:
		nonce := make([]byte, 0, c.ivLen+gcmExplicitNonceLen)
		nonce = append(nonce, c.localWriteIV...)
		explicit := dtlsEpochSequence(rec.header.epoch, rec.header.sequenceNumber)
		nonce = append(nonce, explicit[:]...)

		encrypted := c.localAEAD.Seal(nil, nonce, payload, additionalData)

		out := make([]byte, 0, gcmExplicitNonceLen+len(encrypted))
		out = append(out, explicit[:]...)
		out = append(out, encrypted...)
		rec.header.length = uint16(len(out))
		return append(rec.header.marshal(), out...), nil

	case aeadStyleChaCha20:
		nonce := make([]byte, chacha20poly1305.NonceSize)
		copy(nonce, c.localWriteIV)
		explicit := dtlsEpochSequence(rec.header.epoch, rec.header.sequenceNumber)
		for i := 0; i < 8; i++ {
			nonce[4+i] ^= explicit[i]
		}

		encrypted := c.localAEAD.Seal(nil, nonce, payload, additionalData)
		rec.header.length = uint16(len(encrypted))
		return append(rec.header.marshal(), encrypted...), nil

	default:
		return nil, errInvalidCipherSuite
	}
}

// decrypt unprotects a record body, returning the plaintext.
func (c *cipherSuite) decrypt(h *recordHeader, in []byte) ([]byte, error) {
	switch c.style {
	case aeadStyleGCM:
		if len(in) < gcmExplicitNonceLen+gcmTagLength {
			return nil, errBufferTooSmall
		}
		nonce := make([]byte, 0, c.ivLen+gcmExplicitNonceLen)
		nonce = append(nonce, c.remoteWriteIV...)
		nonce = append(nonce, in[:gcmExplicitNonceLen]...)
		ciphertext := in[gcmExplicitNonceLen:]

		additionalData := generateAEADAdditionalData(h, len(ciphertext)-gcmTagLength)
		return c.remoteAEAD.Open(nil, nonce, ciphertext, additionalData)

	case aeadStyleChaCha20:
		if len(in) < chacha20poly1305.Overhead {
			return nil, errBufferTooSmall
		}
		nonce := make([]byte, chacha20poly1305.NonceSize)
		copy(nonce, c.remoteWriteIV)
		explicit := dtlsEpochSequence(h.epoch, h.sequenceNumber)
		for i := 0; i < 8; i++ {
			nonce[4+i] ^= explicit[i]
		}

		additionalData := generateAEADAdditionalData(h, len(in)-chacha20poly1305.Overhead)
		return c.remoteAEAD.Open(nil, nonce, in, additionalData)

	default:
		return nil, errInvalidCipherSuite
	}
}
