// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"crypto/hmac"
	"encoding/binary"
	"fmt"
	"hash"
)

const (
	prfMasterSecretLength = 48
	prfRandomLength       = 32
	prfVerifyDataLength   = 12
)

const (
	prfLabelMasterSecret         = "master secret"
	prfLabelExtendedMasterSecret = "extended master secret"
	prfLabelKeyExpansion         = "key expansion"
	prfLabelClientFinished       = "client finished"
	prfLabelServerFinished       = "server finished"
	prfLabelExtractorDtlsSrtp    = "EXTRACTOR-dtls_srtp"
)

// prfPHash is the TLS 1.2 P_hash (RFC 5246 §5):
//
//	A(0) = seed, A(i) = HMAC(secret, A(i-1))
//	P_hash = HMAC(secret, A(1) + seed) + HMAC(secret, A(2) + seed) + ...
func prfPHash(secret, seed []byte, requestedLength int, h func() hash.Hash) ([]byte, error) {
	hmacSHA := func(key, data []byte) ([]byte, error) {
		mac := hmac.New(h, key)
		if _, err := mac.Write(data); err != nil {
			return nil, err
		}
		return mac.Sum(nil), nil
	}

	var err error
	lastRound := seed
	out := make([]byte, 0, requestedLength)

	iterations := (requestedLength + h().Size() - 1) / h().Size()
	for i := 0; i < iterations; i++ {
		lastRound, err = hmacSHA(secret, lastRound)
		if err != nil {
			return nil, err
		}
		withSecret, err := hmacSHA(secret, append(append([]byte{}, lastRound...), seed...))
		if err != nil {
			return nil, err
		}
		out = append(out, withSecret...)
	}

	return out[:requestedLength], nil
}

func prf(secret []byte, label string, seed []byte, requestedLength int, h func() hash.Hash) ([]byte, error) {
	labeledSeed := append(append([]byte{}, []byte(label)...), seed...)
	return prfPHash(secret, labeledSeed, requestedLength, h)
}

// prfPreMasterSecret computes the ECDHE shared secret for the negotiated curve.
func prfPreMasterSecret(publicKey, privateKey []byte, curve namedCurve) ([]byte, error) {
	switch curve {
	case namedCurveX25519:
		return curveX25519SharedSecret(privateKey, publicKey)
	case namedCurveP256:
		return curveP256SharedSecret(privateKey, publicKey)
	default:
		return nil, fmt.Errorf("%w: %x", errInvalidNamedCurve, uint16(curve))
	}
}

// prfMasterSecret derives the classic (RFC 5246 §8.1) master secret.
func prfMasterSecret(preMasterSecret, clientRandom, serverRandom []byte, h func() hash.Hash) ([]byte, error) {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return prf(preMasterSecret, prfLabelMasterSecret, seed, prfMasterSecretLength, h)
}

// prfExtendedMasterSecret derives the RFC 7627 master secret bound to the
// session hash of the handshake transcript so far.
func prfExtendedMasterSecret(preMasterSecret, sessionHash []byte, h func() hash.Hash) ([]byte, error) {
	return prf(preMasterSecret, prfLabelExtendedMasterSecret, sessionHash, prfMasterSecretLength, h)
}

// encryptionKeys is the split key block of RFC 5246 §6.3.
type encryptionKeys struct {
	masterSecret   []byte
	clientWriteKey []byte
	serverWriteKey []byte
	clientWriteIV  []byte
	serverWriteIV  []byte
}

// prfEncryptionKeys expands the key block. Note the randoms are swapped
// relative to master-secret derivation: server_random || client_random.
func prfEncryptionKeys(masterSecret, clientRandom, serverRandom []byte, keyLen, ivLen int, h func() hash.Hash) (*encryptionKeys, error) {
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	material, err := prf(masterSecret, prfLabelKeyExpansion, seed, 2*keyLen+2*ivLen, h)
	if err != nil {
		return nil, err
	}

	keys := &encryptionKeys{masterSecret: masterSecret}
	keys.clientWriteKey, material = material[:keyLen], material[keyLen:]
	keys.serverWriteKey, material = material[:keyLen], material[keyLen:]
	keys.clientWriteIV, material = material[:ivLen], material[ivLen:]
	keys.serverWriteIV = material[:ivLen]
	return keys, nil
}

// prfVerifyData computes the Finished verify_data over the handshake
// transcript hash.
func prfVerifyData(masterSecret, handshakeBodies []byte, label string, h func() hash.Hash) ([]byte, error) {
	hasher := h()
	if _, err := hasher.Write(handshakeBodies); err != nil {
		return nil, err
	}
	return prf(masterSecret, label, hasher.Sum(nil), prfVerifyDataLength, h)
}

func prfVerifyDataClient(masterSecret, handshakeBodies []byte, h func() hash.Hash) ([]byte, error) {
	return prfVerifyData(masterSecret, handshakeBodies, prfLabelClientFinished, h)
}

func prfVerifyDataServer(masterSecret, handshakeBodies []byte, h func() hash.Hash) ([]byte, error) {
	return prfVerifyData(masterSecret, handshakeBodies, prfLabelServerFinished, h)
}

// prfSRTPKeyingMaterial is the RFC 5764 exporter for SRTP keys.
func prfSRTPKeyingMaterial(masterSecret, clientRandom, serverRandom []byte, length int, h func() hash.Hash) ([]byte, error) {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return prf(masterSecret, prfLabelExtractorDtlsSrtp, seed, length, h)
}

// sessionHash hashes the handshake message log for the extended master
// secret computation.
func sessionHash(handshakeBodies []byte, h func() hash.Hash) ([]byte, error) {
	hasher := h()
	if _, err := hasher.Write(handshakeBodies); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}

// dtlsEpochSequence packs epoch and sequence into the 8-byte value used in
// nonces and additional data.
func dtlsEpochSequence(epoch uint16, sequence uint64) [8]byte {
	var out [8]byte
	binary.BigEndian.PutUint16(out[:2], epoch)
	putUint48(out[2:], sequence)
	return out
}

func putUint48(b []byte, v uint64) {
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}

func uint48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 | uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}
