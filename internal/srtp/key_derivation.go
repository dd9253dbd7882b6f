// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package srtp

import (
	"crypto/aes"
	"encoding/binary"
)

// Key derivation labels, RFC 3711 §4.3.2.
const (
	labelSRTPEncryption        = 0x00
	labelSRTPAuthenticationTag = 0x01
	labelSRTPSalt              = 0x02

	labelSRTCPEncryption        = 0x03
	labelSRTCPAuthenticationTag = 0x04
	labelSRTCPSalt              = 0x05
)

// aesCmKeyDerivation derives a session key from the master key and salt
// using the AES-CM PRF of RFC 3711 §4.3.3. With a key derivation rate of
// zero, indexOverKdr is zero and each session key is derived exactly once.
func aesCmKeyDerivation(label byte, masterKey, masterSalt []byte, indexOverKdr uint64, outLen int) ([]byte, error) {
	// prfIn = masterSalt, right-padded to the AES block size, with the
	// label and index XORed into the positions RFC 3711 assigns them.
	prfIn := make([]byte, aes.BlockSize)
	copy(prfIn, masterSalt)

	prfIn[7] ^= label
	var indexBytes [8]byte
	binary.BigEndian.PutUint64(indexBytes[:], indexOverKdr)
	for i := 0; i < 6; i++ {
		prfIn[8+i] ^= indexBytes[2+i]
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}

	out := make([]byte, ((outLen+aes.BlockSize-1)/aes.BlockSize)*aes.BlockSize)
	for i, n := 0, 0; i < outLen; i += aes.BlockSize {
		binary.BigEndian.PutUint16(prfIn[aes.BlockSize-2:], uint16(n))
		block.Encrypt(out[i:i+aes.BlockSize], prfIn)
		n++
	}
	return out[:outLen], nil
}
