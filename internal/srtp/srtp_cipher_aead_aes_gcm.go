// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// srtpCipherAeadAesGcm implements AEAD_AES_128_GCM (RFC 7714): a single
// authenticated-encryption pass with the RTP header as associated data.
type srtpCipherAeadAesGcm struct {
	srtpSessionSalt  []byte
	srtcpSessionSalt []byte

	srtpGCM  cipher.AEAD
	srtcpGCM cipher.AEAD
}

func newSrtpCipherAeadAesGcm(masterKey, masterSalt []byte) (*srtpCipherAeadAesGcm, error) {
	s := &srtpCipherAeadAesGcm{}

	srtpSessionKey, err := aesCmKeyDerivation(labelSRTPEncryption, masterKey, masterSalt, 0, len(masterKey))
	if err != nil {
		return nil, err
	}
	srtpBlock, err := aes.NewCipher(srtpSessionKey)
	if err != nil {
		return nil, err
	}
	if s.srtpGCM, err = cipher.NewGCM(srtpBlock); err != nil {
		return nil, err
	}

	srtcpSessionKey, err := aesCmKeyDerivation(labelSRTCPEncryption, masterKey, masterSalt, 0, len(masterKey))
	if err != nil {
		return nil, err
	}
	srtcpBlock, err := aes.NewCipher(srtcpSessionKey)
	if err != nil {
		return nil, err
	}
	if s.srtcpGCM, err = cipher.NewGCM(srtcpBlock); err != nil {
		return nil, err
	}

	if s.srtpSessionSalt, err = aesCmKeyDerivation(labelSRTPSalt, masterKey, masterSalt, 0, len(masterSalt)); err != nil {
		return nil, err
	}
	if s.srtcpSessionSalt, err = aesCmKeyDerivation(labelSRTCPSalt, masterKey, masterSalt, 0, len(masterSalt)); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *srtpCipherAeadAesGcm) authTagRTPLen() int  { return 16 }
func (s *srtpCipherAeadAesGcm) authTagRTCPLen() int { return 16 }

// rtpInitializationVector builds the 12-byte GCM nonce:
// salt XOR (0^16 || SSRC (32) || index (48)), RFC 7714 §8.1.
func (s *srtpCipherAeadAesGcm) rtpInitializationVector(ssrc uint32, index uint64) [12]byte {
	var iv [12]byte
	binary.BigEndian.PutUint32(iv[2:], ssrc)
	binary.BigEndian.PutUint16(iv[6:], uint16(index>>32))
	binary.BigEndian.PutUint32(iv[8:], uint32(index))

	for i := range iv {
		iv[i] ^= s.srtpSessionSalt[i]
	}
	return iv
}

// rtcpInitializationVector builds the SRTCP nonce from the 31-bit index,
// RFC 7714 §9.1.
func (s *srtpCipherAeadAesGcm) rtcpInitializationVector(index, ssrc uint32) [12]byte {
	var iv [12]byte
	binary.BigEndian.PutUint32(iv[2:], ssrc)
	binary.BigEndian.PutUint32(iv[8:], index)

	for i := range iv {
		iv[i] ^= s.srtcpSessionSalt[i]
	}
	return iv
}

func (s *srtpCipherAeadAesGcm) encryptRTP(header, payload []byte, ssrc uint32, index uint64) ([]byte, error) {
	iv := s.rtpInitializationVector(ssrc, index)

	out := make([]byte, 0, len(header)+len(payload)+s.authTagRTPLen())
	out = append(out, header...)
	return s.srtpGCM.Seal(out, iv[:], payload, header), nil
}

func (s *srtpCipherAeadAesGcm) decryptRTP(encrypted []byte, headerLen int, ssrc uint32, index uint64) ([]byte, error) {
	if len(encrypted) < headerLen+s.authTagRTPLen() {
		return nil, errTooShort
	}
	iv := s.rtpInitializationVector(ssrc, index)

	out := make([]byte, 0, len(encrypted)-s.authTagRTPLen())
	out = append(out, encrypted[:headerLen]...)
	out, err := s.srtpGCM.Open(out, iv[:], encrypted[headerLen:], encrypted[:headerLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFailedToDecryptAEAD, err) //nolint:errorlint
	}
	return out, nil
}

func (s *srtpCipherAeadAesGcm) encryptRTCP(decrypted []byte, index, ssrc uint32) ([]byte, error) {
	iv := s.rtcpInitializationVector(index, ssrc)

	// The associated data covers the RTCP header and the ESRTCP word.
	aad := make([]byte, srtcpHeaderSize+srtcpIndexSize)
	copy(aad, decrypted[:srtcpHeaderSize])
	binary.BigEndian.PutUint32(aad[srtcpHeaderSize:], index)
	aad[srtcpHeaderSize] |= rtcpEncryptionFlag

	out := make([]byte, 0, len(decrypted)+s.authTagRTCPLen()+srtcpIndexSize)
	out = append(out, decrypted[:srtcpHeaderSize]...)
	out = s.srtcpGCM.Seal(out, iv[:], decrypted[srtcpHeaderSize:], aad)
	return append(out, aad[srtcpHeaderSize:]...), nil
}

func (s *srtpCipherAeadAesGcm) decryptRTCP(encrypted []byte, index, ssrc uint32) ([]byte, error) {
	indexStart := len(encrypted) - srtcpIndexSize
	if indexStart < srtcpHeaderSize+s.authTagRTCPLen() {
		return nil, errTooShort
	}

	iv := s.rtcpInitializationVector(index, ssrc)
	aad := make([]byte, srtcpHeaderSize+srtcpIndexSize)
	copy(aad, encrypted[:srtcpHeaderSize])
	copy(aad[srtcpHeaderSize:], encrypted[indexStart:])

	out := make([]byte, 0, indexStart-s.authTagRTCPLen())
	out = append(out, encrypted[:srtcpHeaderSize]...)
	out, err := s.srtcpGCM.Open(out, iv[:], encrypted[srtcpHeaderSize:indexStart], aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFailedToDecryptAEAD, err) //nolint:errorlint
	}
	return out, nil
}
