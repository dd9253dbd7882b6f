// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by the RFC 3711 profile
	"crypto/subtle"
	"encoding/binary"
)

// srtpCipherAesCmHmacSha1 implements AES_CM_128_HMAC_SHA1_80: AES counter
// mode encryption with a separate truncated HMAC-SHA1 authentication tag.
type srtpCipherAesCmHmacSha1 struct {
	srtpSessionSalt  []byte
	srtpSessionAuth  []byte
	srtcpSessionSalt []byte
	srtcpSessionAuth []byte

	srtpBlock  cipher.Block
	srtcpBlock cipher.Block
}

func newSrtpCipherAesCmHmacSha1(masterKey, masterSalt []byte) (*srtpCipherAesCmHmacSha1, error) {
	s := &srtpCipherAesCmHmacSha1{}

	srtpSessionKey, err := aesCmKeyDerivation(labelSRTPEncryption, masterKey, masterSalt, 0, len(masterKey))
	if err != nil {
		return nil, err
	}
	if s.srtpBlock, err = aes.NewCipher(srtpSessionKey); err != nil {
		return nil, err
	}

	srtcpSessionKey, err := aesCmKeyDerivation(labelSRTCPEncryption, masterKey, masterSalt, 0, len(masterKey))
	if err != nil {
		return nil, err
	}
	if s.srtcpBlock, err = aes.NewCipher(srtcpSessionKey); err != nil {
		return nil, err
	}

	if s.srtpSessionSalt, err = aesCmKeyDerivation(labelSRTPSalt, masterKey, masterSalt, 0, len(masterSalt)); err != nil {
		return nil, err
	}
	if s.srtcpSessionSalt, err = aesCmKeyDerivation(labelSRTCPSalt, masterKey, masterSalt, 0, len(masterSalt)); err != nil {
		return nil, err
	}

	authKeyLen, err := ProtectionProfileAes128CmHmacSha1_80.AuthKeyLen()
	if err != nil {
		return nil, err
	}
	if s.srtpSessionAuth, err = aesCmKeyDerivation(labelSRTPAuthenticationTag, masterKey, masterSalt, 0, authKeyLen); err != nil {
		return nil, err
	}
	if s.srtcpSessionAuth, err = aesCmKeyDerivation(labelSRTCPAuthenticationTag, masterKey, masterSalt, 0, authKeyLen); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *srtpCipherAesCmHmacSha1) authTagRTPLen() int  { return 10 }
func (s *srtpCipherAesCmHmacSha1) authTagRTCPLen() int { return 10 }

// rtpCounter builds the AES-CM counter block:
// IV = (salt * 2^16) XOR (SSRC * 2^64) XOR (index * 2^16).
func rtpCounter(sessionSalt []byte, ssrc uint32, index uint64) [16]byte {
	var counter [16]byte
	copy(counter[:], sessionSalt)

	var ssrcBytes [4]byte
	binary.BigEndian.PutUint32(ssrcBytes[:], ssrc)
	for i := 0; i < 4; i++ {
		counter[4+i] ^= ssrcBytes[i]
	}

	var indexBytes [8]byte
	binary.BigEndian.PutUint64(indexBytes[:], index)
	for i := 0; i < 6; i++ {
		counter[8+i] ^= indexBytes[2+i]
	}

	counter[14] = 0
	counter[15] = 0
	return counter
}

func (s *srtpCipherAesCmHmacSha1) encryptRTP(header, payload []byte, ssrc uint32, index uint64) ([]byte, error) {
	out := make([]byte, 0, len(header)+len(payload)+s.authTagRTPLen())
	out = append(out, header...)
	out = append(out, payload...)

	counter := rtpCounter(s.srtpSessionSalt, ssrc, index)
	stream := cipher.NewCTR(s.srtpBlock, counter[:])
	stream.XORKeyStream(out[len(header):], out[len(header):])

	tag := s.generateSrtpAuthTag(out, uint32(index>>16))
	return append(out, tag...), nil
}

func (s *srtpCipherAesCmHmacSha1) decryptRTP(encrypted []byte, headerLen int, ssrc uint32, index uint64) ([]byte, error) {
	tagStart := len(encrypted) - s.authTagRTPLen()
	if tagStart < headerLen {
		return nil, errTooShort
	}

	expectedTag := s.generateSrtpAuthTag(encrypted[:tagStart], uint32(index>>16))
	if subtle.ConstantTimeCompare(expectedTag, encrypted[tagStart:]) != 1 {
		return nil, errFailedToVerifyAuth
	}

	out := make([]byte, tagStart)
	copy(out, encrypted[:tagStart])

	counter := rtpCounter(s.srtpSessionSalt, ssrc, index)
	stream := cipher.NewCTR(s.srtpBlock, counter[:])
	stream.XORKeyStream(out[headerLen:], out[headerLen:])

	return out, nil
}

// generateSrtpAuthTag computes HMAC-SHA1(auth_key, packet || ROC)[0:10],
// RFC 3711 §4.2.
func (s *srtpCipherAesCmHmacSha1) generateSrtpAuthTag(buf []byte, roc uint32) []byte {
	mac := hmac.New(sha1.New, s.srtpSessionAuth)
	_, _ = mac.Write(buf)

	var rocBytes [4]byte
	binary.BigEndian.PutUint32(rocBytes[:], roc)
	_, _ = mac.Write(rocBytes[:])

	return mac.Sum(nil)[:s.authTagRTPLen()]
}

func (s *srtpCipherAesCmHmacSha1) encryptRTCP(decrypted []byte, index, ssrc uint32) ([]byte, error) {
	out := make([]byte, 0, len(decrypted)+srtcpIndexSize+s.authTagRTCPLen())
	out = append(out, decrypted...)

	counter := rtpCounter(s.srtcpSessionSalt, ssrc, uint64(index))
	stream := cipher.NewCTR(s.srtcpBlock, counter[:])
	stream.XORKeyStream(out[srtcpHeaderSize:], out[srtcpHeaderSize:])

	// append the E flag and SRTCP index
	var indexBytes [4]byte
	binary.BigEndian.PutUint32(indexBytes[:], index)
	indexBytes[0] |= rtcpEncryptionFlag
	out = append(out, indexBytes[:]...)

	tag := s.generateSrtcpAuthTag(out)
	return append(out, tag...), nil
}

func (s *srtpCipherAesCmHmacSha1) decryptRTCP(encrypted []byte, index, ssrc uint32) ([]byte, error) {
	tagStart := len(encrypted) - s.authTagRTCPLen()
	indexStart := tagStart - srtcpIndexSize
	if indexStart < srtcpHeaderSize {
		return nil, errTooShort
	}

	expectedTag := s.generateSrtcpAuthTag(encrypted[:tagStart])
	if subtle.ConstantTimeCompare(expectedTag, encrypted[tagStart:]) != 1 {
		return nil, errFailedToVerifyAuth
	}

	out := make([]byte, indexStart)
	copy(out, encrypted[:indexStart])

	isEncrypted := encrypted[indexStart]&rtcpEncryptionFlag != 0
	if isEncrypted {
		counter := rtpCounter(s.srtcpSessionSalt, ssrc, uint64(index))
		stream := cipher.NewCTR(s.srtcpBlock, counter[:])
		stream.XORKeyStream(out[srtcpHeaderSize:], out[srtcpHeaderSize:])
	}

	return out, nil
}

func (s *srtpCipherAesCmHmacSha1) generateSrtcpAuthTag(buf []byte) []byte {
	mac := hmac.New(sha1.New, s.srtcpSessionAuth)
	_, _ = mac.Write(buf)
	return mac.Sum(nil)[:s.authTagRTCPLen()]
}
