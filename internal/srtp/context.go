// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package srtp implements Secure Real-time Transport Protocol: the
// AES_CM_128_HMAC_SHA1_80 profile of RFC 3711 and the AEAD_AES_128_GCM
// profile of RFC 7714.
package srtp

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/transport/v4/replaydetector"

	"github.com/sjhorn/webrtc/internal/rtp"
)

const (
	defaultReplayWindowSize = 64
	maxSRTPIndex            = (1 << 48) - 1
	maxSRTCPIndex           = (1 << 31) - 1

	srtcpHeaderSize    = 8
	srtcpIndexSize     = 4
	rtcpEncryptionFlag = 0x80
)

type srtpSSRCState struct {
	ssrc           uint32
	index          uint64 // last accepted 48-bit packet index
	hasIndex       bool
	replayDetector replaydetector.ReplayDetector
}

type srtcpSSRCState struct {
	ssrc           uint32
	srtcpIndex     uint32 // last index used when protecting (0 before the first packet)
	replayDetector replaydetector.ReplayDetector
}

// nextIndex reconstructs the 48-bit packet index for a sequence number,
// choosing the rollover counter among ROC-1, ROC and ROC+1 that lands the
// guess closest to the last accepted index.
func (s *srtpSSRCState) nextIndex(sequenceNumber uint16) uint64 {
	if !s.hasIndex {
		return uint64(sequenceNumber)
	}

	roc := s.index >> 16
	best := roc<<16 | uint64(sequenceNumber)
	for _, candidateROC := range []uint64{roc - 1, roc + 1} {
		if roc == 0 && candidateROC > roc+1 { // underflow
			continue
		}
		candidate := candidateROC<<16 | uint64(sequenceNumber)
		if absDiff(candidate, s.index) < absDiff(best, s.index) {
			best = candidate
		}
	}
	return best & maxSRTPIndex
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

type srtpCipher interface {
	authTagRTPLen() int
	authTagRTCPLen() int

	encryptRTP(header, payload []byte, ssrc uint32, index uint64) ([]byte, error)
	decryptRTP(encrypted []byte, headerLen int, ssrc uint32, index uint64) ([]byte, error)

	encryptRTCP(decrypted []byte, index, ssrc uint32) ([]byte, error)
	decryptRTCP(encrypted []byte, index, ssrc uint32) ([]byte, error)
}

// Context represents one direction of an SRTP session: either protecting
// outbound packets or unprotecting inbound ones. Each (SSRC, index) pair is
// encrypted at most once; inbound replay is rejected per SSRC over a
// 64-entry sliding window.
type Context struct {
	profile ProtectionProfile
	cipher  srtpCipher

	srtpSSRCStates  map[uint32]*srtpSSRCState
	srtcpSSRCStates map[uint32]*srtcpSSRCState
}

// CreateContext builds a Context from a master key and salt sized for the
// protection profile.
func CreateContext(masterKey, masterSalt []byte, profile ProtectionProfile) (*Context, error) {
	keyLen, err := profile.KeyLen()
	if err != nil {
		return nil, err
	}
	saltLen, err := profile.SaltLen()
	if err != nil {
		return nil, err
	}
	if len(masterKey) != keyLen || len(masterSalt) != saltLen {
		return nil, fmt.Errorf("%w: key %d salt %d for %s", errShortKey, len(masterKey), len(masterSalt), profile)
	}

	c := &Context{
		profile:         profile,
		srtpSSRCStates:  make(map[uint32]*srtpSSRCState),
		srtcpSSRCStates: make(map[uint32]*srtcpSSRCState),
	}

	switch profile {
	case ProtectionProfileAes128CmHmacSha1_80:
		c.cipher, err = newSrtpCipherAesCmHmacSha1(masterKey, masterSalt)
	case ProtectionProfileAeadAes128Gcm:
		c.cipher, err = newSrtpCipherAeadAesGcm(masterKey, masterSalt)
	default:
		return nil, errNoSuchProfile
	}
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Context) getSRTPSSRCState(ssrc uint32) *srtpSSRCState {
	s, ok := c.srtpSSRCStates[ssrc]
	if !ok {
		s = &srtpSSRCState{
			ssrc:           ssrc,
			replayDetector: replaydetector.New(defaultReplayWindowSize, maxSRTPIndex),
		}
		c.srtpSSRCStates[ssrc] = s
	}
	return s
}

func (c *Context) getSRTCPSSRCState(ssrc uint32) *srtcpSSRCState {
	s, ok := c.srtcpSSRCStates[ssrc]
	if !ok {
		s = &srtcpSSRCState{
			ssrc:           ssrc,
			replayDetector: replaydetector.New(defaultReplayWindowSize, maxSRTCPIndex),
		}
		c.srtcpSSRCStates[ssrc] = s
	}
	return s
}

// EncryptRTP protects a full RTP packet, returning header || encrypted
// payload || auth tag.
func (c *Context) EncryptRTP(plaintext []byte) ([]byte, error) {
	var header rtp.Header
	headerLen, err := header.Unmarshal(plaintext)
	if err != nil {
		return nil, err
	}

	state := c.getSRTPSSRCState(header.SSRC)
	index := state.nextIndex(header.SequenceNumber)
	state.index = index
	state.hasIndex = true

	return c.cipher.encryptRTP(plaintext[:headerLen], plaintext[headerLen:], header.SSRC, index)
}

// DecryptRTP unprotects an SRTP packet, returning the plaintext RTP packet.
// Replayed or stale (SSRC, index) pairs are rejected with errDuplicated.
func (c *Context) DecryptRTP(encrypted []byte) ([]byte, error) {
	var header rtp.Header
	headerLen, err := header.Unmarshal(encrypted)
	if err != nil {
		return nil, err
	}
	if len(encrypted) < headerLen+c.cipher.authTagRTPLen() {
		return nil, errTooShort
	}

	state := c.getSRTPSSRCState(header.SSRC)
	index := state.nextIndex(header.SequenceNumber)

	markAsAccepted, ok := state.replayDetector.Check(index)
	if !ok {
		return nil, fmt.Errorf("%w: ssrc %d index %d", errDuplicated, header.SSRC, index)
	}

	out, err := c.cipher.decryptRTP(encrypted, headerLen, header.SSRC, index)
	if err != nil {
		return nil, err
	}

	markAsAccepted()
	if !state.hasIndex || index > state.index {
		state.index = index
		state.hasIndex = true
	}
	return out, nil
}

// EncryptRTCP protects a full RTCP compound packet, appending the SRTCP
// index (with the E flag) and auth tag.
func (c *Context) EncryptRTCP(decrypted []byte) ([]byte, error) {
	if len(decrypted) < srtcpHeaderSize {
		return nil, errTooShort
	}
	ssrc := binary.BigEndian.Uint32(decrypted[4:])

	state := c.getSRTCPSSRCState(ssrc)
	if state.srtcpIndex >= maxSRTCPIndex {
		return nil, errExceededMaxPackets
	}
	state.srtcpIndex++

	return c.cipher.encryptRTCP(decrypted, state.srtcpIndex, ssrc)
}

// DecryptRTCP unprotects an SRTCP packet.
func (c *Context) DecryptRTCP(encrypted []byte) ([]byte, error) {
	if len(encrypted) < srtcpHeaderSize+srtcpIndexSize+c.cipher.authTagRTCPLen() {
		return nil, errTooShort
	}
	ssrc := binary.BigEndian.Uint32(encrypted[4:])

	indexPos := len(encrypted) - c.rtcpTrailerOffset()
	index := binary.BigEndian.Uint32(encrypted[indexPos:]) &^ (rtcpEncryptionFlag << 24)

	state := c.getSRTCPSSRCState(ssrc)
	markAsAccepted, ok := state.replayDetector.Check(uint64(index))
	if !ok {
		return nil, fmt.Errorf("%w: ssrc %d index %d", errDuplicated, ssrc, index)
	}

	out, err := c.cipher.decryptRTCP(encrypted, index, ssrc)
	if err != nil {
		return nil, err
	}

	markAsAccepted()
	return out, nil
}

// rtcpTrailerOffset is the distance from the end of an SRTCP packet to its
// index word, which depends on whether the tag follows the index (HMAC
// profile) or precedes it (AEAD profile).
func (c *Context) rtcpTrailerOffset() int {
	if c.profile == ProtectionProfileAeadAes128Gcm {
		return srtcpIndexSize
	}
	return srtcpIndexSize + c.cipher.authTagRTCPLen()
}
