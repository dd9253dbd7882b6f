// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/sjhorn/webrtc/internal/rtp"
)

func randomSSRC() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// RTPSender allows an application to control how a given Track is encoded
// and transmitted to a remote peer.
type RTPSender struct {
	mu sync.RWMutex

	track *TrackLocal

	ssrc    uint32
	rtxSSRC uint32

	pc *PeerConnection
}

func newRTPSender(track *TrackLocal, pc *PeerConnection) *RTPSender {
	return &RTPSender{
		track:   track,
		ssrc:    randomSSRC(),
		rtxSSRC: randomSSRC(),
		pc:      pc,
	}
}

// Track returns the RTCRtpSender track.
func (s *RTPSender) Track() *TrackLocal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.track
}

// SSRC returns the local synchronization source for outbound media.
func (s *RTPSender) SSRC() uint32 { return s.ssrc }

// RTXSSRC returns the SSRC used for retransmissions.
func (s *RTPSender) RTXSSRC() uint32 { return s.rtxSSRC }

// bindTransport attaches the track's write path to the live SRTP session.
func (s *RTPSender) bindTransport(payloadType PayloadType, write func(*rtp.Packet) error) {
	s.mu.Lock()
	track := s.track
	ssrc := s.ssrc
	s.mu.Unlock()

	if track != nil {
		track.bind(ssrc, payloadType, write)
	}
}

// RTPReceiver allows an application to inspect the receipt of a Track.
type RTPReceiver struct {
	mu sync.RWMutex

	kind   RTPCodecType
	tracks []*TrackRemote
}

func newRTPReceiver(kind RTPCodecType) *RTPReceiver {
	return &RTPReceiver{kind: kind}
}

// Tracks returns the RtpTransceiver tracks.
func (r *RTPReceiver) Tracks() []*TrackRemote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*TrackRemote(nil), r.tracks...)
}

func (r *RTPReceiver) addTrack(t *TrackRemote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = append(r.tracks, t)
}

func (r *RTPReceiver) trackBySSRC(ssrc uint32) *TrackRemote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tracks {
		if t.SSRC() == ssrc {
			return t
		}
	}
	return nil
}
