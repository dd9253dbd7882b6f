// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"sync"

	"github.com/sjhorn/webrtc/internal/rtp"
)

// TrackLocal is a local media source: the application writes RTP packets
// into it and the PeerConnection carries them to the peer.
type TrackLocal struct {
	mu sync.RWMutex

	id       string
	streamID string
	kind     RTPCodecType

	ssrc        uint32
	payloadType PayloadType

	// writeRTP is bound when the sender attaches to a live transport.
	writeRTP func(*rtp.Packet) error
}

// NewTrackLocal returns a local track for the given kind.
func NewTrackLocal(kind RTPCodecType, id, streamID string) *TrackLocal {
	return &TrackLocal{id: id, streamID: streamID, kind: kind}
}

// ID is the unique identifier for this Track.
func (t *TrackLocal) ID() string { return t.id }

// StreamID is the group this track belongs too.
func (t *TrackLocal) StreamID() string { return t.streamID }

// Kind controls if this TrackLocal is audio or video.
func (t *TrackLocal) Kind() RTPCodecType { return t.kind }

func (t *TrackLocal) bind(ssrc uint32, payloadType PayloadType, write func(*rtp.Packet) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ssrc = ssrc
	t.payloadType = payloadType
	t.writeRTP = write
}

// WriteRTP writes an RTP Packet to the TrackLocal. The SSRC and payload
// type are stamped from the negotiated parameters.
func (t *TrackLocal) WriteRTP(p *rtp.Packet) error {
	t.mu.RLock()
	write := t.writeRTP
	ssrc := t.ssrc
	payloadType := t.payloadType
	t.mu.RUnlock()

	if write == nil {
		return &InvalidStateError{Err: errNoRemoteDescription}
	}

	clone := p.Clone()
	clone.SSRC = ssrc
	clone.PayloadType = uint8(payloadType)
	return write(clone)
}

// TrackRemote represents a remote media source: RTP packets decrypted from
// the wire are read from it.
type TrackRemote struct {
	mu sync.RWMutex

	id       string
	rid      string
	kind     RTPCodecType
	ssrc     uint32
	codec    RTPCodecParameters

	packets chan *rtp.Packet
	closed  chan struct{}
	closeOnce sync.Once
}

func newTrackRemote(kind RTPCodecType, ssrc uint32, rid string, codec RTPCodecParameters) *TrackRemote {
	return &TrackRemote{
		kind:    kind,
		ssrc:    ssrc,
		rid:     rid,
		codec:   codec,
		packets: make(chan *rtp.Packet, 512),
		closed:  make(chan struct{}),
	}
}

// SSRC returns the synchronization source of the remote stream.
func (t *TrackRemote) SSRC() uint32 { return t.ssrc }

// RID is the RTP stream identifier for simulcast layers.
func (t *TrackRemote) RID() string { return t.rid }

// Kind gets the Kind of the track.
func (t *TrackRemote) Kind() RTPCodecType { return t.kind }

// Codec gets the codec negotiated for this track.
func (t *TrackRemote) Codec() RTPCodecParameters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.codec
}

// ReadRTP blocks for the next RTP packet of the remote stream. Packets are
// delivered in receive order; the consumer reorders by sequence number.
func (t *TrackRemote) ReadRTP() (*rtp.Packet, error) {
	select {
	case p := <-t.packets:
		return p, nil
	case <-t.closed:
		return nil, &InvalidStateError{Err: errConnectionClosed}
	}
}

func (t *TrackRemote) deliver(p *rtp.Packet) {
	select {
	case t.packets <- p:
	default:
		// receiver is not draining; drop rather than block the read loop
	}
}

func (t *TrackRemote) close() {
	t.closeOnce.Do(func() { close(t.closed) })
}
