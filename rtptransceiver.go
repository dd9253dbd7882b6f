// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"sync"
)

// RTPTransceiverDirection indicates the direction of the RTPTransceiver.
type RTPTransceiverDirection int

// RTPTransceiverDirection enums.
const (
	RTPTransceiverDirectionUnknown RTPTransceiverDirection = iota
	RTPTransceiverDirectionSendrecv
	RTPTransceiverDirectionSendonly
	RTPTransceiverDirectionRecvonly
	RTPTransceiverDirectionInactive
)

// NewRTPTransceiverDirection defines a procedure for creating a new
// RTPTransceiverDirection from a raw string.
func NewRTPTransceiverDirection(raw string) RTPTransceiverDirection {
	switch raw {
	case "sendrecv":
		return RTPTransceiverDirectionSendrecv
	case "sendonly":
		return RTPTransceiverDirectionSendonly
	case "recvonly":
		return RTPTransceiverDirectionRecvonly
	case "inactive":
		return RTPTransceiverDirectionInactive
	default:
		return RTPTransceiverDirectionUnknown
	}
}

func (t RTPTransceiverDirection) String() string {
	switch t {
	case RTPTransceiverDirectionSendrecv:
		return "sendrecv"
	case RTPTransceiverDirectionSendonly:
		return "sendonly"
	case RTPTransceiverDirectionRecvonly:
		return "recvonly"
	case RTPTransceiverDirectionInactive:
		return "inactive"
	default:
		return ErrUnknownType.Error()
	}
}

// simulcastLayer is one RID-identified encoding of a simulcast source.
type simulcastLayer struct {
	rid  string
	ssrc uint32
}

// RTPTransceiver represents a combination of an RTPSender and an RTPReceiver
// that share a common mid.
type RTPTransceiver struct {
	mu sync.RWMutex

	mid       string
	kind      RTPCodecType
	direction RTPTransceiverDirection

	sender   *RTPSender
	receiver *RTPReceiver

	codecs []RTPCodecParameters

	simulcastLayers []simulcastLayer
	rtxSSRC         uint32

	stopped bool
}

func newRTPTransceiver(kind RTPCodecType, direction RTPTransceiverDirection, codecs []RTPCodecParameters) *RTPTransceiver {
	return &RTPTransceiver{
		kind:      kind,
		direction: direction,
		codecs:    codecs,
	}
}

// Mid gets the Transceiver's mid value. When not already set, this value
// will be set in CreateOffer or CreateAnswer.
func (t *RTPTransceiver) Mid() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mid
}

func (t *RTPTransceiver) setMid(mid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mid = mid
}

// Kind returns RTPTransceiver's kind.
func (t *RTPTransceiver) Kind() RTPCodecType {
	return t.kind
}

// Direction returns the RTPTransceiver's current direction.
func (t *RTPTransceiver) Direction() RTPTransceiverDirection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.direction
}

// SetDirection sets the RTPTransceiver's desired direction.
func (t *RTPTransceiver) SetDirection(d RTPTransceiverDirection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.direction = d
}

// Sender returns the RTPTransceiver's RTPSender if it has one.
func (t *RTPTransceiver) Sender() *RTPSender {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sender
}

// Receiver returns the RTPTransceiver's RTPReceiver if it has one.
func (t *RTPTransceiver) Receiver() *RTPReceiver {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.receiver
}

func (t *RTPTransceiver) setSender(s *RTPSender) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sender = s
}

func (t *RTPTransceiver) setReceiver(r *RTPReceiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = r
}

// Codecs returns the negotiated codec list for this transceiver.
func (t *RTPTransceiver) Codecs() []RTPCodecParameters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]RTPCodecParameters(nil), t.codecs...)
}

func (t *RTPTransceiver) setCodecs(codecs []RTPCodecParameters) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.codecs = codecs
}

// Stop irreversibly stops the RTPTransceiver.
func (t *RTPTransceiver) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.direction = RTPTransceiverDirectionInactive
	return nil
}
