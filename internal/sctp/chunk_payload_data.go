// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"encoding/binary"
	"time"
)

// PayloadProtocolIdentifier is the application-level PPI carried with each
// DATA chunk; the data channel establishment protocol defines its values.
type PayloadProtocolIdentifier uint32

// WebRTC payload protocol identifiers.
const (
	PayloadTypeWebRTCDCEP        PayloadProtocolIdentifier = 50
	PayloadTypeWebRTCString      PayloadProtocolIdentifier = 51
	PayloadTypeWebRTCBinary      PayloadProtocolIdentifier = 53
	PayloadTypeWebRTCStringEmpty PayloadProtocolIdentifier = 56
	PayloadTypeWebRTCBinaryEmpty PayloadProtocolIdentifier = 57
)

const (
	payloadDataEndingFragmentBitmask   = 1
	payloadDataBeginingFragmentBitmask = 2
	payloadDataUnorderedBitmask        = 4

	payloadDataHeaderSize = 12
)

// chunkPayloadData is the DATA chunk (RFC 4960 §3.3.1).
type chunkPayloadData struct {
	unordered        bool
	beginningFragment bool
	endingFragment    bool

	tsn                  uint32
	streamIdentifier     uint16
	streamSequenceNumber uint16
	payloadType          PayloadProtocolIdentifier
	userData             []byte

	// sender book-keeping for reliability
	nSent                uint32
	since                time.Time
	abandoned            bool
	retransmit           bool
}

func (p *chunkPayloadData) marshal() ([]byte, error) {
	body := make([]byte, payloadDataHeaderSize+len(p.userData))
	binary.BigEndian.PutUint32(body[0:], p.tsn)
	binary.BigEndian.PutUint16(body[4:], p.streamIdentifier)
	binary.BigEndian.PutUint16(body[6:], p.streamSequenceNumber)
	binary.BigEndian.PutUint32(body[8:], uint32(p.payloadType))
	copy(body[payloadDataHeaderSize:], p.userData)

	flags := byte(0)
	if p.endingFragment {
		flags |= payloadDataEndingFragmentBitmask
	}
	if p.beginningFragment {
		flags |= payloadDataBeginingFragmentBitmask
	}
	if p.unordered {
		flags |= payloadDataUnorderedBitmask
	}

	h := chunkHeader{typ: ctPayloadData, flags: flags, raw: body}
	return h.marshalHeader(), nil
}

func (p *chunkPayloadData) unmarshal(raw []byte) error {
	var h chunkHeader
	if err := h.unmarshalHeader(raw); err != nil {
		return err
	}
	if len(h.raw) < payloadDataHeaderSize {
		return errChunkBodyTooSmall
	}

	p.endingFragment = h.flags&payloadDataEndingFragmentBitmask != 0
	p.beginningFragment = h.flags&payloadDataBeginingFragmentBitmask != 0
	p.unordered = h.flags&payloadDataUnorderedBitmask != 0

	p.tsn = binary.BigEndian.Uint32(h.raw[0:])
	p.streamIdentifier = binary.BigEndian.Uint16(h.raw[4:])
	p.streamSequenceNumber = binary.BigEndian.Uint16(h.raw[6:])
	p.payloadType = PayloadProtocolIdentifier(binary.BigEndian.Uint32(h.raw[8:]))
	p.userData = append([]byte(nil), h.raw[payloadDataHeaderSize:]...)
	return nil
}
