// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import "encoding/binary"

// gapAckBlock describes a received range above the cumulative TSN, as
// offsets relative to it.
type gapAckBlock struct {
	start uint16
	end   uint16
}

// chunkSelectiveAck is the SACK chunk (RFC 4960 §3.3.4).
type chunkSelectiveAck struct {
	cumulativeTSNAck               uint32
	advertisedReceiverWindowCredit uint32
	gapAckBlocks                   []gapAckBlock
	duplicateTSN                   []uint32
}

const selectiveAckHeaderSize = 12

func (s *chunkSelectiveAck) marshal() ([]byte, error) {
	body := make([]byte, selectiveAckHeaderSize+4*len(s.gapAckBlocks)+4*len(s.duplicateTSN))
	binary.BigEndian.PutUint32(body[0:], s.cumulativeTSNAck)
	binary.BigEndian.PutUint32(body[4:], s.advertisedReceiverWindowCredit)
	binary.BigEndian.PutUint16(body[8:], uint16(len(s.gapAckBlocks)))
	binary.BigEndian.PutUint16(body[10:], uint16(len(s.duplicateTSN)))

	offset := selectiveAckHeaderSize
	for _, g := range s.gapAckBlocks {
		binary.BigEndian.PutUint16(body[offset:], g.start)
		binary.BigEndian.PutUint16(body[offset+2:], g.end)
		offset += 4
	}
	for _, d := range s.duplicateTSN {
		binary.BigEndian.PutUint32(body[offset:], d)
		offset += 4
	}

	h := chunkHeader{typ: ctSack, raw: body}
	return h.marshalHeader(), nil
}

func (s *chunkSelectiveAck) unmarshal(raw []byte) error {
	var h chunkHeader
	if err := h.unmarshalHeader(raw); err != nil {
		return err
	}
	if len(h.raw) < selectiveAckHeaderSize {
		return errChunkBodyTooSmall
	}

	s.cumulativeTSNAck = binary.BigEndian.Uint32(h.raw[0:])
	s.advertisedReceiverWindowCredit = binary.BigEndian.Uint32(h.raw[4:])
	numGaps := int(binary.BigEndian.Uint16(h.raw[8:]))
	numDups := int(binary.BigEndian.Uint16(h.raw[10:]))

	if len(h.raw) < selectiveAckHeaderSize+4*numGaps+4*numDups {
		return errChunkBodyTooSmall
	}

	s.gapAckBlocks = nil
	offset := selectiveAckHeaderSize
	for i := 0; i < numGaps; i++ {
		s.gapAckBlocks = append(s.gapAckBlocks, gapAckBlock{
			start: binary.BigEndian.Uint16(h.raw[offset:]),
			end:   binary.BigEndian.Uint16(h.raw[offset+2:]),
		})
		offset += 4
	}
	s.duplicateTSN = nil
	for i := 0; i < numDups; i++ {
		s.duplicateTSN = append(s.duplicateTSN, binary.BigEndian.Uint32(h.raw[offset:]))
		offset += 4
	}
	return nil
}
