// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"encoding/binary"
	"fmt"
)

// Transport-wide congestion control feedback, as described in
// https://tools.ietf.org/html/draft-holmer-rmcat-transport-wide-cc-extensions-01

// PacketStatusChunkType is the top bit of a packet status chunk.
type PacketStatusChunkType uint16

// Packet status chunk types.
const (
	TypeTCCRunLengthChunk    PacketStatusChunkType = 0
	TypeTCCStatusVectorChunk PacketStatusChunkType = 1
)

// Packet status symbols.
const (
	TypeTCCPacketNotReceived uint16 = iota
	TypeTCCPacketReceivedSmallDelta
	TypeTCCPacketReceivedLargeDelta
	TypeTCCPacketReceivedWithoutDelta
)

// Symbol sizes for status vector chunks.
const (
	TypeTCCSymbolSizeOneBit uint16 = 0
	TypeTCCSymbolSizeTwoBit uint16 = 1
)

const (
	packetStatusChunkLength = 2
	baseSequenceNumberOffset = 8
	packetStatusCountOffset  = 10
	referenceTimeOffset      = 12
	fbPktCountOffset         = 15
	packetChunkOffset        = 16

	// TypeTCCDeltaScaleFactor is the receive-delta resolution in microseconds.
	TypeTCCDeltaScaleFactor = 250
)

// PacketStatusChunk has two kinds: RunLengthChunk and StatusVectorChunk.
type PacketStatusChunk interface {
	Marshal() ([]byte, error)
	Unmarshal(rawPacket []byte) error
}

// RunLengthChunk encodes RunLength packets all sharing one status symbol.
type RunLengthChunk struct {
	Type PacketStatusChunkType

	// Symbol repeated by this chunk.
	PacketStatusSymbol uint16

	// RunLength is the number of repetitions, max 8191.
	RunLength uint16
}

// Marshal encodes the chunk in binary.
func (r RunLengthChunk) Marshal() ([]byte, error) {
	if r.RunLength > 0x1fff {
		return nil, errBadStatusChunk
	}
	chunk := uint16(r.PacketStatusSymbol&0x3)<<13 | (r.RunLength & 0x1fff)
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, chunk)
	return out, nil
}

// Unmarshal decodes the chunk from binary.
func (r *RunLengthChunk) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) != packetStatusChunkLength {
		return errBadStatusChunk
	}
	chunk := binary.BigEndian.Uint16(rawPacket)
	if chunk&0x8000 != 0 {
		return errBadStatusChunk
	}
	r.Type = TypeTCCRunLengthChunk
	r.PacketStatusSymbol = chunk >> 13 & 0x3
	r.RunLength = chunk & 0x1fff
	return nil
}

// StatusVectorChunk lists the status of up to 14 packets individually.
type StatusVectorChunk struct {
	Type PacketStatusChunkType

	// SymbolSize is TypeTCCSymbolSizeOneBit (14 symbols) or
	// TypeTCCSymbolSizeTwoBit (7 symbols).
	SymbolSize uint16

	SymbolList []uint16
}

// Marshal encodes the chunk in binary.
func (r StatusVectorChunk) Marshal() ([]byte, error) {
	chunk := uint16(0x8000)
	switch r.SymbolSize {
	case TypeTCCSymbolSizeOneBit:
		if len(r.SymbolList) != 14 {
			return nil, errBadStatusChunk
		}
		for i, s := range r.SymbolList {
			chunk |= (s & 0x1) << uint(13-i)
		}
	case TypeTCCSymbolSizeTwoBit:
		if len(r.SymbolList) != 7 {
			return nil, errBadStatusChunk
		}
		chunk |= 1 << 14
		for i, s := range r.SymbolList {
			chunk |= (s & 0x3) << uint(12-2*i)
		}
	default:
		return nil, errBadStatusChunk
	}
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, chunk)
	return out, nil
}

// Unmarshal decodes the chunk from binary.
func (r *StatusVectorChunk) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) != packetStatusChunkLength {
		return errBadStatusChunk
	}
	chunk := binary.BigEndian.Uint16(rawPacket)
	if chunk&0x8000 == 0 {
		return errBadStatusChunk
	}

	r.Type = TypeTCCStatusVectorChunk
	r.SymbolList = r.SymbolList[:0]
	if chunk&0x4000 == 0 {
		r.SymbolSize = TypeTCCSymbolSizeOneBit
		for i := 0; i < 14; i++ {
			r.SymbolList = append(r.SymbolList, chunk>>uint(13-i)&0x1)
		}
		return nil
	}

	r.SymbolSize = TypeTCCSymbolSizeTwoBit
	for i := 0; i < 7; i++ {
		r.SymbolList = append(r.SymbolList, chunk>>uint(12-2*i)&0x3)
	}
	return nil
}

// RecvDelta is the reception-time delta of one received packet.
type RecvDelta struct {
	// Type is TypeTCCPacketReceivedSmallDelta or TypeTCCPacketReceivedLargeDelta.
	Type uint16
	// Delta in microseconds.
	Delta int64
}

// Marshal encodes the delta in binary.
func (r RecvDelta) Marshal() ([]byte, error) {
	delta := r.Delta / TypeTCCDeltaScaleFactor

	if r.Type == TypeTCCPacketReceivedSmallDelta && delta >= 0 && delta <= 0xff {
		return []byte{byte(delta)}, nil
	}
	if r.Type == TypeTCCPacketReceivedLargeDelta && delta >= -32768 && delta <= 32767 {
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(delta))
		return out, nil
	}
	return nil, errBadDelta
}

// Unmarshal decodes the delta from binary.
func (r *RecvDelta) Unmarshal(rawPacket []byte) error {
	switch len(rawPacket) {
	case 1:
		r.Type = TypeTCCPacketReceivedSmallDelta
		r.Delta = TypeTCCDeltaScaleFactor * int64(rawPacket[0])
		return nil
	case 2:
		r.Type = TypeTCCPacketReceivedLargeDelta
		r.Delta = TypeTCCDeltaScaleFactor * int64(int16(binary.BigEndian.Uint16(rawPacket)))
		return nil
	default:
		return errBadDelta
	}
}

// TransportLayerCC is a transport-wide congestion control feedback packet.
type TransportLayerCC struct {
	// SSRC of sender
	SenderSSRC uint32
	// SSRC of the media source
	MediaSSRC uint32
	// Transport-wide sequence of the first packet this feedback describes.
	BaseSequenceNumber uint16
	// Number of packets this feedback carries status for.
	PacketStatusCount uint16
	// Absolute reference time in multiples of 64 ms.
	ReferenceTime uint32
	// Feedback packet count, for detecting lost feedback.
	FbPktCount uint8
	PacketChunks []PacketStatusChunk
	RecvDeltas   []*RecvDelta
}

// Header returns the Header associated with this packet.
func (t TransportLayerCC) Header() Header {
	return Header{
		Padding: t.paddingLength() > 0,
		Count:   FormatTCC,
		Type:    TypeTransportSpecificFeedback,
		Length:  uint16((t.len() / 4) - 1),
	}
}

func (t TransportLayerCC) contentLen() int {
	n := headerLength + packetChunkOffset + len(t.PacketChunks)*packetStatusChunkLength
	for _, d := range t.RecvDeltas {
		if d.Type == TypeTCCPacketReceivedSmallDelta {
			n++
		} else {
			n += 2
		}
	}
	return n
}

func (t TransportLayerCC) paddingLength() int {
	return (4 - t.contentLen()%4) % 4
}

func (t TransportLayerCC) len() int {
	return t.contentLen() + t.paddingLength()
}

// Marshal encodes the packet in binary.
func (t TransportLayerCC) Marshal() ([]byte, error) {
	hData, err := t.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, 0, t.len())
	rawPacket = append(rawPacket, hData...)

	body := make([]byte, 16)
	binary.BigEndian.PutUint32(body, t.SenderSSRC)
	binary.BigEndian.PutUint32(body[4:], t.MediaSSRC)
	binary.BigEndian.PutUint16(body[8:], t.BaseSequenceNumber)
	binary.BigEndian.PutUint16(body[10:], t.PacketStatusCount)
	body[12] = byte(t.ReferenceTime >> 16)
	body[13] = byte(t.ReferenceTime >> 8)
	body[14] = byte(t.ReferenceTime)
	body[15] = t.FbPktCount
	rawPacket = append(rawPacket, body...)

	for _, chunk := range t.PacketChunks {
		data, err := chunk.Marshal()
		if err != nil {
			return nil, err
		}
		rawPacket = append(rawPacket, data...)
	}

	for _, delta := range t.RecvDeltas {
		data, err := delta.Marshal()
		if err != nil {
			return nil, err
		}
		rawPacket = append(rawPacket, data...)
	}

	if padLen := t.paddingLength(); padLen > 0 {
		for i := 0; i < padLen-1; i++ {
			rawPacket = append(rawPacket, 0)
		}
		rawPacket = append(rawPacket, byte(padLen))
	}

	return rawPacket, nil
}

// Unmarshal decodes the packet from binary.
func (t *TransportLayerCC) Unmarshal(rawPacket []byte) error { //nolint:gocognit
	if len(rawPacket) < headerLength+packetChunkOffset {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeTransportSpecificFeedback || h.Count != FormatTCC {
		return errWrongType
	}

	totalLength := 4 * (int(h.Length) + 1)
	if totalLength > len(rawPacket) {
		return errPacketTooShort
	}

	t.SenderSSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])
	t.MediaSSRC = binary.BigEndian.Uint32(rawPacket[headerLength+4:])
	t.BaseSequenceNumber = binary.BigEndian.Uint16(rawPacket[headerLength+baseSequenceNumberOffset:])
	t.PacketStatusCount = binary.BigEndian.Uint16(rawPacket[headerLength+packetStatusCountOffset:])
	t.ReferenceTime = uint32(rawPacket[headerLength+referenceTimeOffset])<<16 |
		uint32(rawPacket[headerLength+referenceTimeOffset+1])<<8 |
		uint32(rawPacket[headerLength+referenceTimeOffset+2])
	t.FbPktCount = rawPacket[headerLength+fbPktCountOffset]

	t.PacketChunks = nil
	t.RecvDeltas = nil

	packetStatusPos := headerLength + packetChunkOffset
	var processedPacketNum uint16
	for processedPacketNum < t.PacketStatusCount {
		if packetStatusPos+packetStatusChunkLength > totalLength {
			return errPacketTooShort
		}
		raw := rawPacket[packetStatusPos : packetStatusPos+packetStatusChunkLength]

		if binary.BigEndian.Uint16(raw)&0x8000 == 0 {
			chunk := &RunLengthChunk{}
			if err := chunk.Unmarshal(raw); err != nil {
				return err
			}
			t.PacketChunks = append(t.PacketChunks, chunk)

			if chunk.PacketStatusSymbol == TypeTCCPacketReceivedSmallDelta ||
				chunk.PacketStatusSymbol == TypeTCCPacketReceivedLargeDelta {
				for i := uint16(0); i < chunk.RunLength && processedPacketNum+i < t.PacketStatusCount; i++ {
					t.RecvDeltas = append(t.RecvDeltas, &RecvDelta{Type: chunk.PacketStatusSymbol})
				}
			}
			processedPacketNum += chunk.RunLength
		} else {
			chunk := &StatusVectorChunk{}
			if err := chunk.Unmarshal(raw); err != nil {
				return err
			}
			t.PacketChunks = append(t.PacketChunks, chunk)

			for _, sym := range chunk.SymbolList {
				if sym == TypeTCCPacketReceivedSmallDelta || sym == TypeTCCPacketReceivedLargeDelta {
					t.RecvDeltas = append(t.RecvDeltas, &RecvDelta{Type: sym})
				}
			}
			processedPacketNum += uint16(len(chunk.SymbolList))
		}
		packetStatusPos += packetStatusChunkLength
	}

	for _, delta := range t.RecvDeltas {
		if delta.Type == TypeTCCPacketReceivedSmallDelta {
			if packetStatusPos+1 > totalLength {
				return errPacketTooShort
			}
			if err := delta.Unmarshal(rawPacket[packetStatusPos : packetStatusPos+1]); err != nil {
				return err
			}
			packetStatusPos++
		} else {
			if packetStatusPos+2 > totalLength {
				return errPacketTooShort
			}
			if err := delta.Unmarshal(rawPacket[packetStatusPos : packetStatusPos+2]); err != nil {
				return err
			}
			packetStatusPos += 2
		}
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (t *TransportLayerCC) DestinationSSRC() []uint32 {
	return []uint32{t.MediaSSRC}
}

func (t *TransportLayerCC) String() string {
	return fmt.Sprintf("TransportLayerCC sender=%x media=%x base=%d count=%d",
		t.SenderSSRC, t.MediaSSRC, t.BaseSequenceNumber, t.PacketStatusCount)
}
