// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

// PacketBitmap shouldn't be used like a normal integral, it's a packed
// bitfield of lost packets following the PacketID.
type PacketBitmap uint16

// NackPair is a wire-representation of a collection of lost packets: the
// first lost packet and a bitmask of the 16 packets following it.
type NackPair struct {
	// ID of lost packets
	PacketID uint16
	// Bitmask of following lost packets
	LostPackets PacketBitmap
}

// PacketList returns a list of Nack'd packets that's referenced by a NackPair.
func (n *NackPair) PacketList() []uint16 {
	out := make([]uint16, 1, 17)
	out[0] = n.PacketID
	b := n.LostPackets
	for i := uint16(0); b != 0; i++ {
		if (b & (1 << i)) != 0 {
			b &^= 1 << i
			out = append(out, n.PacketID+i+1)
		}
	}
	return out
}

// Range calls f sequentially for each sequence number covered by the pair,
// stopping early when f returns false.
func (n *NackPair) Range(f func(seqno uint16) bool) {
	if !f(n.PacketID) {
		return
	}
	b := n.LostPackets
	for i := uint16(0); b != 0; i++ {
		if (b & (1 << i)) != 0 {
			b &^= 1 << i
			if !f(n.PacketID + i + 1) {
				return
			}
		}
	}
}

const (
	tlnLength  = 2
	nackOffset = 8
	nackPairLength = 4
)

// The TransportLayerNack packet informs the encoder about the loss of a
// transport packet, RFC 4585 §6.2.1.
type TransportLayerNack struct {
	// SSRC of sender
	SenderSSRC uint32
	// SSRC of the media source
	MediaSSRC uint32
	Nacks     []NackPair
}

// NackPairsFromSequenceNumbers packs a sorted list of sequence numbers into
// the smallest set of NackPairs covering them.
func NackPairsFromSequenceNumbers(seqNos []uint16) (pairs []NackPair) {
	if len(seqNos) == 0 {
		return []NackPair{}
	}

	nackPair := &NackPair{PacketID: seqNos[0]}
	for i := 1; i < len(seqNos); i++ {
		m := seqNos[i]
		if m == nackPair.PacketID || m-nackPair.PacketID > 16 {
			if m != nackPair.PacketID {
				pairs = append(pairs, *nackPair)
				nackPair = &NackPair{PacketID: m}
			}
			continue
		}
		nackPair.LostPackets |= 1 << (m - nackPair.PacketID - 1)
	}

	pairs = append(pairs, *nackPair)
	return pairs
}

// Header returns the Header associated with this packet.
func (p TransportLayerNack) Header() Header {
	return Header{
		Count:  FormatTLN,
		Type:   TypeTransportSpecificFeedback,
		Length: uint16((p.len() / 4) - 1),
	}
}

func (p TransportLayerNack) len() int {
	return headerLength + nackOffset + len(p.Nacks)*nackPairLength
}

// Marshal encodes the packet in binary.
func (p TransportLayerNack) Marshal() ([]byte, error) {
	if len(p.Nacks)+tlnLength > countMax {
		return nil, errTooManyReports
	}

	hData, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, p.len())
	copy(rawPacket, hData)
	binary.BigEndian.PutUint32(rawPacket[headerLength:], p.SenderSSRC)
	binary.BigEndian.PutUint32(rawPacket[headerLength+4:], p.MediaSSRC)

	for i, nack := range p.Nacks {
		off := headerLength + nackOffset + i*nackPairLength
		binary.BigEndian.PutUint16(rawPacket[off:], nack.PacketID)
		binary.BigEndian.PutUint16(rawPacket[off+2:], uint16(nack.LostPackets))
	}

	return rawPacket, nil
}

// Unmarshal decodes the packet from binary.
func (p *TransportLayerNack) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+nackOffset {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeTransportSpecificFeedback || h.Count != FormatTLN {
		return errWrongType
	}

	p.SenderSSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])
	p.MediaSSRC = binary.BigEndian.Uint32(rawPacket[headerLength+4:])

	p.Nacks = nil
	for i := headerLength + nackOffset; i+nackPairLength <= int(4*(h.Length+1)) && i+nackPairLength <= len(rawPacket); i += nackPairLength {
		p.Nacks = append(p.Nacks, NackPair{
			PacketID:    binary.BigEndian.Uint16(rawPacket[i:]),
			LostPackets: PacketBitmap(binary.BigEndian.Uint16(rawPacket[i+2:])),
		})
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (p *TransportLayerNack) DestinationSSRC() []uint32 {
	return []uint32{p.MediaSSRC}
}
