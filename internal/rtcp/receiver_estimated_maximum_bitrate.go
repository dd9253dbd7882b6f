// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ReceiverEstimatedMaximumBitrate contains the receiver's estimated maximum bitrate.
// https://tools.ietf.org/html/draft-alvestrand-rmcat-remb-03
type ReceiverEstimatedMaximumBitrate struct {
	// SSRC of sender
	SenderSSRC uint32
	// Estimated maximum bitrate in bits per second
	Bitrate float32
	// SSRC entries which this packet applies to
	SSRCs []uint32
}

// uniqueIdentifier is the ASCII "REMB" tag that distinguishes this
// application-layer feedback message.
var uniqueIdentifier = [4]byte{'R', 'E', 'M', 'B'}

// Header returns the Header associated with this packet.
func (p ReceiverEstimatedMaximumBitrate) Header() Header {
	return Header{
		Count:  FormatREMB,
		Type:   TypePayloadSpecificFeedback,
		Length: uint16((p.len() / 4) - 1),
	}
}

func (p ReceiverEstimatedMaximumBitrate) len() int {
	return headerLength + 16 + len(p.SSRCs)*4
}

// Marshal encodes the packet in binary.
func (p ReceiverEstimatedMaximumBitrate) Marshal() ([]byte, error) {
	if len(p.SSRCs) > math.MaxUint8 {
		return nil, errTooManySources
	}

	hData, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, p.len())
	copy(rawPacket, hData)
	binary.BigEndian.PutUint32(rawPacket[headerLength:], p.SenderSSRC)
	// media SSRC is always 0 for REMB
	copy(rawPacket[headerLength+8:], uniqueIdentifier[:])
	rawPacket[headerLength+12] = uint8(len(p.SSRCs))

	// Convert to a fixed point number with 18 bits of mantissa and 6 of exponent.
	exp := 0
	bitrate := p.Bitrate
	if bitrate >= 0x40000 {
		for bitrate >= 0x40000 {
			bitrate /= 2.0
			exp++
		}
	}
	if exp >= (1 << 6) {
		return nil, errBadMantissa
	}
	mantissa := uint(math.Floor(float64(bitrate)))

	rawPacket[headerLength+13] = uint8(exp<<2) | uint8(mantissa>>16)
	binary.BigEndian.PutUint16(rawPacket[headerLength+14:], uint16(mantissa&0xffff))

	for i, ssrc := range p.SSRCs {
		binary.BigEndian.PutUint32(rawPacket[headerLength+16+i*4:], ssrc)
	}

	return rawPacket, nil
}

// Unmarshal decodes the packet from binary.
func (p *ReceiverEstimatedMaximumBitrate) Unmarshal(rawPacket []byte) error {
	// 20 bytes up to and including the num-SSRC / exp / mantissa word
	if len(rawPacket) < headerLength+16 {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != FormatREMB {
		return errWrongType
	}

	p.SenderSSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])

	if rawPacket[headerLength+8] != uniqueIdentifier[0] ||
		rawPacket[headerLength+9] != uniqueIdentifier[1] ||
		rawPacket[headerLength+10] != uniqueIdentifier[2] ||
		rawPacket[headerLength+11] != uniqueIdentifier[3] {
		return errBadUniqueIdentifier
	}

	ssrcsLen := int(rawPacket[headerLength+12])
	exp := rawPacket[headerLength+13] >> 2
	mantissa := uint32(rawPacket[headerLength+13]&0x3)<<16 | uint32(rawPacket[headerLength+14])<<8 | uint32(rawPacket[headerLength+15])

	p.Bitrate = float32(mantissa)
	for i := uint8(0); i < exp; i++ {
		p.Bitrate *= 2
		if p.Bitrate > math.MaxFloat32/2 {
			p.Bitrate = math.MaxFloat32
			break
		}
	}

	if len(rawPacket) < headerLength+16+ssrcsLen*4 {
		return errPacketTooShort
	}
	p.SSRCs = make([]uint32, ssrcsLen)
	for i := 0; i < ssrcsLen; i++ {
		p.SSRCs[i] = binary.BigEndian.Uint32(rawPacket[headerLength+16+i*4:])
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (p *ReceiverEstimatedMaximumBitrate) DestinationSSRC() []uint32 {
	return p.SSRCs
}

func (p *ReceiverEstimatedMaximumBitrate) String() string {
	return fmt.Sprintf("ReceiverEstimatedMaximumBitrate %x %.0fbps", p.SenderSSRC, p.Bitrate)
}
