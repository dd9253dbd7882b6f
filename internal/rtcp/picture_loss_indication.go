// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

const pliLength = 2

// The PictureLossIndication packet informs the encoder about the loss of an
// undefined amount of coded video data belonging to one or more pictures.
type PictureLossIndication struct {
	// SSRC of sender
	SenderSSRC uint32
	// SSRC where the loss was experienced
	MediaSSRC uint32
}

// Header returns the Header associated with this packet.
func (p PictureLossIndication) Header() Header {
	return Header{
		Count:  FormatPLI,
		Type:   TypePayloadSpecificFeedback,
		Length: pliLength,
	}
}

// Marshal encodes the packet in binary.
func (p PictureLossIndication) Marshal() ([]byte, error) {
	hData, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, headerLength+ssrcLength*2)
	copy(rawPacket, hData)
	binary.BigEndian.PutUint32(rawPacket[headerLength:], p.SenderSSRC)
	binary.BigEndian.PutUint32(rawPacket[headerLength+4:], p.MediaSSRC)

	return rawPacket, nil
}

// Unmarshal decodes the packet from binary.
func (p *PictureLossIndication) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+ssrcLength*2 {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != FormatPLI {
		return errWrongType
	}

	p.SenderSSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])
	p.MediaSSRC = binary.BigEndian.Uint32(rawPacket[headerLength+4:])

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (p *PictureLossIndication) DestinationSSRC() []uint32 {
	return []uint32{p.MediaSSRC}
}
