// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

const rrrLength = 2

// The RapidResynchronizationRequest packet informs the encoder about the
// loss of an undefined amount of coded video data belonging to one or more
// pictures.
type RapidResynchronizationRequest struct {
	// SSRC of sender
	SenderSSRC uint32
	// SSRC of the media source
	MediaSSRC uint32
}

// Header returns the Header associated with this packet.
func (p RapidResynchronizationRequest) Header() Header {
	return Header{
		Count:  FormatRRR,
		Type:   TypeTransportSpecificFeedback,
		Length: rrrLength,
	}
}

// Marshal encodes the packet in binary.
func (p RapidResynchronizationRequest) Marshal() ([]byte, error) {
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
func (p *RapidResynchronizationRequest) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+ssrcLength*2 {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeTransportSpecificFeedback || h.Count != FormatRRR {
		return errWrongType
	}

	p.SenderSSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])
	p.MediaSSRC = binary.BigEndian.Uint32(rawPacket[headerLength+4:])

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (p *RapidResynchronizationRequest) DestinationSSRC() []uint32 {
	return []uint32{p.MediaSSRC}
}
