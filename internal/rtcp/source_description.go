// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"encoding/binary"
	"fmt"
)

// SDESType is the item type used in the RTCP SDES control packet.
type SDESType uint8

// RTP SDES item types registered with IANA, RFC 3550 §12.2.
const (
	SDESEnd      SDESType = 0 // end of SDES list
	SDESCNAME    SDESType = 1 // canonical name
	SDESName     SDESType = 2 // user name
	SDESEmail    SDESType = 3 // user's electronic mail address
	SDESPhone    SDESType = 4 // user's phone number
	SDESLocation SDESType = 5 // geographic user location
	SDESTool     SDESType = 6 // name of application or tool
	SDESNote     SDESType = 7 // notice about the source
	SDESPrivate  SDESType = 8 // private extensions
)

func (s SDESType) String() string {
	switch s {
	case SDESEnd:
		return "END"
	case SDESCNAME:
		return "CNAME"
	case SDESName:
		return "NAME"
	case SDESEmail:
		return "EMAIL"
	case SDESPhone:
		return "PHONE"
	case SDESLocation:
		return "LOC"
	case SDESTool:
		return "TOOL"
	case SDESNote:
		return "NOTE"
	case SDESPrivate:
		return "PRIV"
	default:
		return string(rune(s))
	}
}

const (
	sdesSourceLen       = 4
	sdesTypeLen         = 1
	sdesOctetCountLen   = 1
	sdesTextMaxOctets   = sdesMaxOctets
)

// A SourceDescription (SDES) packet describes the sources in an RTP stream.
type SourceDescription struct {
	Chunks []SourceDescriptionChunk
}

// A SourceDescriptionChunk contains items describing a single RTP source.
type SourceDescriptionChunk struct {
	// The source (ssrc) or contributing source (csrc) identifier this chunk describes.
	Source uint32
	Items  []SourceDescriptionItem
}

// A SourceDescriptionItem is a part of a SourceDescription that describes a stream.
type SourceDescriptionItem struct {
	// The type identifier for this item, e.g. SDESCNAME for canonical name description.
	Type SDESType
	// Text is a unique identifier of the source in the case of SDESCNAME,
	// and free text otherwise.
	Text string
}

func (s SourceDescriptionItem) len() int {
	return sdesTypeLen + sdesOctetCountLen + len(s.Text)
}

func (s SourceDescriptionChunk) len() int {
	chunkLen := sdesSourceLen
	for _, it := range s.Items {
		chunkLen += it.len()
	}
	chunkLen += sdesTypeLen // for the END marker

	// pad to 32-bit boundary
	return chunkLen + ((4 - chunkLen%4) % 4)
}

// Header returns the Header associated with this packet.
func (s SourceDescription) Header() Header {
	return Header{
		Count:  uint8(len(s.Chunks)),
		Type:   TypeSourceDescription,
		Length: uint16((s.len() / 4) - 1),
	}
}

func (s SourceDescription) len() int {
	chunksLength := 0
	for _, c := range s.Chunks {
		chunksLength += c.len()
	}
	return headerLength + chunksLength
}

// Marshal encodes the source description in binary.
func (s SourceDescription) Marshal() ([]byte, error) {
	if len(s.Chunks) > countMax {
		return nil, errTooManyChunks
	}

	hData, err := s.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, 0, s.len())
	rawPacket = append(rawPacket, hData...)

	for _, c := range s.Chunks {
		chunk := make([]byte, 0, c.len())

		src := make([]byte, sdesSourceLen)
		binary.BigEndian.PutUint32(src, c.Source)
		chunk = append(chunk, src...)

		for _, it := range c.Items {
			if it.Type == SDESEnd {
				return nil, errSDESTextTooLong
			}
			if len(it.Text) > sdesTextMaxOctets {
				return nil, errSDESTextTooLong
			}
			chunk = append(chunk, uint8(it.Type), uint8(len(it.Text)))
			chunk = append(chunk, []byte(it.Text)...)
		}

		// The list of items in each chunk MUST be terminated by one or more
		// null octets, and padded to the next 32-bit boundary.
		chunk = append(chunk, uint8(SDESEnd))
		for len(chunk)%4 != 0 {
			chunk = append(chunk, uint8(SDESEnd))
		}

		rawPacket = append(rawPacket, chunk...)
	}

	return rawPacket, nil
}

// Unmarshal decodes the source description from binary.
func (s *SourceDescription) Unmarshal(rawPacket []byte) error {
	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeSourceDescription {
		return errWrongType
	}

	s.Chunks = nil
	for i := headerLength; i < len(rawPacket); {
		if i+sdesSourceLen > len(rawPacket) {
			return errPacketTooShort
		}
		chunk := SourceDescriptionChunk{
			Source: binary.BigEndian.Uint32(rawPacket[i:]),
		}
		i += sdesSourceLen

		for {
			if i >= len(rawPacket) {
				return errPacketTooShort
			}
			itemType := SDESType(rawPacket[i])
			if itemType == SDESEnd {
				// consume the terminator and chunk padding
				i++
				for i%4 != 0 {
					i++
				}
				break
			}

			if i+sdesTypeLen+sdesOctetCountLen > len(rawPacket) {
				return errPacketTooShort
			}
			octetCount := int(rawPacket[i+1])
			if i+sdesTypeLen+sdesOctetCountLen+octetCount > len(rawPacket) {
				return errPacketTooShort
			}

			chunk.Items = append(chunk.Items, SourceDescriptionItem{
				Type: itemType,
				Text: string(rawPacket[i+2 : i+2+octetCount]),
			})
			i += sdesTypeLen + sdesOctetCountLen + octetCount
		}

		s.Chunks = append(s.Chunks, chunk)
	}

	if len(s.Chunks) != int(h.Count) {
		return errInvalidHeader
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (s *SourceDescription) DestinationSSRC() []uint32 {
	out := make([]uint32, len(s.Chunks))
	for i, v := range s.Chunks {
		out[i] = v.Source
	}
	return out
}

func (s *SourceDescription) String() string {
	out := "Source Description:\n"
	for _, c := range s.Chunks {
		out += fmt.Sprintf("\t%x\n", c.Source)
		for _, it := range c.Items {
			out += fmt.Sprintf("\t\t%s: %s\n", it.Type, it.Text)
		}
	}
	return out
}
