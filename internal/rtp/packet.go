// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package rtp provides RTP packetizing and depacketizing.
package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Extension represents a single RTP header extension element.
type Extension struct {
	ID      uint8
	Payload []byte
}

// Header represents an RTP packet header.
type Header struct {
	Version          uint8
	Padding          bool
	Extension        bool
	Marker           bool
	PayloadType      uint8
	SequenceNumber   uint16
	Timestamp        uint32
	SSRC             uint32
	CSRC             []uint32
	ExtensionProfile uint16
	Extensions       []Extension
}

// Packet represents an RTP Packet.
type Packet struct {
	Header
	Payload     []byte
	PaddingSize byte
}

const (
	headerLength            = 4
	versionShift            = 6
	versionMask             = 0x3
	paddingShift            = 5
	paddingMask             = 0x1
	extensionShift          = 4
	extensionMask           = 0x1
	extensionProfileOneByte = 0xBEDE
	extensionProfileTwoByte = 0x1000
	extensionIDReserved     = 0xF
	ccMask                  = 0xF
	markerShift             = 7
	markerMask              = 0x1
	ptMask                  = 0x7F
	seqNumOffset            = 2
	timestampOffset         = 4
	ssrcOffset              = 8
	csrcOffset              = 12
	csrcLength              = 4
)

var (
	errHeaderSizeInsufficient             = errors.New("rtp: header size insufficient")
	errHeaderSizeInsufficientForExtension = errors.New("rtp: header size insufficient for extension")
	errTooSmall                           = errors.New("rtp: buffer too small")
	errHeaderExtensionsNotEnabled         = errors.New("rtp: h.Extension not enabled")
	errHeaderExtensionNotFound            = errors.New("rtp: extension not found")

	errRFC8285OneByteHeaderIDRange  = errors.New("rtp: header extension id must be between 1 and 14 for RFC 5285 one byte extensions")
	errRFC8285OneByteHeaderSize     = errors.New("rtp: header extension payload must be 16bytes or less for RFC 5285 one byte extensions")
	errRFC8285TwoByteHeaderIDRange  = errors.New("rtp: header extension id must be between 1 and 255 for RFC 5285 two byte extensions")
	errRFC8285TwoByteHeaderSize     = errors.New("rtp: header extension payload must be 255bytes or less for RFC 5285 two byte extensions")
	errRFC3550HeaderIDRange         = errors.New("rtp: header extension id must be 0 for non-RFC 5285 extensions")
)

// Unmarshal parses the passed byte slice and stores the result in the Header.
// It returns the number of bytes read n and any error.
func (h *Header) Unmarshal(buf []byte) (n int, err error) { //nolint:gocognit
	if len(buf) < headerLength {
		return 0, fmt.Errorf("%w: %d < %d", errHeaderSizeInsufficient, len(buf), headerLength)
	}

	h.Version = buf[0] >> versionShift & versionMask
	h.Padding = (buf[0] >> paddingShift & paddingMask) > 0
	h.Extension = (buf[0] >> extensionShift & extensionMask) > 0
	nCSRC := int(buf[0] & ccMask)
	if cap(h.CSRC) < nCSRC || h.CSRC == nil {
		h.CSRC = make([]uint32, nCSRC)
	} else {
		h.CSRC = h.CSRC[:nCSRC]
	}

	n = csrcOffset + (nCSRC * csrcLength)
	if len(buf) < n {
		return n, fmt.Errorf("size %d < %d: %w", len(buf), n, errHeaderSizeInsufficient)
	}

	h.Marker = (buf[1] >> markerShift & markerMask) > 0
	h.PayloadType = buf[1] & ptMask

	h.SequenceNumber = binary.BigEndian.Uint16(buf[seqNumOffset : seqNumOffset+2])
	h.Timestamp = binary.BigEndian.Uint32(buf[timestampOffset : timestampOffset+4])
	h.SSRC = binary.BigEndian.Uint32(buf[ssrcOffset : ssrcOffset+4])

	for i := range h.CSRC {
		offset := csrcOffset + (i * csrcLength)
		h.CSRC[i] = binary.BigEndian.Uint32(buf[offset:])
	}

	h.Extensions = h.Extensions[:0]
	h.ExtensionProfile = 0
	if h.Extension {
		if expected := n + 4; len(buf) < expected {
			return n, fmt.Errorf("size %d < %d: %w", len(buf), expected, errHeaderSizeInsufficientForExtension)
		}

		h.ExtensionProfile = binary.BigEndian.Uint16(buf[n:])
		n += 2
		extensionLength := int(binary.BigEndian.Uint16(buf[n:])) * 4
		n += 2
		extensionEnd := n + extensionLength

		if len(buf) < extensionEnd {
			return n, fmt.Errorf("size %d < %d: %w", len(buf), extensionEnd, errHeaderSizeInsufficientForExtension)
		}

		switch h.ExtensionProfile {
		// RFC 8285 RTP One Byte Header Extension
		case extensionProfileOneByte:
			for n < extensionEnd {
				if buf[n] == 0x00 { // padding
					n++
					continue
				}

				extid := buf[n] >> 4
				payloadLen := int(buf[n]&^0xF0 + 1)
				n++

				if extid == extensionIDReserved {
					break
				}

				if n+payloadLen > extensionEnd {
					return n, fmt.Errorf("%w", errHeaderSizeInsufficientForExtension)
				}
				extension := Extension{ID: extid, Payload: buf[n : n+payloadLen]}
				h.Extensions = append(h.Extensions, extension)
				n += payloadLen
			}

		// RFC 8285 RTP Two Byte Header Extension
		case extensionProfileTwoByte:
			for n < extensionEnd {
				if buf[n] == 0x00 { // padding
					n++
					continue
				}

				extid := buf[n]
				n++

				payloadLen := int(buf[n])
				n++

				if n+payloadLen > extensionEnd {
					return n, fmt.Errorf("%w", errHeaderSizeInsufficientForExtension)
				}
				extension := Extension{ID: extid, Payload: buf[n : n+payloadLen]}
				h.Extensions = append(h.Extensions, extension)
				n += payloadLen
			}

		default: // RFC3550 Extension
			extension := Extension{ID: 0, Payload: buf[n:extensionEnd]}
			h.Extensions = append(h.Extensions, extension)
			n += len(h.Extensions[0].Payload)
		}

		n = extensionEnd
	}

	return n, nil
}

// Unmarshal parses the passed byte slice and stores the result in the Packet.
func (p *Packet) Unmarshal(buf []byte) error {
	n, err := p.Header.Unmarshal(buf)
	if err != nil {
		return err
	}

	end := len(buf)
	if p.Header.Padding {
		if end <= n {
			return errTooSmall
		}
		p.PaddingSize = buf[end-1]
		end -= int(p.PaddingSize)
	}
	if end < n {
		return errTooSmall
	}

	p.Payload = buf[n:end]

	return nil
}

// Marshal serializes the header into bytes.
func (h Header) Marshal() (buf []byte, err error) {
	buf = make([]byte, h.MarshalSize())
	n, err := h.MarshalTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// MarshalTo serializes the header and writes to the buffer.
func (h Header) MarshalTo(buf []byte) (n int, err error) {
	size := h.MarshalSize()
	if size > len(buf) {
		return 0, errTooSmall
	}

	// The first byte contains the version, padding bit, extension bit, and csrc size.
	buf[0] = (h.Version << versionShift) | uint8(len(h.CSRC))
	if h.Padding {
		buf[0] |= 1 << paddingShift
	}
	if h.Extension {
		buf[0] |= 1 << extensionShift
	}

	// The second byte contains the marker bit and payload type.
	buf[1] = h.PayloadType
	if h.Marker {
		buf[1] |= 1 << markerShift
	}

	binary.BigEndian.PutUint16(buf[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], h.SSRC)

	n = 12
	for _, csrc := range h.CSRC {
		binary.BigEndian.PutUint32(buf[n:n+4], csrc)
		n += 4
	}

	if h.Extension {
		extHeaderPos := n
		binary.BigEndian.PutUint16(buf[n:n+2], h.ExtensionProfile)
		n += 4
		startExtensionsPos := n

		switch h.ExtensionProfile {
		case extensionProfileOneByte:
			for _, extension := range h.Extensions {
				buf[n] = extension.ID<<4 | (uint8(len(extension.Payload)) - 1)
				n++
				n += copy(buf[n:], extension.Payload)
			}
		case extensionProfileTwoByte:
			for _, extension := range h.Extensions {
				buf[n] = extension.ID
				n++
				buf[n] = uint8(len(extension.Payload))
				n++
				n += copy(buf[n:], extension.Payload)
			}
		default:
			extlen := len(h.Extensions[0].Payload)
			if extlen%4 != 0 {
				// the payload must be in 32-bit words
				return 0, errTooSmall
			}
			n += copy(buf[n:], h.Extensions[0].Payload)
		}

		// calculate extensions size and round to 4 bytes boundaries
		extSize := n - startExtensionsPos
		roundedExtSize := ((extSize + 3) / 4) * 4

		binary.BigEndian.PutUint16(buf[extHeaderPos+2:extHeaderPos+4], uint16(roundedExtSize/4))

		// add padding to reach 4 bytes boundaries
		for i := 0; i < roundedExtSize-extSize; i++ {
			buf[n] = 0
			n++
		}
	}

	return n, nil
}

// MarshalSize returns the size of the header once marshaled.
func (h Header) MarshalSize() int {
	size := 12 + (len(h.CSRC) * csrcLength)

	if h.Extension {
		extSize := 4

		switch h.ExtensionProfile {
		case extensionProfileOneByte:
			for _, extension := range h.Extensions {
				extSize += 1 + len(extension.Payload)
			}
		case extensionProfileTwoByte:
			for _, extension := range h.Extensions {
				extSize += 2 + len(extension.Payload)
			}
		default:
			extSize += len(h.Extensions[0].Payload)
		}

		// extensions size must have 4 bytes boundaries
		size += ((extSize + 3) / 4) * 4
	}

	return size
}

// SetExtension sets an RTP header extension.
func (h *Header) SetExtension(id uint8, payload []byte) error { //nolint:gocognit
	if h.Extension {
		switch h.ExtensionProfile {
		case extensionProfileOneByte:
			if id < 1 || id > 14 {
				return errRFC8285OneByteHeaderIDRange
			}
			if len(payload) > 16 {
				return errRFC8285OneByteHeaderSize
			}
		case extensionProfileTwoByte:
			if id < 1 {
				return errRFC8285TwoByteHeaderIDRange
			}
			if len(payload) > 255 {
				return errRFC8285TwoByteHeaderSize
			}
		default:
			if id != 0 {
				return errRFC3550HeaderIDRange
			}
		}

		// update existing if it exists
		for i, extension := range h.Extensions {
			if extension.ID == id {
				h.Extensions[i].Payload = payload
				return nil
			}
		}
		h.Extensions = append(h.Extensions, Extension{id, payload})
		return nil
	}

	// No existing header extensions
	h.Extension = true

	switch payloadLen := len(payload); {
	case payloadLen <= 16:
		h.ExtensionProfile = extensionProfileOneByte
	case payloadLen > 16 && payloadLen < 256:
		h.ExtensionProfile = extensionProfileTwoByte
	}

	h.Extensions = append(h.Extensions, Extension{id, payload})
	return nil
}

// GetExtensionIDs returns an extension id array.
func (h *Header) GetExtensionIDs() []uint8 {
	if !h.Extension || len(h.Extensions) == 0 {
		return nil
	}

	ids := make([]uint8, 0, len(h.Extensions))
	for _, extension := range h.Extensions {
		ids = append(ids, extension.ID)
	}
	return ids
}

// GetExtension returns an RTP header extension.
func (h *Header) GetExtension(id uint8) []byte {
	if !h.Extension {
		return nil
	}
	for _, extension := range h.Extensions {
		if extension.ID == id {
			return extension.Payload
		}
	}
	return nil
}

// DelExtension removes an RTP Header extension.
func (h *Header) DelExtension(id uint8) error {
	if !h.Extension {
		return errHeaderExtensionsNotEnabled
	}
	for i, extension := range h.Extensions {
		if extension.ID == id {
			h.Extensions = append(h.Extensions[:i], h.Extensions[i+1:]...)
			return nil
		}
	}
	return errHeaderExtensionNotFound
}

// Marshal serializes the packet into bytes.
func (p Packet) Marshal() (buf []byte, err error) {
	buf = make([]byte, p.MarshalSize())
	n, err := p.MarshalTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// MarshalTo serializes the packet and writes to the buffer.
func (p Packet) MarshalTo(buf []byte) (n int, err error) {
	p.Header.Padding = p.PaddingSize != 0
	n, err = p.Header.MarshalTo(buf)
	if err != nil {
		return 0, err
	}

	if n+len(p.Payload)+int(p.PaddingSize) > len(buf) {
		return 0, errTooSmall
	}

	m := copy(buf[n:], p.Payload)
	if p.Header.Padding {
		buf[n+m+int(p.PaddingSize-1)] = p.PaddingSize
	}

	return n + m + int(p.PaddingSize), nil
}

// MarshalSize returns the size of the packet once marshaled.
func (p Packet) MarshalSize() int {
	return p.Header.MarshalSize() + len(p.Payload) + int(p.PaddingSize)
}

// Clone returns a deep copy of p.
func (p Packet) Clone() *Packet {
	clone := &Packet{}
	clone.Header = p.Header.Clone()
	if p.Payload != nil {
		clone.Payload = make([]byte, len(p.Payload))
		copy(clone.Payload, p.Payload)
	}
	clone.PaddingSize = p.PaddingSize
	return clone
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	clone := h
	if h.CSRC != nil {
		clone.CSRC = make([]uint32, len(h.CSRC))
		copy(clone.CSRC, h.CSRC)
	}
	if h.Extensions != nil {
		ext := make([]Extension, len(h.Extensions))
		for i, e := range h.Extensions {
			ext[i] = e
			if e.Payload != nil {
				ext[i].Payload = make([]byte, len(e.Payload))
				copy(ext[i].Payload, e.Payload)
			}
		}
		clone.Extensions = ext
	}
	return clone
}

func (p Packet) String() string {
	out := "RTP PACKET:\n"
	out += fmt.Sprintf("\tVersion: %v\n", p.Version)
	out += fmt.Sprintf("\tMarker: %v\n", p.Marker)
	out += fmt.Sprintf("\tPayload Type: %d\n", p.PayloadType)
	out += fmt.Sprintf("\tSequence Number: %d\n", p.SequenceNumber)
	out += fmt.Sprintf("\tTimestamp: %d\n", p.Timestamp)
	out += fmt.Sprintf("\tSSRC: %d (%x)\n", p.SSRC, p.SSRC)
	out += fmt.Sprintf("\tPayload Length: %d\n", len(p.Payload))
	return out
}
