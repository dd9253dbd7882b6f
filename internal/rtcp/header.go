// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

// PacketType specifies the type of an RTCP packet.
type PacketType uint8

// RTCP packet types registered with IANA, RFC 3550 and extensions.
const (
	TypeSenderReport              PacketType = 200 // SR
	TypeReceiverReport            PacketType = 201 // RR
	TypeSourceDescription         PacketType = 202 // SDES
	TypeGoodbye                   PacketType = 203 // BYE
	TypeApplicationDefined        PacketType = 204 // APP
	TypeTransportSpecificFeedback PacketType = 205 // RTPFB
	TypePayloadSpecificFeedback   PacketType = 206 // PSFB
	TypeExtendedReport            PacketType = 207 // XR
)

// Feedback message types for RTPFB and PSFB, RFC 4585 and extensions.
const (
	FormatSLI  uint8 = 2
	FormatPLI  uint8 = 1
	FormatFIR  uint8 = 4
	FormatTLN  uint8 = 1
	FormatRRR  uint8 = 5
	FormatREMB uint8 = 15
	FormatTCC  uint8 = 15
)

func (p PacketType) String() string {
	switch p {
	case TypeSenderReport:
		return "SR"
	case TypeReceiverReport:
		return "RR"
	case TypeSourceDescription:
		return "SDES"
	case TypeGoodbye:
		return "BYE"
	case TypeApplicationDefined:
		return "APP"
	case TypeTransportSpecificFeedback:
		return "TSFB"
	case TypePayloadSpecificFeedback:
		return "PSFB"
	case TypeExtendedReport:
		return "XR"
	default:
		return string(rune(p))
	}
}

const (
	headerLength  = 4
	versionShift  = 6
	versionMask   = 0x3
	paddingShift  = 5
	paddingMask   = 0x1
	countShift    = 0
	countMask     = 0x1f
	countMax      = (1 << 5) - 1
	rtpVersion    = 2
	ssrcLength    = 4
	sdesMaxOctets = (1 << 8) - 1
)

// A Header is the common RTCP packet header, RFC 3550 §6.4.1.
type Header struct {
	// If the padding bit is set, this individual RTCP packet contains
	// additional padding octets at the end which are not part of the
	// control information but are included in the length field.
	Padding bool
	// The number of reception report blocks, sources, or FMT contained in
	// this packet, depending on the packet type.
	Count uint8
	// The RTCP packet type for this packet.
	Type PacketType
	// The length of this RTCP packet in 32-bit words minus one,
	// including the header and any padding.
	Length uint16
}

// Marshal encodes the header in binary.
func (h Header) Marshal() ([]byte, error) {
	if h.Count > countMax {
		return nil, errInvalidHeader
	}

	rawPacket := make([]byte, headerLength)
	rawPacket[0] |= rtpVersion << versionShift
	if h.Padding {
		rawPacket[0] |= 1 << paddingShift
	}
	rawPacket[0] |= h.Count << countShift
	rawPacket[1] = uint8(h.Type)
	binary.BigEndian.PutUint16(rawPacket[2:], h.Length)

	return rawPacket, nil
}

// Unmarshal decodes the header from binary.
func (h *Header) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength {
		return errPacketTooShort
	}

	if version := rawPacket[0] >> versionShift & versionMask; version != rtpVersion {
		return errBadVersion
	}

	h.Padding = (rawPacket[0] >> paddingShift & paddingMask) > 0
	h.Count = rawPacket[0] >> countShift & countMask
	h.Type = PacketType(rawPacket[1])
	h.Length = binary.BigEndian.Uint16(rawPacket[2:])

	return nil
}
