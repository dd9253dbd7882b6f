// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

// BlockTypeType specifies the type of an XR report block, RFC 3611 §4.
type BlockTypeType uint8

// Extended report block types.
const (
	LossRLEReportBlockType               BlockTypeType = 1
	DuplicateRLEReportBlockType          BlockTypeType = 2
	PacketReceiptTimesReportBlockType    BlockTypeType = 3
	ReceiverReferenceTimeReportBlockType BlockTypeType = 4 // RRTR
	DLRRReportBlockType                  BlockTypeType = 5 // DLRR
	StatisticsSummaryReportBlockType     BlockTypeType = 6
	VoIPMetricsReportBlockType           BlockTypeType = 7
)

func (t BlockTypeType) String() string {
	switch t {
	case LossRLEReportBlockType:
		return "LossRLE"
	case DuplicateRLEReportBlockType:
		return "DuplicateRLE"
	case PacketReceiptTimesReportBlockType:
		return "PacketReceiptTimes"
	case ReceiverReferenceTimeReportBlockType:
		return "ReceiverReferenceTime"
	case DLRRReportBlockType:
		return "DLRR"
	case StatisticsSummaryReportBlockType:
		return "StatisticsSummary"
	case VoIPMetricsReportBlockType:
		return "VoIPMetrics"
	default:
		return "Unknown"
	}
}

const xrBlockHeaderLength = 4

// XRHeader is the common header of every extended report block.
type XRHeader struct {
	BlockType    BlockTypeType
	TypeSpecific uint8
	BlockLength  uint16
}

func (h XRHeader) marshal() []byte {
	out := make([]byte, xrBlockHeaderLength)
	out[0] = uint8(h.BlockType)
	out[1] = h.TypeSpecific
	binary.BigEndian.PutUint16(out[2:], h.BlockLength)
	return out
}

func (h *XRHeader) unmarshal(raw []byte) error {
	if len(raw) < xrBlockHeaderLength {
		return errPacketTooShort
	}
	h.BlockType = BlockTypeType(raw[0])
	h.TypeSpecific = raw[1]
	h.BlockLength = binary.BigEndian.Uint16(raw[2:])
	return nil
}

// ReportBlock represents a single report within an ExtendedReport packet.
type ReportBlock interface {
	Marshal() ([]byte, error)
	Unmarshal(rawPacket []byte) error
	DestinationSSRC() []uint32
}

// ReceiverReferenceTimeReportBlock (RRTR) carries the receiver's NTP
// timestamp so non-senders may compute round-trip times.
type ReceiverReferenceTimeReportBlock struct {
	NTPTimestamp uint64
}

// Marshal encodes the block in binary.
func (b *ReceiverReferenceTimeReportBlock) Marshal() ([]byte, error) {
	out := XRHeader{
		BlockType:   ReceiverReferenceTimeReportBlockType,
		BlockLength: 2,
	}.marshal()
	ntp := make([]byte, 8)
	binary.BigEndian.PutUint64(ntp, b.NTPTimestamp)
	return append(out, ntp...), nil
}

// Unmarshal decodes the block from binary.
func (b *ReceiverReferenceTimeReportBlock) Unmarshal(rawPacket []byte) error {
	var h XRHeader
	if err := h.unmarshal(rawPacket); err != nil {
		return err
	}
	if h.BlockType != ReceiverReferenceTimeReportBlockType || len(rawPacket) < xrBlockHeaderLength+8 {
		return errWrongType
	}
	b.NTPTimestamp = binary.BigEndian.Uint64(rawPacket[xrBlockHeaderLength:])
	return nil
}

// DestinationSSRC returns an array of SSRC values that this block refers to.
func (b *ReceiverReferenceTimeReportBlock) DestinationSSRC() []uint32 {
	return []uint32{}
}

// DLRRReport is a single sub-block of a DLRR block.
type DLRRReport struct {
	// SSRC of the receiver the report is about.
	SSRC uint32
	// Middle 32 bits of the NTP timestamp from the receiver's RRTR.
	LastRR uint32
	// Delay since that RRTR, in units of 1/65536 seconds.
	DLRR uint32
}

// DLRRReportBlock (DLRR) reports, per receiver, the delay since that
// receiver's last RRTR.
type DLRRReportBlock struct {
	Reports []DLRRReport
}

// Marshal encodes the block in binary.
func (b *DLRRReportBlock) Marshal() ([]byte, error) {
	out := XRHeader{
		BlockType:   DLRRReportBlockType,
		BlockLength: uint16(len(b.Reports) * 3),
	}.marshal()
	for _, rep := range b.Reports {
		sub := make([]byte, 12)
		binary.BigEndian.PutUint32(sub, rep.SSRC)
		binary.BigEndian.PutUint32(sub[4:], rep.LastRR)
		binary.BigEndian.PutUint32(sub[8:], rep.DLRR)
		out = append(out, sub...)
	}
	return out, nil
}

// Unmarshal decodes the block from binary.
func (b *DLRRReportBlock) Unmarshal(rawPacket []byte) error {
	var h XRHeader
	if err := h.unmarshal(rawPacket); err != nil {
		return err
	}
	if h.BlockType != DLRRReportBlockType {
		return errWrongType
	}
	if len(rawPacket) < xrBlockHeaderLength+int(h.BlockLength)*4 || h.BlockLength%3 != 0 {
		return errPacketTooShort
	}

	b.Reports = nil
	for off := xrBlockHeaderLength; off+12 <= xrBlockHeaderLength+int(h.BlockLength)*4; off += 12 {
		b.Reports = append(b.Reports, DLRRReport{
			SSRC:   binary.BigEndian.Uint32(rawPacket[off:]),
			LastRR: binary.BigEndian.Uint32(rawPacket[off+4:]),
			DLRR:   binary.BigEndian.Uint32(rawPacket[off+8:]),
		})
	}
	return nil
}

// DestinationSSRC returns an array of SSRC values that this block refers to.
func (b *DLRRReportBlock) DestinationSSRC() []uint32 {
	ssrc := make([]uint32, len(b.Reports))
	for i, rep := range b.Reports {
		ssrc[i] = rep.SSRC
	}
	return ssrc
}

// StatisticsSummaryReportBlock reports loss, duplication, jitter and
// TTL/hop-limit statistics over a sequence-number range.
type StatisticsSummaryReportBlock struct {
	LossReports      bool
	DuplicateReports bool
	JitterReports    bool
	TTLorHopLimit    TTLorHopLimitType

	SSRC           uint32
	BeginSeq       uint16
	EndSeq         uint16
	LostPackets    uint32
	DupPackets     uint32
	MinJitter      uint32
	MaxJitter      uint32
	MeanJitter     uint32
	DevJitter      uint32
	MinTTLOrHL     uint8
	MaxTTLOrHL     uint8
	MeanTTLOrHL    uint8
	DevTTLOrHL     uint8
}

// TTLorHopLimitType encodes what the TTL/hop-limit fields refer to.
type TTLorHopLimitType uint8

// Values for TTLorHopLimitType.
const (
	ToHMissing TTLorHopLimitType = 0
	ToHIPv4    TTLorHopLimitType = 1
	ToHIPv6    TTLorHopLimitType = 2
)

// Marshal encodes the block in binary.
func (b *StatisticsSummaryReportBlock) Marshal() ([]byte, error) {
	var typeSpecific uint8
	if b.LossReports {
		typeSpecific |= 0x80
	}
	if b.DuplicateReports {
		typeSpecific |= 0x40
	}
	if b.JitterReports {
		typeSpecific |= 0x20
	}
	typeSpecific |= uint8(b.TTLorHopLimit&0x3) << 3

	out := XRHeader{
		BlockType:    StatisticsSummaryReportBlockType,
		TypeSpecific: typeSpecific,
		BlockLength:  9,
	}.marshal()

	body := make([]byte, 36)
	binary.BigEndian.PutUint32(body, b.SSRC)
	binary.BigEndian.PutUint16(body[4:], b.BeginSeq)
	binary.BigEndian.PutUint16(body[6:], b.EndSeq)
	binary.BigEndian.PutUint32(body[8:], b.LostPackets)
	binary.BigEndian.PutUint32(body[12:], b.DupPackets)
	binary.BigEndian.PutUint32(body[16:], b.MinJitter)
	binary.BigEndian.PutUint32(body[20:], b.MaxJitter)
	binary.BigEndian.PutUint32(body[24:], b.MeanJitter)
	binary.BigEndian.PutUint32(body[28:], b.DevJitter)
	body[32] = b.MinTTLOrHL
	body[33] = b.MaxTTLOrHL
	body[34] = b.MeanTTLOrHL
	body[35] = b.DevTTLOrHL

	return append(out, body...), nil
}

// Unmarshal decodes the block from binary.
func (b *StatisticsSummaryReportBlock) Unmarshal(rawPacket []byte) error {
	var h XRHeader
	if err := h.unmarshal(rawPacket); err != nil {
		return err
	}
	if h.BlockType != StatisticsSummaryReportBlockType {
		return errWrongType
	}
	if len(rawPacket) < xrBlockHeaderLength+36 {
		return errPacketTooShort
	}

	b.LossReports = h.TypeSpecific&0x80 != 0
	b.DuplicateReports = h.TypeSpecific&0x40 != 0
	b.JitterReports = h.TypeSpecific&0x20 != 0
	b.TTLorHopLimit = TTLorHopLimitType(h.TypeSpecific >> 3 & 0x3)

	body := rawPacket[xrBlockHeaderLength:]
	b.SSRC = binary.BigEndian.Uint32(body)
	b.BeginSeq = binary.BigEndian.Uint16(body[4:])
	b.EndSeq = binary.BigEndian.Uint16(body[6:])
	b.LostPackets = binary.BigEndian.Uint32(body[8:])
	b.DupPackets = binary.BigEndian.Uint32(body[12:])
	b.MinJitter = binary.BigEndian.Uint32(body[16:])
	b.MaxJitter = binary.BigEndian.Uint32(body[20:])
	b.MeanJitter = binary.BigEndian.Uint32(body[24:])
	b.DevJitter = binary.BigEndian.Uint32(body[28:])
	b.MinTTLOrHL = body[32]
	b.MaxTTLOrHL = body[33]
	b.MeanTTLOrHL = body[34]
	b.DevTTLOrHL = body[35]

	return nil
}

// DestinationSSRC returns an array of SSRC values that this block refers to.
func (b *StatisticsSummaryReportBlock) DestinationSSRC() []uint32 {
	return []uint32{b.SSRC}
}

// UnknownReportBlock preserves blocks this package does not interpret.
type UnknownReportBlock struct {
	Bytes []byte
}

// Marshal encodes the block in binary.
func (b *UnknownReportBlock) Marshal() ([]byte, error) {
	out := make([]byte, len(b.Bytes))
	copy(out, b.Bytes)
	return out, nil
}

// Unmarshal decodes the block from binary.
func (b *UnknownReportBlock) Unmarshal(rawPacket []byte) error {
	var h XRHeader
	if err := h.unmarshal(rawPacket); err != nil {
		return err
	}
	if len(rawPacket) < xrBlockHeaderLength+int(h.BlockLength)*4 {
		return errPacketTooShort
	}
	b.Bytes = make([]byte, xrBlockHeaderLength+int(h.BlockLength)*4)
	copy(b.Bytes, rawPacket)
	return nil
}

// DestinationSSRC returns an array of SSRC values that this block refers to.
func (b *UnknownReportBlock) DestinationSSRC() []uint32 {
	return []uint32{}
}

// The ExtendedReport packet is an extensible structure for reporting,
// RFC 3611 §2.
type ExtendedReport struct {
	SenderSSRC uint32
	Reports    []ReportBlock
}

// Header returns the Header associated with this packet.
func (x ExtendedReport) Header() Header {
	return Header{
		Type:   TypeExtendedReport,
		Length: uint16((x.len() / 4) - 1),
	}
}

func (x ExtendedReport) len() int {
	n := headerLength + ssrcLength
	for _, rep := range x.Reports {
		data, err := rep.Marshal()
		if err == nil {
			n += len(data)
		}
	}
	return n
}

// Marshal encodes the packet in binary.
func (x ExtendedReport) Marshal() ([]byte, error) {
	hData, err := x.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, 0, x.len())
	rawPacket = append(rawPacket, hData...)

	ssrc := make([]byte, ssrcLength)
	binary.BigEndian.PutUint32(ssrc, x.SenderSSRC)
	rawPacket = append(rawPacket, ssrc...)

	for _, rep := range x.Reports {
		data, err := rep.Marshal()
		if err != nil {
			return nil, err
		}
		rawPacket = append(rawPacket, data...)
	}

	return rawPacket, nil
}

// Unmarshal decodes the packet from binary.
func (x *ExtendedReport) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+ssrcLength {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeExtendedReport {
		return errWrongType
	}

	x.SenderSSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])

	x.Reports = nil
	for offset := headerLength + ssrcLength; offset < len(rawPacket); {
		var bh XRHeader
		if err := bh.unmarshal(rawPacket[offset:]); err != nil {
			return err
		}
		blockLen := xrBlockHeaderLength + int(bh.BlockLength)*4
		if offset+blockLen > len(rawPacket) {
			return errPacketTooShort
		}

		var block ReportBlock
		switch bh.BlockType {
		case ReceiverReferenceTimeReportBlockType:
			block = new(ReceiverReferenceTimeReportBlock)
		case DLRRReportBlockType:
			block = new(DLRRReportBlock)
		case StatisticsSummaryReportBlockType:
			block = new(StatisticsSummaryReportBlock)
		default:
			block = new(UnknownReportBlock)
		}
		if err := block.Unmarshal(rawPacket[offset : offset+blockLen]); err != nil {
			return err
		}
		x.Reports = append(x.Reports, block)
		offset += blockLen
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (x *ExtendedReport) DestinationSSRC() []uint32 {
	var out []uint32
	for _, rep := range x.Reports {
		out = append(out, rep.DestinationSSRC()...)
	}
	return out
}
