// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

const (
	srHeaderLength     = 24
	srSSRCOffset       = 0
	srNTPOffset        = 4
	srRTPOffset        = 12
	srPacketCountOffset = 16
	srOctetCountOffset  = 20
)

// A SenderReport (SR) packet provides reception quality feedback for an RTP
// stream along with transmission statistics from the active sender.
type SenderReport struct {
	// The synchronization source identifier for the originator of this SR packet.
	SSRC uint32
	// The wallclock time when this report was sent so that it may be used in
	// combination with timestamps returned in reception reports from other
	// receivers to measure round-trip propagation to those receivers.
	NTPTime uint64
	// Corresponds to the same time as the NTP timestamp (above), but in
	// the same units and with the same random offset as the RTP
	// timestamps in data packets.
	RTPTime uint32
	// The total number of RTP data packets transmitted by the sender
	// since starting transmission up until the time this SR packet was
	// generated.
	PacketCount uint32
	// The total number of payload octets (i.e., not including header or
	// padding) transmitted in RTP data packets by the sender since
	// starting transmission up until the time this SR packet was
	// generated.
	OctetCount uint32
	// Zero or more reception report blocks depending on the number of other
	// sources heard by this sender since the last report.
	Reports []ReceptionReport
	// ProfileExtensions contains additional, payload-specific information
	// that needs to be reported regularly about the sender.
	ProfileExtensions []byte
}

// Header returns the Header associated with this packet.
func (r SenderReport) Header() Header {
	return Header{
		Count:  uint8(len(r.Reports)),
		Type:   TypeSenderReport,
		Length: uint16((r.len() / 4) - 1),
	}
}

func (r SenderReport) len() int {
	repsLength := 0
	for range r.Reports {
		repsLength += receptionReportLength
	}
	return headerLength + srHeaderLength + repsLength + len(r.ProfileExtensions)
}

// Marshal encodes the sender report in binary.
func (r SenderReport) Marshal() ([]byte, error) {
	if len(r.Reports) > countMax {
		return nil, errTooManyReports
	}

	hData, err := r.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, 0, r.len())
	rawPacket = append(rawPacket, hData...)

	body := make([]byte, srHeaderLength)
	binary.BigEndian.PutUint32(body[srSSRCOffset:], r.SSRC)
	binary.BigEndian.PutUint64(body[srNTPOffset:], r.NTPTime)
	binary.BigEndian.PutUint32(body[srRTPOffset:], r.RTPTime)
	binary.BigEndian.PutUint32(body[srPacketCountOffset:], r.PacketCount)
	binary.BigEndian.PutUint32(body[srOctetCountOffset:], r.OctetCount)
	rawPacket = append(rawPacket, body...)

	for _, rp := range r.Reports {
		data, err := rp.Marshal()
		if err != nil {
			return nil, err
		}
		rawPacket = append(rawPacket, data...)
	}

	rawPacket = append(rawPacket, r.ProfileExtensions...)

	return rawPacket, nil
}

// Unmarshal decodes the sender report from binary.
func (r *SenderReport) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+srHeaderLength {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeSenderReport {
		return errWrongType
	}

	packetBody := rawPacket[headerLength:]

	r.SSRC = binary.BigEndian.Uint32(packetBody[srSSRCOffset:])
	r.NTPTime = binary.BigEndian.Uint64(packetBody[srNTPOffset:])
	r.RTPTime = binary.BigEndian.Uint32(packetBody[srRTPOffset:])
	r.PacketCount = binary.BigEndian.Uint32(packetBody[srPacketCountOffset:])
	r.OctetCount = binary.BigEndian.Uint32(packetBody[srOctetCountOffset:])

	offset := srHeaderLength
	r.Reports = make([]ReceptionReport, 0, h.Count)
	for i := 0; i < int(h.Count); i++ {
		if offset+receptionReportLength > len(packetBody) {
			return errPacketTooShort
		}
		var rr ReceptionReport
		if err := rr.Unmarshal(packetBody[offset:]); err != nil {
			return err
		}
		r.Reports = append(r.Reports, rr)
		offset += receptionReportLength
	}

	if offset < len(packetBody) {
		r.ProfileExtensions = packetBody[offset:]
	} else {
		r.ProfileExtensions = nil
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (r *SenderReport) DestinationSSRC() []uint32 {
	out := make([]uint32, len(r.Reports)+1)
	for i, v := range r.Reports {
		out[i] = v.SSRC
	}
	out[len(r.Reports)] = r.SSRC
	return out
}
