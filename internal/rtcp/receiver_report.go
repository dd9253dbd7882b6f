// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

// A ReceiverReport (RR) packet provides reception quality feedback for an RTP stream.
type ReceiverReport struct {
	// The synchronization source identifier for the originator of this RR packet.
	SSRC uint32
	// Zero or more reception report blocks depending on the number of other
	// sources heard by this sender since the last report.
	Reports []ReceptionReport
	// ProfileExtensions contains additional, payload-specific information.
	ProfileExtensions []byte
}

// Header returns the Header associated with this packet.
func (r ReceiverReport) Header() Header {
	return Header{
		Count:  uint8(len(r.Reports)),
		Type:   TypeReceiverReport,
		Length: uint16((r.len() / 4) - 1),
	}
}

func (r ReceiverReport) len() int {
	return headerLength + ssrcLength + len(r.Reports)*receptionReportLength + len(r.ProfileExtensions)
}

// Marshal encodes the receiver report in binary.
func (r ReceiverReport) Marshal() ([]byte, error) {
	if len(r.Reports) > countMax {
		return nil, errTooManyReports
	}

	hData, err := r.Header().Marshal()
	if err != nil {
		return nil, err
	}

	rawPacket := make([]byte, 0, r.len())
	rawPacket = append(rawPacket, hData...)

	ssrc := make([]byte, ssrcLength)
	binary.BigEndian.PutUint32(ssrc, r.SSRC)
	rawPacket = append(rawPacket, ssrc...)

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

// Unmarshal decodes the receiver report from binary.
func (r *ReceiverReport) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+ssrcLength {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeReceiverReport {
		return errWrongType
	}

	r.SSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])

	offset := headerLength + ssrcLength
	r.Reports = make([]ReceptionReport, 0, h.Count)
	for i := 0; i < int(h.Count); i++ {
		if offset+receptionReportLength > len(rawPacket) {
			return errPacketTooShort
		}
		var rr ReceptionReport
		if err := rr.Unmarshal(rawPacket[offset:]); err != nil {
			return err
		}
		r.Reports = append(r.Reports, rr)
		offset += receptionReportLength
	}

	if offset < len(rawPacket) {
		r.ProfileExtensions = rawPacket[offset:]
	} else {
		r.ProfileExtensions = nil
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (r *ReceiverReport) DestinationSSRC() []uint32 {
	out := make([]uint32, len(r.Reports))
	for i, v := range r.Reports {
		out[i] = v.SSRC
	}
	return out
}
