// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "encoding/binary"

const receptionReportLength = 24

// A ReceptionReport block conveys statistics on the reception of RTP packets
// from a single synchronization source.
type ReceptionReport struct {
	// The SSRC identifier of the source to which the information in this
	// reception report block pertains.
	SSRC uint32
	// The fraction of RTP data packets from source SSRC lost since the
	// previous SR or RR packet was sent, expressed as a fixed point
	// number with the binary point at the left edge of the field.
	FractionLost uint8
	// The total number of RTP data packets from source SSRC that have
	// been lost since the beginning of reception.
	TotalLost uint32
	// The low 16 bits contain the highest sequence number received in an
	// RTP data packet from source SSRC, and the most significant 16
	// bits extend that sequence number with the corresponding count of
	// sequence number cycles.
	LastSequenceNumber uint32
	// An estimate of the statistical variance of the RTP data packet
	// interarrival time, measured in timestamp units.
	Jitter uint32
	// The middle 32 bits out of 64 in the NTP timestamp received as part
	// of the most recent RTCP sender report (SR) packet from source SSRC.
	LastSenderReport uint32
	// The delay, expressed in units of 1/65536 seconds, between receiving
	// the last SR packet from source SSRC and sending this reception
	// report block.
	Delay uint32
}

// Marshal encodes the reception report in binary.
func (r ReceptionReport) Marshal() ([]byte, error) {
	rawPacket := make([]byte, receptionReportLength)

	binary.BigEndian.PutUint32(rawPacket, r.SSRC)

	rawPacket[4] = r.FractionLost

	// pack TotalLost into 24 bits
	if r.TotalLost >= (1 << 24) {
		return nil, errInvalidHeader
	}
	rawPacket[5] = byte(r.TotalLost >> 16)
	rawPacket[6] = byte(r.TotalLost >> 8)
	rawPacket[7] = byte(r.TotalLost)

	binary.BigEndian.PutUint32(rawPacket[8:], r.LastSequenceNumber)
	binary.BigEndian.PutUint32(rawPacket[12:], r.Jitter)
	binary.BigEndian.PutUint32(rawPacket[16:], r.LastSenderReport)
	binary.BigEndian.PutUint32(rawPacket[20:], r.Delay)

	return rawPacket, nil
}

// Unmarshal decodes the reception report from binary.
func (r *ReceptionReport) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < receptionReportLength {
		return errPacketTooShort
	}

	r.SSRC = binary.BigEndian.Uint32(rawPacket)
	r.FractionLost = rawPacket[4]

	r.TotalLost = uint32(rawPacket[7]) | uint32(rawPacket[6])<<8 | uint32(rawPacket[5])<<16

	r.LastSequenceNumber = binary.BigEndian.Uint32(rawPacket[8:])
	r.Jitter = binary.BigEndian.Uint32(rawPacket[12:])
	r.LastSenderReport = binary.BigEndian.Uint32(rawPacket[16:])
	r.Delay = binary.BigEndian.Uint32(rawPacket[20:])

	return nil
}
