// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

// A CompoundPacket is a collection of RTCP packets transmitted as a single
// packet with the underlying protocol (for example UDP).
//
// To maximize the resolution of reception statistics, the first RTCP packet
// in a compound packet must always be a report packet (SR or RR), and an
// SDES packet containing a CNAME item must be included in each compound
// packet, RFC 3550 §6.1.
type CompoundPacket []Packet

// Validate returns an error if this is not an RFC-compliant CompoundPacket.
func (c CompoundPacket) Validate() error {
	if len(c) == 0 {
		return errEmptyCompound
	}

	// SenderReport and ReceiverReport are the only types that may start a compound packet
	switch c[0].(type) {
	case *SenderReport, *ReceiverReport:
	default:
		return errBadFirstPacket
	}

	for _, pkt := range c[1:] {
		switch p := pkt.(type) {
		// If the number of RecetpionReports exceeds 31 additional ReceiverReports can be included here.
		case *ReceiverReport:
			continue
		// A SourceDescription containing a CNAME must be included in every CompoundPacket.
		case *SourceDescription:
			var hasCNAME bool
			for _, chunk := range p.Chunks {
				for _, it := range chunk.Items {
					if it.Type == SDESCNAME {
						hasCNAME = true
					}
				}
			}
			if !hasCNAME {
				return errMissingCNAME
			}
			return nil
		// Other packets are not permitted before the CNAME
		default:
			return errPacketBeforeCNAME
		}
	}

	// CNAME never reached
	return errMissingCNAME
}

// CNAME returns the CNAME that *must* be present in every CompoundPacket.
func (c CompoundPacket) CNAME() (string, error) {
	if len(c) < 1 {
		return "", errEmptyCompound
	}

	for _, pkt := range c[1:] {
		sdes, ok := pkt.(*SourceDescription)
		if !ok {
			continue
		}
		for _, chunk := range sdes.Chunks {
			for _, it := range chunk.Items {
				if it.Type == SDESCNAME {
					return it.Text, nil
				}
			}
		}
	}

	return "", errMissingCNAME
}

// Marshal encodes the CompoundPacket as its individual packets concatenated.
func (c CompoundPacket) Marshal() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return Marshal(c)
}

// Unmarshal decodes a CompoundPacket from binary.
func (c *CompoundPacket) Unmarshal(rawData []byte) error {
	out, err := Unmarshal(rawData)
	if err != nil {
		return err
	}
	*c = out
	return c.Validate()
}

// DestinationSSRC returns the SSRCs of the first (report) packet only.
func (c CompoundPacket) DestinationSSRC() []uint32 {
	if len(c) == 0 {
		return nil
	}
	return c[0].DestinationSSRC()
}
