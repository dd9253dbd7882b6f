// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package ice

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// CandidateType represents the type of candidate.
type CandidateType byte

// CandidateType enum, RFC 8445 §5.1.1.
const (
	CandidateTypeUnspecified CandidateType = iota
	CandidateTypeHost
	CandidateTypeServerReflexive
	CandidateTypePeerReflexive
	CandidateTypeRelay
)

func (c CandidateType) String() string {
	switch c {
	case CandidateTypeHost:
		return "host"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeRelay:
		return "relay"
	default:
		return "Unknown candidate type"
	}
}

// Preference returns the type preference of RFC 8445 §5.1.2.2.
func (c CandidateType) Preference() uint16 {
	switch c {
	case CandidateTypeHost:
		return 126
	case CandidateTypePeerReflexive:
		return 110
	case CandidateTypeServerReflexive:
		return 100
	case CandidateTypeRelay:
		return 0
	default:
		return 0
	}
}

// Component identifiers; RTP is 1, RTCP is 2. With rtcp-mux everything
// rides component 1.
const (
	ComponentRTP  uint16 = 1
	ComponentRTCP uint16 = 2
)

var errParseCandidate = errors.New("ice: cannot parse candidate attribute")

// Candidate is one reachable transport address, immutable once created.
type Candidate struct {
	Foundation string
	Component  uint16
	Protocol   ProtoType
	Priority   uint32
	Address    string
	Port       int
	Type       CandidateType

	RelatedAddress string
	RelatedPort    int
}

// NewCandidate assembles a candidate, computing its foundation and priority
// when unset.
func NewCandidate(typ CandidateType, component uint16, address string, port int, proto ProtoType) *Candidate {
	c := &Candidate{
		Component: component,
		Protocol:  proto,
		Address:   address,
		Port:      port,
		Type:      typ,
	}
	c.Foundation = computeFoundation(typ, address, proto)
	c.Priority = computePriority(typ.Preference(), component)
	return c
}

// computeFoundation groups candidates that share type, base address and
// protocol (RFC 8445 §5.1.1.3).
func computeFoundation(typ CandidateType, baseAddress string, proto ProtoType) string {
	sum := sha256.Sum256([]byte(typ.String() + baseAddress + proto.String()))
	return strconv.FormatUint(uint64(binary.BigEndian.Uint32(sum[:4]))&0x7fffffff, 10)
}

// computePriority follows RFC 8445 §5.1.2.1:
// (2^24 · type pref) + (2^8 · local pref) + (2^0 · (256 - component)).
func computePriority(typePreference uint16, component uint16) uint32 {
	const localPreference = 65535
	return (1<<24)*uint32(typePreference) +
		(1<<8)*uint32(localPreference) +
		uint32(256-component)
}

func (c *Candidate) addr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(c.Address), Port: c.Port}
}

// String is an overridden representation of the Candidate for debugging.
func (c *Candidate) String() string {
	return fmt.Sprintf("%s %s:%d%s", c.Type, c.Address, c.Port, func() string {
		if c.RelatedAddress != "" {
			return fmt.Sprintf(" related %s:%d", c.RelatedAddress, c.RelatedPort)
		}
		return ""
	}())
}

// Marshal encodes the candidate as an a=candidate attribute value.
func (c *Candidate) Marshal() string {
	val := fmt.Sprintf("%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, c.Protocol, c.Priority, c.Address, c.Port, c.Type)
	if c.RelatedAddress != "" {
		val += fmt.Sprintf(" raddr %s rport %d", c.RelatedAddress, c.RelatedPort)
	}
	return val
}

// UnmarshalCandidate parses an a=candidate attribute value, with or without
// the "candidate:" prefix.
func UnmarshalCandidate(raw string) (*Candidate, error) { //nolint:gocognit
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "candidate:")
	fields := strings.Fields(raw)
	if len(fields) < 8 {
		return nil, fmt.Errorf("%w: %q", errParseCandidate, raw)
	}

	component, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: component %q", errParseCandidate, fields[1])
	}
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: priority %q", errParseCandidate, fields[3])
	}
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return nil, fmt.Errorf("%w: port %q", errParseCandidate, fields[5])
	}

	proto := ProtoTypeUDP
	if strings.EqualFold(fields[2], "tcp") {
		proto = ProtoTypeTCP
	}

	if fields[6] != "typ" {
		return nil, fmt.Errorf("%w: missing typ", errParseCandidate)
	}
	var typ CandidateType
	switch fields[7] {
	case "host":
		typ = CandidateTypeHost
	case "srflx":
		typ = CandidateTypeServerReflexive
	case "prflx":
		typ = CandidateTypePeerReflexive
	case "relay":
		typ = CandidateTypeRelay
	default:
		return nil, fmt.Errorf("%w: typ %q", errParseCandidate, fields[7])
	}

	c := &Candidate{
		Foundation: fields[0],
		Component:  uint16(component),
		Protocol:   proto,
		Priority:   uint32(priority),
		Address:    fields[4],
		Port:       port,
		Type:       typ,
	}

	for i := 8; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "raddr":
			c.RelatedAddress = fields[i+1]
		case "rport":
			if c.RelatedPort, err = strconv.Atoi(fields[i+1]); err != nil {
				return nil, fmt.Errorf("%w: rport %q", errParseCandidate, fields[i+1])
			}
		}
	}

	return c, nil
}
