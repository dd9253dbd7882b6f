// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"github.com/sjhorn/webrtc/internal/ice"
)

// ICECandidate represents a ice candidate.
type ICECandidate struct {
	Foundation     string `json:"foundation"`
	Priority       uint32 `json:"priority"`
	Address        string `json:"address"`
	Protocol       string `json:"protocol"`
	Port           uint16 `json:"port"`
	Typ            string `json:"type"`
	Component      uint16 `json:"component"`
	RelatedAddress string `json:"relatedAddress"`
	RelatedPort    uint16 `json:"relatedPort"`
}

// ICECandidateInit is used to serialize ice candidates for signaling.
type ICECandidateInit struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func newICECandidateFromICE(c *ice.Candidate) ICECandidate {
	return ICECandidate{
		Foundation:     c.Foundation,
		Priority:       c.Priority,
		Address:        c.Address,
		Protocol:       c.Protocol.String(),
		Port:           uint16(c.Port),
		Typ:            c.Type.String(),
		Component:      c.Component,
		RelatedAddress: c.RelatedAddress,
		RelatedPort:    uint16(c.RelatedPort),
	}
}

// ToJSON returns an ICECandidateInit as indicated by the spec.
func (c ICECandidate) ToJSON() ICECandidateInit {
	zeroVal := uint16(0)
	emptyStr := ""
	iceCandidate, _ := c.toICE()
	marshaled := ""
	if iceCandidate != nil {
		marshaled = "candidate:" + iceCandidate.Marshal()
	}

	return ICECandidateInit{
		Candidate:        marshaled,
		SDPMid:           &emptyStr,
		SDPMLineIndex:    &zeroVal,
		UsernameFragment: nil,
	}
}

func (c ICECandidate) toICE() (*ice.Candidate, error) {
	var typ ice.CandidateType
	switch c.Typ {
	case "host":
		typ = ice.CandidateTypeHost
	case "srflx":
		typ = ice.CandidateTypeServerReflexive
	case "prflx":
		typ = ice.CandidateTypePeerReflexive
	case "relay":
		typ = ice.CandidateTypeRelay
	default:
		return nil, ErrUnknownType
	}

	proto := ice.ProtoTypeUDP
	if c.Protocol == "tcp" {
		proto = ice.ProtoTypeTCP
	}

	out := &ice.Candidate{
		Foundation:     c.Foundation,
		Component:      c.Component,
		Protocol:       proto,
		Priority:       c.Priority,
		Address:        c.Address,
		Port:           int(c.Port),
		Type:           typ,
		RelatedAddress: c.RelatedAddress,
		RelatedPort:    int(c.RelatedPort),
	}
	return out, nil
}
