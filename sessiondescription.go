// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"encoding/json"
	"fmt"
)

// SDPType describes the type of an SessionDescription.
type SDPType int

// SDPType enums.
const (
	SDPTypeUnknown SDPType = iota
	// SDPTypeOffer indicates that a description MUST be treated as an SDP
	// offer.
	SDPTypeOffer
	// SDPTypePranswer indicates that a description MUST be treated as an
	// SDP answer, but not a final answer.
	SDPTypePranswer
	// SDPTypeAnswer indicates that a description MUST be treated as an SDP
	// final answer, and the offer-answer exchange MUST be considered
	// complete.
	SDPTypeAnswer
	// SDPTypeRollback indicates canceling the current negotiation and
	// rolling back to the stable state.
	SDPTypeRollback
)

// NewSDPType defines a procedure for creating a new SDPType from a raw string.
func NewSDPType(raw string) SDPType {
	switch raw {
	case "offer":
		return SDPTypeOffer
	case "pranswer":
		return SDPTypePranswer
	case "answer":
		return SDPTypeAnswer
	case "rollback":
		return SDPTypeRollback
	default:
		return SDPTypeUnknown
	}
}

func (t SDPType) String() string {
	switch t {
	case SDPTypeOffer:
		return "offer"
	case SDPTypePranswer:
		return "pranswer"
	case SDPTypeAnswer:
		return "answer"
	case SDPTypeRollback:
		return "rollback"
	default:
		return ErrUnknownType.Error()
	}
}

// MarshalJSON enables JSON serialization of a SDPType.
func (t SDPType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON enables JSON deserialization of a SDPType.
func (t *SDPType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if *t = NewSDPType(s); *t == SDPTypeUnknown {
		return fmt.Errorf("%w: %s", ErrUnknownType, s)
	}
	return nil
}

// SessionDescription is used to expose local and remote session descriptions.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}
