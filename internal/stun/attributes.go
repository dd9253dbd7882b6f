// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stun

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// AttrType is the attribute type.
type AttrType uint16

// Attributes from RFC 5389, RFC 5766 and the ICE extensions.
const (
	AttrMappedAddress     AttrType = 0x0001
	AttrUsername          AttrType = 0x0006
	AttrMessageIntegrity  AttrType = 0x0008
	AttrErrorCode         AttrType = 0x0009
	AttrUnknownAttributes AttrType = 0x000A
	AttrChannelNumber     AttrType = 0x000C
	AttrLifetime          AttrType = 0x000D
	AttrXORPeerAddress    AttrType = 0x0012
	AttrData              AttrType = 0x0013
	AttrRealm             AttrType = 0x0014
	AttrNonce             AttrType = 0x0015
	AttrXORRelayedAddress AttrType = 0x0016
	AttrRequestedAddressFamily AttrType = 0x0017
	AttrEvenPort          AttrType = 0x0018
	AttrRequestedTransport AttrType = 0x0019
	AttrDontFragment      AttrType = 0x001A
	AttrXORMappedAddress  AttrType = 0x0020
	AttrReservationToken  AttrType = 0x0022
	AttrPriority          AttrType = 0x0024
	AttrUseCandidate      AttrType = 0x0025
	AttrSoftware          AttrType = 0x8022
	AttrAlternateServer   AttrType = 0x8023
	AttrFingerprint       AttrType = 0x8028
	AttrICEControlled     AttrType = 0x8029
	AttrICEControlling    AttrType = 0x802A
)

// Value returns the uint16 representation of the attribute type.
func (t AttrType) Value() uint16 {
	return uint16(t)
}

// Required returns true if the attribute is comprehension-required (0x0000-0x7FFF).
func (t AttrType) Required() bool {
	return t <= 0x7FFF
}

func compatAttrType(v uint16) AttrType {
	return AttrType(v)
}

func (t AttrType) String() string {
	switch t {
	case AttrMappedAddress:
		return "MAPPED-ADDRESS"
	case AttrUsername:
		return "USERNAME"
	case AttrMessageIntegrity:
		return "MESSAGE-INTEGRITY"
	case AttrErrorCode:
		return "ERROR-CODE"
	case AttrChannelNumber:
		return "CHANNEL-NUMBER"
	case AttrLifetime:
		return "LIFETIME"
	case AttrXORPeerAddress:
		return "XOR-PEER-ADDRESS"
	case AttrData:
		return "DATA"
	case AttrRealm:
		return "REALM"
	case AttrNonce:
		return "NONCE"
	case AttrXORRelayedAddress:
		return "XOR-RELAYED-ADDRESS"
	case AttrRequestedTransport:
		return "REQUESTED-TRANSPORT"
	case AttrXORMappedAddress:
		return "XOR-MAPPED-ADDRESS"
	case AttrPriority:
		return "PRIORITY"
	case AttrUseCandidate:
		return "USE-CANDIDATE"
	case AttrSoftware:
		return "SOFTWARE"
	case AttrFingerprint:
		return "FINGERPRINT"
	case AttrICEControlled:
		return "ICE-CONTROLLED"
	case AttrICEControlling:
		return "ICE-CONTROLLING"
	default:
		return fmt.Sprintf("0x%x", uint16(t))
	}
}

// RawAttribute is a parsed but unprocessed attribute.
type RawAttribute struct {
	Type   AttrType
	Length uint16 // ignored while encoding
	Value  []byte
}

// AddTo implements Setter.
func (a RawAttribute) AddTo(m *Message) error {
	m.Add(a.Type, a.Value)
	return nil
}

// Attributes is a list of attributes in parse order.
type Attributes []RawAttribute

// Get returns the first attribute of type t.
func (a Attributes) Get(t AttrType) (RawAttribute, bool) {
	for _, candidate := range a {
		if candidate.Type == t {
			return candidate, true
		}
	}
	return RawAttribute{}, false
}

// Get returns the value of the first attribute of type t, or
// ErrAttributeNotFound.
func (m *Message) Get(t AttrType) ([]byte, error) {
	v, ok := m.Attributes.Get(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAttributeNotFound, t)
	}
	return v.Value, nil
}

var errUsernameTooLong = errors.New("stun: username too long")

// TextAttribute is a helper for string-valued attributes such as USERNAME,
// REALM, NONCE and SOFTWARE.
type TextAttribute struct {
	Attr AttrType
	Text string
}

// NewUsername returns a USERNAME attribute.
func NewUsername(username string) TextAttribute {
	return TextAttribute{Attr: AttrUsername, Text: username}
}

// NewRealm returns a REALM attribute.
func NewRealm(realm string) TextAttribute {
	return TextAttribute{Attr: AttrRealm, Text: realm}
}

// NewNonce returns a NONCE attribute.
func NewNonce(nonce string) TextAttribute {
	return TextAttribute{Attr: AttrNonce, Text: nonce}
}

// NewSoftware returns a SOFTWARE attribute.
func NewSoftware(software string) TextAttribute {
	return TextAttribute{Attr: AttrSoftware, Text: software}
}

// AddTo implements Setter.
func (t TextAttribute) AddTo(m *Message) error {
	if len(t.Text) > 513 {
		return errUsernameTooLong
	}
	m.Add(t.Attr, []byte(t.Text))
	return nil
}

// GetFrom implements Getter.
func (t *TextAttribute) GetFrom(m *Message) error {
	v, err := m.Get(t.Attr)
	if err != nil {
		return err
	}
	t.Text = string(v)
	return nil
}

// GetUsername reads the USERNAME attribute.
func (m *Message) GetUsername() (string, error) {
	t := TextAttribute{Attr: AttrUsername}
	err := t.GetFrom(m)
	return t.Text, err
}

// UInt32Attribute is a helper for 32-bit attributes such as PRIORITY and
// LIFETIME.
type UInt32Attribute struct {
	Attr  AttrType
	Value uint32
}

// AddTo implements Setter.
func (a UInt32Attribute) AddTo(m *Message) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, a.Value)
	m.Add(a.Attr, v)
	return nil
}

// GetFrom implements Getter.
func (a *UInt32Attribute) GetFrom(m *Message) error {
	v, err := m.Get(a.Attr)
	if err != nil {
		return err
	}
	if len(v) != 4 {
		return ErrAttributeSizeInvalid
	}
	a.Value = binary.BigEndian.Uint32(v)
	return nil
}

// UInt64Attribute is a helper for 64-bit attributes such as the
// ICE-CONTROLLING and ICE-CONTROLLED tie-breakers.
type UInt64Attribute struct {
	Attr  AttrType
	Value uint64
}

// AddTo implements Setter.
func (a UInt64Attribute) AddTo(m *Message) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, a.Value)
	m.Add(a.Attr, v)
	return nil
}

// GetFrom implements Getter.
func (a *UInt64Attribute) GetFrom(m *Message) error {
	v, err := m.Get(a.Attr)
	if err != nil {
		return err
	}
	if len(v) != 8 {
		return ErrAttributeSizeInvalid
	}
	a.Value = binary.BigEndian.Uint64(v)
	return nil
}

// FlagAttribute is a zero-length attribute such as USE-CANDIDATE and
// DONT-FRAGMENT.
type FlagAttribute struct {
	Attr AttrType
}

// AddTo implements Setter.
func (a FlagAttribute) AddTo(m *Message) error {
	m.Add(a.Attr, nil)
	return nil
}
