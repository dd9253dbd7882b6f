// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package stun implements the STUN protocol (RFC 5389) with the attributes
// needed by ICE and TURN.
package stun

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// magicCookie is the fixed value from RFC 5389 §6.
	magicCookie = 0x2112A442
	// TransactionIDSize is the length of a transaction ID in bytes.
	TransactionIDSize = 12

	messageHeaderSize = 20
	attributeHeaderSize = 4
)

var (
	// ErrUnexpectedHeaderEOF means the buffer is shorter than the STUN header.
	ErrUnexpectedHeaderEOF = errors.New("stun: unexpected EOF: not enough bytes to read header")
	// ErrInvalidMagicCookie means the magic cookie field is wrong.
	ErrInvalidMagicCookie = errors.New("stun: magic cookie invalid")
	// ErrAttributeNotFound means the requested attribute is not in the message.
	ErrAttributeNotFound = errors.New("stun: attribute not found")
	// ErrAttributeSizeInvalid means the attribute value has an unexpected length.
	ErrAttributeSizeInvalid = errors.New("stun: attribute size invalid")
	// ErrBadUnmarshal means the attribute section is malformed.
	ErrBadUnmarshal = errors.New("stun: attribute section malformed")
)

// MessageClass is the semantics of a STUN message: request, indication,
// success response or error response.
type MessageClass byte

// Possible values of MessageClass.
const (
	ClassRequest         MessageClass = 0x00
	ClassIndication      MessageClass = 0x01
	ClassSuccessResponse MessageClass = 0x02
	ClassErrorResponse   MessageClass = 0x03
)

func (c MessageClass) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassIndication:
		return "indication"
	case ClassSuccessResponse:
		return "success response"
	case ClassErrorResponse:
		return "error response"
	default:
		return "unknown class"
	}
}

// Method is a STUN method.
type Method uint16

// Methods from RFC 5389 and RFC 5766.
const (
	MethodBinding          Method = 0x001
	MethodAllocate         Method = 0x003
	MethodRefresh          Method = 0x004
	MethodSend             Method = 0x006
	MethodData             Method = 0x007
	MethodCreatePermission Method = 0x008
	MethodChannelBind      Method = 0x009
)

func (m Method) String() string {
	switch m {
	case MethodBinding:
		return "Binding"
	case MethodAllocate:
		return "Allocate"
	case MethodRefresh:
		return "Refresh"
	case MethodSend:
		return "Send"
	case MethodData:
		return "Data"
	case MethodCreatePermission:
		return "CreatePermission"
	case MethodChannelBind:
		return "ChannelBind"
	default:
		return fmt.Sprintf("0x%x", uint16(m))
	}
}

// MessageType is a combination of a method and a class.
type MessageType struct {
	Method Method
	Class  MessageClass
}

// Common message types.
var (
	BindingRequest         = MessageType{Method: MethodBinding, Class: ClassRequest}
	BindingSuccess         = MessageType{Method: MethodBinding, Class: ClassSuccessResponse}
	BindingError           = MessageType{Method: MethodBinding, Class: ClassErrorResponse}
	BindingIndication      = MessageType{Method: MethodBinding, Class: ClassIndication}
)

const (
	methodABits = 0xf   // 0b0000000000001111
	methodBBits = 0x70  // 0b0000000001110000
	methodDBits = 0xf80 // 0b0000111110000000

	methodBShift = 1
	methodDShift = 2

	firstBit  = 0x1
	secondBit = 0x2

	c0Bit = firstBit
	c1Bit = secondBit

	classC0Shift = 4
	classC1Shift = 7
)

// Value encodes the message type as the 14-bit type field.
func (t MessageType) Value() uint16 {
	m := uint16(t.Method)
	a := m & methodABits
	b := m & methodBBits
	d := m & methodDBits

	m = a + (b << methodBShift) + (d << methodDShift)

	c := uint16(t.Class)
	c0 := (c & c0Bit) << classC0Shift
	c1 := (c & c1Bit) << classC1Shift

	return m + c0 + c1
}

// ReadValue decodes the 14-bit type field.
func (t *MessageType) ReadValue(value uint16) {
	c0 := (value >> classC0Shift) & c0Bit
	c1 := (value >> classC1Shift) & c1Bit
	t.Class = MessageClass(c0 + c1)

	a := value & methodABits
	b := (value >> methodBShift) & methodBBits
	d := (value >> methodDShift) & methodDBits
	t.Method = Method(a + b + d)
}

func (t MessageType) String() string {
	return fmt.Sprintf("%s %s", t.Method, t.Class)
}

// Message represents a single STUN packet. It uses an append-only encoding
// model: setters append attributes to Raw and getters decode from the parsed
// attribute list.
type Message struct {
	Type          MessageType
	Length        uint32 // len(Raw) not including header
	TransactionID [TransactionIDSize]byte
	Attributes    Attributes
	Raw           []byte
}

// New returns a new Message with an allocated header buffer.
func New() *Message {
	const defaultRawCapacity = 120
	return &Message{
		Raw: make([]byte, messageHeaderSize, defaultRawCapacity),
	}
}

// NewTransactionID returns new random transaction ID using crypto/rand.
func NewTransactionID() (b [TransactionIDSize]byte) {
	_, _ = io.ReadFull(rand.Reader, b[:])
	return b
}

// Setter sets a Message attribute.
type Setter interface {
	AddTo(m *Message) error
}

// Getter parses an attribute from a Message.
type Getter interface {
	GetFrom(m *Message) error
}

// Checker checks a Message attribute.
type Checker interface {
	Check(m *Message) error
}

// Build resets the message and applies the setters in order.
func (m *Message) Build(setters ...Setter) error {
	m.Reset()
	m.WriteHeader()
	for _, s := range setters {
		if err := s.AddTo(m); err != nil {
			return err
		}
	}
	return nil
}

// Build is a shorthand that constructs a new message from setters.
func Build(setters ...Setter) (*Message, error) {
	m := New()
	return m, m.Build(setters...)
}

// Check applies the checkers in order, returning the first error.
func (m *Message) Check(checkers ...Checker) error {
	for _, c := range checkers {
		if err := c.Check(m); err != nil {
			return err
		}
	}
	return nil
}

// Parse applies the getters in order, returning the first error.
func (m *Message) Parse(getters ...Getter) error {
	for _, g := range getters {
		if err := g.GetFrom(m); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the message for reuse, keeping the transaction ID and type.
func (m *Message) Reset() {
	m.Raw = m.Raw[:0]
	m.Length = 0
	m.Attributes = m.Attributes[:0]
}

// grow ensures len(m.Raw) >= n.
func (m *Message) grow(n int) {
	if len(m.Raw) >= n {
		return
	}
	if cap(m.Raw) >= n {
		m.Raw = m.Raw[:n]
		return
	}
	m.Raw = append(m.Raw, make([]byte, n-len(m.Raw))...)
}

// Add appends a new attribute to the message and updates the length field.
func (m *Message) Add(t AttrType, v []byte) {
	// allocate the attribute header + value padded to a 4-byte boundary
	padded := nearestPaddedValueLength(len(v))
	allocSize := attributeHeaderSize + padded
	first := messageHeaderSize + int(m.Length)
	last := first + allocSize
	m.grow(last)
	m.Raw = m.Raw[:last]
	m.Length += uint32(allocSize)

	buf := m.Raw[first:last]
	binary.BigEndian.PutUint16(buf[0:2], t.Value())
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(v)))
	copy(buf[attributeHeaderSize:], v)
	for i := attributeHeaderSize + len(v); i < len(buf); i++ {
		buf[i] = 0
	}

	m.Attributes = append(m.Attributes, RawAttribute{
		Type:   t,
		Length: uint16(len(v)),
		Value:  buf[attributeHeaderSize : attributeHeaderSize+len(v)],
	})
	m.WriteLength()
}

func nearestPaddedValueLength(l int) int {
	n := 4 * (l / 4)
	if n < l {
		n += 4
	}
	return n
}

// WriteHeader writes the header fields into Raw.
func (m *Message) WriteHeader() {
	m.grow(messageHeaderSize)
	buf := m.Raw

	binary.BigEndian.PutUint16(buf[0:2], m.Type.Value())
	binary.BigEndian.PutUint16(buf[2:4], uint16(m.Length))
	binary.BigEndian.PutUint32(buf[4:8], magicCookie)
	copy(buf[8:messageHeaderSize], m.TransactionID[:])
}

// WriteLength rewrites only the length field.
func (m *Message) WriteLength() {
	m.grow(4)
	binary.BigEndian.PutUint16(m.Raw[2:4], uint16(m.Length))
}

// SetType sets the message type and rewrites the header.
func (m *Message) SetType(t MessageType) {
	m.Type = t
	m.WriteHeader()
}

// AddTo sets the message type on m, so that a MessageType can be passed
// directly as a Setter (e.g. to Build).
func (t MessageType) AddTo(m *Message) error {
	m.SetType(t)
	return nil
}

// TransactionIDSetter sets the transaction ID explicitly.
type TransactionIDSetter [TransactionIDSize]byte

// AddTo implements Setter.
func (t TransactionIDSetter) AddTo(m *Message) error {
	m.TransactionID = t
	m.WriteHeader()
	return nil
}

// transactionIDValueSetter is a Setter that generates a random transaction ID.
type transactionIDValueSetter struct{}

// TransactionID is a Setter that generates a random transaction ID.
var TransactionID Setter = transactionIDValueSetter{} //nolint:gochecknoglobals

func (transactionIDValueSetter) AddTo(m *Message) error {
	m.TransactionID = NewTransactionID()
	m.WriteHeader()
	return nil
}

// Write decodes the byte slice into the message, replacing all fields.
func (m *Message) Write(tBuf []byte) (int, error) {
	m.Raw = append(m.Raw[:0], tBuf...)
	return len(tBuf), m.Decode()
}

// Decode parses m.Raw into the message fields.
func (m *Message) Decode() error {
	buf := m.Raw
	if len(buf) < messageHeaderSize {
		return ErrUnexpectedHeaderEOF
	}

	t := binary.BigEndian.Uint16(buf[0:2])
	size := int(binary.BigEndian.Uint16(buf[2:4]))
	cookie := binary.BigEndian.Uint32(buf[4:8])
	fullSize := messageHeaderSize + size

	if cookie != magicCookie {
		return fmt.Errorf("%w: %x", ErrInvalidMagicCookie, cookie)
	}
	if len(buf) < fullSize {
		return fmt.Errorf("%w: buffer length %d < %d", ErrUnexpectedHeaderEOF, len(buf), fullSize)
	}

	m.Type.ReadValue(t)
	m.Length = uint32(size)
	copy(m.TransactionID[:], buf[8:messageHeaderSize])

	m.Attributes = m.Attributes[:0]
	offset := 0
	b := buf[messageHeaderSize:fullSize]
	for offset < size {
		if len(b) < attributeHeaderSize {
			return fmt.Errorf("%w: buffer length %d < %d", ErrBadUnmarshal, len(b), attributeHeaderSize)
		}

		a := RawAttribute{
			Type:   compatAttrType(binary.BigEndian.Uint16(b[0:2])),
			Length: binary.BigEndian.Uint16(b[2:4]),
		}
		aL := int(a.Length)
		aBuffL := nearestPaddedValueLength(aL)
		b = b[attributeHeaderSize:]
		offset += attributeHeaderSize

		if len(b) < aBuffL {
			return fmt.Errorf("%w: buffer length %d < %d", ErrBadUnmarshal, len(b), aBuffL)
		}
		a.Value = b[:aL]
		offset += aBuffL
		b = b[aBuffL:]

		m.Attributes = append(m.Attributes, a)
	}

	return nil
}

// Decode parses data as a STUN message.
func Decode(data []byte, m *Message) error {
	_, err := m.Write(data)
	return err
}

// IsMessage returns true if b looks like a STUN message: correct first two
// bits and the magic cookie in place.
func IsMessage(b []byte) bool {
	return len(b) >= messageHeaderSize &&
		b[0]&0xC0 == 0x00 &&
		binary.BigEndian.Uint32(b[4:8]) == magicCookie
}

// CloneTo copies the message into b.
func (m *Message) CloneTo(b *Message) error {
	b.Raw = append(b.Raw[:0], m.Raw...)
	return b.Decode()
}

// Contains reports whether the message has an attribute of type t.
func (m *Message) Contains(t AttrType) bool {
	for _, a := range m.Attributes {
		if a.Type == t {
			return true
		}
	}
	return false
}

func (m *Message) String() string {
	return fmt.Sprintf("%s l=%d attrs=%d id=%x", m.Type, m.Length, len(m.Attributes), m.TransactionID)
}
