// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package sdp implements the Session Description Protocol (RFC 4566) with
// the attribute semantics used by WebRTC offer/answer (RFC 8829).
package sdp

import (
	"fmt"
	"strconv"
)

// SessionDescription is a parsed SDP message: session-level fields followed
// by zero or more media descriptions.
type SessionDescription struct {
	// v=0
	Version Version

	// o=<username> <sess-id> <sess-version> <nettype> <addrtype> <unicast-address>
	Origin Origin

	// s=<session name>
	SessionName SessionName

	// i=<session description>
	SessionInformation *Information

	// c=<nettype> <addrtype> <connection-address>
	ConnectionInformation *ConnectionInformation

	// t=<start-time> <stop-time>
	TimeDescriptions []TimeDescription

	// a=<attribute>
	// a=<attribute>:<value>
	Attributes []Attribute

	// m=<media> <port>/<number of ports> <proto> <fmt> ...
	MediaDescriptions []*MediaDescription
}

// Version describes the value provided by the "v=" field.
type Version int

// Origin defines the "o=" field which provides the originator of the session
// plus a session identifier and version number.
type Origin struct {
	Username       string
	SessionID      uint64
	SessionVersion uint64
	NetworkType    string
	AddressType    string
	UnicastAddress string
}

func (o Origin) String() string {
	return fmt.Sprintf("%v %d %d %v %v %v",
		o.Username, o.SessionID, o.SessionVersion, o.NetworkType, o.AddressType, o.UnicastAddress)
}

// SessionName describes the "s=" field.
type SessionName string

// Information describes the "i=" field.
type Information string

// ConnectionInformation defines the representation for the "c=" field.
type ConnectionInformation struct {
	NetworkType string
	AddressType string
	Address     *Address
}

func (c ConnectionInformation) String() string {
	if c.Address != nil {
		return fmt.Sprintf("%v %v %v", c.NetworkType, c.AddressType, c.Address.String())
	}
	return fmt.Sprintf("%v %v", c.NetworkType, c.AddressType)
}

// Address describes a structured connection address.
type Address struct {
	Address string
	TTL     *int
	Range   *int
}

func (c Address) String() string {
	address := c.Address
	if c.TTL != nil {
		address += "/" + strconv.Itoa(*c.TTL)
	}
	if c.Range != nil {
		address += "/" + strconv.Itoa(*c.Range)
	}
	return address
}

// TimeDescription describes "t=" and its repeat lines.
type TimeDescription struct {
	Timing Timing
}

// Timing defines the "t=" field's start and stop times.
type Timing struct {
	StartTime uint64
	StopTime  uint64
}

func (t Timing) String() string {
	return fmt.Sprintf("%d %d", t.StartTime, t.StopTime)
}

// Attribute describes the "a=" field, either a property (flag) attribute or
// a key:value attribute.
type Attribute struct {
	Key   string
	Value string
}

// NewPropertyAttribute constructs a new attribute with no value.
func NewPropertyAttribute(key string) Attribute {
	return Attribute{Key: key}
}

// NewAttribute constructs a new key/value attribute.
func NewAttribute(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func (a Attribute) String() string {
	if a.Value != "" {
		return a.Key + ":" + a.Value
	}
	return a.Key
}

// MediaDescription represents one m= section and its lines.
type MediaDescription struct {
	// m=<media> <port>/<number of ports> <proto> <fmt> ...
	MediaName MediaName

	// i=<session description>
	MediaTitle *Information

	// c=<nettype> <addrtype> <connection-address>
	ConnectionInformation *ConnectionInformation

	// a=<attribute>
	// a=<attribute>:<value>
	Attributes []Attribute
}

// MediaName describes the "m=" field.
type MediaName struct {
	Media   string
	Port    RangedPort
	Protos  []string
	Formats []string
}

// RangedPort supports the <port>/<number of ports> form of the media field
// port value.
type RangedPort struct {
	Value int
	Range *int
}

func (p RangedPort) String() string {
	output := strconv.Itoa(p.Value)
	if p.Range != nil {
		output += "/" + strconv.Itoa(*p.Range)
	}
	return output
}

// Attribute returns the value of the first attribute with the given key and
// whether it was found.
func (s *SessionDescription) Attribute(key string) (string, bool) {
	for _, a := range s.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// HasAttribute reports whether a session-level attribute exists.
func (s *SessionDescription) HasAttribute(key string) bool {
	_, ok := s.Attribute(key)
	return ok
}

// Attribute returns the value of the first attribute with the given key and
// whether it was found.
func (d *MediaDescription) Attribute(key string) (string, bool) {
	for _, a := range d.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// AttributeValues collects the values of every attribute with the given key.
func (d *MediaDescription) AttributeValues(key string) []string {
	var out []string
	for _, a := range d.Attributes {
		if a.Key == key {
			out = append(out, a.Value)
		}
	}
	return out
}

// HasAttribute reports whether an attribute with the given key exists.
func (d *MediaDescription) HasAttribute(key string) bool {
	_, ok := d.Attribute(key)
	return ok
}

// WithValueAttribute appends a key:value attribute and returns the media
// description for chaining.
func (d *MediaDescription) WithValueAttribute(key, value string) *MediaDescription {
	d.Attributes = append(d.Attributes, NewAttribute(key, value))
	return d
}

// WithPropertyAttribute appends a flag attribute.
func (d *MediaDescription) WithPropertyAttribute(key string) *MediaDescription {
	d.Attributes = append(d.Attributes, NewPropertyAttribute(key))
	return d
}

// WithCodec appends the rtpmap (and fmtp when params are present) lines for
// a codec and registers the payload type in the m= line.
func (d *MediaDescription) WithCodec(payloadType uint8, name string, clockrate uint32, channels uint16, fmtp string) *MediaDescription {
	rtpmap := fmt.Sprintf("%d %s/%d", payloadType, name, clockrate)
	if channels > 0 {
		rtpmap += fmt.Sprintf("/%d", channels)
	}
	d.WithValueAttribute("rtpmap", rtpmap)
	if fmtp != "" {
		d.WithValueAttribute("fmtp", fmt.Sprintf("%d %s", payloadType, fmtp))
	}
	d.MediaName.Formats = append(d.MediaName.Formats, strconv.Itoa(int(payloadType)))
	return d
}
