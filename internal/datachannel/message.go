// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package datachannel implements the WebRTC Data Channel Establishment
// Protocol (RFC 8832) over SCTP streams.
package datachannel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type messageType byte

const (
	dataChannelAck  messageType = 0x02
	dataChannelOpen messageType = 0x03
)

// ChannelType determines ordering and reliability of a data channel.
type ChannelType byte

// ChannelType enums, RFC 8832 §5.1.
const (
	ChannelTypeReliable                          ChannelType = 0x00
	ChannelTypeReliableUnordered                 ChannelType = 0x80
	ChannelTypePartialReliableRexmit             ChannelType = 0x01
	ChannelTypePartialReliableRexmitUnordered    ChannelType = 0x81
	ChannelTypePartialReliableTimed              ChannelType = 0x02
	ChannelTypePartialReliableTimedUnordered     ChannelType = 0x82
)

var (
	errDataChannelMessageTooShort = errors.New("datachannel: message too short")
	errInvalidMessageType         = errors.New("datachannel: invalid message type")
	errUnexpectedDataChannelType  = errors.New("datachannel: unexpected message type")
)

// message is a parsed DCEP message.
type message interface {
	Marshal() ([]byte, error)
	Unmarshal(raw []byte) error
}

// parse decodes a raw DCEP message.
func parse(raw []byte) (message, error) {
	if len(raw) == 0 {
		return nil, errDataChannelMessageTooShort
	}

	var msg message
	switch messageType(raw[0]) {
	case dataChannelOpen:
		msg = &channelOpen{}
	case dataChannelAck:
		msg = &channelAck{}
	default:
		return nil, fmt.Errorf("%w: %d", errInvalidMessageType, raw[0])
	}

	if err := msg.Unmarshal(raw); err != nil {
		return nil, err
	}
	return msg, nil
}

const channelOpenHeaderLength = 12

// channelOpen is the DATA_CHANNEL_OPEN message.
type channelOpen struct {
	ChannelType          ChannelType
	Priority             uint16
	ReliabilityParameter uint32

	Label    []byte
	Protocol []byte
}

// Marshal encodes the message in binary.
func (c *channelOpen) Marshal() ([]byte, error) {
	raw := make([]byte, channelOpenHeaderLength+len(c.Label)+len(c.Protocol))
	raw[0] = byte(dataChannelOpen)
	raw[1] = byte(c.ChannelType)
	binary.BigEndian.PutUint16(raw[2:], c.Priority)
	binary.BigEndian.PutUint32(raw[4:], c.ReliabilityParameter)
	binary.BigEndian.PutUint16(raw[8:], uint16(len(c.Label)))
	binary.BigEndian.PutUint16(raw[10:], uint16(len(c.Protocol)))
	copy(raw[channelOpenHeaderLength:], c.Label)
	copy(raw[channelOpenHeaderLength+len(c.Label):], c.Protocol)
	return raw, nil
}

// Unmarshal decodes the message from binary.
func (c *channelOpen) Unmarshal(raw []byte) error {
	if len(raw) < channelOpenHeaderLength {
		return errDataChannelMessageTooShort
	}
	c.ChannelType = ChannelType(raw[1])
	c.Priority = binary.BigEndian.Uint16(raw[2:])
	c.ReliabilityParameter = binary.BigEndian.Uint32(raw[4:])

	labelLength := int(binary.BigEndian.Uint16(raw[8:]))
	protocolLength := int(binary.BigEndian.Uint16(raw[10:]))
	if len(raw) != channelOpenHeaderLength+labelLength+protocolLength {
		return errDataChannelMessageTooShort
	}

	c.Label = append([]byte(nil), raw[channelOpenHeaderLength:channelOpenHeaderLength+labelLength]...)
	c.Protocol = append([]byte(nil), raw[channelOpenHeaderLength+labelLength:]...)
	return nil
}

// channelAck is the DATA_CHANNEL_ACK message.
type channelAck struct{}

// Marshal encodes the message in binary.
func (c *channelAck) Marshal() ([]byte, error) {
	return []byte{byte(dataChannelAck), 0, 0, 0}, nil
}

// Unmarshal decodes the message from binary.
func (c *channelAck) Unmarshal([]byte) error {
	return nil
}
