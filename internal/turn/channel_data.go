// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package turn

import (
	"encoding/binary"
	"errors"
)

const channelDataHeaderSize = 4

// Channel numbers are allocated from the 0x4000-0x7FFF range, RFC 5766 §11.
const (
	MinChannelNumber uint16 = 0x4000
	MaxChannelNumber uint16 = 0x7FFF
)

var (
	errBadChannelDataLength = errors.New("turn: invalid channel data length")
	errInvalidChannelNumber = errors.New("turn: channel number out of range")
)

// ChannelData is the compact data framing used once a channel is bound:
// a 4-byte header carrying the channel number and payload length.
type ChannelData struct {
	Number uint16
	Data   []byte
}

// IsChannelData reports whether buf starts with a channel number, i.e. the
// first two bits are 0b01.
func IsChannelData(buf []byte) bool {
	return len(buf) >= channelDataHeaderSize && buf[0]&0xC0 == 0x40
}

// Marshal encodes the ChannelData message.
func (c ChannelData) Marshal() ([]byte, error) {
	if c.Number < MinChannelNumber || c.Number > MaxChannelNumber {
		return nil, errInvalidChannelNumber
	}
	buf := make([]byte, channelDataHeaderSize+len(c.Data))
	binary.BigEndian.PutUint16(buf[0:2], c.Number)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(c.Data)))
	copy(buf[channelDataHeaderSize:], c.Data)
	return buf, nil
}

// Unmarshal decodes a ChannelData message. Trailing padding (RFC 5766 §11.5,
// stream transports) is tolerated.
func (c *ChannelData) Unmarshal(buf []byte) error {
	if len(buf) < channelDataHeaderSize {
		return errBadChannelDataLength
	}
	number := binary.BigEndian.Uint16(buf[0:2])
	if number < MinChannelNumber || number > MaxChannelNumber {
		return errInvalidChannelNumber
	}
	length := int(binary.BigEndian.Uint16(buf[2:4]))
	if channelDataHeaderSize+length > len(buf) {
		return errBadChannelDataLength
	}
	c.Number = number
	c.Data = buf[channelDataHeaderSize : channelDataHeaderSize+length]
	return nil
}
