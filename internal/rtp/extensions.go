// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtp

import (
	"encoding/binary"
	"errors"
	"time"
)

var errExtensionTooSmall = errors.New("rtp: extension payload too small")

const (
	transportCCExtensionSize = 2
	absSendTimeExtensionSize = 3
)

// TransportCCExtension is the payload of the transport-wide sequence number
// header extension.
//
// http://www.webrtc.org/experiments/rtp-hdrext/transport-wide-cc-02
type TransportCCExtension struct {
	TransportSequence uint16
}

// Marshal serializes the extension payload.
func (t TransportCCExtension) Marshal() ([]byte, error) {
	buf := make([]byte, transportCCExtensionSize)
	binary.BigEndian.PutUint16(buf, t.TransportSequence)
	return buf, nil
}

// Unmarshal parses the extension payload.
func (t *TransportCCExtension) Unmarshal(rawData []byte) error {
	if len(rawData) < transportCCExtensionSize {
		return errExtensionTooSmall
	}
	t.TransportSequence = binary.BigEndian.Uint16(rawData)
	return nil
}

// AbsSendTimeExtension is the payload of the absolute send time extension:
// 24 bits of 6.18 fixed-point seconds.
//
// http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time
type AbsSendTimeExtension struct {
	Timestamp uint64
}

// Marshal serializes the extension payload.
func (t AbsSendTimeExtension) Marshal() ([]byte, error) {
	return []byte{
		byte(t.Timestamp & 0xFF0000 >> 16),
		byte(t.Timestamp & 0xFF00 >> 8),
		byte(t.Timestamp & 0xFF),
	}, nil
}

// Unmarshal parses the extension payload.
func (t *AbsSendTimeExtension) Unmarshal(rawData []byte) error {
	if len(rawData) < absSendTimeExtensionSize {
		return errExtensionTooSmall
	}
	t.Timestamp = uint64(rawData[0])<<16 | uint64(rawData[1])<<8 | uint64(rawData[2])
	return nil
}

// NewAbsSendTimeExtension makes new AbsSendTimeExtension from time.Time.
func NewAbsSendTimeExtension(sendTime time.Time) *AbsSendTimeExtension {
	return &AbsSendTimeExtension{Timestamp: toNtpTime(sendTime) >> 14}
}

func toNtpTime(t time.Time) uint64 {
	var s uint64
	var f uint64
	u := uint64(t.UnixNano())
	s = u / 1e9
	s += 0x83AA7E80 // offset in seconds between unix epoch and ntp epoch
	f = u % 1e9
	f <<= 32
	f /= 1e9
	s <<= 32

	return s | f
}
