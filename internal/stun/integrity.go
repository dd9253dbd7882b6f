// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stun

import (
	"crypto/hmac"
	"crypto/md5"  //nolint:gosec // required by long-term credentials, RFC 5389 §15.4
	"crypto/sha1" //nolint:gosec // required by MESSAGE-INTEGRITY, RFC 5389 §15.4
	"encoding/binary"
	"errors"
	"strings"
)

const messageIntegritySize = 20

var (
	// ErrIntegrityMismatch means the computed HMAC differs from the received one.
	ErrIntegrityMismatch = errors.New("stun: integrity check failed")
	// ErrFingerprintMismatch means the computed CRC32 differs from the received one.
	ErrFingerprintMismatch = errors.New("stun: fingerprint check failed")
	// ErrFingerprintBeforeIntegrity means the attribute order would be invalid.
	ErrFingerprintBeforeIntegrity = errors.New("stun: FINGERPRINT before MESSAGE-INTEGRITY attribute")
)

// MessageIntegrity is the MESSAGE-INTEGRITY attribute: an HMAC-SHA1 keyed by
// short-term or long-term credentials.
type MessageIntegrity []byte

// NewShortTermIntegrity returns a MessageIntegrity key for short-term
// credentials (ICE connectivity checks): the key is the password itself.
func NewShortTermIntegrity(password string) MessageIntegrity {
	return MessageIntegrity(password)
}

// NewLongTermIntegrity returns a MessageIntegrity key for long-term
// credentials (TURN): MD5(username ":" realm ":" password).
func NewLongTermIntegrity(username, realm, password string) MessageIntegrity {
	k := strings.Join([]string{username, realm, password}, ":")
	h := md5.New() //nolint:gosec
	_, _ = h.Write([]byte(k))
	return MessageIntegrity(h.Sum(nil))
}

func newHMAC(key, message []byte) []byte {
	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}

// AddTo appends the MESSAGE-INTEGRITY attribute. The HMAC is computed over
// the message with the header length adjusted to include the attribute
// itself, per RFC 5389 §15.4.
func (i MessageIntegrity) AddTo(m *Message) error {
	for _, a := range m.Attributes {
		if a.Type == AttrFingerprint {
			return ErrFingerprintBeforeIntegrity
		}
	}

	// The length in the header must count the MESSAGE-INTEGRITY attribute
	// during HMAC computation.
	length := m.Length + attributeHeaderSize + messageIntegritySize
	binary.BigEndian.PutUint16(m.Raw[2:4], uint16(length))
	v := newHMAC(i, m.Raw)
	m.WriteLength() // restore

	m.Add(AttrMessageIntegrity, v)
	return nil
}

// Check verifies the MESSAGE-INTEGRITY attribute: the HMAC is recomputed
// over the message truncated to the end of the attribute.
func (i MessageIntegrity) Check(m *Message) error {
	v, err := m.Get(AttrMessageIntegrity)
	if err != nil {
		return err
	}
	if len(v) != messageIntegritySize {
		return ErrAttributeSizeInvalid
	}

	// Walk the encoded attributes to find where MESSAGE-INTEGRITY starts.
	var afterIntegrity uint32
	for _, a := range m.Attributes {
		if a.Type == AttrMessageIntegrity {
			break
		}
		afterIntegrity += attributeHeaderSize + uint32(nearestPaddedValueLength(int(a.Length)))
	}
	covered := messageHeaderSize + int(afterIntegrity)
	if covered > len(m.Raw) {
		return ErrAttributeSizeInvalid
	}

	// HMAC is computed with the length field counting up to and including
	// the MESSAGE-INTEGRITY attribute.
	buf := make([]byte, covered)
	copy(buf, m.Raw[:covered])
	binary.BigEndian.PutUint16(buf[2:4], uint16(afterIntegrity+attributeHeaderSize+messageIntegritySize))

	expected := newHMAC(i, buf)
	if !hmac.Equal(expected, v) {
		return ErrIntegrityMismatch
	}
	return nil
}
