// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stun

import (
	"errors"
	"fmt"
)

// ErrorCode is the code of the ERROR-CODE attribute.
type ErrorCode int

// Error codes from RFC 5389, RFC 5766 and RFC 8445.
const (
	CodeTryAlternate     ErrorCode = 300
	CodeBadRequest       ErrorCode = 400
	CodeUnauthorized     ErrorCode = 401
	CodeForbidden        ErrorCode = 403
	CodeUnknownAttribute ErrorCode = 420
	CodeAllocMismatch    ErrorCode = 437
	CodeStaleNonce       ErrorCode = 438
	CodeAddrFamilyNotSupported ErrorCode = 440
	CodeWrongCredentials       ErrorCode = 441
	CodeUnsupportedTransProto  ErrorCode = 442
	CodeAllocQuotaReached      ErrorCode = 486
	CodeRoleConflict           ErrorCode = 487
	CodeServerError            ErrorCode = 500
	CodeInsufficientCapacity   ErrorCode = 508
)

var errNoDefaultReason = errors.New("stun: no default reason for error code")

var errorReasons = map[ErrorCode]string{ //nolint:gochecknoglobals
	CodeTryAlternate:     "Try Alternate",
	CodeBadRequest:       "Bad Request",
	CodeUnauthorized:     "Unauthorized",
	CodeForbidden:        "Forbidden",
	CodeUnknownAttribute: "Unknown Attribute",
	CodeAllocMismatch:    "Allocation Mismatch",
	CodeStaleNonce:       "Stale Nonce",
	CodeAddrFamilyNotSupported: "Address Family not Supported",
	CodeWrongCredentials:       "Wrong Credentials",
	CodeUnsupportedTransProto:  "Unsupported Transport Protocol",
	CodeAllocQuotaReached:      "Allocation Quota Reached",
	CodeRoleConflict:           "Role Conflict",
	CodeServerError:            "Server Error",
	CodeInsufficientCapacity:   "Insufficient Capacity",
}

// AddTo adds an ERROR-CODE attribute with the default reason phrase.
func (c ErrorCode) AddTo(m *Message) error {
	reason, ok := errorReasons[c]
	if !ok {
		return errNoDefaultReason
	}
	a := ErrorCodeAttribute{Code: c, Reason: []byte(reason)}
	return a.AddTo(m)
}

// ErrorCodeAttribute is the ERROR-CODE attribute, RFC 5389 §15.6.
type ErrorCodeAttribute struct {
	Code   ErrorCode
	Reason []byte
}

func (a ErrorCodeAttribute) String() string {
	return fmt.Sprintf("%d: %s", a.Code, a.Reason)
}

const errorCodeReasonStart = 4

// AddTo implements Setter.
func (a ErrorCodeAttribute) AddTo(m *Message) error {
	value := make([]byte, 0, errorCodeReasonStart+len(a.Reason))
	number := byte(a.Code % 100)
	class := byte(a.Code / 100)
	value = append(value, 0, 0, class, number)
	value = append(value, a.Reason...)
	m.Add(AttrErrorCode, value)
	return nil
}

// GetFrom implements Getter.
func (a *ErrorCodeAttribute) GetFrom(m *Message) error {
	v, err := m.Get(AttrErrorCode)
	if err != nil {
		return err
	}
	if len(v) < errorCodeReasonStart {
		return ErrAttributeSizeInvalid
	}
	class := uint16(v[2])
	number := uint16(v[3])
	a.Code = ErrorCode(class*100 + number)
	a.Reason = v[errorCodeReasonStart:]
	return nil
}
