// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import "errors"

var (
	errBufferTooSmall        = errors.New("dtls: buffer is too small")
	errInvalidContentType    = errors.New("dtls: invalid content type")
	errUnsupportedProtocolVersion = errors.New("dtls: unsupported protocol version")
	errInvalidNamedCurve     = errors.New("dtls: invalid named curve")
	errInvalidCipherSuite    = errors.New("dtls: invalid or unknown cipher suite")
	errCipherSuiteNoIntersection = errors.New("dtls: client+server do not support any shared cipher suites")
	errCookieMismatch        = errors.New("dtls: client+server cookie does not match")
	errVerifyDataMismatch    = errors.New("dtls: verify data mismatch")
	errFingerprintMismatch   = errors.New("dtls: certificate fingerprint mismatch")
	errNoCertificate         = errors.New("dtls: no certificate configured")
	errHandshakeTimeout      = errors.New("dtls: handshake timed out waiting for peer")
	errConnClosed            = errors.New("dtls: conn is closed")
	errHandshakeInProgress   = errors.New("dtls: handshake is in progress")
	errApplicationDataEpochZero = errors.New("dtls: application data with epoch 0")
	errSequenceNumberOverflow   = errors.New("dtls: sequence number overflow")
	errInvalidSignature      = errors.New("dtls: key exchange signature invalid")
	errKeyMaterialExhausted  = errors.New("dtls: exporter called before handshake complete")
	errAlertFatal            = errors.New("dtls: fatal alert from peer")
	errHandshakeMessageUnset = errors.New("dtls: handshake message unset, unable to marshal")
)
