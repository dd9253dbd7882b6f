// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package srtp

import "errors"

var (
	errNoSuchProfile       = errors.New("srtp: no such protection profile")
	errShortKey            = errors.New("srtp: master key or salt has the wrong length")
	errTooShort            = errors.New("srtp: packet too short")
	errDuplicated          = errors.New("srtp: duplicated or stale packet index")
	errFailedToVerifyAuth  = errors.New("srtp: failed to verify auth tag")
	errFailedToDecryptAEAD = errors.New("srtp: aead open failed")
	errExceededMaxPackets  = errors.New("srtcp: exceeded the maximum number of packets")
)
