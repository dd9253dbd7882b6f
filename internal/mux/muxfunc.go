// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package mux

// MatchFunc allows custom routing of packets.
type MatchFunc func([]byte) bool

// MatchAll always returns true.
func MatchAll([]byte) bool {
	return true
}

// MatchRange returns a MatchFunc that matches when the first byte is in
// [lower..upper].
func MatchRange(lower, upper byte) MatchFunc {
	return func(buf []byte) bool {
		if len(buf) < 1 {
			return false
		}
		b := buf[0]
		return b >= lower && b <= upper
	}
}

// Demultiplexing ranges, RFC 7983 §7.
//
//	+----------------+
//	|        [0..3] -+--> STUN
//	|                |
//	|      [16..19] -+--> ZRTP / TURN ChannelData
//	|                |
//	|      [20..63] -+--> DTLS
//	|                |
//	|      [64..79] -+--> TURN ChannelData (alternate)
//	|                |
//	|    [128..191] -+--> RTP/RTCP
//	+----------------+

// MatchSTUN is a MatchFunc that accepts STUN packets.
func MatchSTUN(b []byte) bool {
	return MatchRange(0, 3)(b)
}

// MatchChannelData is a MatchFunc that accepts TURN ChannelData frames in
// either allocation of the first-byte space.
func MatchChannelData(b []byte) bool {
	return MatchRange(16, 19)(b) || MatchRange(64, 79)(b)
}

// MatchDTLS is a MatchFunc that accepts DTLS packets.
func MatchDTLS(b []byte) bool {
	return MatchRange(20, 63)(b)
}

// MatchSRTPOrSRTCP is a MatchFunc that accepts RTP and RTCP packets.
func MatchSRTPOrSRTCP(b []byte) bool {
	return MatchRange(128, 191)(b)
}

func isRTCP(buf []byte) bool {
	// Not long enough to determine RTP/RTCP
	if len(buf) < 4 {
		return false
	}
	return buf[1] >= 192 && buf[1] <= 223
}

// MatchSRTP is a MatchFunc that only matches SRTP and not SRTCP.
func MatchSRTP(buf []byte) bool {
	return MatchSRTPOrSRTCP(buf) && !isRTCP(buf)
}

// MatchSRTCP is a MatchFunc that only matches SRTCP and not SRTP.
func MatchSRTCP(buf []byte) bool {
	return MatchSRTPOrSRTCP(buf) && isRTCP(buf)
}
