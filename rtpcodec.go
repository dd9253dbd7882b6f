// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import "strings"

// RTPCodecType determines the type of a codec.
type RTPCodecType int

// RTPCodecType enums.
const (
	RTPCodecTypeUnknown RTPCodecType = iota
	RTPCodecTypeAudio
	RTPCodecTypeVideo
)

// NewRTPCodecType creates a RTPCodecType from a string.
func NewRTPCodecType(raw string) RTPCodecType {
	switch {
	case strings.EqualFold(raw, "audio"):
		return RTPCodecTypeAudio
	case strings.EqualFold(raw, "video"):
		return RTPCodecTypeVideo
	default:
		return RTPCodecTypeUnknown
	}
}

func (t RTPCodecType) String() string {
	switch t {
	case RTPCodecTypeAudio:
		return "audio"
	case RTPCodecTypeVideo:
		return "video"
	default:
		return ErrUnknownType.Error()
	}
}

// RTPCodecCapability provides information about codec capabilities.
type RTPCodecCapability struct {
	MimeType     string
	ClockRate    uint32
	Channels     uint16
	SDPFmtpLine  string
	RTCPFeedback []RTCPFeedback
}

// RTCPFeedback signals the connection is using a given feedback method.
type RTCPFeedback struct {
	// Type is the type of feedback: ack, ccm, nack, goog-remb, transport-cc.
	Type string
	// Parameter is the parameter value, for example "pli" under nack.
	Parameter string
}

// RTPCodecParameters is a sequence containing the media codecs that an
// RtpSender will choose from.
type RTPCodecParameters struct {
	RTPCodecCapability
	PayloadType PayloadType
}

// PayloadType identifies the format of the RTP payload and determines its
// interpretation by the application.
type PayloadType uint8

// Mime types used by the default codecs.
const (
	MimeTypeOpus = "audio/opus"
	MimeTypeVP8  = "video/VP8"
	MimeTypeRTX  = "video/rtx"
)

// codecName extracts the SDP rtpmap name from a mime type.
func codecName(mimeType string) string {
	if idx := strings.IndexRune(mimeType, '/'); idx >= 0 {
		return mimeType[idx+1:]
	}
	return mimeType
}
