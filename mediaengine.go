// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"strconv"
	"strings"
	"sync"

	"github.com/sjhorn/webrtc/internal/sdp"
)

// Header extension URIs. Offers carry extmap lines for sdes:mid and
// transport-cc only; rtp-stream-id and abs-send-time are not advertised.
const (
	sdesMidURI       = "urn:ietf:params:rtp-hdrext:sdes:mid"
	sdesRTPStreamIDURI = "urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id"
	absSendTimeURI   = "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"
	transportCCURI   = "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"
)

// MediaEngine defines the codecs supported by a PeerConnection.
type MediaEngine struct {
	mu          sync.RWMutex
	audioCodecs []RTPCodecParameters
	videoCodecs []RTPCodecParameters
}

// RegisterDefaultCodecs registers the baseline codec set: Opus for audio,
// VP8 plus its RTX companion for video.
func (m *MediaEngine) RegisterDefaultCodecs() error {
	for _, codec := range []RTPCodecParameters{
		{
			RTPCodecCapability: RTPCodecCapability{
				MimeType: MimeTypeOpus, ClockRate: 48000, Channels: 2,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			PayloadType: 111,
		},
	} {
		if err := m.RegisterCodec(codec, RTPCodecTypeAudio); err != nil {
			return err
		}
	}

	for _, codec := range []RTPCodecParameters{
		{
			RTPCodecCapability: RTPCodecCapability{
				MimeType: MimeTypeVP8, ClockRate: 90000,
				RTCPFeedback: []RTCPFeedback{
					{Type: "goog-remb"},
					{Type: "ccm", Parameter: "fir"},
					{Type: "nack"},
					{Type: "nack", Parameter: "pli"},
					{Type: "transport-cc"},
				},
			},
			PayloadType: 96,
		},
		{
			RTPCodecCapability: RTPCodecCapability{
				MimeType: MimeTypeRTX, ClockRate: 90000, SDPFmtpLine: "apt=96",
			},
			PayloadType: 97,
		},
	} {
		if err := m.RegisterCodec(codec, RTPCodecTypeVideo); err != nil {
			return err
		}
	}

	return nil
}

// RegisterCodec adds a codec to the set the engine negotiates with.
func (m *MediaEngine) RegisterCodec(codec RTPCodecParameters, typ RTPCodecType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch typ {
	case RTPCodecTypeAudio:
		m.audioCodecs = append(m.audioCodecs, codec)
	case RTPCodecTypeVideo:
		m.videoCodecs = append(m.videoCodecs, codec)
	case RTPCodecTypeUnknown:
		return ErrUnknownType
	}
	return nil
}

func (m *MediaEngine) codecsFor(typ RTPCodecType) []RTPCodecParameters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if typ == RTPCodecTypeAudio {
		return append([]RTPCodecParameters(nil), m.audioCodecs...)
	}
	return append([]RTPCodecParameters(nil), m.videoCodecs...)
}

// rtxPayloadType returns the RTX companion payload type for a primary, via
// the apt= fmtp parameter.
func (m *MediaEngine) rtxPayloadType(primary PayloadType) (PayloadType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, codec := range m.videoCodecs {
		if strings.EqualFold(codec.MimeType, MimeTypeRTX) &&
			codec.SDPFmtpLine == "apt="+strconv.Itoa(int(primary)) {
			return codec.PayloadType, true
		}
	}
	return 0, false
}

// codecsFromMediaDescription parses the rtpmap/fmtp/rtcp-fb attributes of a
// remote media section.
func codecsFromMediaDescription(media *sdp.MediaDescription) []RTPCodecParameters { //nolint:gocognit
	var out []RTPCodecParameters
	for _, format := range media.MediaName.Formats {
		pt, err := strconv.Atoi(format)
		if err != nil {
			continue
		}

		codec := RTPCodecParameters{PayloadType: PayloadType(pt)}
		for _, rtpmap := range media.AttributeValues("rtpmap") {
			parts := strings.SplitN(rtpmap, " ", 2)
			if len(parts) != 2 || parts[0] != format {
				continue
			}
			name := parts[1]
			sub := strings.Split(name, "/")
			codec.MimeType = media.MediaName.Media + "/" + sub[0]
			if len(sub) > 1 {
				if clock, err := strconv.Atoi(sub[1]); err == nil {
					codec.ClockRate = uint32(clock)
				}
			}
			if len(sub) > 2 {
				if channels, err := strconv.Atoi(sub[2]); err == nil {
					codec.Channels = uint16(channels)
				}
			}
		}
		for _, fmtp := range media.AttributeValues("fmtp") {
			parts := strings.SplitN(fmtp, " ", 2)
			if len(parts) == 2 && parts[0] == format {
				codec.SDPFmtpLine = parts[1]
			}
		}
		for _, fb := range media.AttributeValues("rtcp-fb") {
			parts := strings.SplitN(fb, " ", 3)
			if len(parts) < 2 || parts[0] != format {
				continue
			}
			feedback := RTCPFeedback{Type: parts[1]}
			if len(parts) == 3 {
				feedback.Parameter = parts[2]
			}
			codec.RTCPFeedback = append(codec.RTCPFeedback, feedback)
		}

		if codec.MimeType != "" {
			out = append(out, codec)
		}
	}
	return out
}
