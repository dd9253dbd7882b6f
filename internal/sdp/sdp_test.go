// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const canonicalOffer = "v=0\r\n" +
	"o=- 4596489990601351948 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 1 2\r\n" +
	"a=ice-options:trickle\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=ice-ufrag:aBcD\r\n" +
	"a=ice-pwd:aBcDeFgHiJkLmNoPqRsTuVwX\r\n" +
	"a=fingerprint:sha-256 19:E2:1C:3B:4B:9F:81:E6:B8:5C:F4:A5:A8:D8:73:04:BB:05:2F:70:9F:04:A9:0E:05:E9:26:33:E8:70:88:A2\r\n" +
	"a=setup:actpass\r\n" +
	"a=mid:1\r\n" +
	"a=sendrecv\r\n" +
	"a=rtcp-mux\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=fmtp:111 minptime=10;useinbandfec=1\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:2\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=rtpmap:97 rtx/90000\r\n" +
	"a=fmtp:97 apt=96\r\n" +
	"a=ssrc-group:FID 12345678 87654321\r\n" +
	"a=ssrc:12345678 cname:video\r\n" +
	"a=ssrc:87654321 cname:video\r\n"

func TestUnmarshalCanonical(t *testing.T) {
	sd := &SessionDescription{}
	require.NoError(t, sd.Unmarshal(canonicalOffer))

	assert.Equal(t, Version(0), sd.Version)
	assert.Equal(t, uint64(4596489990601351948), sd.Origin.SessionID)

	group, ok := sd.Attribute("group")
	assert.True(t, ok)
	assert.Equal(t, "BUNDLE 1 2", group)

	require.Len(t, sd.MediaDescriptions, 2)
	audio := sd.MediaDescriptions[0]
	assert.Equal(t, "audio", audio.MediaName.Media)
	assert.Equal(t, []string{"UDP", "TLS", "RTP", "SAVPF"}, audio.MediaName.Protos)
	assert.Equal(t, []string{"111"}, audio.MediaName.Formats)

	ufrag, ok := audio.Attribute("ice-ufrag")
	assert.True(t, ok)
	assert.Equal(t, "aBcD", ufrag)
	assert.True(t, audio.HasAttribute("rtcp-mux"))
	assert.True(t, audio.HasAttribute("sendrecv"))

	video := sd.MediaDescriptions[1]
	fid, ok := video.Attribute("ssrc-group")
	assert.True(t, ok)
	assert.Equal(t, "FID 12345678 87654321", fid)
	assert.Len(t, video.AttributeValues("ssrc"), 2)
}

func TestMarshalUnmarshalIdempotent(t *testing.T) {
	sd := &SessionDescription{}
	require.NoError(t, sd.Unmarshal(canonicalOffer))

	first := sd.Marshal()

	sd2 := &SessionDescription{}
	require.NoError(t, sd2.Unmarshal(first))
	second := sd2.Marshal()

	// parse(serialize(parse(S))) is structurally equal to parse(S)
	assert.Equal(t, sd, sd2)
	assert.Equal(t, first, second)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	sd := &SessionDescription{}
	assert.Error(t, sd.Unmarshal("not an sdp"))

	sd = &SessionDescription{}
	assert.Error(t, sd.Unmarshal("v=0\r\ns=-\r\n")) // missing o=
}

func TestAttributeParsing(t *testing.T) {
	a := parseAttribute("sendonly")
	assert.Equal(t, "sendonly", a.Key)
	assert.Equal(t, "", a.Value)

	a = parseAttribute("rtpmap:96 VP8/90000")
	assert.Equal(t, "rtpmap", a.Key)
	assert.Equal(t, "96 VP8/90000", a.Value)

	// value may itself contain colons
	a = parseAttribute("fingerprint:sha-256 19:E2")
	assert.Equal(t, "sha-256 19:E2", a.Value)
}

func TestMediaPortRange(t *testing.T) {
	sd := &SessionDescription{}
	raw := "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0\r\nm=audio 49170/2 RTP/AVP 0\r\n"
	require.NoError(t, sd.Unmarshal(raw))

	port := sd.MediaDescriptions[0].MediaName.Port
	assert.Equal(t, 49170, port.Value)
	require.NotNil(t, port.Range)
	assert.Equal(t, 2, *port.Range)
	assert.True(t, strings.Contains(sd.Marshal(), "m=audio 49170/2 RTP/AVP 0"))
}

func TestWithCodec(t *testing.T) {
	md := &MediaDescription{
		MediaName: MediaName{Media: "video", Port: RangedPort{Value: 9}, Protos: []string{"UDP", "TLS", "RTP", "SAVPF"}},
	}
	md.WithCodec(96, "VP8", 90000, 0, "")
	md.WithCodec(97, "rtx", 90000, 0, "apt=96")

	assert.Equal(t, []string{"96", "97"}, md.MediaName.Formats)
	rtpmaps := md.AttributeValues("rtpmap")
	assert.Equal(t, []string{"96 VP8/90000", "97 rtx/90000"}, rtpmaps)
	fmtp, _ := md.Attribute("fmtp")
	assert.Equal(t, "97 apt=96", fmtp)
}
