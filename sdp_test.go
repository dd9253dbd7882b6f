// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjhorn/webrtc/internal/sdp"
)

func newTestPeerConnection(t *testing.T) *PeerConnection {
	t.Helper()
	pc, err := NewPeerConnection(Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func TestOfferWithVideoTrack(t *testing.T) {
	pc := newTestPeerConnection(t)

	track := NewTrackLocal(RTPCodecTypeVideo, "video", "stream")
	sender, err := pc.AddTrack(track)
	require.NoError(t, err)

	offer, err := pc.CreateOffer()
	require.NoError(t, err)

	parsed := &sdp.SessionDescription{}
	require.NoError(t, parsed.Unmarshal(offer.SDP))

	group, ok := parsed.Attribute("group")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(group, "BUNDLE"))

	require.Len(t, parsed.MediaDescriptions, 1)
	video := parsed.MediaDescriptions[0]
	assert.Equal(t, "video", video.MediaName.Media)
	assert.Equal(t, []string{"UDP", "TLS", "RTP", "SAVPF"}, video.MediaName.Protos)
	assert.Equal(t, []string{"96", "97"}, video.MediaName.Formats)

	mid, ok := video.Attribute("mid")
	require.True(t, ok)
	assert.Equal(t, "1", mid, "MID allocation starts at 1")

	setup, _ := video.Attribute("setup")
	assert.Equal(t, "actpass", setup)
	assert.True(t, video.HasAttribute("rtcp-mux"))
	assert.True(t, video.HasAttribute("ice-ufrag"))
	assert.True(t, video.HasAttribute("fingerprint"))

	rtpmaps := video.AttributeValues("rtpmap")
	assert.Contains(t, rtpmaps, "96 VP8/90000")
	assert.Contains(t, rtpmaps, "97 rtx/90000")
	fmtp, _ := video.Attribute("fmtp")
	assert.Equal(t, "97 apt=96", fmtp)

	fid, ok := video.Attribute("ssrc-group")
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("FID %d %d", sender.SSRC(), sender.RTXSSRC()), fid)

	// cname ssrc lines for both the primary and RTX SSRC
	assert.Len(t, video.AttributeValues("ssrc"), 2)
}

func TestOfferWithDataChannel(t *testing.T) {
	pc := newTestPeerConnection(t)

	_, err := pc.CreateDataChannel("chat", nil)
	require.NoError(t, err)

	offer, err := pc.CreateOffer()
	require.NoError(t, err)

	parsed := &sdp.SessionDescription{}
	require.NoError(t, parsed.Unmarshal(offer.SDP))

	require.Len(t, parsed.MediaDescriptions, 1)
	app := parsed.MediaDescriptions[0]
	assert.Equal(t, "application", app.MediaName.Media)
	assert.Equal(t, []string{"UDP", "DTLS", "SCTP"}, app.MediaName.Protos)
	assert.Equal(t, []string{"webrtc-datachannel"}, app.MediaName.Formats)

	port, ok := app.Attribute("sctp-port")
	require.True(t, ok)
	assert.Equal(t, "5000", port)
}

func TestOfferRequiresSomethingToNegotiate(t *testing.T) {
	pc := newTestPeerConnection(t)

	_, err := pc.CreateOffer()
	assert.Error(t, err)
}

// seed scenario: answering an offer that proposes VP8 with an RTX companion.
func TestAnswerEchoesRTXOffer(t *testing.T) {
	pc := newTestPeerConnection(t)

	remoteOffer := "v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"a=group:BUNDLE 0\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96 97\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=ice-ufrag:remoteufragremotex\r\n" +
		"a=ice-pwd:remotepwdremotepwdremotepwdremo\r\n" +
		"a=fingerprint:sha-256 19:E2:1C:3B:4B:9F:81:E6:B8:5C:F4:A5:A8:D8:73:04:BB:05:2F:70:9F:04:A9:0E:05:E9:26:33:E8:70:88:A2\r\n" +
		"a=setup:actpass\r\n" +
		"a=mid:0\r\n" +
		"a=sendrecv\r\n" +
		"a=rtcp-mux\r\n" +
		"a=rtpmap:96 VP8/90000\r\n" +
		"a=rtpmap:97 rtx/90000\r\n" +
		"a=fmtp:97 apt=96\r\n" +
		"a=ssrc-group:FID 12345678 87654321\r\n" +
		"a=ssrc:12345678 cname:remotevideo\r\n" +
		"a=ssrc:87654321 cname:remotevideo\r\n"

	track := NewTrackLocal(RTPCodecTypeVideo, "video", "stream")
	_, err := pc.AddTrack(track)
	require.NoError(t, err)

	require.NoError(t, pc.SetRemoteDescription(SessionDescription{Type: SDPTypeOffer, SDP: remoteOffer}))
	answer, err := pc.CreateAnswer()
	require.NoError(t, err)

	parsed := &sdp.SessionDescription{}
	require.NoError(t, parsed.Unmarshal(answer.SDP))
	require.Len(t, parsed.MediaDescriptions, 1)
	video := parsed.MediaDescriptions[0]

	// formats and codec attributes are copied
	assert.Equal(t, []string{"96", "97"}, video.MediaName.Formats)
	assert.Contains(t, video.AttributeValues("rtpmap"), "96 VP8/90000")
	assert.Contains(t, video.AttributeValues("rtpmap"), "97 rtx/90000")
	fmtp, _ := video.Attribute("fmtp")
	assert.Equal(t, "97 apt=96", fmtp)

	// the answer keeps the offered mid and answers active
	mid, _ := video.Attribute("mid")
	assert.Equal(t, "0", mid)
	setup, _ := video.Attribute("setup")
	assert.Equal(t, "active", setup)

	// a local FID group with our SSRCs and cname lines
	sender := pc.GetTransceivers()[0].Sender()
	require.NotNil(t, sender)
	fid, ok := video.Attribute("ssrc-group")
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("FID %d %d", sender.SSRC(), sender.RTXSSRC()), fid)
	for _, line := range video.AttributeValues("ssrc") {
		assert.Contains(t, line, "cname:")
	}
}

func TestMIDPreservedAcrossOffers(t *testing.T) {
	pc := newTestPeerConnection(t)

	_, err := pc.AddTrack(NewTrackLocal(RTPCodecTypeAudio, "audio", "stream"))
	require.NoError(t, err)

	offer1, err := pc.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer1))

	// remote answers; negotiation completes
	answerSDP := strings.Replace(offer1.SDP, "a=setup:actpass", "a=setup:active", -1)
	require.NoError(t, pc.SetRemoteDescription(SessionDescription{Type: SDPTypeAnswer, SDP: answerSDP}))

	// add a second track and re-offer
	_, err = pc.AddTrack(NewTrackLocal(RTPCodecTypeVideo, "video", "stream"))
	require.NoError(t, err)

	offer2, err := pc.CreateOffer()
	require.NoError(t, err)

	parsed1 := &sdp.SessionDescription{}
	require.NoError(t, parsed1.Unmarshal(offer1.SDP))
	parsed2 := &sdp.SessionDescription{}
	require.NoError(t, parsed2.Unmarshal(offer2.SDP))

	mid1, _ := parsed1.MediaDescriptions[0].Attribute("mid")
	mid2, _ := parsed2.MediaDescriptions[0].Attribute("mid")
	assert.Equal(t, mid1, mid2, "previously negotiated m-line keeps its MID and position")
	assert.Len(t, parsed2.MediaDescriptions, 2)

	newMid, _ := parsed2.MediaDescriptions[1].Attribute("mid")
	assert.NotEqual(t, mid1, newMid)
}

func TestExtractRemoteDetails(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"a=ice-lite\r\n" +
		"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n" +
		"a=ice-ufrag:ufragufragufragu\r\n" +
		"a=ice-pwd:pwdpwdpwdpwdpwdpwdpwdpwdpwdpwdpw\r\n" +
		"a=fingerprint:sha-256 AA:BB\r\n" +
		"a=setup:active\r\n" +
		"a=mid:0\r\n" +
		"a=sctp-port:5000\r\n" +
		"a=candidate:1 1 udp 2130706431 192.0.2.1 3478 typ host\r\n"

	parsed := &sdp.SessionDescription{}
	require.NoError(t, parsed.Unmarshal(raw))

	details, err := extractRemoteDetails(parsed)
	require.NoError(t, err)
	assert.True(t, details.iceLite)
	assert.True(t, details.hasApplication)
	assert.Equal(t, "ufragufragufragu", details.iceUfrag)
	assert.Equal(t, "active", details.setup)
	assert.Equal(t, "sha-256", details.fingerprintAlg)
	require.Len(t, details.candidates, 1)
	assert.Equal(t, "192.0.2.1", details.candidates[0].Address)
}

func TestExtractRemoteDetailsRequiresCredentials(t *testing.T) {
	raw := "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\n"
	parsed := &sdp.SessionDescription{}
	require.NoError(t, parsed.Unmarshal(raw))

	_, err := extractRemoteDetails(parsed)
	assert.ErrorIs(t, err, errICECredentialsMissing)
}
