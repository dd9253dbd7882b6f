// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/randutil"

	"github.com/sjhorn/webrtc/internal/ice"
	"github.com/sjhorn/webrtc/internal/sdp"
)

const (
	mediaSectionApplication = "application"
	sctpPort                = 5000

	mathRandRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// mediaSection tracks one negotiated m-line so repeated offers preserve MID
// and position (RFC 3264).
type mediaSection struct {
	mid         string
	transceiver *RTPTransceiver
	data        bool
	rejected    bool
}

// allocateMID hands out monotonically increasing integer MIDs, skipping any
// value already seen locally or in remote descriptions.
func (pc *PeerConnection) allocateMID() string {
	for {
		mid := strconv.Itoa(pc.nextMID)
		pc.nextMID++
		if !pc.usedMIDs[mid] {
			pc.usedMIDs[mid] = true
			return mid
		}
	}
}

func (pc *PeerConnection) registerRemoteMIDs(parsed *sdp.SessionDescription) {
	for _, media := range parsed.MediaDescriptions {
		if mid, ok := media.Attribute("mid"); ok {
			pc.usedMIDs[mid] = true
		}
	}
}

// sessionBase emits the session-level lines shared by offers and answers.
func (pc *PeerConnection) sessionBase() *sdp.SessionDescription {
	sessionID, _ := randutil.GenerateCryptoRandomString(18, "0123456789")
	id, _ := strconv.ParseUint(sessionID, 10, 64)
	return &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      id,
			SessionVersion: uint64(pc.sdpVersion),
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: "-",
	}
}

// addTransportAttributes emits the ICE credentials, fingerprint and setup
// role for one m-line.
func (pc *PeerConnection) addTransportAttributes(media *sdp.MediaDescription, setup string) {
	ufrag, pwd := pc.iceAgent.LocalCredentials()
	fingerprint, _ := pc.certificate.Fingerprint()

	media.WithValueAttribute("ice-ufrag", ufrag)
	media.WithValueAttribute("ice-pwd", pwd)
	media.WithValueAttribute("ice-options", "trickle")
	media.WithValueAttribute("fingerprint", fingerprint)
	media.WithValueAttribute("setup", setup)
}

func (pc *PeerConnection) addLocalCandidates(media *sdp.MediaDescription) {
	for _, c := range pc.localCandidates {
		media.WithValueAttribute("candidate", c.Marshal())
	}
}

// mediaSectionForTransceiver emits one RTP m-line per spec: codecs, RTX
// companions, ssrc lines and the FID group.
func (pc *PeerConnection) mediaSectionForTransceiver(t *RTPTransceiver, setup string) *sdp.MediaDescription {
	media := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  t.Kind().String(),
			Port:   sdp.RangedPort{Value: 9},
			Protos: []string{"UDP", "TLS", "RTP", "SAVPF"},
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
	}

	pc.addTransportAttributes(media, setup)
	media.WithValueAttribute("mid", t.Mid())
	media.WithPropertyAttribute(t.Direction().String())
	media.WithPropertyAttribute("rtcp-mux")
	media.WithValueAttribute("extmap", "1 "+sdesMidURI)
	media.WithValueAttribute("extmap", "2 "+transportCCURI)

	for _, codec := range t.Codecs() {
		media.WithCodec(uint8(codec.PayloadType), codecName(codec.MimeType), codec.ClockRate, codec.Channels, codec.SDPFmtpLine)
		for _, fb := range codec.RTCPFeedback {
			value := fb.Type
			if fb.Parameter != "" {
				value += " " + fb.Parameter
			}
			media.WithValueAttribute("rtcp-fb", fmt.Sprintf("%d %s", codec.PayloadType, value))
		}
	}

	if sender := t.Sender(); sender != nil && t.Kind() == RTPCodecTypeVideo {
		media.WithValueAttribute("ssrc-group", fmt.Sprintf("FID %d %d", sender.SSRC(), sender.RTXSSRC()))
		media.WithValueAttribute("ssrc", fmt.Sprintf("%d cname:%s", sender.SSRC(), pc.cname))
		media.WithValueAttribute("ssrc", fmt.Sprintf("%d cname:%s", sender.RTXSSRC(), pc.cname))
	} else if sender := t.Sender(); sender != nil {
		media.WithValueAttribute("ssrc", fmt.Sprintf("%d cname:%s", sender.SSRC(), pc.cname))
	}

	pc.addLocalCandidates(media)
	return media
}

func (pc *PeerConnection) dataMediaSection(mid, setup string) *sdp.MediaDescription {
	media := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   mediaSectionApplication,
			Port:    sdp.RangedPort{Value: 9},
			Protos:  []string{"UDP", "DTLS", "SCTP"},
			Formats: []string{"webrtc-datachannel"},
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
	}

	pc.addTransportAttributes(media, setup)
	media.WithValueAttribute("mid", mid)
	media.WithValueAttribute("sctp-port", strconv.Itoa(sctpPort))
	pc.addLocalCandidates(media)
	return media
}

// buildOffer constructs an SDP offer from the current transceivers and data
// channels, preserving the m-line order of earlier negotiations.
func (pc *PeerConnection) buildOffer() (string, error) {
	desc := pc.sessionBase()
	pc.sdpVersion++

	// assign MIDs to new transceivers in order
	for _, t := range pc.transceivers {
		if t.Mid() == "" {
			t.setMid(pc.allocateMID())
		}
	}

	// rebuild the section list: previously negotiated sections first, in
	// their original order, then new ones
	var sections []mediaSection
	seen := map[string]bool{}
	for _, s := range pc.negotiatedSections {
		sections = append(sections, s)
		seen[s.mid] = true
	}
	for _, t := range pc.transceivers {
		if !seen[t.Mid()] {
			sections = append(sections, mediaSection{mid: t.Mid(), transceiver: t})
		}
	}
	if len(pc.dataChannels) > 0 || len(pc.pendingDataChannels) > 0 {
		hasData := false
		for _, s := range sections {
			if s.data {
				hasData = true
			}
		}
		if !hasData {
			sections = append(sections, mediaSection{mid: pc.allocateMID(), data: true})
		}
	}

	if len(sections) == 0 {
		return "", &OperationError{Err: errSDPZeroTransceivers}
	}

	var bundleMIDs []string
	for _, s := range sections {
		if !s.rejected {
			bundleMIDs = append(bundleMIDs, s.mid)
		}

		switch {
		case s.rejected:
			media := &sdp.MediaDescription{
				MediaName: sdp.MediaName{
					Media:  "audio",
					Port:   sdp.RangedPort{Value: 0},
					Protos: []string{"UDP", "TLS", "RTP", "SAVPF"},
				},
			}
			media.WithValueAttribute("mid", s.mid)
			media.WithPropertyAttribute(RTPTransceiverDirectionInactive.String())
			desc.MediaDescriptions = append(desc.MediaDescriptions, media)
		case s.data:
			desc.MediaDescriptions = append(desc.MediaDescriptions, pc.dataMediaSection(s.mid, sdpAttributeActpass))
		default:
			desc.MediaDescriptions = append(desc.MediaDescriptions, pc.mediaSectionForTransceiver(s.transceiver, sdpAttributeActpass))
		}
	}

	if pc.config.BundlePolicy != BundlePolicyDisable {
		desc.Attributes = append([]sdp.Attribute{
			sdp.NewAttribute("group", "BUNDLE "+strings.Join(bundleMIDs, " ")),
		}, desc.Attributes...)
	}
	desc.Attributes = append(desc.Attributes, sdp.NewAttribute("ice-options", "trickle"))
	desc.Attributes = append(desc.Attributes, sdp.NewAttribute("msid-semantic", "WMS"))

	pc.pendingSections = sections
	return desc.Marshal(), nil
}

// buildAnswer walks the remote offer's media descriptions in order, echoing
// formats and attributes per RFC 3264.
func (pc *PeerConnection) buildAnswer() (string, error) { //nolint:gocognit
	if pc.currentRemoteDescription == nil && pc.pendingRemoteDescription == nil {
		return "", &InvalidStateError{Err: errNoRemoteDescription}
	}
	remote := pc.pendingRemoteDescription
	if remote == nil {
		remote = pc.currentRemoteDescription
	}
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal(remote.SDP); err != nil {
		return "", err
	}

	desc := pc.sessionBase()
	pc.sdpVersion++

	var sections []mediaSection
	var bundleMIDs []string
	for _, remoteMedia := range parsed.MediaDescriptions {
		mid, _ := remoteMedia.Attribute("mid")
		bundleMIDs = append(bundleMIDs, mid)

		if remoteMedia.MediaName.Media == mediaSectionApplication {
			sections = append(sections, mediaSection{mid: mid, data: true})
			media := pc.dataMediaSection(mid, sdpAttributeActive)
			desc.MediaDescriptions = append(desc.MediaDescriptions, media)
			continue
		}

		kind := NewRTPCodecType(remoteMedia.MediaName.Media)
		t := pc.findOrCreateTransceiver(kind, mid)
		t.setMid(mid)
		codecs := codecsFromMediaDescription(remoteMedia)
		if len(codecs) > 0 {
			t.setCodecs(codecs)
		}
		sections = append(sections, mediaSection{mid: mid, transceiver: t})

		media := &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   remoteMedia.MediaName.Media,
				Port:    sdp.RangedPort{Value: 9},
				Protos:  remoteMedia.MediaName.Protos,
				Formats: remoteMedia.MediaName.Formats,
			},
			ConnectionInformation: &sdp.ConnectionInformation{
				NetworkType: "IN",
				AddressType: "IP4",
				Address:     &sdp.Address{Address: "0.0.0.0"},
			},
		}
		pc.addTransportAttributes(media, sdpAttributeActive)
		media.WithValueAttribute("mid", mid)
		media.WithPropertyAttribute(answerDirection(remoteMedia).String())
		media.WithPropertyAttribute("rtcp-mux")

		// copy rtpmap/fmtp/rtcp-fb/extmap verbatim
		for _, a := range remoteMedia.Attributes {
			switch a.Key {
			case "rtpmap", "fmtp", "rtcp-fb", "extmap":
				media.WithValueAttribute(a.Key, a.Value)
			}
		}

		// local ssrc lines, with a FID group when the remote offered RTX
		if sender := t.Sender(); sender != nil {
			if _, ok := remoteMedia.Attribute("ssrc-group"); ok {
				media.WithValueAttribute("ssrc-group", fmt.Sprintf("FID %d %d", sender.SSRC(), sender.RTXSSRC()))
				media.WithValueAttribute("ssrc", fmt.Sprintf("%d cname:%s", sender.SSRC(), pc.cname))
				media.WithValueAttribute("ssrc", fmt.Sprintf("%d cname:%s", sender.RTXSSRC(), pc.cname))
			} else {
				media.WithValueAttribute("ssrc", fmt.Sprintf("%d cname:%s", sender.SSRC(), pc.cname))
			}
		}

		pc.addLocalCandidates(media)
		desc.MediaDescriptions = append(desc.MediaDescriptions, media)
	}

	if parsed.HasAttribute("group") || pc.config.BundlePolicy != BundlePolicyDisable {
		desc.Attributes = append([]sdp.Attribute{
			sdp.NewAttribute("group", "BUNDLE "+strings.Join(bundleMIDs, " ")),
		}, desc.Attributes...)
	}

	pc.pendingSections = sections
	return desc.Marshal(), nil
}

// answerDirection mirrors the remote direction attribute.
func answerDirection(remoteMedia *sdp.MediaDescription) RTPTransceiverDirection {
	switch {
	case remoteMedia.HasAttribute("sendonly"):
		return RTPTransceiverDirectionRecvonly
	case remoteMedia.HasAttribute("recvonly"):
		return RTPTransceiverDirectionSendonly
	case remoteMedia.HasAttribute("inactive"):
		return RTPTransceiverDirectionInactive
	default:
		return RTPTransceiverDirectionSendrecv
	}
}

func (pc *PeerConnection) findOrCreateTransceiver(kind RTPCodecType, mid string) *RTPTransceiver {
	for _, t := range pc.transceivers {
		if t.Mid() == mid {
			return t
		}
	}
	for _, t := range pc.transceivers {
		if t.Kind() == kind && t.Mid() == "" {
			return t
		}
	}

	t := newRTPTransceiver(kind, RTPTransceiverDirectionRecvonly, pc.mediaEngine.codecsFor(kind))
	t.setReceiver(newRTPReceiver(kind))
	pc.transceivers = append(pc.transceivers, t)
	return t
}

// remoteDescriptionDetails is everything the transports need out of a
// remote SDP.
type remoteDescriptionDetails struct {
	iceUfrag       string
	icePwd         string
	fingerprintAlg string
	fingerprint    string
	iceLite        bool
	hasApplication bool
	setup          string
	candidates     []*ice.Candidate
	ssrcInfo       []remoteSSRC
}

type remoteSSRC struct {
	mid   string
	kind  RTPCodecType
	ssrc  uint32
	rtx   bool
	rid   string
}

// extractRemoteDetails pulls credentials, fingerprints, candidates and SSRC
// declarations out of a parsed remote description.
func extractRemoteDetails(parsed *sdp.SessionDescription) (*remoteDescriptionDetails, error) { //nolint:gocognit,gocyclo
	details := &remoteDescriptionDetails{}

	if _, ok := parsed.Attribute("ice-lite"); ok {
		details.iceLite = true
	}
	if ufrag, ok := parsed.Attribute("ice-ufrag"); ok {
		details.iceUfrag = ufrag
	}
	if pwd, ok := parsed.Attribute("ice-pwd"); ok {
		details.icePwd = pwd
	}
	if fp, ok := parsed.Attribute("fingerprint"); ok {
		parts := strings.SplitN(fp, " ", 2)
		if len(parts) == 2 {
			details.fingerprintAlg, details.fingerprint = parts[0], parts[1]
		}
	}

	for _, media := range parsed.MediaDescriptions {
		mid, _ := media.Attribute("mid")
		kind := NewRTPCodecType(media.MediaName.Media)

		if media.MediaName.Media == mediaSectionApplication {
			details.hasApplication = true
		}
		if _, ok := media.Attribute("ice-lite"); ok {
			details.iceLite = true
		}
		if details.iceUfrag == "" {
			if ufrag, ok := media.Attribute("ice-ufrag"); ok {
				details.iceUfrag = ufrag
			}
		}
		if details.icePwd == "" {
			if pwd, ok := media.Attribute("ice-pwd"); ok {
				details.icePwd = pwd
			}
		}
		if details.fingerprint == "" {
			if fp, ok := media.Attribute("fingerprint"); ok {
				parts := strings.SplitN(fp, " ", 2)
				if len(parts) == 2 {
					details.fingerprintAlg, details.fingerprint = parts[0], parts[1]
				}
			}
		}
		if setup, ok := media.Attribute("setup"); ok {
			details.setup = setup
		}

		for _, raw := range media.AttributeValues("candidate") {
			if c, err := ice.UnmarshalCandidate(raw); err == nil {
				details.candidates = append(details.candidates, c)
			}
		}

		// ssrc-group:FID <primary> <rtx>
		rtxSSRCs := map[uint32]bool{}
		for _, group := range media.AttributeValues("ssrc-group") {
			fields := strings.Fields(group)
			if len(fields) == 3 && fields[0] == "FID" {
				if rtx, err := strconv.ParseUint(fields[2], 10, 32); err == nil {
					rtxSSRCs[uint32(rtx)] = true
				}
			}
		}

		seenSSRC := map[uint32]bool{}
		for _, line := range media.AttributeValues("ssrc") {
			fields := strings.Fields(line)
			if len(fields) < 1 {
				continue
			}
			ssrc, err := strconv.ParseUint(fields[0], 10, 32)
			if err != nil || seenSSRC[uint32(ssrc)] {
				continue
			}
			seenSSRC[uint32(ssrc)] = true
			details.ssrcInfo = append(details.ssrcInfo, remoteSSRC{
				mid:  mid,
				kind: kind,
				ssrc: uint32(ssrc),
				rtx:  rtxSSRCs[uint32(ssrc)],
			})
		}

		// simulcast: rid lines carry layer identifiers
		for _, rid := range media.AttributeValues("rid") {
			fields := strings.Fields(rid)
			if len(fields) >= 2 && fields[1] == "send" {
				details.ssrcInfo = append(details.ssrcInfo, remoteSSRC{mid: mid, kind: kind, rid: fields[0]})
			}
		}
	}

	if details.iceUfrag == "" || details.icePwd == "" {
		return nil, errICECredentialsMissing
	}
	return details, nil
}
