// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package webrtc implements the WebRTC 1.0 as defined in W3C WebRTC
// specification document, on top of in-repo ICE, DTLS, SRTP, SCTP, RTP/RTCP
// and SDP engines.
package webrtc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/randutil"

	"github.com/sjhorn/webrtc/internal/datachannel"
	"github.com/sjhorn/webrtc/internal/dtls"
	"github.com/sjhorn/webrtc/internal/ice"
	"github.com/sjhorn/webrtc/internal/mux"
	"github.com/sjhorn/webrtc/internal/rtp"
	"github.com/sjhorn/webrtc/internal/sctp"
	"github.com/sjhorn/webrtc/internal/sdp"
	"github.com/sjhorn/webrtc/internal/srtp"

	"crypto/x509"
)

// PeerConnection represents a WebRTC connection that establishes a
// peer-to-peer communications with another PeerConnection instance in a
// browser, or to another endpoint implementing the required protocols.
type PeerConnection struct {
	mu sync.Mutex

	ops *operations
	log logging.LeveledLogger

	config      Configuration
	mediaEngine *MediaEngine
	certificate *Certificate
	cname       string

	iceAgent        *ice.Agent
	localCandidates []*ice.Candidate

	signalingState     SignalingState
	iceGatheringState  ICEGatheringState
	iceConnectionState ICEConnectionState
	dtlsState          DTLSTransportState
	sctpState          SCTPTransportState
	connectionState    PeerConnectionState

	currentLocalDescription  *SessionDescription
	pendingLocalDescription  *SessionDescription
	currentRemoteDescription *SessionDescription
	pendingRemoteDescription *SessionDescription

	transceivers []*RTPTransceiver

	sdpVersion         int
	nextMID            int
	usedMIDs           map[string]bool
	pendingSections    []mediaSection
	negotiatedSections []mediaSection

	remoteDetails *remoteDescriptionDetails
	dtlsRole      DTLSRole
	isOfferer     bool

	muxer       *mux.Mux
	dtlsConn    *dtls.Conn
	srtpWriter  *srtp.Context
	srtpReader  *srtp.Context
	srtcpReader *srtp.Context

	sctpAssociation     *sctp.Association
	dataChannels        map[uint16]*DataChannel
	pendingDataChannels []*DataChannel
	nextEvenStreamID    uint16
	nextOddStreamID     uint16

	onICECandidateHandler           func(*ICECandidate)
	onICEConnectionStateChangeHandler func(ICEConnectionState)
	onICEGatheringStateChangeHandler func(ICEGatheringState)
	onConnectionStateChangeHandler  func(PeerConnectionState)
	onSignalingStateChangeHandler   func(SignalingState)
	onDataChannelHandler            func(*DataChannel)
	onTrackHandler                  func(*TrackRemote, *RTPReceiver)

	gatheringStarted  bool
	transportsStarted bool
	isClosed          bool
}

// NewPeerConnection creates a PeerConnection with the given configuration.
func NewPeerConnection(configuration Configuration) (*PeerConnection, error) {
	loggerFactory := logging.NewDefaultLoggerFactory()

	certificate := &Certificate{}
	if len(configuration.Certificates) > 0 {
		if configuration.Certificates[0].Expired() {
			return nil, &InvalidAccessError{Err: errCertificateExpired}
		}
		certificate = &configuration.Certificates[0]
	} else {
		var err error
		if certificate, err = GenerateCertificate(); err != nil {
			return nil, err
		}
	}

	mediaEngine := &MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	urls, err := configuration.iceURLs()
	if err != nil {
		return nil, err
	}

	iceAgent, err := ice.NewAgent(ice.AgentConfig{
		Urls:          urls,
		RelayOnly:     configuration.ICETransportPolicy == ICETransportPolicyRelay,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, err
	}

	cname, err := randutil.GenerateCryptoRandomString(16, mathRandRunes)
	if err != nil {
		return nil, err
	}

	pc := &PeerConnection{
		ops:               newOperations(),
		log:               loggerFactory.NewLogger("pc"),
		config:            configuration,
		mediaEngine:       mediaEngine,
		certificate:       certificate,
		cname:             cname,
		iceAgent:          iceAgent,
		signalingState:    SignalingStateStable,
		iceGatheringState: ICEGatheringStateNew,
		iceConnectionState: ICEConnectionStateNew,
		dtlsState:         DTLSTransportStateNew,
		connectionState:   PeerConnectionStateNew,
		nextMID:           1,
		usedMIDs:          map[string]bool{},
		dataChannels:      map[uint16]*DataChannel{},
		nextEvenStreamID:  0,
		nextOddStreamID:   1,
	}

	iceAgent.OnConnectionStateChange(func(state ice.ConnectionState) {
		pc.handleICEStateChange(state)
	})

	return pc, nil
}

// OnICECandidate sets an event handler which is invoked when a new ICE
// candidate is found. A nil candidate signals the end of gathering.
func (pc *PeerConnection) OnICECandidate(f func(*ICECandidate)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onICECandidateHandler = f
}

// OnICEConnectionStateChange sets an event handler which is called when an
// ICE connection state is changed.
func (pc *PeerConnection) OnICEConnectionStateChange(f func(ICEConnectionState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onICEConnectionStateChangeHandler = f
}

// OnICEGatheringStateChange sets an event handler which is invoked when the
// ICE candidate gathering state has changed.
func (pc *PeerConnection) OnICEGatheringStateChange(f func(ICEGatheringState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onICEGatheringStateChangeHandler = f
}

// OnConnectionStateChange sets an event handler which is called when the
// PeerConnectionState has changed.
func (pc *PeerConnection) OnConnectionStateChange(f func(PeerConnectionState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onConnectionStateChangeHandler = f
}

// OnSignalingStateChange sets an event handler which is invoked when the
// peer connection's signaling state changes.
func (pc *PeerConnection) OnSignalingStateChange(f func(SignalingState)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onSignalingStateChangeHandler = f
}

// OnDataChannel sets an event handler which is invoked once for each data
// channel the remote peer opens.
func (pc *PeerConnection) OnDataChannel(f func(*DataChannel)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onDataChannelHandler = f
}

// OnTrack sets an event handler which is called when remote track arrives
// from a remote peer.
func (pc *PeerConnection) OnTrack(f func(*TrackRemote, *RTPReceiver)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onTrackHandler = f
}

// SignalingState returns the signaling state of the PeerConnection.
func (pc *PeerConnection) SignalingState() SignalingState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.signalingState
}

// ICEConnectionState returns the ICE connection state of the PeerConnection.
func (pc *PeerConnection) ICEConnectionState() ICEConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.iceConnectionState
}

// ConnectionState returns the peer connection state: the worst of the ICE,
// DTLS and SCTP transport states.
func (pc *PeerConnection) ConnectionState() PeerConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.connectionState
}

// ICEGatheringState attribute returns the ICE gathering state of the
// PeerConnection instance.
func (pc *PeerConnection) ICEGatheringState() ICEGatheringState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.iceGatheringState
}

// updateConnectionState recomputes the aggregate connection state; the
// reported state is the worst of the component transports, ordered
// new < connecting < connected < disconnected < failed < closed.
func (pc *PeerConnection) updateConnectionState() {
	pc.mu.Lock()
	if pc.isClosed {
		pc.mu.Unlock()
		return
	}

	worst := PeerConnectionStateNew

	bump := func(s PeerConnectionState) {
		if s > worst {
			worst = s
		}
	}

	switch pc.iceConnectionState {
	case ICEConnectionStateChecking:
		bump(PeerConnectionStateConnecting)
	case ICEConnectionStateConnected, ICEConnectionStateCompleted:
		bump(PeerConnectionStateConnected)
	case ICEConnectionStateDisconnected:
		bump(PeerConnectionStateDisconnected)
	case ICEConnectionStateFailed:
		bump(PeerConnectionStateFailed)
	case ICEConnectionStateClosed:
		bump(PeerConnectionStateClosed)
	case ICEConnectionStateUnknown, ICEConnectionStateNew:
	}

	switch pc.dtlsState {
	case DTLSTransportStateConnecting:
		bump(PeerConnectionStateConnecting)
	case DTLSTransportStateConnected:
		bump(PeerConnectionStateConnected)
	case DTLSTransportStateFailed:
		bump(PeerConnectionStateFailed)
	case DTLSTransportStateClosed:
		bump(PeerConnectionStateClosed)
	case DTLSTransportStateUnknown, DTLSTransportStateNew:
	}

	switch pc.sctpState {
	case SCTPTransportStateConnecting:
		bump(PeerConnectionStateConnecting)
	case SCTPTransportStateConnected:
		bump(PeerConnectionStateConnected)
	case SCTPTransportStateUnknown, SCTPTransportStateClosed:
	}

	// connected only counts once every started transport is connected
	if worst == PeerConnectionStateConnected {
		if pc.iceConnectionState != ICEConnectionStateConnected &&
			pc.iceConnectionState != ICEConnectionStateCompleted {
			worst = PeerConnectionStateConnecting
		}
		if pc.dtlsState != DTLSTransportStateConnected {
			worst = PeerConnectionStateConnecting
		}
	}

	changed := worst != pc.connectionState
	pc.connectionState = worst
	handler := pc.onConnectionStateChangeHandler
	pc.mu.Unlock()

	if changed && handler != nil {
		handler(worst)
	}
}

func (pc *PeerConnection) handleICEStateChange(state ice.ConnectionState) {
	var mapped ICEConnectionState
	switch state {
	case ice.ConnectionStateNew:
		mapped = ICEConnectionStateNew
	case ice.ConnectionStateChecking:
		mapped = ICEConnectionStateChecking
	case ice.ConnectionStateConnected:
		mapped = ICEConnectionStateConnected
	case ice.ConnectionStateCompleted:
		mapped = ICEConnectionStateCompleted
	case ice.ConnectionStateDisconnected:
		mapped = ICEConnectionStateDisconnected
	case ice.ConnectionStateFailed:
		mapped = ICEConnectionStateFailed
	case ice.ConnectionStateClosed:
		mapped = ICEConnectionStateClosed
	}

	pc.mu.Lock()
	pc.iceConnectionState = mapped
	handler := pc.onICEConnectionStateChangeHandler
	pc.mu.Unlock()

	if handler != nil {
		handler(mapped)
	}
	pc.updateConnectionState()
}

// CreateOffer starts the PeerConnection and generates the localDescription.
// It does not start ICE or DTLS; that happens when the description is applied.
func (pc *PeerConnection) CreateOffer() (SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.isClosed {
		return SessionDescription{}, &InvalidStateError{Err: errConnectionClosed}
	}

	raw, err := pc.buildOffer()
	if err != nil {
		return SessionDescription{}, err
	}
	pc.isOfferer = true
	return SessionDescription{Type: SDPTypeOffer, SDP: raw}, nil
}

// CreateAnswer generates an SDP answer matching the applied remote offer.
func (pc *PeerConnection) CreateAnswer() (SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.isClosed {
		return SessionDescription{}, &InvalidStateError{Err: errConnectionClosed}
	}
	if pc.signalingState != SignalingStateHaveRemoteOffer && pc.signalingState != SignalingStateHaveLocalPranswer {
		return SessionDescription{}, &InvalidStateError{Err: errNoRemoteDescription}
	}

	raw, err := pc.buildAnswer()
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: SDPTypeAnswer, SDP: raw}, nil
}

// SetLocalDescription sets the SessionDescription of the local peer: it
// validates the signaling transition, starts candidate gathering and commits
// our side of the DTLS role.
func (pc *PeerConnection) SetLocalDescription(desc SessionDescription) error {
	pc.mu.Lock()
	if pc.isClosed {
		pc.mu.Unlock()
		return &InvalidStateError{Err: errConnectionClosed}
	}

	var nextState SignalingState
	var err error
	switch desc.Type {
	case SDPTypeOffer:
		nextState, err = checkNextSignalingState(pc.signalingState, SignalingStateHaveLocalOffer, stateChangeOpSetLocal, desc.Type)
		if err == nil {
			pc.pendingLocalDescription = &desc
		}
	case SDPTypeAnswer:
		nextState, err = checkNextSignalingState(pc.signalingState, SignalingStateStable, stateChangeOpSetLocal, desc.Type)
		if err == nil {
			pc.currentLocalDescription = &desc
			pc.currentRemoteDescription = pc.pendingRemoteDescription
			pc.pendingRemoteDescription = nil
			pc.pendingLocalDescription = nil
			pc.negotiatedSections = pc.pendingSections
			// the answerer chose active: we are the DTLS client
			pc.dtlsRole = DTLSRoleClient
		}
	case SDPTypePranswer:
		nextState, err = checkNextSignalingState(pc.signalingState, SignalingStateHaveLocalPranswer, stateChangeOpSetLocal, desc.Type)
		if err == nil {
			pc.pendingLocalDescription = &desc
		}
	case SDPTypeRollback:
		nextState, err = checkNextSignalingState(pc.signalingState, SignalingStateStable, stateChangeOpSetLocal, desc.Type)
		if err == nil {
			pc.pendingLocalDescription = nil
		}
	case SDPTypeUnknown:
		err = &TypeError{Err: fmt.Errorf("%w: %s", errLocalDescriptionType, desc.Type)}
	}
	if err != nil {
		pc.mu.Unlock()
		return err
	}

	pc.signalingState = nextState
	signalingHandler := pc.onSignalingStateChangeHandler
	shouldGather := !pc.gatheringStarted
	pc.gatheringStarted = true
	pc.mu.Unlock()

	if signalingHandler != nil {
		signalingHandler(nextState)
	}

	if shouldGather {
		pc.startGathering()
	}
	pc.maybeStartTransports()
	return nil
}

// startGathering wires the agent's candidate events to the public callback
// and kicks off gathering.
func (pc *PeerConnection) startGathering() {
	pc.setGatheringState(ICEGatheringStateGathering)

	pc.iceAgent.OnCandidate(func(c *ice.Candidate) {
		pc.mu.Lock()
		handler := pc.onICECandidateHandler
		if c != nil {
			pc.localCandidates = append(pc.localCandidates, c)
		}
		pc.mu.Unlock()

		if c == nil {
			pc.setGatheringState(ICEGatheringStateComplete)
			if handler != nil {
				handler(nil)
			}
			return
		}
		if handler != nil {
			candidate := newICECandidateFromICE(c)
			handler(&candidate)
		}
	})

	pc.ops.Enqueue(func() {
		if err := pc.iceAgent.GatherCandidates(); err != nil {
			pc.log.Errorf("gathering failed: %v", err)
		}
	})
}

func (pc *PeerConnection) setGatheringState(state ICEGatheringState) {
	pc.mu.Lock()
	changed := pc.iceGatheringState != state
	pc.iceGatheringState = state
	handler := pc.onICEGatheringStateChangeHandler
	pc.mu.Unlock()

	if changed && handler != nil {
		handler(state)
	}
}

// SetRemoteDescription sets the SessionDescription of the remote peer: it
// validates the transition, installs remote credentials and candidates, and
// triggers the ICE checklist and (once a pair is selected) DTLS.
func (pc *PeerConnection) SetRemoteDescription(desc SessionDescription) error { //nolint:gocognit
	pc.mu.Lock()
	if pc.isClosed {
		pc.mu.Unlock()
		return &InvalidStateError{Err: errConnectionClosed}
	}

	var nextState SignalingState
	var err error
	switch desc.Type {
	case SDPTypeOffer:
		nextState, err = checkNextSignalingState(pc.signalingState, SignalingStateHaveRemoteOffer, stateChangeOpSetRemote, desc.Type)
		if err == nil {
			pc.pendingRemoteDescription = &desc
		}
	case SDPTypeAnswer:
		nextState, err = checkNextSignalingState(pc.signalingState, SignalingStateStable, stateChangeOpSetRemote, desc.Type)
		if err == nil {
			pc.currentRemoteDescription = &desc
			pc.currentLocalDescription = pc.pendingLocalDescription
			pc.pendingLocalDescription = nil
			pc.pendingRemoteDescription = nil
			pc.negotiatedSections = pc.pendingSections
		}
	case SDPTypePranswer:
		nextState, err = checkNextSignalingState(pc.signalingState, SignalingStateHaveRemotePranswer, stateChangeOpSetRemote, desc.Type)
		if err == nil {
			pc.pendingRemoteDescription = &desc
		}
	case SDPTypeRollback:
		nextState, err = checkNextSignalingState(pc.signalingState, SignalingStateStable, stateChangeOpSetRemote, desc.Type)
		if err == nil {
			pc.pendingRemoteDescription = nil
		}
	case SDPTypeUnknown:
		err = &TypeError{Err: fmt.Errorf("%w: %s", errLocalDescriptionType, desc.Type)}
	}
	if err != nil {
		pc.mu.Unlock()
		return err
	}

	var details *remoteDescriptionDetails
	if desc.Type == SDPTypeOffer || desc.Type == SDPTypeAnswer || desc.Type == SDPTypePranswer {
		parsed := &sdp.SessionDescription{}
		if err := parsed.Unmarshal(desc.SDP); err != nil {
			pc.mu.Unlock()
			return &TypeError{Err: err}
		}
		if details, err = extractRemoteDetails(parsed); err != nil {
			pc.mu.Unlock()
			return &TypeError{Err: err}
		}
		pc.remoteDetails = details
		pc.registerRemoteMIDs(parsed)

		// commit the DTLS role from the remote setup attribute
		switch details.setup {
		case sdpAttributeActive:
			pc.dtlsRole = DTLSRoleServer
		case sdpAttributePassive:
			pc.dtlsRole = DTLSRoleClient
		case sdpAttributeActpass:
			if pc.dtlsRole == DTLSRoleUnknown || pc.dtlsRole == DTLSRoleAuto {
				pc.dtlsRole = DTLSRoleClient
			}
		}

		pc.prepareRemoteTracksLocked(details)
	}

	pc.signalingState = nextState
	signalingHandler := pc.onSignalingStateChangeHandler
	pc.mu.Unlock()

	if signalingHandler != nil {
		signalingHandler(nextState)
	}

	if details != nil {
		pc.iceAgent.SetRemoteCredentials(details.iceUfrag, details.icePwd)
		if details.iceLite {
			pc.iceAgent.SetRemoteIsLite()
		}
		for _, c := range details.candidates {
			pc.iceAgent.AddRemoteCandidate(c)
		}
	}

	pc.maybeStartTransports()
	return nil
}

// prepareRemoteTracksLocked creates remote tracks for every SSRC the remote
// description declares.
func (pc *PeerConnection) prepareRemoteTracksLocked(details *remoteDescriptionDetails) {
	for _, info := range details.ssrcInfo {
		if info.rtx || info.ssrc == 0 {
			continue
		}

		var transceiver *RTPTransceiver
		for _, t := range pc.transceivers {
			if t.Mid() == info.mid {
				transceiver = t
				break
			}
		}
		if transceiver == nil {
			transceiver = pc.findOrCreateTransceiver(info.kind, info.mid)
			if transceiver.Mid() == "" {
				transceiver.setMid(info.mid)
			}
		}
		receiver := transceiver.Receiver()
		if receiver == nil {
			receiver = newRTPReceiver(info.kind)
			transceiver.setReceiver(receiver)
		}
		if receiver.trackBySSRC(info.ssrc) == nil {
			var codec RTPCodecParameters
			if codecs := transceiver.Codecs(); len(codecs) > 0 {
				codec = codecs[0]
			}
			receiver.addTrack(newTrackRemote(info.kind, info.ssrc, info.rid, codec))
		}
	}
}

// maybeStartTransports starts ICE checks and, once a pair is nominated, the
// DTLS handshake, SRTP keying and the SCTP association.
func (pc *PeerConnection) maybeStartTransports() {
	pc.mu.Lock()
	ready := pc.remoteDetails != nil && pc.gatheringStarted && !pc.transportsStarted &&
		(pc.currentLocalDescription != nil || pc.pendingLocalDescription != nil)
	if ready {
		pc.transportsStarted = true
	}
	details := pc.remoteDetails
	isOfferer := pc.isOfferer
	pc.mu.Unlock()

	if !ready {
		return
	}

	// the offerer takes the controlling role
	if err := pc.iceAgent.StartConnectivityChecks(isOfferer); err != nil {
		pc.log.Errorf("starting connectivity checks: %v", err)
		return
	}

	pc.ops.Enqueue(func() {
		if err := pc.startDTLS(details); err != nil {
			pc.log.Errorf("dtls failed: %v", err)
			pc.mu.Lock()
			pc.dtlsState = DTLSTransportStateFailed
			pc.mu.Unlock()
			pc.updateConnectionState()
			return
		}
		if err := pc.startSRTP(); err != nil {
			pc.log.Errorf("srtp failed: %v", err)
			return
		}
		pc.startSCTP(details)
	})
}

// startDTLS waits for the selected pair, muxes the socket and runs the DTLS
// handshake in the committed role.
func (pc *PeerConnection) startDTLS(details *remoteDescriptionDetails) error {
	iceConn, err := pc.iceAgent.Conn()
	if err != nil {
		return err
	}

	pc.mu.Lock()
	pc.dtlsState = DTLSTransportStateConnecting
	role := pc.dtlsRole
	pc.mu.Unlock()
	pc.updateConnectionState()

	muxer := mux.NewMux(mux.Config{Conn: iceConn, BufferSize: 8192})
	dtlsEndpoint := muxer.NewEndpoint(mux.MatchDTLS)

	pc.mu.Lock()
	pc.muxer = muxer
	pc.mu.Unlock()

	if details.fingerprint == "" {
		return errFingerprintMissing
	}
	verify := func(cert *x509.Certificate) error {
		return matchesFingerprint(cert.Raw, details.fingerprintAlg, details.fingerprint)
	}

	dtlsConfig := &dtls.Config{
		Certificate: pc.certificate.der,
		PrivateKey:  pc.certificate.privateKey,
		SRTPProtectionProfiles: []dtls.SRTPProtectionProfile{
			dtls.SRTP_AEAD_AES_128_GCM,
			dtls.SRTP_AES128_CM_HMAC_SHA1_80,
		},
		ExtendedMasterSecret:  true,
		VerifyPeerCertificate: verify,
	}

	var dtlsConn *dtls.Conn
	if role == DTLSRoleClient {
		dtlsConn, err = dtls.Client(dtlsEndpoint, dtlsConfig)
	} else {
		dtlsConfig.RequireClientCertificate = true
		dtlsConn, err = dtls.Server(dtlsEndpoint, dtlsConfig)
	}
	if err != nil {
		return err
	}

	pc.mu.Lock()
	pc.dtlsConn = dtlsConn
	pc.dtlsState = DTLSTransportStateConnected
	pc.mu.Unlock()
	pc.updateConnectionState()
	return nil
}

// startSRTP derives the SRTP contexts from the DTLS exporter (RFC 5764) and
// begins decrypting inbound media.
func (pc *PeerConnection) startSRTP() error {
	pc.mu.Lock()
	dtlsConn := pc.dtlsConn
	muxer := pc.muxer
	role := pc.dtlsRole
	pc.mu.Unlock()

	profileID, ok := dtlsConn.SelectedSRTPProtectionProfile()
	if !ok {
		// media-less connection; nothing to key
		return nil
	}

	var profile srtp.ProtectionProfile
	switch profileID {
	case dtls.SRTP_AEAD_AES_128_GCM:
		profile = srtp.ProtectionProfileAeadAes128Gcm
	case dtls.SRTP_AES128_CM_HMAC_SHA1_80:
		profile = srtp.ProtectionProfileAes128CmHmacSha1_80
	}

	keyLen, err := profile.KeyLen()
	if err != nil {
		return err
	}
	saltLen, err := profile.SaltLen()
	if err != nil {
		return err
	}
	materialLen, err := profile.KeyMaterialLen()
	if err != nil {
		return err
	}

	material, err := dtlsConn.ExportKeyingMaterial("EXTRACTOR-dtls_srtp", materialLen)
	if err != nil {
		return err
	}

	clientKey, material := material[:keyLen], material[keyLen:]
	serverKey, material := material[:keyLen], material[keyLen:]
	clientSalt, material := material[:saltLen], material[saltLen:]
	serverSalt := material[:saltLen]

	localKey, localSalt := clientKey, clientSalt
	remoteKey, remoteSalt := serverKey, serverSalt
	if role == DTLSRoleServer {
		localKey, localSalt = serverKey, serverSalt
		remoteKey, remoteSalt = clientKey, clientSalt
	}

	writer, err := srtp.CreateContext(localKey, localSalt, profile)
	if err != nil {
		return err
	}
	reader, err := srtp.CreateContext(remoteKey, remoteSalt, profile)
	if err != nil {
		return err
	}
	rtcpReader, err := srtp.CreateContext(remoteKey, remoteSalt, profile)
	if err != nil {
		return err
	}

	pc.mu.Lock()
	pc.srtpWriter = writer
	pc.srtpReader = reader
	pc.srtcpReader = rtcpReader
	srtpEndpoint := muxer.NewEndpoint(mux.MatchSRTP)
	srtcpEndpoint := muxer.NewEndpoint(mux.MatchSRTCP)
	pc.mu.Unlock()

	pc.bindSenders(srtpEndpoint)
	go pc.srtpReadLoop(srtpEndpoint)
	go pc.srtcpReadLoop(srtcpEndpoint)
	return nil
}

// bindSenders attaches every sending track to the protected write path.
func (pc *PeerConnection) bindSenders(endpoint *mux.Endpoint) {
	pc.mu.Lock()
	transceivers := append([]*RTPTransceiver(nil), pc.transceivers...)
	writer := pc.srtpWriter
	pc.mu.Unlock()

	for _, t := range transceivers {
		sender := t.Sender()
		if sender == nil {
			continue
		}
		var payloadType PayloadType
		if codecs := t.Codecs(); len(codecs) > 0 {
			payloadType = codecs[0].PayloadType
		}
		sender.bindTransport(payloadType, func(p *rtp.Packet) error {
			raw, err := p.Marshal()
			if err != nil {
				return err
			}
			pc.mu.Lock()
			encrypted, err := writer.EncryptRTP(raw)
			pc.mu.Unlock()
			if err != nil {
				return err
			}
			_, err = endpoint.Write(encrypted)
			return err
		})
	}
}

// srtpReadLoop decrypts inbound SRTP and routes packets to remote tracks,
// creating tracks for undeclared SSRCs as they appear.
func (pc *PeerConnection) srtpReadLoop(endpoint *mux.Endpoint) {
	buf := make([]byte, 8192)
	announced := map[uint32]bool{}
	for {
		n, err := endpoint.Read(buf)
		if err != nil {
			return
		}

		pc.mu.Lock()
		reader := pc.srtpReader
		pc.mu.Unlock()

		decrypted, err := reader.DecryptRTP(buf[:n])
		if err != nil {
			pc.log.Debugf("discarding srtp packet: %v", err)
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(decrypted); err != nil {
			pc.log.Debugf("discarding malformed rtp: %v", err)
			continue
		}

		track, receiver := pc.trackForSSRC(pkt.SSRC)
		if track == nil {
			continue
		}
		if !announced[pkt.SSRC] {
			announced[pkt.SSRC] = true
			pc.mu.Lock()
			handler := pc.onTrackHandler
			pc.mu.Unlock()
			if handler != nil {
				go handler(track, receiver)
			}
		}
		track.deliver(pkt.Clone())
	}
}

func (pc *PeerConnection) trackForSSRC(ssrc uint32) (*TrackRemote, *RTPReceiver) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, t := range pc.transceivers {
		receiver := t.Receiver()
		if receiver == nil {
			continue
		}
		if track := receiver.trackBySSRC(ssrc); track != nil {
			return track, receiver
		}
	}
	return nil, nil
}

// srtcpReadLoop authenticates and decrypts inbound SRTCP and then drops the
// packets; no RTCP feedback is passed to the senders.
func (pc *PeerConnection) srtcpReadLoop(endpoint *mux.Endpoint) {
	buf := make([]byte, 8192)
	for {
		n, err := endpoint.Read(buf)
		if err != nil {
			return
		}

		pc.mu.Lock()
		reader := pc.srtcpReader
		pc.mu.Unlock()

		if _, err := reader.DecryptRTCP(buf[:n]); err != nil {
			pc.log.Debugf("discarding srtcp packet: %v", err)
		}
	}
}

// startSCTP runs the association when either side negotiated an application
// m-line, then dials pending channels and accepts inbound ones.
func (pc *PeerConnection) startSCTP(details *remoteDescriptionDetails) {
	pc.mu.Lock()
	wantData := details.hasApplication || len(pc.pendingDataChannels) > 0
	dtlsConn := pc.dtlsConn
	role := pc.dtlsRole
	pending := append([]*DataChannel(nil), pc.pendingDataChannels...)
	pc.mu.Unlock()

	if !wantData || dtlsConn == nil {
		return
	}

	pc.mu.Lock()
	pc.sctpState = SCTPTransportStateConnecting
	pc.mu.Unlock()
	pc.updateConnectionState()

	var assoc *sctp.Association
	var err error
	if role == DTLSRoleClient {
		assoc, err = sctp.Client(sctp.Config{NetConn: dtlsConn})
	} else {
		assoc, err = sctp.Server(sctp.Config{NetConn: dtlsConn})
	}
	if err != nil {
		pc.log.Errorf("sctp failed: %v", err)
		pc.mu.Lock()
		pc.sctpState = SCTPTransportStateClosed
		pc.mu.Unlock()
		pc.updateConnectionState()
		return
	}

	pc.mu.Lock()
	pc.sctpAssociation = assoc
	pc.sctpState = SCTPTransportStateConnected
	pc.pendingDataChannels = nil
	pc.mu.Unlock()
	pc.updateConnectionState()

	for _, channel := range pending {
		channel := channel
		pc.ops.Enqueue(func() { pc.dialDataChannel(channel) })
	}

	go pc.acceptDataChannels(assoc)
}

func (pc *PeerConnection) allocateStreamID() uint16 {
	// the DTLS client uses even stream ids, the server odd (RFC 8832 §6)
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.dtlsRole == DTLSRoleClient {
		id := pc.nextEvenStreamID
		pc.nextEvenStreamID += 2
		return id
	}
	id := pc.nextOddStreamID
	pc.nextOddStreamID += 2
	return id
}

func (pc *PeerConnection) dialDataChannel(channel *DataChannel) {
	pc.mu.Lock()
	assoc := pc.sctpAssociation
	pc.mu.Unlock()

	streamID := pc.allocateStreamID()
	if channel.id != nil {
		streamID = *channel.id
	}

	stream, err := assoc.OpenStream(streamID, sctp.PayloadTypeWebRTCDCEP)
	if err != nil {
		pc.log.Errorf("opening stream %d: %v", streamID, err)
		return
	}

	channelType := datachannel.ChannelTypeReliable
	var reliability uint32
	switch {
	case channel.maxRetransmits != nil:
		channelType = datachannel.ChannelTypePartialReliableRexmit
		reliability = uint32(*channel.maxRetransmits)
	case channel.maxPacketLifeTime != nil:
		channelType = datachannel.ChannelTypePartialReliableTimed
		reliability = uint32(*channel.maxPacketLifeTime)
	}
	if !channel.ordered {
		channelType |= 0x80
	}

	dc, err := datachannel.Dial(stream, &datachannel.Config{
		ChannelType:          channelType,
		Negotiated:           channel.negotiated,
		ReliabilityParameter: reliability,
		Label:                channel.label,
		Protocol:             channel.protocol,
	})
	if err != nil {
		pc.log.Errorf("dialing data channel %q: %v", channel.label, err)
		return
	}

	pc.mu.Lock()
	pc.dataChannels[stream.StreamIdentifier()] = channel
	pc.mu.Unlock()
	channel.open(dc)
}

func (pc *PeerConnection) acceptDataChannels(assoc *sctp.Association) {
	for {
		stream, err := assoc.AcceptStream()
		if err != nil {
			return
		}

		go func() {
			dc, err := datachannel.Accept(stream)
			if err != nil {
				pc.log.Warnf("accepting data channel: %v", err)
				return
			}

			channel := &DataChannel{
				label:      dc.Label,
				protocol:   dc.Protocol,
				ordered:    dc.ChannelType&0x80 == 0,
				readyState: DataChannelStateConnecting,
			}

			pc.mu.Lock()
			pc.dataChannels[stream.StreamIdentifier()] = channel
			handler := pc.onDataChannelHandler
			pc.mu.Unlock()

			if handler != nil {
				handler(channel)
			}
			channel.open(dc)
		}()
	}
}

// CreateDataChannel creates a new DataChannel object with the given label
// and optional DataChannelInit.
func (pc *PeerConnection) CreateDataChannel(label string, options *DataChannelInit) (*DataChannel, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.isClosed {
		return nil, &InvalidStateError{Err: errConnectionClosed}
	}

	channel := &DataChannel{
		label:      label,
		ordered:    true,
		readyState: DataChannelStateConnecting,
	}
	if options != nil {
		if options.Ordered != nil {
			channel.ordered = *options.Ordered
		}
		if options.MaxPacketLifeTime != nil && options.MaxRetransmits != nil {
			return nil, &TypeError{Err: errRetransmitsAndLifetime}
		}
		channel.maxPacketLifeTime = options.MaxPacketLifeTime
		channel.maxRetransmits = options.MaxRetransmits
		if options.Protocol != nil {
			channel.protocol = *options.Protocol
		}
		if options.Negotiated != nil {
			channel.negotiated = *options.Negotiated
		}
		if options.ID != nil {
			if *options.ID > 65534 {
				return nil, &TypeError{Err: errDataChannelIDOutOfRange}
			}
			channel.id = options.ID
		}
	}

	if pc.sctpAssociation != nil {
		pc.ops.Enqueue(func() { pc.dialDataChannel(channel) })
	} else {
		pc.pendingDataChannels = append(pc.pendingDataChannels, channel)
	}
	return channel, nil
}

// AddTrack adds a local track; a sendrecv transceiver is reused or created,
// and the track's MID is assigned on the next offer.
func (pc *PeerConnection) AddTrack(track *TrackLocal) (*RTPSender, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.isClosed {
		return nil, &InvalidStateError{Err: errConnectionClosed}
	}

	for _, t := range pc.transceivers {
		if sender := t.Sender(); sender != nil && sender.Track() == track {
			return nil, &InvalidAccessError{Err: errTrackAlreadyAdded}
		}
	}

	sender := newRTPSender(track, pc)

	// reuse a recvonly transceiver of the same kind if one exists
	for _, t := range pc.transceivers {
		if t.Kind() == track.Kind() && t.Sender() == nil {
			t.setSender(sender)
			t.SetDirection(RTPTransceiverDirectionSendrecv)
			return sender, nil
		}
	}

	t := newRTPTransceiver(track.Kind(), RTPTransceiverDirectionSendrecv, pc.mediaEngine.codecsFor(track.Kind()))
	t.setSender(sender)
	t.setReceiver(newRTPReceiver(track.Kind()))
	pc.transceivers = append(pc.transceivers, t)
	return sender, nil
}

// GetTransceivers returns the RTPTransceiver that are currently attached to
// this PeerConnection.
func (pc *PeerConnection) GetTransceivers() []*RTPTransceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]*RTPTransceiver(nil), pc.transceivers...)
}

// AddICECandidate accepts an ICE candidate string and adds it to the
// existing set of candidates. An empty candidate signals end-of-candidates.
func (pc *PeerConnection) AddICECandidate(candidate ICECandidateInit) error {
	pc.mu.Lock()
	if pc.remoteDetails == nil && pc.currentRemoteDescription == nil && pc.pendingRemoteDescription == nil {
		pc.mu.Unlock()
		return &InvalidStateError{Err: errPeerConnRemoteDescriptionNil}
	}
	pc.mu.Unlock()

	if strings.TrimSpace(candidate.Candidate) == "" {
		pc.iceAgent.AddRemoteCandidate(nil)
		return nil
	}

	parsed, err := ice.UnmarshalCandidate(candidate.Candidate)
	if err != nil {
		return &TypeError{Err: err}
	}
	pc.iceAgent.AddRemoteCandidate(parsed)
	return nil
}

// LocalDescription returns the applied local description as it was set;
// candidates gathered after it was created are not added to it.
func (pc *PeerConnection) LocalDescription() *SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.pendingLocalDescription != nil {
		return pc.pendingLocalDescription
	}
	return pc.currentLocalDescription
}

// RemoteDescription returns the applied remote description.
func (pc *PeerConnection) RemoteDescription() *SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.pendingRemoteDescription != nil {
		return pc.pendingRemoteDescription
	}
	return pc.currentRemoteDescription
}

// Close ends the PeerConnection: all transports are shut down and every
// timer and transaction is cancelled.
func (pc *PeerConnection) Close() error {
	pc.mu.Lock()
	if pc.isClosed {
		pc.mu.Unlock()
		return nil
	}
	pc.isClosed = true
	pc.signalingState = SignalingStateClosed
	pc.connectionState = PeerConnectionStateClosed
	assoc := pc.sctpAssociation
	muxer := pc.muxer
	dtlsConn := pc.dtlsConn
	channels := make([]*DataChannel, 0, len(pc.dataChannels))
	for _, channel := range pc.dataChannels {
		channels = append(channels, channel)
	}
	transceivers := append([]*RTPTransceiver(nil), pc.transceivers...)
	pc.mu.Unlock()

	for _, channel := range channels {
		_ = channel.Close()
	}
	for _, t := range transceivers {
		_ = t.Stop()
		if receiver := t.Receiver(); receiver != nil {
			for _, track := range receiver.Tracks() {
				track.close()
			}
		}
	}
	if assoc != nil {
		_ = assoc.Close()
	}
	if dtlsConn != nil {
		_ = dtlsConn.Close()
	}
	if muxer != nil {
		_ = muxer.Close()
	}
	err := pc.iceAgent.Close()

	pc.ops.GracefulClose()
	return err
}
