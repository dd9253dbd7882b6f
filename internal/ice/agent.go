// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package ice implements the Interactive Connectivity Establishment (ICE)
// protocol of RFC 8445: candidate gathering, the checklist, connectivity
// checks, nomination and consent freshness.
package ice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/randutil"

	"github.com/sjhorn/webrtc/internal/stun"
	"github.com/sjhorn/webrtc/internal/turn"
)

// ConnectionState is the state of the ICE agent.
type ConnectionState int

// ConnectionState enum.
const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateChecking
	ConnectionStateConnected
	ConnectionStateCompleted
	ConnectionStateDisconnected
	ConnectionStateFailed
	ConnectionStateClosed
)

func (c ConnectionState) String() string {
	switch c {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateChecking:
		return "checking"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateCompleted:
		return "completed"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// checkInterval paces outgoing connectivity checks (Ta).
	checkInterval = 50 * time.Millisecond
	// connectivity check transactions use an aggressive 50 ms RTO base.
	checkRTO = 50 * time.Millisecond

	// consent freshness, RFC 7675.
	consentInterval     = 5 * time.Second
	disconnectedTimeout = 15 * time.Second
	failedTimeout       = 30 * time.Second

	ufragLength = 16
	pwdLength   = 32

	runesAlpha = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	// ErrClosed is returned on use after Close.
	ErrClosed = errors.New("ice: agent closed")
	// ErrNoCandidatePairs is returned when connectivity can not establish.
	ErrNoCandidatePairs = errors.New("ice: no candidate pairs succeeded")
	errMissingCredentials = errors.New("ice: remote credentials not set")
)

// AgentConfig collects the arguments to Agent construction.
type AgentConfig struct {
	// Urls is the STUN/TURN server list used while gathering.
	Urls []*URL
	// Lite runs this agent as ICE-lite (answer checks only, never initiate).
	Lite bool
	// RelayOnly suppresses host and srflx candidates (the "relay"
	// transport policy).
	RelayOnly bool
	// LocalUfrag/LocalPwd override the generated credentials (tests).
	LocalUfrag string
	LocalPwd   string

	LoggerFactory logging.LoggerFactory
}

// Agent represents the ICE agent for one component.
type Agent struct {
	mu sync.Mutex

	udp        *net.UDPConn
	stunClient *stun.Client
	turnClient *turn.Client

	log logging.LeveledLogger

	localUfrag  string
	localPwd    string
	remoteUfrag string
	remotePwd   string

	isControlling bool
	remoteIsLite  bool
	lite          bool
	relayOnly     bool
	tieBreaker    uint64

	urls []*URL

	localCandidates  []*Candidate
	remoteCandidates []*Candidate
	checklist        []*CandidatePair
	selectedPair     *CandidatePair
	endOfCandidates  bool

	state ConnectionState

	onCandidate             func(*Candidate)
	onConnectionStateChange func(ConnectionState)
	onSelected              chan struct{}
	selectedOnce            sync.Once

	lastInbound time.Time

	// non-STUN traffic (DTLS, RTP) from the selected remote
	dataCh chan []byte

	checksRunning bool
	closed        chan struct{}
	closeOnce     sync.Once
}

// NewAgent binds the component socket and starts demultiplexing inbound
// traffic.
func NewAgent(config AgentConfig) (*Agent, error) {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	udp, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}

	localUfrag := config.LocalUfrag
	if localUfrag == "" {
		if localUfrag, err = randutil.GenerateCryptoRandomString(ufragLength, runesAlpha); err != nil {
			return nil, err
		}
	}
	localPwd := config.LocalPwd
	if localPwd == "" {
		if localPwd, err = randutil.GenerateCryptoRandomString(pwdLength, runesAlpha); err != nil {
			return nil, err
		}
	}

	var tieBreakerBytes [8]byte
	if _, err := crand.Read(tieBreakerBytes[:]); err != nil {
		return nil, err
	}
	tieBreaker := binary.BigEndian.Uint64(tieBreakerBytes[:])

	a := &Agent{
		udp:        udp,
		log:        loggerFactory.NewLogger("ice"),
		localUfrag: localUfrag,
		localPwd:   localPwd,
		lite:       config.Lite,
		relayOnly:  config.RelayOnly,
		tieBreaker: tieBreaker,
		urls:       config.Urls,
		state:      ConnectionStateNew,
		onSelected: make(chan struct{}),
		dataCh:     make(chan []byte, 256),
		closed:     make(chan struct{}),
	}
	a.stunClient = stun.NewClient(stun.ClientConfig{
		RTO:           checkRTO,
		LoggerFactory: loggerFactory,
		Write: func(raw []byte, dst net.Addr) error {
			_, err := a.udp.WriteTo(raw, dst)
			return err
		},
	})

	go a.readLoop()
	return a, nil
}

// LocalCredentials returns the local ufrag and pwd.
func (a *Agent) LocalCredentials() (string, string) {
	return a.localUfrag, a.localPwd
}

// SetRemoteCredentials installs the remote ufrag and pwd from SDP.
func (a *Agent) SetRemoteCredentials(ufrag, pwd string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remoteUfrag, a.remotePwd = ufrag, pwd
}

// SetRemoteIsLite marks the peer as ICE-lite: the local agent always
// controls, always nominates, and does not expect inbound checks.
func (a *Agent) SetRemoteIsLite() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remoteIsLite = true
	a.isControlling = true
}

// OnCandidate sets the handler fired for every gathered candidate; a nil
// candidate signals end-of-gathering.
func (a *Agent) OnCandidate(f func(*Candidate)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onCandidate = f
}

// OnConnectionStateChange sets the state callback.
func (a *Agent) OnConnectionStateChange(f func(ConnectionState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onConnectionStateChange = f
}

func (a *Agent) setState(s ConnectionState) {
	a.mu.Lock()
	if a.state == s || a.state == ConnectionStateClosed {
		a.mu.Unlock()
		return
	}
	a.state = s
	handler := a.onConnectionStateChange
	a.mu.Unlock()

	a.log.Infof("connection state changed: %s", s)
	if handler != nil {
		handler(s)
	}
}

// GatherCandidates collects host, srflx and relay candidates, emitting each
// through OnCandidate and finishing with nil.
func (a *Agent) GatherCandidates() error { //nolint:gocognit
	localPort := a.udp.LocalAddr().(*net.UDPAddr).Port //nolint:forcetypeassert

	emit := func(c *Candidate) {
		a.mu.Lock()
		a.localCandidates = append(a.localCandidates, c)
		handler := a.onCandidate
		a.mu.Unlock()
		if handler != nil {
			handler(c)
		}
	}

	if !a.relayOnly {
		for _, ip := range localInterfaceIPs() {
			emit(NewCandidate(CandidateTypeHost, ComponentRTP, ip.String(), localPort, ProtoTypeUDP))
		}

		// server-reflexive candidates via STUN Binding
		for _, u := range a.urls {
			if u.Scheme != SchemeTypeSTUN {
				continue
			}
			if mapped, err := a.queryServerReflexive(u); err == nil {
				c := NewCandidate(CandidateTypeServerReflexive, ComponentRTP, mapped.IP.String(), mapped.Port, ProtoTypeUDP)
				c.RelatedAddress, c.RelatedPort = "0.0.0.0", localPort
				emit(c)
			} else {
				a.log.Warnf("stun gather from %s failed: %v", u, err)
			}
		}
	}

	// relay candidates via TURN allocation
	for _, u := range a.urls {
		if u.Scheme != SchemeTypeTURN && u.Scheme != SchemeTypeTURNS {
			continue
		}
		serverAddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(u.Host, itoa(u.Port)))
		if err != nil {
			a.log.Warnf("turn resolve %s failed: %v", u, err)
			continue
		}
		client := turn.NewClient(turn.ClientConfig{
			ServerAddr: serverAddr,
			Username:   u.Username,
			Password:   u.Password,
			STUNClient: a.stunClient,
		})
		relay, err := client.Allocate()
		if err != nil {
			a.log.Warnf("turn allocate from %s failed: %v", u, err)
			continue
		}
		a.mu.Lock()
		a.turnClient = client
		a.mu.Unlock()

		c := NewCandidate(CandidateTypeRelay, ComponentRTP, relay.IP.String(), relay.Port, ProtoTypeUDP)
		c.RelatedAddress, c.RelatedPort = "0.0.0.0", localPort
		emit(c)
	}

	a.mu.Lock()
	handler := a.onCandidate
	a.mu.Unlock()
	if handler != nil {
		handler(nil) // end of candidates
	}
	return nil
}

func (a *Agent) queryServerReflexive(u *URL) (*net.UDPAddr, error) {
	serverAddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(u.Host, itoa(u.Port)))
	if err != nil {
		return nil, err
	}

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
	if err != nil {
		return nil, err
	}

	events := make(chan stun.Event, 1)
	if err = a.stunClient.Start(req, serverAddr, func(e stun.Event) { events <- e }); err != nil {
		return nil, err
	}

	select {
	case e := <-events:
		if e.Error != nil {
			return nil, e.Error
		}
		var mapped stun.XORMappedAddress
		if err := mapped.GetFrom(e.Message); err != nil {
			return nil, err
		}
		return &net.UDPAddr{IP: mapped.IP, Port: mapped.Port}, nil
	case <-a.closed:
		return nil, ErrClosed
	}
}

// AddRemoteCandidate injects a candidate learned from signaling. nil marks
// end-of-candidates.
func (a *Agent) AddRemoteCandidate(c *Candidate) {
	a.mu.Lock()
	if c == nil {
		a.endOfCandidates = true
		a.mu.Unlock()
		return
	}
	a.remoteCandidates = append(a.remoteCandidates, c)
	a.formPairsLocked()
	a.mu.Unlock()
}

// formPairsLocked rebuilds the checklist as the priority-ordered cartesian
// product of matching candidates.
func (a *Agent) formPairsLocked() {
	existing := map[string]bool{}
	for _, p := range a.checklist {
		existing[p.Local.Marshal()+"|"+p.Remote.Marshal()] = true
	}

	for _, local := range a.localCandidates {
		for _, remote := range a.remoteCandidates {
			if local.Component != remote.Component {
				continue
			}
			if isIPv4(local.Address) != isIPv4(remote.Address) {
				continue
			}
			key := local.Marshal() + "|" + remote.Marshal()
			if existing[key] {
				continue
			}
			existing[key] = true
			a.checklist = append(a.checklist, &CandidatePair{
				Local:  local,
				Remote: remote,
				State:  CandidatePairStateFrozen,
			})
		}
	}

	controlling := a.isControlling
	sort.SliceStable(a.checklist, func(i, j int) bool {
		return a.checklist[i].Priority(controlling) > a.checklist[j].Priority(controlling)
	})

	// unfreeze in priority order, one pair per foundation
	unfrozen := map[string]bool{}
	for _, p := range a.checklist {
		if p.State == CandidatePairStateFrozen && !unfrozen[p.foundationKey()] {
			p.State = CandidatePairStateWaiting
		}
		if p.State != CandidatePairStateFrozen {
			unfrozen[p.foundationKey()] = true
		}
	}
}

// StartConnectivityChecks begins probing the checklist in the given role.
func (a *Agent) StartConnectivityChecks(isControlling bool) error {
	a.mu.Lock()
	if a.remoteUfrag == "" || a.remotePwd == "" {
		a.mu.Unlock()
		return errMissingCredentials
	}
	if !a.remoteIsLite {
		a.isControlling = isControlling
	}
	alreadyRunning := a.checksRunning
	a.checksRunning = true
	a.mu.Unlock()

	if alreadyRunning {
		return nil
	}

	a.setState(ConnectionStateChecking)
	go a.checkLoop()
	go a.consentLoop()
	return nil
}

// checkLoop paces outgoing checks: every Ta the highest-priority Waiting
// pair whose foundation has no check in progress is probed.
func (a *Agent) checkLoop() {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.lite {
				continue // lite agents never initiate checks
			}
			a.runOneCheck()
		case <-a.closed:
			return
		}
	}
}

func (a *Agent) runOneCheck() {
	a.mu.Lock()
	inProgress := map[string]bool{}
	for _, p := range a.checklist {
		if p.State == CandidatePairStateInProgress {
			inProgress[p.foundationKey()] = true
		}
	}

	var next *CandidatePair
	for _, p := range a.checklist {
		if p.State == CandidatePairStateWaiting && !inProgress[p.foundationKey()] {
			next = p
			break
		}
	}
	if next == nil {
		a.mu.Unlock()
		return
	}
	next.State = CandidatePairStateInProgress
	next.lastCheckSent = time.Now()
	a.mu.Unlock()

	a.sendCheck(next, false)
}

// sendCheck issues one connectivity check Binding Request on a pair,
// optionally nominating it.
func (a *Agent) sendCheck(pair *CandidatePair, nominate bool) {
	a.mu.Lock()
	username := a.remoteUfrag + ":" + a.localUfrag
	pwd := a.remotePwd
	controlling := a.isControlling
	tieBreaker := a.tieBreaker
	a.mu.Unlock()

	setters := []stun.Setter{
		stun.TransactionID,
		stun.BindingRequest,
		stun.NewUsername(username),
		stun.UInt32Attribute{Attr: stun.AttrPriority, Value: computePriority(CandidateTypePeerReflexive.Preference(), pair.Local.Component)},
	}
	if controlling {
		setters = append(setters, stun.UInt64Attribute{Attr: stun.AttrICEControlling, Value: tieBreaker})
		if nominate || a.remoteIsLite {
			setters = append(setters, stun.FlagAttribute{Attr: stun.AttrUseCandidate})
		}
	} else {
		setters = append(setters, stun.UInt64Attribute{Attr: stun.AttrICEControlled, Value: tieBreaker})
	}
	setters = append(setters, stun.NewShortTermIntegrity(pwd), stun.Fingerprint)

	req, err := stun.Build(setters...)
	if err != nil {
		a.log.Warnf("building check failed: %v", err)
		return
	}

	sent := time.Now()
	err = a.stunClient.Start(req, pair.Remote.addr(), func(e stun.Event) {
		a.handleCheckResponse(pair, nominate, sent, e)
	})
	if err != nil {
		a.log.Warnf("sending check failed: %v", err)
	}
}

func (a *Agent) handleCheckResponse(pair *CandidatePair, nominated bool, sent time.Time, e stun.Event) {
	var tErr *stun.TransactionError
	switch {
	case errors.Is(e.Error, stun.ErrTransactionTimeOut):
		a.mu.Lock()
		pair.State = CandidatePairStateFailed
		a.mu.Unlock()
		a.checkForFailure()
		return
	case errors.As(e.Error, &tErr) && tErr.Code == stun.CodeRoleConflict:
		// the agent with the larger tie-breaker keeps its role
		a.mu.Lock()
		a.isControlling = !a.isControlling
		pair.State = CandidatePairStateWaiting
		a.formPairsLocked()
		controlling := a.isControlling
		a.mu.Unlock()
		a.log.Infof("role conflict, now controlling=%v", controlling)
		return
	case e.Error != nil:
		a.mu.Lock()
		pair.State = CandidatePairStateFailed
		a.mu.Unlock()
		return
	}

	// validate MESSAGE-INTEGRITY with our pwd and the mapped address
	a.mu.Lock()
	localPwd := a.localPwd
	a.mu.Unlock()
	if err := e.Message.Check(stun.NewShortTermIntegrity(localPwd)); err != nil {
		// responses to our checks are protected with the remote pwd
		a.mu.Lock()
		remotePwd := a.remotePwd
		a.mu.Unlock()
		if err := e.Message.Check(stun.NewShortTermIntegrity(remotePwd)); err != nil {
			a.log.Warnf("check response failed integrity: %v", err)
			return
		}
	}
	var mapped stun.XORMappedAddress
	if err := mapped.GetFrom(e.Message); err != nil {
		a.log.Warnf("check response missing XOR-MAPPED-ADDRESS: %v", err)
		return
	}

	a.mu.Lock()
	pair.localSucceeded = true
	pair.roundTrip = time.Since(sent)
	if pair.remoteSucceeded || a.remoteIsLite || a.isControlling {
		pair.State = CandidatePairStateSucceeded
	}
	controlling := a.isControlling
	shouldNominate := controlling && !nominated && pair.State == CandidatePairStateSucceeded && a.selectedPair == nil
	nominationComplete := pair.State == CandidatePairStateSucceeded &&
		(nominated || a.remoteIsLite || (!controlling && pair.Nominated))
	a.mu.Unlock()

	if shouldNominate {
		// regular nomination: a triggered check with USE-CANDIDATE
		pair.Nominated = true
		a.sendCheck(pair, true)
		return
	}
	if nominationComplete {
		a.selectPair(pair)
	}
}

// selectPair installs the nominated, succeeded pair for the component.
func (a *Agent) selectPair(pair *CandidatePair) {
	a.mu.Lock()
	if a.selectedPair != nil {
		a.mu.Unlock()
		return
	}
	pair.Nominated = true
	pair.State = CandidatePairStateSucceeded
	a.selectedPair = pair
	a.lastInbound = time.Now()
	a.mu.Unlock()

	a.log.Infof("selected pair %s", pair)
	a.selectedOnce.Do(func() { close(a.onSelected) })
	a.setState(ConnectionStateConnected)
}

func (a *Agent) checkForFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selectedPair != nil || !a.endOfCandidates {
		return
	}
	for _, p := range a.checklist {
		if p.State != CandidatePairStateFailed {
			return
		}
	}
	go a.setState(ConnectionStateFailed)
}

// consentLoop sends Binding Indications every 5 s on the selected pair and
// degrades the connection when nothing is heard back.
func (a *Agent) consentLoop() {
	ticker := time.NewTicker(consentInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.mu.Lock()
			pair := a.selectedPair
			last := a.lastInbound
			a.mu.Unlock()
			if pair == nil {
				continue
			}

			switch since := time.Since(last); {
			case since > failedTimeout:
				a.setState(ConnectionStateFailed)
				return
			case since > disconnectedTimeout:
				a.setState(ConnectionStateDisconnected)
			}

			ind, err := stun.Build(stun.TransactionID, stun.BindingIndication, stun.Fingerprint)
			if err == nil {
				_, _ = a.udp.WriteTo(ind.Raw, pair.Remote.addr())
			}
		case <-a.closed:
			return
		}
	}
}

func (a *Agent) readLoop() {
	buf := make([]byte, 8192)
	for {
		n, from, err := a.udp.ReadFrom(buf)
		if err != nil {
			return
		}
		pkt := append([]byte(nil), buf[:n]...)
		a.handleInbound(pkt, from)
	}
}

// handleInbound demultiplexes socket traffic: STUN to the transaction layer
// or request handler, ChannelData to the TURN client, everything else to
// the data path.
func (a *Agent) handleInbound(pkt []byte, from net.Addr) {
	a.mu.Lock()
	turnClient := a.turnClient
	a.mu.Unlock()

	if turn.IsChannelData(pkt) && turnClient != nil {
		turnClient.HandleInbound(pkt, from)
		return
	}

	if stun.IsMessage(pkt) {
		m := stun.New()
		if err := stun.Decode(pkt, m); err != nil {
			a.log.Debugf("dropping malformed stun from %v: %v", from, err)
			return
		}
		a.handleSTUN(m, from)
		return
	}

	a.mu.Lock()
	selected := a.selectedPair
	if selected != nil {
		a.lastInbound = time.Now()
	}
	a.mu.Unlock()

	select {
	case a.dataCh <- pkt:
	default:
		a.log.Infof("data channel full, dropping packet")
	}
}

func (a *Agent) handleSTUN(m *stun.Message, from net.Addr) {
	switch m.Type.Class {
	case stun.ClassSuccessResponse, stun.ClassErrorResponse:
		if turnHandled := a.stunClient.HandleInbound(m); !turnHandled {
			a.log.Debugf("response with unknown transaction from %v", from)
		}
	case stun.ClassIndication:
		// consent keepalive
		a.mu.Lock()
		a.lastInbound = time.Now()
		a.mu.Unlock()
	case stun.ClassRequest:
		a.handleBindingRequest(m, from)
	}
}

// handleBindingRequest answers a connectivity check from the peer and runs
// the role-conflict and nomination rules.
func (a *Agent) handleBindingRequest(m *stun.Message, from net.Addr) { //nolint:gocognit
	a.mu.Lock()
	localPwd := a.localPwd
	localUfrag := a.localUfrag
	remoteUfrag := a.remoteUfrag
	controlling := a.isControlling
	tieBreaker := a.tieBreaker
	a.mu.Unlock()

	// USERNAME must be "<local-ufrag>:<remote-ufrag>"
	username, err := m.GetUsername()
	if err != nil {
		return
	}
	expected := localUfrag + ":" + remoteUfrag
	if remoteUfrag != "" && username != expected {
		a.log.Debugf("check with unexpected username %q", username)
		return
	}

	// checks towards us are keyed with our pwd
	if err := m.Check(stun.NewShortTermIntegrity(localPwd)); err != nil {
		a.log.Warnf("inbound check failed integrity: %v", err)
		return
	}

	// role conflict, RFC 8445 §7.3.1.1
	var remoteControl stun.UInt64Attribute
	remoteControl.Attr = stun.AttrICEControlling
	if err := remoteControl.GetFrom(m); err == nil && controlling {
		if tieBreaker >= remoteControl.Value {
			resp, buildErr := stun.Build(
				stun.TransactionIDSetter(m.TransactionID),
				stun.BindingError,
				stun.CodeRoleConflict,
				stun.NewShortTermIntegrity(localPwd),
				stun.Fingerprint,
			)
			if buildErr == nil {
				_, _ = a.udp.WriteTo(resp.Raw, from)
			}
			return
		}
		a.mu.Lock()
		a.isControlling = false
		a.formPairsLocked()
		a.mu.Unlock()
	}
	remoteControl.Attr = stun.AttrICEControlled
	if err := remoteControl.GetFrom(m); err == nil && !controlling && !a.lite {
		if tieBreaker >= remoteControl.Value {
			a.mu.Lock()
			a.isControlling = true
			a.formPairsLocked()
			a.mu.Unlock()
		}
	}

	udpFrom, ok := from.(*net.UDPAddr)
	if !ok {
		return
	}

	// success response with the reflexive transport address
	resp, err := stun.Build(
		stun.TransactionIDSetter(m.TransactionID),
		stun.BindingSuccess,
		stun.XORMappedAddress{IP: udpFrom.IP, Port: udpFrom.Port},
		stun.NewShortTermIntegrity(localPwd),
		stun.Fingerprint,
	)
	if err != nil {
		return
	}
	_, _ = a.udp.WriteTo(resp.Raw, from)

	// locate (or learn, as peer-reflexive) the pair this check arrived on
	a.mu.Lock()
	a.lastInbound = time.Now()
	var pair *CandidatePair
	for _, p := range a.checklist {
		if p.Remote.Address == udpFrom.IP.String() && p.Remote.Port == udpFrom.Port {
			pair = p
			break
		}
	}
	if pair == nil {
		prflx := NewCandidate(CandidateTypePeerReflexive, ComponentRTP, udpFrom.IP.String(), udpFrom.Port, ProtoTypeUDP)
		a.remoteCandidates = append(a.remoteCandidates, prflx)
		a.formPairsLocked()
		for _, p := range a.checklist {
			if p.Remote == prflx {
				pair = p
				break
			}
		}
	}
	var triggered bool
	var useCandidate bool
	if pair != nil {
		pair.remoteSucceeded = true
		useCandidate = m.Contains(stun.AttrUseCandidate)
		if useCandidate {
			pair.Nominated = true
		}
		if pair.localSucceeded {
			pair.State = CandidatePairStateSucceeded
		}
		// a lite agent treats a valid inbound check as success in both
		// directions
		if a.lite {
			pair.State = CandidatePairStateSucceeded
			pair.localSucceeded = true
		}
		triggered = !a.lite && pair.State != CandidatePairStateSucceeded && pair.State != CandidatePairStateInProgress
		if triggered {
			pair.State = CandidatePairStateInProgress
		}
	}
	selected := useCandidate && pair != nil && pair.State == CandidatePairStateSucceeded && !a.isControlling
	a.mu.Unlock()

	if pair == nil {
		return
	}
	if triggered {
		a.sendCheck(pair, false)
	}
	if selected || (a.lite && useCandidate) {
		a.selectPair(pair)
	}
}

// Conn returns a net.Conn carrying non-STUN traffic over the selected
// pair, blocking until nomination completes.
func (a *Agent) Conn() (net.Conn, error) {
	select {
	case <-a.onSelected:
	case <-a.closed:
		return nil, ErrClosed
	}

	a.mu.Lock()
	pair := a.selectedPair
	a.mu.Unlock()
	if pair == nil {
		return nil, ErrNoCandidatePairs
	}
	return &Conn{agent: a, remote: pair.Remote.addr()}, nil
}

// SelectedCandidatePair returns the nominated pair, if any.
func (a *Agent) SelectedCandidatePair() *CandidatePair {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedPair
}

// Checklist returns a snapshot of the current checklist.
func (a *Agent) Checklist() []*CandidatePair {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*CandidatePair, len(a.checklist))
	copy(out, a.checklist)
	return out
}

// Close cancels all transactions and timers and closes the socket.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		a.stunClient.Close()
		a.mu.Lock()
		turnClient := a.turnClient
		a.state = ConnectionStateClosed
		a.mu.Unlock()
		if turnClient != nil {
			turnClient.Close()
		}
		err = a.udp.Close()
	})
	return err
}

func isIPv4(address string) bool {
	ip := net.ParseIP(address)
	return ip != nil && ip.To4() != nil
}

func localInterfaceIPs() []net.IP {
	var out []net.IP
	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.To4() != nil {
				out = append(out, ipNet.IP)
			}
		}
	}
	if len(out) == 0 {
		out = append(out, net.ParseIP("127.0.0.1"))
	}
	return out
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
