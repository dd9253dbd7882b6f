// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pion/logging"
)

type associationState int

const (
	closed associationState = iota
	cookieWait
	cookieEchoed
	established
	shutdownPending
	shutdownSent
	shutdownReceived
)

const (
	defaultSCTPPort       = 5000
	defaultMaxInflight    = 256
	initialRTO            = time.Second
	maxRTO                = 60 * time.Second
	maxInitRetransmits    = 8
	defaultNumStreams     = 1024
	// maxPayloadSize keeps one DATA chunk within a conservative MTU after
	// DTLS and chunk overhead.
	maxPayloadSize = 1180

	defaultAdvertisedWindow = 1024 * 1024
)

var (
	// ErrAssociationClosed is returned on use after close.
	ErrAssociationClosed = errors.New("sctp: association closed")
	// ErrStreamClosed is returned when reading from a reset stream.
	ErrStreamClosed = errors.New("sctp: stream closed")
	// ErrHandshakeFailed is returned when the four-way handshake cannot complete.
	ErrHandshakeFailed = errors.New("sctp: handshake failed")
	// ErrStreamExists is returned when opening a stream id twice.
	ErrStreamExists = errors.New("sctp: stream already exists")
)

// Config collects the arguments to Association construction.
type Config struct {
	NetConn       net.Conn
	LoggerFactory logging.LoggerFactory
}

// Association is a one-to-one SCTP association over a connected datagram
// transport (DTLS in WebRTC). Reliability is per-chunk with T3-rtx
// retransmission; congestion control beyond what data channels require is
// intentionally not implemented.
type Association struct {
	mu sync.Mutex

	netConn net.Conn
	log     logging.LeveledLogger

	state    associationState
	isClient bool

	sourcePort      uint16
	destinationPort uint16

	myVerificationTag   uint32
	peerVerificationTag uint32

	myNextTSN   uint32 // next TSN to assign
	peerLastTSN uint32 // cumulative TSN received in order

	// sender side
	inflight   map[uint32]*chunkPayloadData
	t3         *time.Timer
	rto        time.Duration
	cookie     []byte

	// receiver side
	pendingData map[uint32]*chunkPayloadData

	streams      map[uint16]*Stream
	acceptCh     chan *Stream
	handshakeCh  chan error
	closedCh     chan struct{}
	closeOnce    sync.Once
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func createAssociation(config Config, isClient bool) *Association {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Association{
		netConn:           config.NetConn,
		log:               loggerFactory.NewLogger("sctp"),
		isClient:          isClient,
		sourcePort:        defaultSCTPPort,
		destinationPort:   defaultSCTPPort,
		myVerificationTag: randomUint32(),
		myNextTSN:         randomUint32(),
		rto:               initialRTO,
		inflight:          map[uint32]*chunkPayloadData{},
		pendingData:       map[uint32]*chunkPayloadData{},
		streams:           map[uint16]*Stream{},
		acceptCh:          make(chan *Stream, 16),
		handshakeCh:       make(chan error, 1),
		closedCh:          make(chan struct{}),
	}
}

// Client starts an association as the initiating side, blocking until the
// handshake completes.
func Client(config Config) (*Association, error) {
	a := createAssociation(config, true)
	go a.readLoop()

	a.mu.Lock()
	a.state = cookieWait
	init := &chunkInit{chunkInitCommon{
		initiateTag:                    a.myVerificationTag,
		advertisedReceiverWindowCredit: defaultAdvertisedWindow,
		numOutboundStreams:             defaultNumStreams,
		numInboundStreams:              defaultNumStreams,
		initialTSN:                     a.myNextTSN,
		forwardTSNSupported:            true,
	}}
	a.mu.Unlock()

	if err := a.handshake(init); err != nil {
		_ = a.netConn.Close()
		return nil, err
	}
	return a, nil
}

// Server starts an association as the responding side.
func Server(config Config) (*Association, error) {
	a := createAssociation(config, false)
	go a.readLoop()

	if err := a.handshake(nil); err != nil {
		_ = a.netConn.Close()
		return nil, err
	}
	return a, nil
}

// handshake retransmits the initiating chunk (INIT, then COOKIE-ECHO as the
// state machine advances) until the read loop reports completion.
func (a *Association) handshake(init *chunkInit) error {
	if init != nil {
		if err := a.send(init, 0); err != nil {
			return err
		}
	}

	timer := time.NewTimer(initialRTO)
	defer timer.Stop()

	interval := initialRTO
	for retries := 0; ; retries++ {
		select {
		case err := <-a.handshakeCh:
			return err
		case <-timer.C:
			if retries >= maxInitRetransmits {
				return ErrHandshakeFailed
			}
			a.mu.Lock()
			state := a.state
			cookie := a.cookie
			peerTag := a.peerVerificationTag
			a.mu.Unlock()

			switch {
			case init != nil && state == cookieWait:
				if err := a.send(init, 0); err != nil {
					return err
				}
			case state == cookieEchoed:
				if err := a.send(&chunkCookieEcho{cookie: cookie}, peerTag); err != nil {
					return err
				}
			}
			interval *= 2
			if interval > maxRTO {
				interval = maxRTO
			}
			timer.Reset(interval)
		case <-a.closedCh:
			return ErrAssociationClosed
		}
	}
}

// send marshals chunks into one packet with the given verification tag.
func (a *Association) send(c chunk, verificationTag uint32, more ...chunk) error {
	p := &packet{
		sourcePort:      a.sourcePort,
		destinationPort: a.destinationPort,
		verificationTag: verificationTag,
		chunks:          append([]chunk{c}, more...),
	}
	raw, err := p.marshal()
	if err != nil {
		return err
	}
	_, err = a.netConn.Write(raw)
	return err
}

func (a *Association) sendEstablished(c chunk, more ...chunk) error {
	a.mu.Lock()
	tag := a.peerVerificationTag
	a.mu.Unlock()
	return a.send(c, tag, more...)
}

func (a *Association) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, err := a.netConn.Read(buf)
		if err != nil {
			a.closeOnce.Do(func() { close(a.closedCh) })
			return
		}

		p := &packet{}
		if err := p.unmarshal(buf[:n]); err != nil {
			a.log.Debugf("dropping packet: %v", err)
			continue
		}
		for _, c := range p.chunks {
			if err := a.handleChunk(c); err != nil {
				a.log.Debugf("chunk error: %v", err)
			}
		}
	}
}

func (a *Association) handleChunk(raw chunk) error { //nolint:gocognit,gocyclo
	switch c := raw.(type) {
	case *chunkInit:
		a.mu.Lock()
		a.peerVerificationTag = c.initiateTag
		a.peerLastTSN = c.initialTSN - 1
		if a.cookie == nil {
			cookie := make([]byte, 32)
			_, _ = rand.Read(cookie)
			a.cookie = cookie
		}
		initAck := &chunkInitAck{chunkInitCommon{
			initiateTag:                    a.myVerificationTag,
			advertisedReceiverWindowCredit: defaultAdvertisedWindow,
			numOutboundStreams:             defaultNumStreams,
			numInboundStreams:              defaultNumStreams,
			initialTSN:                     a.myNextTSN,
			stateCookie:                    a.cookie,
			forwardTSNSupported:            true,
		}}
		tag := a.peerVerificationTag
		a.mu.Unlock()
		return a.send(initAck, tag)

	case *chunkInitAck:
		a.mu.Lock()
		if a.state != cookieWait {
			a.mu.Unlock()
			return nil
		}
		a.peerVerificationTag = c.initiateTag
		a.peerLastTSN = c.initialTSN - 1
		a.cookie = c.stateCookie
		a.state = cookieEchoed
		cookie := a.cookie
		tag := a.peerVerificationTag
		a.mu.Unlock()
		return a.send(&chunkCookieEcho{cookie: cookie}, tag)

	case *chunkCookieEcho:
		a.mu.Lock()
		valid := a.cookie != nil && string(c.cookie) == string(a.cookie)
		if valid {
			a.state = established
		}
		tag := a.peerVerificationTag
		a.mu.Unlock()
		if !valid {
			return nil
		}
		select {
		case a.handshakeCh <- nil:
		default:
		}
		return a.send(&chunkCookieAck{}, tag)

	case *chunkCookieAck:
		a.mu.Lock()
		if a.state == cookieEchoed {
			a.state = established
		}
		a.mu.Unlock()
		select {
		case a.handshakeCh <- nil:
		default:
		}
		return nil

	case *chunkPayloadData:
		return a.handlePayloadData(c)

	case *chunkSelectiveAck:
		return a.handleSack(c)

	case *chunkHeartbeat:
		return a.sendEstablished(&chunkHeartbeatAck{info: c.info})

	case *chunkForwardTSN:
		a.handleForwardTSN(c)
		return nil

	case *chunkAbort:
		a.log.Debugf("association aborted by peer")
		a.closeOnce.Do(func() { close(a.closedCh) })
		return nil

	case *chunkShutdown:
		if err := a.sendEstablished(&chunkShutdownAck{}); err != nil {
			return err
		}
		a.closeOnce.Do(func() { close(a.closedCh) })
		return nil

	case *chunkShutdownAck:
		err := a.sendEstablished(&chunkShutdownComplete{})
		a.closeOnce.Do(func() { close(a.closedCh) })
		return err

	case *chunkShutdownComplete:
		a.closeOnce.Do(func() { close(a.closedCh) })
		return nil
	}
	return nil
}

// handlePayloadData accepts in-order data, buffers out-of-order TSNs and
// answers with a SACK describing both.
func (a *Association) handlePayloadData(c *chunkPayloadData) error {
	a.mu.Lock()

	var dup []uint32
	switch {
	case sna32LTE(c.tsn, a.peerLastTSN):
		dup = append(dup, c.tsn)
	default:
		if _, ok := a.pendingData[c.tsn]; ok {
			dup = append(dup, c.tsn)
		} else {
			a.pendingData[c.tsn] = c
		}
		// advance the cumulative point over contiguous TSNs
		for {
			next, ok := a.pendingData[a.peerLastTSN+1]
			if !ok {
				break
			}
			a.peerLastTSN++
			delete(a.pendingData, a.peerLastTSN)
			a.deliverLocked(next)
		}
	}

	sack := &chunkSelectiveAck{
		cumulativeTSNAck:               a.peerLastTSN,
		advertisedReceiverWindowCredit: defaultAdvertisedWindow,
		gapAckBlocks:                   a.gapAckBlocksLocked(),
		duplicateTSN:                   dup,
	}
	tag := a.peerVerificationTag
	a.mu.Unlock()

	return a.send(sack, tag)
}

// gapAckBlocksLocked summarizes buffered out-of-order TSNs relative to the
// cumulative ack point.
func (a *Association) gapAckBlocksLocked() []gapAckBlock {
	if len(a.pendingData) == 0 {
		return nil
	}

	offsets := make([]uint32, 0, len(a.pendingData))
	for tsn := range a.pendingData {
		if offset := tsn - a.peerLastTSN; offset > 0 && offset <= 0xffff {
			offsets = append(offsets, offset)
		}
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var blocks []gapAckBlock
	for _, offset := range offsets {
		if n := len(blocks); n > 0 && uint32(blocks[n-1].end)+1 == offset {
			blocks[n-1].end++
			continue
		}
		blocks = append(blocks, gapAckBlock{start: uint16(offset), end: uint16(offset)})
	}
	return blocks
}

// deliverLocked routes an accepted DATA chunk to its stream, creating the
// stream on first use.
func (a *Association) deliverLocked(c *chunkPayloadData) {
	s, ok := a.streams[c.streamIdentifier]
	if !ok {
		s = newStream(a, c.streamIdentifier, c.payloadType)
		a.streams[c.streamIdentifier] = s
		select {
		case a.acceptCh <- s:
		default:
		}
	}
	s.handleData(c)
}

// handleSack removes acknowledged chunks from flight and manages T3-rtx.
func (a *Association) handleSack(sack *chunkSelectiveAck) error {
	a.mu.Lock()

	for tsn := range a.inflight {
		if sna32LTE(tsn, sack.cumulativeTSNAck) {
			delete(a.inflight, tsn)
		}
	}
	for _, gap := range sack.gapAckBlocks {
		for offset := gap.start; offset <= gap.end; offset++ {
			delete(a.inflight, sack.cumulativeTSNAck+uint32(offset))
		}
	}

	if len(a.inflight) == 0 {
		if a.t3 != nil {
			a.t3.Stop()
			a.t3 = nil
		}
		a.rto = initialRTO
	} else {
		a.armT3Locked()
	}
	a.mu.Unlock()
	return nil
}

func (a *Association) armT3Locked() {
	if a.t3 != nil {
		return
	}
	a.t3 = time.AfterFunc(a.rto, a.onT3Expired)
}

// onT3Expired retransmits everything still in flight, abandoning chunks
// whose partial-reliability budget is spent.
func (a *Association) onT3Expired() {
	a.mu.Lock()
	a.t3 = nil
	if len(a.inflight) == 0 {
		a.mu.Unlock()
		return
	}

	var toSend []*chunkPayloadData
	var abandoned []*chunkPayloadData
	for _, c := range a.inflight {
		c.nSent++
		s := a.streams[c.streamIdentifier]
		if s != nil && s.expired(c) {
			c.abandoned = true
			abandoned = append(abandoned, c)
			delete(a.inflight, c.tsn)
			continue
		}
		toSend = append(toSend, c)
	}

	a.rto *= 2
	if a.rto > maxRTO {
		a.rto = maxRTO
	}
	if len(toSend) > 0 {
		a.armT3Locked()
	}
	tag := a.peerVerificationTag

	var fwd *chunkForwardTSN
	if len(abandoned) > 0 {
		fwd = a.buildForwardTSNLocked(abandoned)
	}
	a.mu.Unlock()

	for _, c := range toSend {
		if err := a.send(c, tag); err != nil {
			a.log.Warnf("retransmit failed: %v", err)
			return
		}
	}
	if fwd != nil {
		if err := a.send(fwd, tag); err != nil {
			a.log.Warnf("forward tsn failed: %v", err)
		}
	}
}

// buildForwardTSNLocked advances the peer past the highest abandoned TSN
// that is not blocked by an earlier unacknowledged chunk.
func (a *Association) buildForwardTSNLocked(abandoned []*chunkPayloadData) *chunkForwardTSN {
	newCum := abandoned[0].tsn
	for _, c := range abandoned {
		if sna32GT(c.tsn, newCum) {
			blocked := false
			for tsn := range a.inflight {
				if sna32GT(c.tsn, tsn) {
					blocked = true
					break
				}
			}
			if !blocked {
				newCum = c.tsn
			}
		}
	}

	fwd := &chunkForwardTSN{newCumulativeTSN: newCum}
	seen := map[uint16]uint16{}
	for _, c := range abandoned {
		if !c.unordered && sna32LTE(c.tsn, newCum) {
			if cur, ok := seen[c.streamIdentifier]; !ok || c.streamSequenceNumber > cur {
				seen[c.streamIdentifier] = c.streamSequenceNumber
			}
		}
	}
	for id, seq := range seen {
		fwd.streams = append(fwd.streams, forwardTSNStream{identifier: id, sequence: seq})
	}
	return fwd
}

// handleForwardTSN drops pending data the peer has abandoned.
func (a *Association) handleForwardTSN(c *chunkForwardTSN) {
	a.mu.Lock()
	if sna32GT(c.newCumulativeTSN, a.peerLastTSN) {
		for tsn := range a.pendingData {
			if sna32LTE(tsn, c.newCumulativeTSN) {
				delete(a.pendingData, tsn)
			}
		}
		a.peerLastTSN = c.newCumulativeTSN
		// deliver anything now contiguous
		for {
			next, ok := a.pendingData[a.peerLastTSN+1]
			if !ok {
				break
			}
			a.peerLastTSN++
			delete(a.pendingData, a.peerLastTSN)
			a.deliverLocked(next)
		}
	}
	for _, s := range c.streams {
		if stream, ok := a.streams[s.identifier]; ok {
			stream.skipOrderedTo(s.sequence)
		}
	}
	tag := a.peerVerificationTag
	cum := a.peerLastTSN
	a.mu.Unlock()

	_ = a.send(&chunkSelectiveAck{
		cumulativeTSNAck:               cum,
		advertisedReceiverWindowCredit: defaultAdvertisedWindow,
	}, tag)
}

// sendPayloadData queues the chunks in flight and transmits them.
func (a *Association) sendPayloadData(chunks []*chunkPayloadData) error {
	a.mu.Lock()
	if a.state != established {
		a.mu.Unlock()
		return ErrAssociationClosed
	}
	for _, c := range chunks {
		c.tsn = a.myNextTSN
		a.myNextTSN++
		c.since = time.Now()
		c.nSent = 1
		a.inflight[c.tsn] = c
	}
	a.armT3Locked()
	tag := a.peerVerificationTag
	a.mu.Unlock()

	for _, c := range chunks {
		if err := a.send(c, tag); err != nil {
			return err
		}
	}
	return nil
}

// OpenStream creates a local stream with the given identifier.
func (a *Association) OpenStream(streamIdentifier uint16, defaultPayloadType PayloadProtocolIdentifier) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.streams[streamIdentifier]; ok {
		return nil, ErrStreamExists
	}
	s := newStream(a, streamIdentifier, defaultPayloadType)
	a.streams[streamIdentifier] = s
	return s, nil
}

// AcceptStream blocks until the peer opens a new inbound stream.
func (a *Association) AcceptStream() (*Stream, error) {
	select {
	case s := <-a.acceptCh:
		return s, nil
	case <-a.closedCh:
		return nil, ErrAssociationClosed
	}
}

// Close performs the graceful shutdown sequence and closes the transport.
func (a *Association) Close() error {
	a.mu.Lock()
	state := a.state
	cum := a.peerLastTSN
	a.mu.Unlock()

	if state == established {
		_ = a.sendEstablished(&chunkShutdown{cumulativeTSNAck: cum})
		select {
		case <-a.closedCh:
		case <-time.After(time.Second):
			a.closeOnce.Do(func() { close(a.closedCh) })
		}
	} else {
		a.closeOnce.Do(func() { close(a.closedCh) })
	}
	return a.netConn.Close()
}

// serial number arithmetic, RFC 1982
func sna32GT(a, b uint32) bool {
	return (a < b && b-a > 1<<31) || (a > b && a-b < 1<<31)
}

func sna32LTE(a, b uint32) bool {
	return a == b || sna32GT(b, a)
}

func (a *Association) String() string {
	return fmt.Sprintf("sctp association state=%d client=%v", a.state, a.isClient)
}
