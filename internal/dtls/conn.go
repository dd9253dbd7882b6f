// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package dtls implements DTLS 1.2 (RFC 6347) with the flight-based
// handshake, AEAD record protection and the SRTP key exporter (RFC 5764)
// needed by WebRTC.
package dtls

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/replaydetector"
)

const (
	// futureRecordQueueLimit bounds the records buffered for a future
	// epoch; the oldest entries are discarded beyond it.
	futureRecordQueueLimit = 64
	inboundBufferSize      = 8192
)

type handshakeEnvelope struct {
	header handshakeHeader
	body   []byte
}

// State exposes handshake results.
type State struct {
	RemoteCertificate    []byte
	CipherSuiteID        CipherSuiteID
	SRTPProtectionProfile SRTPProtectionProfile
	ExtendedMasterSecret bool
}

// Conn is a DTLS connection over a datagram net.Conn.
type Conn struct {
	nextConn net.Conn
	config   *Config
	isClient bool
	log      logging.LeveledLogger

	writeMu       sync.Mutex
	localEpoch    uint16
	localSequence map[uint16]uint64

	readMu        sync.Mutex
	remoteEpoch   uint16
	replayWindows map[uint16]replaydetector.ReplayDetector
	futureRecords [][]byte

	cipher *cipherSuite

	fragments     *fragmentBuffer
	handshakeRx   chan handshakeEnvelope
	ccsRx         chan struct{}
	handshakeDone chan struct{}

	// handshakeLog is the ordered transcript fed to EMS and Finished.
	handshakeLog []byte

	localRandom, remoteRandom handshakeRandom
	masterSecret              []byte
	keypair                   *namedCurveKeypair
	curve                     namedCurve
	cookie                    []byte

	state State

	nextHandshakeSeq uint16

	decrypted chan []byte
	closeOnce sync.Once
	closed    chan struct{}
	connErrMu sync.Mutex
	connErr   error
}

func newConn(nextConn net.Conn, config *Config, isClient bool) *Conn {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Conn{
		nextConn:      nextConn,
		config:        config,
		isClient:      isClient,
		log:           loggerFactory.NewLogger("dtls"),
		localSequence: map[uint16]uint64{},
		replayWindows: map[uint16]replaydetector.ReplayDetector{},
		fragments:     newFragmentBuffer(),
		handshakeRx:   make(chan handshakeEnvelope, 16),
		ccsRx:         make(chan struct{}, 4),
		handshakeDone: make(chan struct{}),
		decrypted:     make(chan []byte, 64),
		closed:        make(chan struct{}),
	}
}

// Client establishes a DTLS connection in the client role, blocking until
// the handshake completes or fails.
func Client(nextConn net.Conn, config *Config) (*Conn, error) {
	c := newConn(nextConn, config, true)
	go c.readLoop()
	if err := c.handshakeAsClient(); err != nil {
		_ = c.close(&alert{alertLevelFatal, alertHandshakeFailure})
		return nil, err
	}
	close(c.handshakeDone)
	return c, nil
}

// Server establishes a DTLS connection in the server role.
func Server(nextConn net.Conn, config *Config) (*Conn, error) {
	c := newConn(nextConn, config, false)
	go c.readLoop()
	if err := c.handshakeAsServer(); err != nil {
		_ = c.close(&alert{alertLevelFatal, alertHandshakeFailure})
		return nil, err
	}
	close(c.handshakeDone)
	return c, nil
}

// ---------------------------------------------------------------- transport

func (c *Conn) setConnErr(err error) {
	c.connErrMu.Lock()
	if c.connErr == nil {
		c.connErr = err
	}
	c.connErrMu.Unlock()
}

func (c *Conn) readLoop() {
	buf := make([]byte, inboundBufferSize)
	for {
		n, err := c.nextConn.Read(buf)
		if err != nil {
			c.setConnErr(err)
			c.closeOnce.Do(func() { close(c.closed) })
			return
		}

		pkts, err := unpackDatagram(buf[:n])
		if err != nil {
			c.log.Debugf("dropping malformed datagram: %v", err)
			continue
		}
		for _, pkt := range pkts {
			if err := c.handleIncomingRecord(append([]byte(nil), pkt...)); err != nil {
				c.log.Debugf("dropping record: %v", err)
			}
		}
	}
}

// handleIncomingRecord implements the record-layer read path: version
// check, future-epoch buffering, decryption, replay protection, dispatch.
func (c *Conn) handleIncomingRecord(pkt []byte) error { //nolint:gocognit
	var h recordHeader
	if err := h.unmarshal(pkt); err != nil {
		return err
	}

	// 0xfeff is tolerated on the first flights only; strict 1.2 after.
	if h.version != dtls1_2 && !(h.version == dtls1_0 && c.remoteEpoch == 0) {
		return fmt.Errorf("%w: %x%x", errUnsupportedProtocolVersion, h.version.major, h.version.minor)
	}

	c.readMu.Lock()
	if h.epoch > c.remoteEpoch || (h.epoch > 0 && (c.cipher == nil || !c.cipher.initialized)) {
		// buffered until the ChangeCipherSpec advances our read epoch and
		// the pending-state keys are installed
		if len(c.futureRecords) >= futureRecordQueueLimit {
			c.futureRecords = c.futureRecords[1:]
		}
		c.futureRecords = append(c.futureRecords, pkt)
		c.readMu.Unlock()
		return nil
	}

	window, ok := c.replayWindows[h.epoch]
	if !ok {
		window = replaydetector.New(64, maxSequenceNumber)
		c.replayWindows[h.epoch] = window
	}
	markAsAccepted, ok := window.Check(h.sequenceNumber)
	if !ok {
		c.readMu.Unlock()
		return nil // duplicate or stale, dropped silently
	}
	c.readMu.Unlock()

	payload := pkt[recordHeaderSize:]
	if h.epoch > 0 {
		if c.cipher == nil || !c.cipher.initialized {
			return errApplicationDataEpochZero
		}
		var err error
		if payload, err = c.cipher.decrypt(&h, payload); err != nil {
			return err
		}
	}
	markAsAccepted()

	switch h.contentType {
	case contentTypeHandshake:
		// one record may carry several concatenated handshake messages
		for offset := 0; offset < len(payload); {
			var hh handshakeHeader
			if err := hh.unmarshal(payload[offset:]); err != nil {
				return err
			}
			fragEnd := offset + handshakeHeaderSize + int(hh.fragmentLength)
			if fragEnd > len(payload) {
				return errBufferTooSmall
			}
			if _, err := c.fragments.push(payload[offset:fragEnd]); err != nil {
				return err
			}
			offset = fragEnd
		}
		for {
			header, body := c.fragments.pop()
			if header == nil {
				break
			}
			select {
			case c.handshakeRx <- handshakeEnvelope{*header, body}:
			case <-c.closed:
				return errConnClosed
			}
		}

	case contentTypeChangeCipherSpec:
		c.readMu.Lock()
		c.remoteEpoch++
		c.replayWindows[c.remoteEpoch] = replaydetector.New(64, maxSequenceNumber)
		buffered := c.futureRecords
		c.futureRecords = nil
		c.readMu.Unlock()

		select {
		case c.ccsRx <- struct{}{}:
		default:
		}
		for _, b := range buffered {
			if err := c.handleIncomingRecord(b); err != nil {
				c.log.Debugf("dropping buffered record: %v", err)
			}
		}

	case contentTypeAlert:
		var a alert
		if err := a.unmarshal(payload); err != nil {
			return err
		}
		c.log.Debugf("received %s", a.String())
		if a.level == alertLevelFatal || a.description == alertCloseNotify {
			c.setConnErr(fmt.Errorf("%w: %s", errAlertFatal, a.String()))
			c.closeOnce.Do(func() { close(c.closed) })
		}

	case contentTypeApplicationData:
		if h.epoch == 0 {
			return errApplicationDataEpochZero
		}
		select {
		case c.decrypted <- payload:
		case <-c.closed:
			return errConnClosed
		}
	}

	return nil
}

// writeRecord emits one record at the current write epoch, encrypting when
// the epoch is non-zero. The sequence number increments per record and
// resets to zero on each epoch bump.
func (c *Conn) writeRecord(ct contentType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	raw, err := c.buildRecordLocked(ct, payload)
	if err != nil {
		return err
	}
	_, err = c.nextConn.Write(raw)
	return err
}

func (c *Conn) buildRecordLocked(ct contentType, payload []byte) ([]byte, error) {
	epoch := c.localEpoch
	seq := c.localSequence[epoch]
	if seq > maxSequenceNumber {
		return nil, errSequenceNumberOverflow
	}
	c.localSequence[epoch] = seq + 1

	rec := &record{
		header: recordHeader{
			contentType:    ct,
			version:        dtls1_2,
			epoch:          epoch,
			sequenceNumber: seq,
		},
		payload: payload,
	}

	if epoch == 0 {
		return rec.marshal(), nil
	}
	if c.cipher == nil || !c.cipher.initialized {
		return nil, errApplicationDataEpochZero
	}
	return c.cipher.encrypt(rec)
}

// ---------------------------------------------------------------- flights

// flightItem is one record payload queued for (re)transmission, pinned to
// the epoch it must be sent in.
type flightItem struct {
	contentType contentType
	payload     []byte
	epoch       uint16
}

// currentFlight retains the last sent flight for retransmission. Advancing
// to the next flight replaces it.
type currentFlight struct {
	items []flightItem
}

// addChangeCipherSpec queues the one-byte CCS record; records queued after
// it are expected to carry the next epoch.
func (f *currentFlight) addChangeCipherSpec() {
	f.items = append(f.items, flightItem{
		contentType: contentTypeChangeCipherSpec,
		payload:     []byte{0x01},
		epoch:       0,
	})
}

// writeFlight sends every record of the flight in one datagram. Retransmits
// re-enter here: sequence numbers advance on every (re)transmission while
// epochs stay pinned per item.
func (c *Conn) writeFlight(flight *currentFlight) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var datagram []byte
	for _, item := range flight.items {
		if item.epoch > c.localEpoch {
			c.localEpoch = item.epoch
			c.localSequence[item.epoch] = 0
		}

		seq := c.localSequence[item.epoch]
		if seq > maxSequenceNumber {
			return errSequenceNumberOverflow
		}
		c.localSequence[item.epoch] = seq + 1

		rec := &record{
			header: recordHeader{
				contentType:    item.contentType,
				version:        dtls1_2,
				epoch:          item.epoch,
				sequenceNumber: seq,
			},
			payload: item.payload,
		}

		var raw []byte
		if item.epoch == 0 {
			raw = rec.marshal()
		} else {
			if c.cipher == nil || !c.cipher.initialized {
				return errApplicationDataEpochZero
			}
			var err error
			if raw, err = c.cipher.encrypt(rec); err != nil {
				return err
			}
		}
		datagram = append(datagram, raw...)
	}

	_, err := c.nextConn.Write(datagram)
	return err
}

func (c *Conn) retransmitFlight(flight *currentFlight) error {
	return c.writeFlight(flight)
}

// appendHandshake marshals a handshake message, adds it to the transcript
// and queues its fragments onto the flight at the given epoch.
func (c *Conn) appendHandshake(flight *currentFlight, msg handshakeMessage, epoch uint16) error {
	body, err := msg.marshal()
	if err != nil {
		return err
	}
	header := &handshakeHeader{
		messageType: msg.handshakeType(),
		length:      uint32(len(body)),
		messageSeq:  c.nextHandshakeSeq,
	}
	c.nextHandshakeSeq++

	// HelloVerifyRequest and the cookie-less ClientHello stay out of the
	// transcript; everything else is logged with a cooked header.
	if c.includeInTranscript(msg) {
		c.appendToTranscript(header, body)
	}

	for _, frag := range fragmentHandshake(header, body, recordMTU) {
		flight.items = append(flight.items, flightItem{
			contentType: contentTypeHandshake,
			payload:     frag,
			epoch:       epoch,
		})
	}
	return nil
}

func (c *Conn) includeInTranscript(msg handshakeMessage) bool {
	switch m := msg.(type) {
	case *handshakeMessageHelloVerifyRequest:
		return false
	case *handshakeMessageClientHello:
		return len(m.cookie) != 0 || c.config.InsecureSkipHelloVerify
	default:
		return true
	}
}

// appendToTranscript logs a handshake message exactly as a cooked,
// unfragmented wire message.
func (c *Conn) appendToTranscript(header *handshakeHeader, body []byte) {
	cooked := *header
	cooked.fragmentOffset = 0
	cooked.fragmentLength = cooked.length
	c.handshakeLog = append(c.handshakeLog, cooked.marshal()...)
	c.handshakeLog = append(c.handshakeLog, body...)
}

// recvHandshake waits for the next in-order handshake message, resending
// the current flight on the doubling retransmission timer. A received
// message of the awaited flight acts as the implicit ack.
func (c *Conn) recvHandshake(flight *currentFlight, deadline time.Time) (*handshakeEnvelope, error) {
	interval := c.config.RetransmitInterval
	if interval == 0 {
		interval = defaultRetransmitInterval
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case env := <-c.handshakeRx:
			return &env, nil
		case <-timer.C:
			if time.Now().After(deadline) {
				return nil, errHandshakeTimeout
			}
			if flight != nil {
				c.log.Tracef("retransmitting flight (%d records)", len(flight.items))
				if err := c.retransmitFlight(flight); err != nil {
					return nil, err
				}
			}
			interval *= 2
			if interval > maxRetransmitInterval {
				interval = maxRetransmitInterval
			}
			timer.Reset(interval)
		case <-c.closed:
			return nil, c.readError()
		}
	}
}

// recvCCS waits for the peer's ChangeCipherSpec.
func (c *Conn) recvCCS(flight *currentFlight, deadline time.Time) error {
	interval := c.config.RetransmitInterval
	if interval == 0 {
		interval = defaultRetransmitInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-c.ccsRx:
			return nil
		case <-timer.C:
			if time.Now().After(deadline) {
				return errHandshakeTimeout
			}
			if flight != nil {
				if err := c.retransmitFlight(flight); err != nil {
					return err
				}
			}
			interval *= 2
			if interval > maxRetransmitInterval {
				interval = maxRetransmitInterval
			}
			timer.Reset(interval)
		case <-c.closed:
			return c.readError()
		}
	}
}

// flushBufferedRecords reprocesses records that arrived before the cipher
// state they need was installed.
func (c *Conn) flushBufferedRecords() {
	c.readMu.Lock()
	buffered := c.futureRecords
	c.futureRecords = nil
	c.readMu.Unlock()

	for _, b := range buffered {
		if err := c.handleIncomingRecord(b); err != nil {
			c.log.Debugf("dropping buffered record: %v", err)
		}
	}
}

func (c *Conn) readError() error {
	c.connErrMu.Lock()
	defer c.connErrMu.Unlock()
	if c.connErr != nil {
		return c.connErr
	}
	return errConnClosed
}

// ------------------------------------------------------------- public API

// Read returns the next application-data payload.
func (c *Conn) Read(p []byte) (int, error) {
	select {
	case data := <-c.decrypted:
		if len(data) > len(p) {
			return 0, errBufferTooSmall
		}
		return copy(p, data), nil
	case <-c.closed:
		return 0, c.readError()
	}
}

// Write sends one application-data record.
func (c *Conn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, c.readError()
	default:
	}
	if err := c.writeRecord(contentTypeApplicationData, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close performs an ordered shutdown with a close_notify alert.
func (c *Conn) Close() error {
	return c.close(&alert{alertLevelWarning, alertCloseNotify})
}

func (c *Conn) close(a *alert) error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.writeRecord(contentTypeAlert, a.marshal())
		close(c.closed)
		err = c.nextConn.Close()
	})
	return err
}

// LocalAddr returns the underlying transport's local address.
func (c *Conn) LocalAddr() net.Addr { return c.nextConn.LocalAddr() }

// RemoteAddr returns the underlying transport's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.nextConn.RemoteAddr() }

// SetDeadline is a stub; the layers above carry their own timers.
func (c *Conn) SetDeadline(time.Time) error { return nil }

// SetReadDeadline is a stub.
func (c *Conn) SetReadDeadline(time.Time) error { return nil }

// SetWriteDeadline is a stub.
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

// ConnectionState returns the negotiated handshake state.
func (c *Conn) ConnectionState() State {
	return c.state
}

// SelectedSRTPProtectionProfile returns the profile agreed through the
// use_srtp extension.
func (c *Conn) SelectedSRTPProtectionProfile() (SRTPProtectionProfile, bool) {
	if c.state.SRTPProtectionProfile == 0 {
		return 0, false
	}
	return c.state.SRTPProtectionProfile, true
}

// ExportKeyingMaterial implements the RFC 5705 exporter over the DTLS
// master secret; SRTP uses the "EXTRACTOR-dtls_srtp" label.
func (c *Conn) ExportKeyingMaterial(label string, length int) ([]byte, error) {
	if c.masterSecret == nil {
		return nil, errKeyMaterialExhausted
	}
	var clientRandom, serverRandom handshakeRandom
	if c.isClient {
		clientRandom, serverRandom = c.localRandom, c.remoteRandom
	} else {
		clientRandom, serverRandom = c.remoteRandom, c.localRandom
	}
	seed := append(append([]byte{}, clientRandom[:]...), serverRandom[:]...)
	return prf(c.masterSecret, label, seed, length, c.cipher.hash)
}

// LocalEpoch is exposed for tests.
func (c *Conn) LocalEpoch() uint16 { return c.localEpoch }

// HandshakeLog is the transcript bytes; client and server must agree on it
// exactly. Exposed for tests.
func (c *Conn) HandshakeLog() []byte { return bytes.Clone(c.handshakeLog) }
