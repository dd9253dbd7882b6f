// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"sync"
	"time"
)

// ReliabilityType describes the partial-reliability policy of a stream.
type ReliabilityType byte

// Reliability policies from the data channel establishment protocol.
const (
	// ReliabilityTypeReliable retransmits until acknowledged.
	ReliabilityTypeReliable ReliabilityType = 0
	// ReliabilityTypeRexmit abandons after ReliabilityValue retransmissions.
	ReliabilityTypeRexmit ReliabilityType = 1
	// ReliabilityTypeTimed abandons after ReliabilityValue milliseconds.
	ReliabilityTypeTimed ReliabilityType = 2
)

type streamMessage struct {
	data []byte
	ppi  PayloadProtocolIdentifier
}

// Stream is one SCTP stream of an association: an ordered (or unordered)
// sequence of messages with its own sequence numbering and reliability
// policy.
type Stream struct {
	association *Association
	identifier  uint16

	mu sync.Mutex

	defaultPayloadType PayloadProtocolIdentifier
	unordered          bool
	reliabilityType    ReliabilityType
	reliabilityValue   uint32

	nextSendSequence uint16

	// receive side reassembly
	nextOrderedSequence uint16
	orderedQueue        map[uint16][]*chunkPayloadData // partial+complete messages by sequence
	unorderedBuf        []*chunkPayloadData

	readCh   chan streamMessage
	closedCh chan struct{}
	closeOnce sync.Once
}

func newStream(a *Association, identifier uint16, defaultPayloadType PayloadProtocolIdentifier) *Stream {
	return &Stream{
		association:        a,
		identifier:         identifier,
		defaultPayloadType: defaultPayloadType,
		orderedQueue:       map[uint16][]*chunkPayloadData{},
		readCh:             make(chan streamMessage, 64),
		closedCh:           make(chan struct{}),
	}
}

// StreamIdentifier returns the stream id.
func (s *Stream) StreamIdentifier() uint16 {
	return s.identifier
}

// SetReliabilityParams configures ordering and partial reliability for
// outbound messages.
func (s *Stream) SetReliabilityParams(unordered bool, relType ReliabilityType, relVal uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unordered = unordered
	s.reliabilityType = relType
	s.reliabilityValue = relVal
}

// expired reports whether a chunk's reliability budget is spent; called by
// the association during retransmission.
func (s *Stream) expired(c *chunkPayloadData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.reliabilityType {
	case ReliabilityTypeRexmit:
		return c.nSent > s.reliabilityValue+1
	case ReliabilityTypeTimed:
		return time.Since(c.since) > time.Duration(s.reliabilityValue)*time.Millisecond
	default:
		return false
	}
}

// WriteSCTP fragments one message into DATA chunks and hands them to the
// association.
func (s *Stream) WriteSCTP(payload []byte, ppi PayloadProtocolIdentifier) (int, error) {
	select {
	case <-s.closedCh:
		return 0, ErrStreamClosed
	default:
	}

	s.mu.Lock()
	unordered := s.unordered
	sequence := s.nextSendSequence
	if !unordered {
		s.nextSendSequence++
	}
	s.mu.Unlock()

	var chunks []*chunkPayloadData
	remaining := payload
	first := true
	for {
		fragment := remaining
		if len(fragment) > maxPayloadSize {
			fragment = fragment[:maxPayloadSize]
		}
		remaining = remaining[len(fragment):]

		chunks = append(chunks, &chunkPayloadData{
			unordered:            unordered,
			beginningFragment:    first,
			endingFragment:       len(remaining) == 0,
			streamIdentifier:     s.identifier,
			streamSequenceNumber: sequence,
			payloadType:          ppi,
			userData:             append([]byte(nil), fragment...),
		})
		first = false
		if len(remaining) == 0 {
			break
		}
	}

	if err := s.association.sendPayloadData(chunks); err != nil {
		return 0, err
	}
	return len(payload), nil
}

// Write sends with the stream's default payload type.
func (s *Stream) Write(p []byte) (int, error) {
	return s.WriteSCTP(p, s.defaultPayloadType)
}

// ReadSCTP blocks for the next complete message, returning its payload
// protocol identifier alongside the data.
func (s *Stream) ReadSCTP(p []byte) (int, PayloadProtocolIdentifier, error) {
	select {
	case msg := <-s.readCh:
		if len(msg.data) > len(p) {
			return 0, msg.ppi, errChunkBodyTooSmall
		}
		return copy(p, msg.data), msg.ppi, nil
	case <-s.closedCh:
		return 0, 0, ErrStreamClosed
	case <-s.association.closedCh:
		return 0, 0, ErrAssociationClosed
	}
}

// Read blocks for the next complete message.
func (s *Stream) Read(p []byte) (int, error) {
	n, _, err := s.ReadSCTP(p)
	return n, err
}

// handleData reassembles inbound chunks into messages. Called with
// association ordering already enforced (TSNs are contiguous).
func (s *Stream) handleData(c *chunkPayloadData) {
	s.mu.Lock()
	if c.unordered {
		s.unorderedBuf = append(s.unorderedBuf, c)
		if msg, ok := assembleMessage(s.unorderedBuf); ok {
			s.unorderedBuf = nil
			s.mu.Unlock()
			s.push(msg)
			return
		}
		s.mu.Unlock()
		return
	}

	s.orderedQueue[c.streamSequenceNumber] = append(s.orderedQueue[c.streamSequenceNumber], c)
	var ready []streamMessage
	for {
		fragments, ok := s.orderedQueue[s.nextOrderedSequence]
		if !ok {
			break
		}
		msg, complete := assembleMessage(fragments)
		if !complete {
			break
		}
		delete(s.orderedQueue, s.nextOrderedSequence)
		s.nextOrderedSequence++
		ready = append(ready, msg)
	}
	s.mu.Unlock()

	for _, msg := range ready {
		s.push(msg)
	}
}

// assembleMessage concatenates fragments once the B and E flags bracket a
// complete message.
func assembleMessage(fragments []*chunkPayloadData) (streamMessage, bool) {
	if len(fragments) == 0 {
		return streamMessage{}, false
	}
	if !fragments[0].beginningFragment || !fragments[len(fragments)-1].endingFragment {
		return streamMessage{}, false
	}

	var data []byte
	for _, f := range fragments {
		data = append(data, f.userData...)
	}
	return streamMessage{data: data, ppi: fragments[0].payloadType}, true
}

// skipOrderedTo advances past sequences abandoned by a FORWARD-TSN.
func (s *Stream) skipOrderedTo(sequence uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for seq := s.nextOrderedSequence; int16(sequence-seq) >= 0; seq++ {
		delete(s.orderedQueue, seq)
		s.nextOrderedSequence = seq + 1
	}
}

func (s *Stream) push(msg streamMessage) {
	select {
	case s.readCh <- msg:
	case <-s.closedCh:
	case <-s.association.closedCh:
	}
}

// Close marks the stream unusable; stream reset signaling is left to the
// association teardown.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.closedCh) })
	return nil
}
