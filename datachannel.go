// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"sync"

	"github.com/sjhorn/webrtc/internal/datachannel"
)

// DataChannelState indicates the state of a data channel.
type DataChannelState int

// DataChannelState enums.
const (
	DataChannelStateUnknown DataChannelState = iota
	DataChannelStateConnecting
	DataChannelStateOpen
	DataChannelStateClosing
	DataChannelStateClosed
)

func (t DataChannelState) String() string {
	switch t {
	case DataChannelStateConnecting:
		return "connecting"
	case DataChannelStateOpen:
		return "open"
	case DataChannelStateClosing:
		return "closing"
	case DataChannelStateClosed:
		return "closed"
	default:
		return ErrUnknownType.Error()
	}
}

// DataChannelInit can be used to configure properties of the underlying
// channel such as data reliability.
type DataChannelInit struct {
	// Ordered indicates if data is allowed to be delivered out of order. The
	// default value of true, guarantees that data will be delivered in order.
	Ordered *bool
	// MaxPacketLifeTime limits the time (in milliseconds) during which the
	// channel will transmit or retransmit data if not acknowledged.
	MaxPacketLifeTime *uint16
	// MaxRetransmits limits the number of times a channel will retransmit
	// data if not successfully delivered.
	MaxRetransmits *uint16
	// Protocol describes the subprotocol name used for this channel.
	Protocol *string
	// Negotiated describes if the data channel is created by the local peer
	// or the remote peer.
	Negotiated *bool
	// ID overrides the default selection of ID for this channel.
	ID *uint16
}

// DataChannelMessage represents a message received from the data channel.
// IsString will be set to true if the incoming message is of the string type.
// Otherwise the message is of a binary type.
type DataChannelMessage struct {
	IsString bool
	Data     []byte
}

// DataChannel represents a WebRTC DataChannel: a bidirectional data channel
// between two peers over an SCTP stream.
type DataChannel struct {
	mu sync.RWMutex

	label             string
	protocol          string
	ordered           bool
	maxPacketLifeTime *uint16
	maxRetransmits    *uint16
	negotiated        bool
	id                *uint16

	readyState DataChannelState

	onOpenHandler    func()
	onMessageHandler func(DataChannelMessage)
	onCloseHandler   func()
	onErrorHandler   func(error)

	dc *datachannel.DataChannel
}

// Label represents a label that can be used to distinguish this DataChannel
// object from other DataChannel objects.
func (d *DataChannel) Label() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.label
}

// Protocol represents the name of the sub-protocol used with this DataChannel.
func (d *DataChannel) Protocol() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.protocol
}

// Ordered returns true if the DataChannel guarantees in-order delivery.
func (d *DataChannel) Ordered() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ordered
}

// ID represents the ID for this DataChannel: the SCTP stream identifier.
func (d *DataChannel) ID() *uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.id
}

// ReadyState represents the state of the DataChannel object.
func (d *DataChannel) ReadyState() DataChannelState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readyState
}

// OnOpen sets an event handler which is invoked when the underlying data
// transport has been established.
func (d *DataChannel) OnOpen(f func()) {
	d.mu.Lock()
	alreadyOpen := d.readyState == DataChannelStateOpen
	d.onOpenHandler = f
	d.mu.Unlock()

	if alreadyOpen && f != nil {
		go f()
	}
}

// OnMessage sets an event handler which is invoked on a message arrival over
// the sctp transport.
func (d *DataChannel) OnMessage(f func(msg DataChannelMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessageHandler = f
}

// OnClose sets an event handler which is invoked when the channel closes.
func (d *DataChannel) OnClose(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCloseHandler = f
}

// OnError sets an event handler which is invoked on channel errors.
func (d *DataChannel) OnError(f func(err error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onErrorHandler = f
}

// Send sends the binary message to the DataChannel peer.
func (d *DataChannel) Send(data []byte) error {
	d.mu.RLock()
	dc := d.dc
	state := d.readyState
	d.mu.RUnlock()

	if state != DataChannelStateOpen || dc == nil {
		return &InvalidStateError{Err: errDataChannelNotOpen}
	}
	_, err := dc.WriteDataChannel(data, false)
	return err
}

// SendText sends the text message to the DataChannel peer.
func (d *DataChannel) SendText(text string) error {
	d.mu.RLock()
	dc := d.dc
	state := d.readyState
	d.mu.RUnlock()

	if state != DataChannelStateOpen || dc == nil {
		return &InvalidStateError{Err: errDataChannelNotOpen}
	}
	_, err := dc.WriteDataChannel([]byte(text), true)
	return err
}

// Close closes the DataChannel.
func (d *DataChannel) Close() error {
	d.mu.Lock()
	if d.readyState == DataChannelStateClosed {
		d.mu.Unlock()
		return nil
	}
	d.readyState = DataChannelStateClosed
	dc := d.dc
	handler := d.onCloseHandler
	d.mu.Unlock()

	if handler != nil {
		handler()
	}
	if dc != nil {
		return dc.Close()
	}
	return nil
}

// open attaches the established DCEP channel and starts delivering messages.
func (d *DataChannel) open(dc *datachannel.DataChannel) {
	d.mu.Lock()
	d.dc = dc
	streamID := dc.StreamIdentifier()
	d.id = &streamID
	d.readyState = DataChannelStateOpen
	handler := d.onOpenHandler
	d.mu.Unlock()

	if handler != nil {
		handler()
	}

	go d.readLoop()
}

func (d *DataChannel) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, isString, err := d.dc.ReadDataChannel(buf)
		if err != nil {
			d.mu.Lock()
			errHandler := d.onErrorHandler
			alreadyClosed := d.readyState == DataChannelStateClosed
			d.mu.Unlock()
			if errHandler != nil && !alreadyClosed {
				errHandler(err)
			}
			_ = d.Close()
			return
		}

		d.mu.RLock()
		handler := d.onMessageHandler
		d.mu.RUnlock()
		if handler != nil {
			handler(DataChannelMessage{IsString: isString, Data: append([]byte(nil), buf[:n]...)})
		}
	}
}
