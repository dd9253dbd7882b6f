// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stun

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

const (
	// defaultRTO is the initial retransmission timeout, RFC 5389 §7.2.1.
	defaultRTO = 500 * time.Millisecond
	// defaultMaxRetransmissions is Rc-1: the request is sent once and
	// retransmitted up to this many times.
	defaultMaxRetransmissions = 7
	// maxRTO caps the exponential backoff.
	maxRTO = 8 * time.Second
)

var (
	// ErrTransactionTimeOut indicates that the transaction has reached the
	// retransmission limit without a response.
	ErrTransactionTimeOut = errors.New("stun: transaction is timed out")
	// ErrClientClosed indicates that the client is closed.
	ErrClientClosed = errors.New("stun: client is closed")
	// ErrTransactionExists indicates that the transaction ID is already registered.
	ErrTransactionExists = errors.New("stun: transaction exists with same id")
)

// TransactionError is delivered when the server answers with an error
// response.
type TransactionError struct {
	Code   ErrorCode
	Reason string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("stun: transaction failed: %d %s", e.Code, e.Reason)
}

// Event is passed to the transaction handler when the transaction completes.
type Event struct {
	Message *Message
	Error   error
}

// Handler handles a completed transaction.
type Handler func(e Event)

// ClientConfig configures a Client.
type ClientConfig struct {
	// RTO is the initial retransmission timeout. 500ms when zero; ICE
	// connectivity checks typically configure a smaller base.
	RTO time.Duration
	// MaxRetransmissions bounds retransmits after the initial send.
	// defaultMaxRetransmissions when zero.
	MaxRetransmissions int
	// Write sends raw bytes towards dst. Required.
	Write func(raw []byte, dst net.Addr) error
	// LoggerFactory scopes a logger for the client. Optional.
	LoggerFactory logging.LoggerFactory
}

type clientTransaction struct {
	id       [TransactionIDSize]byte
	raw      []byte
	dst      net.Addr
	handler  Handler
	timer    *time.Timer
	attempts int
	rto      time.Duration
}

// Client is a STUN transaction engine over a shared, caller-owned socket.
// Responses are fed in by the demultiplexer via HandleInbound.
type Client struct {
	mu           sync.Mutex
	transactions map[[TransactionIDSize]byte]*clientTransaction
	rto          time.Duration
	maxAttempts  int
	write        func(raw []byte, dst net.Addr) error
	log          logging.LeveledLogger
	closed       bool
}

// NewClient returns a transaction engine with the given configuration.
func NewClient(config ClientConfig) *Client {
	rto := config.RTO
	if rto == 0 {
		rto = defaultRTO
	}
	maxAttempts := config.MaxRetransmissions
	if maxAttempts == 0 {
		maxAttempts = defaultMaxRetransmissions
	}
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Client{
		transactions: make(map[[TransactionIDSize]byte]*clientTransaction),
		rto:          rto,
		maxAttempts:  maxAttempts,
		write:        config.Write,
		log:          loggerFactory.NewLogger("stun"),
	}
}

// Start sends the message towards dst and retransmits with exponential
// backoff until a response arrives via HandleInbound or the retransmission
// limit is hit.
func (c *Client) Start(m *Message, dst net.Addr, handler Handler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if _, ok := c.transactions[m.TransactionID]; ok {
		c.mu.Unlock()
		return ErrTransactionExists
	}

	t := &clientTransaction{
		id:      m.TransactionID,
		raw:     append([]byte(nil), m.Raw...),
		dst:     dst,
		handler: handler,
		rto:     c.rto,
	}
	c.transactions[t.id] = t
	t.timer = time.AfterFunc(t.rto, func() { c.retransmit(t.id) })
	c.mu.Unlock()

	if err := c.write(t.raw, dst); err != nil {
		c.Cancel(m.TransactionID)
		return err
	}

	// Indications are fire-and-forget.
	if m.Type.Class == ClassIndication {
		c.Cancel(m.TransactionID)
	}
	return nil
}

func (c *Client) retransmit(id [TransactionIDSize]byte) {
	c.mu.Lock()
	t, ok := c.transactions[id]
	if !ok {
		c.mu.Unlock()
		return
	}

	t.attempts++
	if t.attempts > c.maxAttempts {
		delete(c.transactions, id)
		c.mu.Unlock()
		if t.handler != nil {
			t.handler(Event{Error: ErrTransactionTimeOut})
		}
		return
	}

	t.rto *= 2
	if t.rto > maxRTO {
		t.rto = maxRTO
	}
	t.timer.Reset(t.rto)
	raw, dst := t.raw, t.dst
	c.mu.Unlock()

	c.log.Tracef("retransmitting transaction %x attempt %d", id, t.attempts)
	if err := c.write(raw, dst); err != nil {
		c.log.Warnf("retransmit failed: %v", err)
	}
}

// HandleInbound matches a decoded response against a pending transaction.
// It reports whether the message was consumed; responses with an unknown
// transaction ID are ignored per RFC 5389 §7.3.3.
func (c *Client) HandleInbound(m *Message) bool {
	c.mu.Lock()
	t, ok := c.transactions[m.TransactionID]
	if ok {
		delete(c.transactions, m.TransactionID)
		t.timer.Stop()
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	event := Event{Message: m}
	if m.Type.Class == ClassErrorResponse {
		var code ErrorCodeAttribute
		if err := code.GetFrom(m); err == nil {
			event.Error = &TransactionError{Code: code.Code, Reason: string(code.Reason)}
		} else {
			event.Error = &TransactionError{Code: CodeServerError, Reason: "malformed error response"}
		}
	}
	if t.handler != nil {
		t.handler(event)
	}
	return true
}

// Cancel stops a pending transaction without invoking its handler. It is
// idempotent.
func (c *Client) Cancel(id [TransactionIDSize]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.transactions[id]; ok {
		t.timer.Stop()
		delete(c.transactions, id)
	}
}

// Close cancels all pending transactions, delivering ErrClientClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := make([]*clientTransaction, 0, len(c.transactions))
	for id, t := range c.transactions {
		t.timer.Stop()
		pending = append(pending, t)
		delete(c.transactions, id)
	}
	c.mu.Unlock()

	for _, t := range pending {
		if t.handler != nil {
			t.handler(Event{Error: ErrClientClosed})
		}
	}
}
