// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stun

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCompletesOnResponse(t *testing.T) {
	var sent [][]byte
	var mu sync.Mutex
	client := NewClient(ClientConfig{
		RTO: time.Hour, // no retransmits during the test
		Write: func(raw []byte, _ net.Addr) error {
			mu.Lock()
			sent = append(sent, append([]byte(nil), raw...))
			mu.Unlock()
			return nil
		},
	})
	defer client.Close()

	req, err := Build(TransactionID, BindingRequest)
	require.NoError(t, err)

	events := make(chan Event, 1)
	require.NoError(t, client.Start(req, nil, func(e Event) { events <- e }))

	mu.Lock()
	require.Len(t, sent, 1)
	mu.Unlock()

	resp, err := Build(TransactionIDSetter(req.TransactionID), BindingSuccess)
	require.NoError(t, err)
	assert.True(t, client.HandleInbound(resp))

	e := <-events
	require.NoError(t, e.Error)
	assert.Equal(t, req.TransactionID, e.Message.TransactionID)

	// a second delivery for the same id is not consumed
	assert.False(t, client.HandleInbound(resp))
}

func TestClientIgnoresUnknownTransaction(t *testing.T) {
	client := NewClient(ClientConfig{
		Write: func([]byte, net.Addr) error { return nil },
	})
	defer client.Close()

	resp, err := Build(TransactionID, BindingSuccess)
	require.NoError(t, err)
	assert.False(t, client.HandleInbound(resp))
}

func TestClientRetransmitsUntilTimeout(t *testing.T) {
	var writes int32
	client := NewClient(ClientConfig{
		RTO:                time.Millisecond,
		MaxRetransmissions: 3,
		Write: func([]byte, net.Addr) error {
			atomic.AddInt32(&writes, 1)
			return nil
		},
	})
	defer client.Close()

	req, err := Build(TransactionID, BindingRequest)
	require.NoError(t, err)

	events := make(chan Event, 1)
	require.NoError(t, client.Start(req, nil, func(e Event) { events <- e }))

	select {
	case e := <-events:
		assert.ErrorIs(t, e.Error, ErrTransactionTimeOut)
	case <-time.After(5 * time.Second):
		t.Fatal("transaction did not time out")
	}

	// initial send plus MaxRetransmissions
	assert.Equal(t, int32(4), atomic.LoadInt32(&writes))
}

func TestClientErrorResponse(t *testing.T) {
	client := NewClient(ClientConfig{
		RTO:   time.Hour,
		Write: func([]byte, net.Addr) error { return nil },
	})
	defer client.Close()

	req, err := Build(TransactionID, BindingRequest)
	require.NoError(t, err)

	events := make(chan Event, 1)
	require.NoError(t, client.Start(req, nil, func(e Event) { events <- e }))

	resp, err := Build(TransactionIDSetter(req.TransactionID), BindingError, CodeRoleConflict)
	require.NoError(t, err)
	require.True(t, client.HandleInbound(resp))

	e := <-events
	var tErr *TransactionError
	require.ErrorAs(t, e.Error, &tErr)
	assert.Equal(t, CodeRoleConflict, tErr.Code)
}

func TestClientCancelIsIdempotent(t *testing.T) {
	client := NewClient(ClientConfig{
		RTO:   time.Hour,
		Write: func([]byte, net.Addr) error { return nil },
	})
	defer client.Close()

	req, err := Build(TransactionID, BindingRequest)
	require.NoError(t, err)
	require.NoError(t, client.Start(req, nil, nil))

	client.Cancel(req.TransactionID)
	client.Cancel(req.TransactionID)

	resp, err := Build(TransactionIDSetter(req.TransactionID), BindingSuccess)
	require.NoError(t, err)
	assert.False(t, client.HandleInbound(resp))
}
