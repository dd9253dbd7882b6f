// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package turn implements a TURN client (RFC 5766): relay allocation,
// permissions, channel binding and data relaying over a shared UDP socket.
package turn

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/sjhorn/webrtc/internal/stun"
)

const (
	// defaultLifetime is requested on ALLOCATE and REFRESH.
	defaultLifetime = 10 * time.Minute
	// permissionLifetime is fixed by RFC 5766 §9.
	permissionLifetime = 5 * time.Minute
	// permissionRefreshInterval is the age at which PermissionNeedsRefresh
	// reports a permission as due; the client does not renew permissions
	// on its own.
	permissionRefreshInterval = 4 * time.Minute

	protoUDP = 17
)

var (
	// ErrNoAllocation is returned for operations that need an allocation first.
	ErrNoAllocation = errors.New("turn: no allocation")
	// ErrAlreadyAllocated is returned when Allocate is called twice.
	ErrAlreadyAllocated = errors.New("turn: already allocated")
	// ErrMaxRetriesExceeded is returned when the auth challenge loops.
	ErrMaxRetriesExceeded = errors.New("turn: max auth retries exceeded")
	// ErrNoChannelNumbers is returned when the channel range is exhausted.
	ErrNoChannelNumbers = errors.New("turn: out of channel numbers")
)

// ClientConfig configures a TURN Client.
type ClientConfig struct {
	ServerAddr    net.Addr
	Username      string
	Password      string
	STUNClient    *stun.Client
	LoggerFactory logging.LoggerFactory
}

// Client performs TURN allocations against a single server. All requests run
// through the shared STUN transaction engine; inbound traffic is fed in by
// the socket demultiplexer.
type Client struct {
	mu sync.Mutex

	serverAddr net.Addr
	username   string
	password   string
	realm      string
	nonce      string

	stunClient *stun.Client
	log        logging.LeveledLogger

	relayedAddr *net.UDPAddr
	mappedAddr  *net.UDPAddr
	lifetime    time.Duration

	permissions map[string]time.Time  // peer IP -> last refresh
	channels    map[string]uint16     // peer addr -> channel number
	channelPeer map[uint16]*net.UDPAddr
	nextChannel uint16

	// OnData receives application data relayed from peers.
	OnData func(data []byte, from *net.UDPAddr)
}

// NewClient returns an unallocated TURN client.
func NewClient(config ClientConfig) *Client {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Client{
		serverAddr:  config.ServerAddr,
		username:    config.Username,
		password:    config.Password,
		stunClient:  config.STUNClient,
		log:         loggerFactory.NewLogger("turn"),
		permissions: make(map[string]time.Time),
		channels:    make(map[string]uint16),
		channelPeer: make(map[uint16]*net.UDPAddr),
		nextChannel: MinChannelNumber,
	}
}

// do runs one STUN transaction against the server and waits for its event.
func (c *Client) do(m *stun.Message) (stun.Event, error) {
	events := make(chan stun.Event, 1)
	if err := c.stunClient.Start(m, c.serverAddr, func(e stun.Event) { events <- e }); err != nil {
		return stun.Event{}, err
	}
	e := <-events
	return e, nil
}

// integrity returns the long-term credential key for the current realm.
func (c *Client) integrity() stun.MessageIntegrity {
	return stun.NewLongTermIntegrity(c.username, c.realm, c.password)
}

// Allocate requests a relayed transport address. The first request is sent
// without credentials; the expected 401 challenge supplies realm and nonce,
// and the request is retried with MESSAGE-INTEGRITY. A 438 response at any
// point refreshes the nonce transparently.
func (c *Client) Allocate() (*net.UDPAddr, error) {
	c.mu.Lock()
	if c.relayedAddr != nil {
		c.mu.Unlock()
		return nil, ErrAlreadyAllocated
	}
	c.mu.Unlock()

	req, err := stun.Build(
		stun.TransactionID,
		stun.MessageType{Method: stun.MethodAllocate, Class: stun.ClassRequest},
		stun.RawAttribute{Type: stun.AttrRequestedTransport, Value: []byte{protoUDP, 0, 0, 0}},
		stun.Fingerprint,
	)
	if err != nil {
		return nil, err
	}

	event, err := c.do(req)
	if err != nil {
		return nil, err
	}

	for retries := 0; retries < 3; retries++ {
		var tErr *stun.TransactionError
		switch {
		case event.Error == nil:
			return c.finishAllocate(event.Message)
		case errors.As(event.Error, &tErr) &&
			(tErr.Code == stun.CodeUnauthorized || tErr.Code == stun.CodeStaleNonce):
			// 401 supplies the realm on first contact; 438 rotates the
			// nonce (and possibly the realm) without re-prompting.
			c.updateCredentialsFrom(event.Message)
		default:
			return nil, event.Error
		}

		req, err = stun.Build(
			stun.TransactionID,
			stun.MessageType{Method: stun.MethodAllocate, Class: stun.ClassRequest},
			stun.RawAttribute{Type: stun.AttrRequestedTransport, Value: []byte{protoUDP, 0, 0, 0}},
			stun.NewUsername(c.username),
			stun.NewRealm(c.realm),
			stun.NewNonce(c.nonce),
			c.integrity(),
			stun.Fingerprint,
		)
		if err != nil {
			return nil, err
		}
		if event, err = c.do(req); err != nil {
			return nil, err
		}
	}

	return nil, ErrMaxRetriesExceeded
}

func (c *Client) updateCredentialsFrom(m *stun.Message) {
	if m == nil {
		return
	}
	realm := stun.TextAttribute{Attr: stun.AttrRealm}
	if err := realm.GetFrom(m); err == nil {
		c.realm = realm.Text
	}
	nonce := stun.TextAttribute{Attr: stun.AttrNonce}
	if err := nonce.GetFrom(m); err == nil {
		c.nonce = nonce.Text
	}
}

func (c *Client) finishAllocate(m *stun.Message) (*net.UDPAddr, error) {
	var relayed stun.XORRelayedAddress
	if err := relayed.GetFrom(m); err != nil {
		return nil, err
	}
	var mapped stun.XORMappedAddress
	_ = mapped.GetFrom(m)

	lifetime := defaultLifetime
	lt := stun.UInt32Attribute{Attr: stun.AttrLifetime}
	if err := lt.GetFrom(m); err == nil {
		lifetime = time.Duration(lt.Value) * time.Second
	}

	c.mu.Lock()
	c.relayedAddr = &net.UDPAddr{IP: relayed.IP, Port: relayed.Port}
	if mapped.IP != nil {
		c.mappedAddr = &net.UDPAddr{IP: mapped.IP, Port: mapped.Port}
	}
	c.lifetime = lifetime
	addr := c.relayedAddr
	c.mu.Unlock()

	c.log.Debugf("allocated relay %s lifetime %s", addr, lifetime)
	return addr, nil
}

// RelayedAddr returns the allocated relay address, if any.
func (c *Client) RelayedAddr() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relayedAddr
}

// Refresh renews the allocation; a zero lifetime deallocates it.
func (c *Client) Refresh(lifetime time.Duration) error {
	c.mu.Lock()
	allocated := c.relayedAddr != nil
	c.mu.Unlock()
	if !allocated {
		return ErrNoAllocation
	}

	for retries := 0; retries < 2; retries++ {
		req, err := stun.Build(
			stun.TransactionID,
			stun.MessageType{Method: stun.MethodRefresh, Class: stun.ClassRequest},
			stun.UInt32Attribute{Attr: stun.AttrLifetime, Value: uint32(lifetime.Seconds())},
			stun.NewUsername(c.username),
			stun.NewRealm(c.realm),
			stun.NewNonce(c.nonce),
			c.integrity(),
			stun.Fingerprint,
		)
		if err != nil {
			return err
		}

		event, err := c.do(req)
		if err != nil {
			return err
		}

		var tErr *stun.TransactionError
		switch {
		case event.Error == nil:
			if lifetime == 0 {
				c.mu.Lock()
				c.relayedAddr = nil
				c.mu.Unlock()
			}
			return nil
		case errors.As(event.Error, &tErr) && tErr.Code == stun.CodeStaleNonce:
			c.updateCredentialsFrom(event.Message)
		default:
			return event.Error
		}
	}
	return ErrMaxRetriesExceeded
}

// CreatePermission installs permissions for the given peer addresses. The
// server scopes each permission to the peer IP for five minutes; callers are
// expected to refresh at four-minute intervals.
func (c *Client) CreatePermission(peers ...*net.UDPAddr) error {
	c.mu.Lock()
	allocated := c.relayedAddr != nil
	c.mu.Unlock()
	if !allocated {
		return ErrNoAllocation
	}

	setters := []stun.Setter{
		stun.TransactionID,
		stun.MessageType{Method: stun.MethodCreatePermission, Class: stun.ClassRequest},
	}
	for _, peer := range peers {
		setters = append(setters, stun.XORPeerAddress{IP: peer.IP, Port: peer.Port})
	}
	setters = append(setters,
		stun.NewUsername(c.username),
		stun.NewRealm(c.realm),
		stun.NewNonce(c.nonce),
		c.integrity(),
		stun.Fingerprint,
	)

	req, err := stun.Build(setters...)
	if err != nil {
		return err
	}
	event, err := c.do(req)
	if err != nil {
		return err
	}
	if event.Error != nil {
		return event.Error
	}

	c.mu.Lock()
	now := time.Now()
	for _, peer := range peers {
		c.permissions[peer.IP.String()] = now
	}
	c.mu.Unlock()
	return nil
}

// PermissionNeedsRefresh reports whether the permission for peer is close to
// its five-minute expiry.
func (c *Client) PermissionNeedsRefresh(peer *net.UDPAddr) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	created, ok := c.permissions[peer.IP.String()]
	if !ok {
		return true
	}
	return time.Since(created) >= permissionRefreshInterval
}

// ChannelBind binds a channel number to the peer, enabling the 4-byte
// ChannelData framing in both directions.
func (c *Client) ChannelBind(peer *net.UDPAddr) (uint16, error) {
	c.mu.Lock()
	if c.relayedAddr == nil {
		c.mu.Unlock()
		return 0, ErrNoAllocation
	}
	if number, ok := c.channels[peer.String()]; ok {
		c.mu.Unlock()
		return number, nil
	}
	if c.nextChannel > MaxChannelNumber {
		c.mu.Unlock()
		return 0, ErrNoChannelNumbers
	}
	number := c.nextChannel
	c.nextChannel++
	c.mu.Unlock()

	channelAttr := make([]byte, 4)
	binary.BigEndian.PutUint16(channelAttr, number)

	req, err := stun.Build(
		stun.TransactionID,
		stun.MessageType{Method: stun.MethodChannelBind, Class: stun.ClassRequest},
		stun.RawAttribute{Type: stun.AttrChannelNumber, Value: channelAttr},
		stun.XORPeerAddress{IP: peer.IP, Port: peer.Port},
		stun.NewUsername(c.username),
		stun.NewRealm(c.realm),
		stun.NewNonce(c.nonce),
		c.integrity(),
		stun.Fingerprint,
	)
	if err != nil {
		return 0, err
	}
	event, err := c.do(req)
	if err != nil {
		return 0, err
	}
	if event.Error != nil {
		return 0, event.Error
	}

	c.mu.Lock()
	c.channels[peer.String()] = number
	c.channelPeer[number] = peer
	c.mu.Unlock()
	return number, nil
}

// SendTo relays data to the peer, preferring ChannelData framing when a
// channel is bound and falling back to a Send indication.
func (c *Client) SendTo(data []byte, peer *net.UDPAddr, write func([]byte, net.Addr) error) error {
	c.mu.Lock()
	number, hasChannel := c.channels[peer.String()]
	c.mu.Unlock()

	if hasChannel {
		cd := ChannelData{Number: number, Data: data}
		raw, err := cd.Marshal()
		if err != nil {
			return err
		}
		return write(raw, c.serverAddr)
	}

	ind, err := stun.Build(
		stun.TransactionID,
		stun.MessageType{Method: stun.MethodSend, Class: stun.ClassIndication},
		stun.XORPeerAddress{IP: peer.IP, Port: peer.Port},
		stun.RawAttribute{Type: stun.AttrData, Value: data},
		stun.Fingerprint,
	)
	if err != nil {
		return err
	}
	return write(ind.Raw, c.serverAddr)
}

// HandleInbound processes traffic arriving from the TURN server: Data
// indications and ChannelData frames. It reports whether the buffer was
// consumed.
func (c *Client) HandleInbound(buf []byte, from net.Addr) bool {
	if from != nil && c.serverAddr != nil && from.String() != c.serverAddr.String() {
		return false
	}

	if IsChannelData(buf) {
		var cd ChannelData
		if err := cd.Unmarshal(buf); err != nil {
			c.log.Debugf("dropping malformed channel data: %v", err)
			return true
		}
		c.mu.Lock()
		peer := c.channelPeer[cd.Number]
		onData := c.OnData
		c.mu.Unlock()
		if peer != nil && onData != nil {
			onData(cd.Data, peer)
		}
		return true
	}

	if !stun.IsMessage(buf) {
		return false
	}
	m := stun.New()
	if err := stun.Decode(buf, m); err != nil {
		return false
	}
	if m.Type.Method != stun.MethodData || m.Type.Class != stun.ClassIndication {
		return false
	}

	data, err := m.Get(stun.AttrData)
	if err != nil {
		return true
	}
	var peer stun.XORPeerAddress
	if err := peer.GetFrom(m); err != nil {
		return true
	}

	c.mu.Lock()
	onData := c.OnData
	c.mu.Unlock()
	if onData != nil {
		onData(data, &net.UDPAddr{IP: peer.IP, Port: peer.Port})
	}
	return true
}

// Close deallocates by refreshing with a zero lifetime.
func (c *Client) Close() {
	if err := c.Refresh(0); err != nil && !errors.Is(err, ErrNoAllocation) {
		c.log.Debugf("deallocate failed: %v", err)
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("turn client server=%v relay=%v", c.serverAddr, c.RelayedAddr())
}
