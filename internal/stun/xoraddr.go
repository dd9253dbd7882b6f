// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stun

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Address families, RFC 5389 §15.1.
const (
	familyIPv4 uint16 = 0x01
	familyIPv6 uint16 = 0x02
)

var (
	// ErrBadIPLength means the IP is neither 4 nor 16 bytes.
	ErrBadIPLength = errors.New("stun: invalid length of IP value")
	// ErrBadFamily means the address family field is unknown.
	ErrBadFamily = errors.New("stun: invalid address family")
)

// MappedAddress is the MAPPED-ADDRESS attribute.
type MappedAddress struct {
	IP   net.IP
	Port int
}

func (a MappedAddress) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprintf("%d", a.Port))
}

// AddTo implements Setter.
func (a MappedAddress) AddTo(m *Message) error {
	return addAddr(m, AttrMappedAddress, a.IP, a.Port, false)
}

// GetFrom implements Getter.
func (a *MappedAddress) GetFrom(m *Message) error {
	return getAddr(m, AttrMappedAddress, &a.IP, &a.Port, false)
}

// XORMappedAddress is the XOR-MAPPED-ADDRESS attribute.
type XORMappedAddress struct {
	IP   net.IP
	Port int
}

func (a XORMappedAddress) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprintf("%d", a.Port))
}

// AddTo implements Setter.
func (a XORMappedAddress) AddTo(m *Message) error {
	return addAddr(m, AttrXORMappedAddress, a.IP, a.Port, true)
}

// GetFrom implements Getter.
func (a *XORMappedAddress) GetFrom(m *Message) error {
	return getAddr(m, AttrXORMappedAddress, &a.IP, &a.Port, true)
}

// XORPeerAddress is the XOR-PEER-ADDRESS attribute (RFC 5766).
type XORPeerAddress struct {
	IP   net.IP
	Port int
}

// AddTo implements Setter.
func (a XORPeerAddress) AddTo(m *Message) error {
	return addAddr(m, AttrXORPeerAddress, a.IP, a.Port, true)
}

// GetFrom implements Getter.
func (a *XORPeerAddress) GetFrom(m *Message) error {
	return getAddr(m, AttrXORPeerAddress, &a.IP, &a.Port, true)
}

// XORRelayedAddress is the XOR-RELAYED-ADDRESS attribute (RFC 5766).
type XORRelayedAddress struct {
	IP   net.IP
	Port int
}

// AddTo implements Setter.
func (a XORRelayedAddress) AddTo(m *Message) error {
	return addAddr(m, AttrXORRelayedAddress, a.IP, a.Port, true)
}

// GetFrom implements Getter.
func (a *XORRelayedAddress) GetFrom(m *Message) error {
	return getAddr(m, AttrXORRelayedAddress, &a.IP, &a.Port, true)
}

// xorBytes sets dst = a XOR b and returns the number of bytes xored.
func xorBytes(dst, a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dst[i] = a[i] ^ b[i]
	}
	return n
}

func addAddr(m *Message, t AttrType, ip net.IP, port int, xor bool) error {
	var (
		family = familyIPv4
	)
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	} else if len(ip) == net.IPv6len {
		family = familyIPv6
	} else {
		return ErrBadIPLength
	}

	value := make([]byte, 4+len(ip))
	binary.BigEndian.PutUint16(value[0:2], family)

	if xor {
		binary.BigEndian.PutUint16(value[2:4], uint16(port)^uint16(magicCookie>>16))
		xorValue := make([]byte, 4+TransactionIDSize)
		binary.BigEndian.PutUint32(xorValue[0:4], magicCookie)
		copy(xorValue[4:], m.TransactionID[:])
		xorBytes(value[4:], ip, xorValue)
	} else {
		binary.BigEndian.PutUint16(value[2:4], uint16(port))
		copy(value[4:], ip)
	}

	m.Add(t, value)
	return nil
}

func getAddr(m *Message, t AttrType, ip *net.IP, port *int, xor bool) error {
	v, err := m.Get(t)
	if err != nil {
		return err
	}
	if len(v) <= 4 {
		return ErrAttributeSizeInvalid
	}

	family := binary.BigEndian.Uint16(v[0:2])
	if family != familyIPv4 && family != familyIPv6 {
		return fmt.Errorf("%w: %d", ErrBadFamily, family)
	}

	ipLen := net.IPv4len
	if family == familyIPv6 {
		ipLen = net.IPv6len
	}
	if len(v) < 4+ipLen {
		return ErrAttributeSizeInvalid
	}

	*ip = make(net.IP, ipLen)
	if xor {
		*port = int(binary.BigEndian.Uint16(v[2:4]) ^ uint16(magicCookie>>16))
		xorValue := make([]byte, 4+TransactionIDSize)
		binary.BigEndian.PutUint32(xorValue[0:4], magicCookie)
		copy(xorValue[4:], m.TransactionID[:])
		xorBytes(*ip, v[4:4+ipLen], xorValue)
	} else {
		*port = int(binary.BigEndian.Uint16(v[2:4]))
		copy(*ip, v[4:4+ipLen])
	}

	return nil
}
