// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentReassemblyReorderedWithDuplicates(t *testing.T) {
	body := make([]byte, 3000)
	for i := range body {
		body[i] = byte(i)
	}
	header := &handshakeHeader{
		messageType: handshakeTypeCertificate,
		length:      uint32(len(body)),
		messageSeq:  0,
	}

	frags := fragmentHandshake(header, body, 1000)
	require.Len(t, frags, 3)

	buffer := newFragmentBuffer()

	// deliver out of order with a duplicate in the middle
	for _, idx := range []int{2, 0, 0, 1, 2} {
		_, err := buffer.push(frags[idx])
		require.NoError(t, err)
	}

	popped, data := buffer.pop()
	require.NotNil(t, popped)
	assert.Equal(t, handshakeTypeCertificate, popped.messageType)
	assert.Equal(t, uint32(0), popped.fragmentOffset)
	assert.Equal(t, uint32(len(body)), popped.fragmentLength)
	assert.Equal(t, body, data)

	// nothing else pending
	popped, _ = buffer.pop()
	assert.Nil(t, popped)
}

func TestFragmentBufferHoldsIncomplete(t *testing.T) {
	body := make([]byte, 2000)
	header := &handshakeHeader{
		messageType: handshakeTypeClientHello,
		length:      uint32(len(body)),
	}
	frags := fragmentHandshake(header, body, 700)
	require.True(t, len(frags) > 2)

	buffer := newFragmentBuffer()
	for _, frag := range frags[:len(frags)-1] {
		_, err := buffer.push(frag)
		require.NoError(t, err)
	}

	popped, _ := buffer.pop()
	assert.Nil(t, popped, "incomplete message must not pop")

	_, err := buffer.push(frags[len(frags)-1])
	require.NoError(t, err)
	popped, _ = buffer.pop()
	assert.NotNil(t, popped)
}

func TestFragmentBufferOrdersBySequence(t *testing.T) {
	buffer := newFragmentBuffer()

	second := &handshakeHeader{messageType: handshakeTypeServerHelloDone, messageSeq: 1}
	first := &handshakeHeader{messageType: handshakeTypeServerHello, messageSeq: 0, length: 2}

	for _, frag := range fragmentHandshake(second, nil, 1000) {
		_, err := buffer.push(frag)
		require.NoError(t, err)
	}

	// seq 1 arrived, but seq 0 is still missing
	popped, _ := buffer.pop()
	assert.Nil(t, popped)

	for _, frag := range fragmentHandshake(first, []byte{0xfe, 0xfd}, 1000) {
		_, err := buffer.push(frag)
		require.NoError(t, err)
	}

	popped, _ = buffer.pop()
	require.NotNil(t, popped)
	assert.Equal(t, handshakeTypeServerHello, popped.messageType)
	popped, _ = buffer.pop()
	require.NotNil(t, popped)
	assert.Equal(t, handshakeTypeServerHelloDone, popped.messageType)
}

func TestFragmentBufferDropsRetransmissions(t *testing.T) {
	buffer := newFragmentBuffer()
	header := &handshakeHeader{messageType: handshakeTypeServerHello, messageSeq: 0, length: 1}
	frag := fragmentHandshake(header, []byte{0x01}, 1000)[0]

	_, err := buffer.push(frag)
	require.NoError(t, err)
	popped, _ := buffer.pop()
	require.NotNil(t, popped)

	// the same message again is a retransmission; it must not be consumed
	ok, err := buffer.push(frag)
	require.NoError(t, err)
	assert.False(t, ok)
	popped, _ = buffer.pop()
	assert.Nil(t, popped)
}

func TestCookieSource(t *testing.T) {
	src, err := newCookieSource()
	require.NoError(t, err)

	random := make([]byte, prfRandomLength)
	cookie := src.generate("203.0.113.5:1234", random)
	assert.Len(t, cookie, cookieLength)

	assert.True(t, src.verify("203.0.113.5:1234", random, cookie))
	assert.False(t, src.verify("203.0.113.6:1234", random, cookie), "different source address")
	assert.False(t, src.verify("203.0.113.5:1234", random, append([]byte{0}, cookie[1:]...)), "mutated cookie")

	other, err := newCookieSource()
	require.NoError(t, err)
	assert.False(t, other.verify("203.0.113.5:1234", random, cookie), "different secret")
}
