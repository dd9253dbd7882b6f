// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

// fragmentBuffer reassembles fragmented handshake messages. Fragments are
// keyed by message sequence; overlapping duplicates are tolerated with
// last-writer-wins semantics.
type fragmentBuffer struct {
	// current expected message sequence for in-order delivery
	currentMessageSequenceNumber uint16

	cache map[uint16]*fragmentAssembly
}

type fragmentAssembly struct {
	messageType handshakeType
	length      uint32
	data        []byte
	received    []bool
}

func newFragmentBuffer() *fragmentBuffer {
	return &fragmentBuffer{cache: map[uint16]*fragmentAssembly{}}
}

// push stores one handshake fragment (header + body bytes from a record).
// It returns true if the buffer consumed the fragment.
func (f *fragmentBuffer) push(buf []byte) (bool, error) {
	var header handshakeHeader
	if err := header.unmarshal(buf); err != nil {
		return false, err
	}

	// fragments from the past are retransmissions; drop them
	if header.messageSeq < f.currentMessageSequenceNumber {
		return false, nil
	}

	if int(header.fragmentLength) != len(buf)-handshakeHeaderSize {
		return false, errBufferTooSmall
	}
	if header.fragmentOffset+header.fragmentLength > header.length {
		return false, errBufferTooSmall
	}

	assembly, ok := f.cache[header.messageSeq]
	if !ok {
		assembly = &fragmentAssembly{
			messageType: header.messageType,
			length:      header.length,
			data:        make([]byte, header.length),
			received:    make([]bool, header.length),
		}
		f.cache[header.messageSeq] = assembly
	}
	if assembly.length != header.length || assembly.messageType != header.messageType {
		return false, errBufferTooSmall
	}

	copy(assembly.data[header.fragmentOffset:], buf[handshakeHeaderSize:])
	for i := header.fragmentOffset; i < header.fragmentOffset+header.fragmentLength; i++ {
		assembly.received[i] = true
	}

	return true, nil
}

// pop returns the next complete in-order message, re-headered as a single
// unfragmented message (fragment offset zero, fragment length = length), or
// nil when the next message is still incomplete.
func (f *fragmentBuffer) pop() (*handshakeHeader, []byte) {
	assembly, ok := f.cache[f.currentMessageSequenceNumber]
	if !ok {
		return nil, nil
	}
	for _, got := range assembly.received {
		if !got {
			return nil, nil
		}
	}

	delete(f.cache, f.currentMessageSequenceNumber)
	header := &handshakeHeader{
		messageType:    assembly.messageType,
		length:         assembly.length,
		messageSeq:     f.currentMessageSequenceNumber,
		fragmentOffset: 0,
		fragmentLength: assembly.length,
	}
	f.currentMessageSequenceNumber++
	return header, assembly.data
}

// fragmentHandshake splits a marshaled handshake message body into wire
// fragments no larger than maxFragmentSize, each carrying the full header.
func fragmentHandshake(header *handshakeHeader, body []byte, maxFragmentSize int) [][]byte {
	if len(body) <= maxFragmentSize {
		h := *header
		h.fragmentOffset = 0
		h.fragmentLength = uint32(len(body))
		return [][]byte{append(h.marshal(), body...)}
	}

	var out [][]byte
	for offset := 0; offset < len(body); offset += maxFragmentSize {
		end := offset + maxFragmentSize
		if end > len(body) {
			end = len(body)
		}
		h := *header
		h.fragmentOffset = uint32(offset)
		h.fragmentLength = uint32(end - offset)
		out = append(out, append(h.marshal(), body[offset:end]...))
	}
	return out
}
