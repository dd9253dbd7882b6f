// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

type handshakeType byte

const (
	handshakeTypeClientHello        handshakeType = 1
	handshakeTypeServerHello        handshakeType = 2
	handshakeTypeHelloVerifyRequest handshakeType = 3
	handshakeTypeCertificate        handshakeType = 11
	handshakeTypeServerKeyExchange  handshakeType = 12
	handshakeTypeCertificateRequest handshakeType = 13
	handshakeTypeServerHelloDone    handshakeType = 14
	handshakeTypeCertificateVerify  handshakeType = 15
	handshakeTypeClientKeyExchange  handshakeType = 16
	handshakeTypeFinished           handshakeType = 20
)

const handshakeHeaderSize = 12

// handshakeHeader is the 12-byte DTLS handshake message header. fragment
// offset/length support splitting one message across records.
type handshakeHeader struct {
	messageType    handshakeType
	length         uint32 // 24 bits
	messageSeq     uint16
	fragmentOffset uint32 // 24 bits
	fragmentLength uint32 // 24 bits
}

func (h *handshakeHeader) marshal() []byte {
	out := make([]byte, handshakeHeaderSize)
	out[0] = byte(h.messageType)
	putUint24(out[1:], h.length)
	binary.BigEndian.PutUint16(out[4:], h.messageSeq)
	putUint24(out[6:], h.fragmentOffset)
	putUint24(out[9:], h.fragmentLength)
	return out
}

func (h *handshakeHeader) unmarshal(data []byte) error {
	if len(data) < handshakeHeaderSize {
		return errBufferTooSmall
	}
	h.messageType = handshakeType(data[0])
	h.length = uint24(data[1:])
	h.messageSeq = binary.BigEndian.Uint16(data[4:])
	h.fragmentOffset = uint24(data[6:])
	h.fragmentLength = uint24(data[9:])
	return nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

type handshakeMessage interface {
	handshakeType() handshakeType
	marshal() ([]byte, error)
	unmarshal(data []byte) error
}

// handshakeRandom is the 32-byte hello random: 4 bytes of GMT unix time
// followed by 28 securely generated bytes.
type handshakeRandom [prfRandomLength]byte

func newHandshakeRandom() (r handshakeRandom, err error) {
	binary.BigEndian.PutUint32(r[:4], uint32(time.Now().Unix()))
	_, err = rand.Read(r[4:])
	return r, err
}

// TLS extension identifiers.
const (
	extensionSupportedGroups      uint16 = 10
	extensionSignatureAlgorithms  uint16 = 13
	extensionUseSRTP              uint16 = 14
	extensionExtendedMasterSecret uint16 = 23
)

// extension is a raw hello extension.
type extension struct {
	typ  uint16
	data []byte
}

func marshalExtensions(extensions []extension) []byte {
	body := []byte{}
	for _, e := range extensions {
		hdr := make([]byte, 4)
		binary.BigEndian.PutUint16(hdr, e.typ)
		binary.BigEndian.PutUint16(hdr[2:], uint16(len(e.data)))
		body = append(body, hdr...)
		body = append(body, e.data...)
	}

	out := make([]byte, 2, 2+len(body))
	binary.BigEndian.PutUint16(out, uint16(len(body)))
	return append(out, body...)
}

func unmarshalExtensions(data []byte) ([]extension, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 2 {
		return nil, errBufferTooSmall
	}
	total := int(binary.BigEndian.Uint16(data))
	if 2+total > len(data) {
		return nil, errBufferTooSmall
	}

	var out []extension
	for offset := 2; offset < 2+total; {
		if offset+4 > len(data) {
			return nil, errBufferTooSmall
		}
		typ := binary.BigEndian.Uint16(data[offset:])
		length := int(binary.BigEndian.Uint16(data[offset+2:]))
		if offset+4+length > len(data) {
			return nil, errBufferTooSmall
		}
		out = append(out, extension{typ: typ, data: data[offset+4 : offset+4+length]})
		offset += 4 + length
	}
	return out, nil
}

func findExtension(extensions []extension, typ uint16) ([]byte, bool) {
	for _, e := range extensions {
		if e.typ == typ {
			return e.data, true
		}
	}
	return nil, false
}

func supportedGroupsExtension(curves []namedCurve) extension {
	body := make([]byte, 2+2*len(curves))
	binary.BigEndian.PutUint16(body, uint16(2*len(curves)))
	for i, c := range curves {
		binary.BigEndian.PutUint16(body[2+2*i:], uint16(c))
	}
	return extension{typ: extensionSupportedGroups, data: body}
}

func parseSupportedGroups(data []byte) []namedCurve {
	if len(data) < 2 {
		return nil
	}
	n := int(binary.BigEndian.Uint16(data)) / 2
	var out []namedCurve
	for i := 0; i < n && 2+2*i+2 <= len(data); i++ {
		out = append(out, namedCurve(binary.BigEndian.Uint16(data[2+2*i:])))
	}
	return out
}

func signatureAlgorithmsExtension() extension {
	pairs := []byte{
		hashAlgorithmSHA256, signatureAlgorithmECDSA,
		hashAlgorithmSHA256, signatureAlgorithmRSA,
	}
	body := make([]byte, 2, 2+len(pairs))
	binary.BigEndian.PutUint16(body, uint16(len(pairs)))
	return extension{typ: extensionSignatureAlgorithms, data: append(body, pairs...)}
}

func useSRTPExtension(profiles []uint16) extension {
	body := make([]byte, 2+2*len(profiles)+1)
	binary.BigEndian.PutUint16(body, uint16(2*len(profiles)))
	for i, p := range profiles {
		binary.BigEndian.PutUint16(body[2+2*i:], p)
	}
	// zero-length MKI
	body[len(body)-1] = 0
	return extension{typ: extensionUseSRTP, data: body}
}

func parseUseSRTP(data []byte) []uint16 {
	if len(data) < 2 {
		return nil
	}
	n := int(binary.BigEndian.Uint16(data)) / 2
	var out []uint16
	for i := 0; i < n && 2+2*i+2 <= len(data); i++ {
		out = append(out, binary.BigEndian.Uint16(data[2+2*i:]))
	}
	return out
}

func extendedMasterSecretExtension() extension {
	return extension{typ: extensionExtendedMasterSecret}
}
