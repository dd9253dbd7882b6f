// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import "encoding/binary"

// handshakeMessageClientHello is sent as flight 1 (no cookie) and flight 3
// (echoing the HelloVerifyRequest cookie).
type handshakeMessageClientHello struct {
	version      protocolVersion
	random       handshakeRandom
	sessionID    []byte
	cookie       []byte
	cipherSuites []CipherSuiteID
	extensions   []extension
}

func (m *handshakeMessageClientHello) handshakeType() handshakeType { return handshakeTypeClientHello }

func (m *handshakeMessageClientHello) marshal() ([]byte, error) {
	out := []byte{m.version.major, m.version.minor}
	out = append(out, m.random[:]...)

	out = append(out, byte(len(m.sessionID)))
	out = append(out, m.sessionID...)

	out = append(out, byte(len(m.cookie)))
	out = append(out, m.cookie...)

	suites := make([]byte, 2+2*len(m.cipherSuites))
	binary.BigEndian.PutUint16(suites, uint16(2*len(m.cipherSuites)))
	for i, s := range m.cipherSuites {
		binary.BigEndian.PutUint16(suites[2+2*i:], uint16(s))
	}
	out = append(out, suites...)

	// null compression only
	out = append(out, 0x01, 0x00)

	return append(out, marshalExtensions(m.extensions)...), nil
}

func (m *handshakeMessageClientHello) unmarshal(data []byte) error { //nolint:gocognit
	if len(data) < 2+prfRandomLength+1 {
		return errBufferTooSmall
	}
	m.version = protocolVersion{data[0], data[1]}
	copy(m.random[:], data[2:2+prfRandomLength])
	offset := 2 + prfRandomLength

	sessionIDLen := int(data[offset])
	offset++
	if offset+sessionIDLen+1 > len(data) {
		return errBufferTooSmall
	}
	m.sessionID = append([]byte(nil), data[offset:offset+sessionIDLen]...)
	offset += sessionIDLen

	cookieLen := int(data[offset])
	offset++
	if offset+cookieLen+2 > len(data) {
		return errBufferTooSmall
	}
	m.cookie = append([]byte(nil), data[offset:offset+cookieLen]...)
	offset += cookieLen

	suitesLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if offset+suitesLen > len(data) {
		return errBufferTooSmall
	}
	m.cipherSuites = nil
	for i := 0; i+2 <= suitesLen; i += 2 {
		m.cipherSuites = append(m.cipherSuites, CipherSuiteID(binary.BigEndian.Uint16(data[offset+i:])))
	}
	offset += suitesLen

	if offset >= len(data) {
		return errBufferTooSmall
	}
	compressionLen := int(data[offset])
	offset += 1 + compressionLen
	if offset > len(data) {
		return errBufferTooSmall
	}

	var err error
	m.extensions, err = unmarshalExtensions(data[offset:])
	return err
}

// handshakeMessageHelloVerifyRequest carries the stateless cookie of
// RFC 6347 §4.2.1.
type handshakeMessageHelloVerifyRequest struct {
	version protocolVersion
	cookie  []byte
}

func (m *handshakeMessageHelloVerifyRequest) handshakeType() handshakeType {
	return handshakeTypeHelloVerifyRequest
}

func (m *handshakeMessageHelloVerifyRequest) marshal() ([]byte, error) {
	out := []byte{m.version.major, m.version.minor, byte(len(m.cookie))}
	return append(out, m.cookie...), nil
}

func (m *handshakeMessageHelloVerifyRequest) unmarshal(data []byte) error {
	if len(data) < 3 {
		return errBufferTooSmall
	}
	m.version = protocolVersion{data[0], data[1]}
	cookieLen := int(data[2])
	if 3+cookieLen > len(data) {
		return errBufferTooSmall
	}
	m.cookie = append([]byte(nil), data[3:3+cookieLen]...)
	return nil
}

// handshakeMessageServerHello answers the cookie-bearing ClientHello.
type handshakeMessageServerHello struct {
	version     protocolVersion
	random      handshakeRandom
	sessionID   []byte
	cipherSuite CipherSuiteID
	extensions  []extension
}

func (m *handshakeMessageServerHello) handshakeType() handshakeType { return handshakeTypeServerHello }

func (m *handshakeMessageServerHello) marshal() ([]byte, error) {
	out := []byte{m.version.major, m.version.minor}
	out = append(out, m.random[:]...)
	out = append(out, byte(len(m.sessionID)))
	out = append(out, m.sessionID...)

	suite := make([]byte, 2)
	binary.BigEndian.PutUint16(suite, uint16(m.cipherSuite))
	out = append(out, suite...)

	// null compression
	out = append(out, 0x00)

	return append(out, marshalExtensions(m.extensions)...), nil
}

func (m *handshakeMessageServerHello) unmarshal(data []byte) error {
	if len(data) < 2+prfRandomLength+1 {
		return errBufferTooSmall
	}
	m.version = protocolVersion{data[0], data[1]}
	copy(m.random[:], data[2:2+prfRandomLength])
	offset := 2 + prfRandomLength

	sessionIDLen := int(data[offset])
	offset++
	if offset+sessionIDLen+3 > len(data) {
		return errBufferTooSmall
	}
	m.sessionID = append([]byte(nil), data[offset:offset+sessionIDLen]...)
	offset += sessionIDLen

	m.cipherSuite = CipherSuiteID(binary.BigEndian.Uint16(data[offset:]))
	offset += 2

	// compression method
	offset++

	var err error
	m.extensions, err = unmarshalExtensions(data[offset:])
	return err
}

// handshakeMessageCertificate is a list of DER-encoded X.509 certificates.
type handshakeMessageCertificate struct {
	certificate [][]byte
}

func (m *handshakeMessageCertificate) handshakeType() handshakeType { return handshakeTypeCertificate }

func (m *handshakeMessageCertificate) marshal() ([]byte, error) {
	body := []byte{}
	for _, cert := range m.certificate {
		entry := make([]byte, 3, 3+len(cert))
		putUint24(entry, uint32(len(cert)))
		body = append(body, append(entry, cert...)...)
	}

	out := make([]byte, 3, 3+len(body))
	putUint24(out, uint32(len(body)))
	return append(out, body...), nil
}

func (m *handshakeMessageCertificate) unmarshal(data []byte) error {
	if len(data) < 3 {
		return errBufferTooSmall
	}
	total := int(uint24(data))
	if 3+total > len(data) {
		return errBufferTooSmall
	}

	m.certificate = nil
	for offset := 3; offset < 3+total; {
		if offset+3 > len(data) {
			return errBufferTooSmall
		}
		certLen := int(uint24(data[offset:]))
		offset += 3
		if offset+certLen > len(data) {
			return errBufferTooSmall
		}
		m.certificate = append(m.certificate, append([]byte(nil), data[offset:offset+certLen]...))
		offset += certLen
	}
	return nil
}

// handshakeMessageServerKeyExchange carries the server's ephemeral EC
// parameters and a signature binding them to the hello randoms.
type handshakeMessageServerKeyExchange struct {
	ellipticCurveType byte
	namedCurve        namedCurve
	publicKey         []byte
	hashAlgorithm     byte
	signatureAlgorithm byte
	signature         []byte
}

func (m *handshakeMessageServerKeyExchange) handshakeType() handshakeType {
	return handshakeTypeServerKeyExchange
}

func (m *handshakeMessageServerKeyExchange) marshal() ([]byte, error) {
	out := []byte{m.ellipticCurveType, 0, 0}
	binary.BigEndian.PutUint16(out[1:], uint16(m.namedCurve))

	out = append(out, byte(len(m.publicKey)))
	out = append(out, m.publicKey...)

	out = append(out, m.hashAlgorithm, m.signatureAlgorithm)

	sigLen := make([]byte, 2)
	binary.BigEndian.PutUint16(sigLen, uint16(len(m.signature)))
	out = append(out, sigLen...)
	return append(out, m.signature...), nil
}

func (m *handshakeMessageServerKeyExchange) unmarshal(data []byte) error {
	if len(data) < 4 {
		return errBufferTooSmall
	}
	m.ellipticCurveType = data[0]
	m.namedCurve = namedCurve(binary.BigEndian.Uint16(data[1:]))

	pubLen := int(data[3])
	offset := 4
	if offset+pubLen+4 > len(data) {
		return errBufferTooSmall
	}
	m.publicKey = append([]byte(nil), data[offset:offset+pubLen]...)
	offset += pubLen

	m.hashAlgorithm = data[offset]
	m.signatureAlgorithm = data[offset+1]
	sigLen := int(binary.BigEndian.Uint16(data[offset+2:]))
	offset += 4
	if offset+sigLen > len(data) {
		return errBufferTooSmall
	}
	m.signature = append([]byte(nil), data[offset:offset+sigLen]...)
	return nil
}

// handshakeMessageCertificateRequest asks the client to authenticate.
type handshakeMessageCertificateRequest struct {
	certificateTypes []clientCertificateType
}

func (m *handshakeMessageCertificateRequest) handshakeType() handshakeType {
	return handshakeTypeCertificateRequest
}

func (m *handshakeMessageCertificateRequest) marshal() ([]byte, error) {
	out := []byte{byte(len(m.certificateTypes))}
	for _, t := range m.certificateTypes {
		out = append(out, byte(t))
	}

	// supported signature algorithms
	pairs := []byte{
		hashAlgorithmSHA256, signatureAlgorithmECDSA,
		hashAlgorithmSHA256, signatureAlgorithmRSA,
	}
	algos := make([]byte, 2, 2+len(pairs))
	binary.BigEndian.PutUint16(algos, uint16(len(pairs)))
	out = append(out, append(algos, pairs...)...)

	// no certificate authorities
	return append(out, 0x00, 0x00), nil
}

func (m *handshakeMessageCertificateRequest) unmarshal(data []byte) error {
	if len(data) < 1 {
		return errBufferTooSmall
	}
	typesLen := int(data[0])
	if 1+typesLen > len(data) {
		return errBufferTooSmall
	}
	m.certificateTypes = nil
	for i := 0; i < typesLen; i++ {
		m.certificateTypes = append(m.certificateTypes, clientCertificateType(data[1+i]))
	}
	return nil
}

// handshakeMessageServerHelloDone closes flight 4.
type handshakeMessageServerHelloDone struct{}

func (m *handshakeMessageServerHelloDone) handshakeType() handshakeType {
	return handshakeTypeServerHelloDone
}

func (m *handshakeMessageServerHelloDone) marshal() ([]byte, error) { return []byte{}, nil }
func (m *handshakeMessageServerHelloDone) unmarshal([]byte) error   { return nil }

// handshakeMessageClientKeyExchange carries the client's ephemeral public key.
type handshakeMessageClientKeyExchange struct {
	publicKey []byte
}

func (m *handshakeMessageClientKeyExchange) handshakeType() handshakeType {
	return handshakeTypeClientKeyExchange
}

func (m *handshakeMessageClientKeyExchange) marshal() ([]byte, error) {
	if len(m.publicKey) == 0 {
		return nil, errHandshakeMessageUnset
	}
	return append([]byte{byte(len(m.publicKey))}, m.publicKey...), nil
}

func (m *handshakeMessageClientKeyExchange) unmarshal(data []byte) error {
	if len(data) < 1 {
		return errBufferTooSmall
	}
	pubLen := int(data[0])
	if 1+pubLen > len(data) {
		return errBufferTooSmall
	}
	m.publicKey = append([]byte(nil), data[1:1+pubLen]...)
	return nil
}

// handshakeMessageCertificateVerify proves possession of the client
// certificate's private key over the transcript so far.
type handshakeMessageCertificateVerify struct {
	hashAlgorithm      byte
	signatureAlgorithm byte
	signature          []byte
}

func (m *handshakeMessageCertificateVerify) handshakeType() handshakeType {
	return handshakeTypeCertificateVerify
}

func (m *handshakeMessageCertificateVerify) marshal() ([]byte, error) {
	out := []byte{m.hashAlgorithm, m.signatureAlgorithm, 0, 0}
	binary.BigEndian.PutUint16(out[2:], uint16(len(m.signature)))
	return append(out, m.signature...), nil
}

func (m *handshakeMessageCertificateVerify) unmarshal(data []byte) error {
	if len(data) < 4 {
		return errBufferTooSmall
	}
	m.hashAlgorithm = data[0]
	m.signatureAlgorithm = data[1]
	sigLen := int(binary.BigEndian.Uint16(data[2:]))
	if 4+sigLen > len(data) {
		return errBufferTooSmall
	}
	m.signature = append([]byte(nil), data[4:4+sigLen]...)
	return nil
}

// handshakeMessageFinished carries verify_data over the whole transcript.
type handshakeMessageFinished struct {
	verifyData []byte
}

func (m *handshakeMessageFinished) handshakeType() handshakeType { return handshakeTypeFinished }

func (m *handshakeMessageFinished) marshal() ([]byte, error) {
	return append([]byte(nil), m.verifyData...), nil
}

func (m *handshakeMessageFinished) unmarshal(data []byte) error {
	m.verifyData = append([]byte(nil), data...)
	return nil
}

func newHandshakeMessage(t handshakeType) handshakeMessage {
	switch t {
	case handshakeTypeClientHello:
		return &handshakeMessageClientHello{}
	case handshakeTypeServerHello:
		return &handshakeMessageServerHello{}
	case handshakeTypeHelloVerifyRequest:
		return &handshakeMessageHelloVerifyRequest{}
	case handshakeTypeCertificate:
		return &handshakeMessageCertificate{}
	case handshakeTypeServerKeyExchange:
		return &handshakeMessageServerKeyExchange{}
	case handshakeTypeCertificateRequest:
		return &handshakeMessageCertificateRequest{}
	case handshakeTypeServerHelloDone:
		return &handshakeMessageServerHelloDone{}
	case handshakeTypeClientKeyExchange:
		return &handshakeMessageClientKeyExchange{}
	case handshakeTypeCertificateVerify:
		return &handshakeMessageCertificateVerify{}
	case handshakeTypeFinished:
		return &handshakeMessageFinished{}
	default:
		return nil
	}
}
