// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"crypto/subtle"
	"crypto/x509"
	"fmt"
	"time"
)

// handshakeAsClient drives flights 1, 3 and 5 and validates flights 2, 4
// and 6 (RFC 6347 §4.2.4).
func (c *Conn) handshakeAsClient() error { //nolint:gocognit,gocyclo
	deadline := time.Now().Add(handshakeTimeout)

	var err error
	if c.localRandom, err = newHandshakeRandom(); err != nil {
		return err
	}

	suites := c.config.CipherSuites
	if len(suites) == 0 {
		suites = defaultCipherSuites()
	}

	extensions := []extension{
		supportedGroupsExtension([]namedCurve{namedCurveX25519, namedCurveP256}),
		signatureAlgorithmsExtension(),
	}
	if len(c.config.SRTPProtectionProfiles) > 0 {
		profiles := make([]uint16, len(c.config.SRTPProtectionProfiles))
		for i, p := range c.config.SRTPProtectionProfiles {
			profiles[i] = uint16(p)
		}
		extensions = append(extensions, useSRTPExtension(profiles))
	}
	if c.config.ExtendedMasterSecret {
		extensions = append(extensions, extendedMasterSecretExtension())
	}

	clientHello := &handshakeMessageClientHello{
		version:      dtls1_2,
		random:       c.localRandom,
		cipherSuites: suites,
		extensions:   extensions,
	}

	// Flight 1: cookie-less ClientHello.
	flight := &currentFlight{}
	if err = c.appendHandshake(flight, clientHello, 0); err != nil {
		return err
	}
	if err = c.writeFlight(flight); err != nil {
		return err
	}

	env, err := c.recvHandshake(flight, deadline)
	if err != nil {
		return err
	}

	if env.header.messageType == handshakeTypeHelloVerifyRequest {
		hvr := &handshakeMessageHelloVerifyRequest{}
		if err = hvr.unmarshal(env.body); err != nil {
			return err
		}
		c.cookie = hvr.cookie

		// Flight 3: the same ClientHello echoing the cookie; only this
		// one enters the transcript.
		clientHello.cookie = c.cookie
		flight = &currentFlight{}
		if err = c.appendHandshake(flight, clientHello, 0); err != nil {
			return err
		}
		if err = c.writeFlight(flight); err != nil {
			return err
		}

		if env, err = c.recvHandshake(flight, deadline); err != nil {
			return err
		}
	}

	// Flight 4: ServerHello
	if env.header.messageType != handshakeTypeServerHello {
		return fmt.Errorf("%w: expected ServerHello got %d", errVerifyDataMismatch, env.header.messageType)
	}
	serverHello := &handshakeMessageServerHello{}
	if err = serverHello.unmarshal(env.body); err != nil {
		return err
	}
	c.appendToTranscript(&env.header, env.body)
	c.remoteRandom = serverHello.random

	if c.cipher, err = cipherSuiteForID(serverHello.cipherSuite); err != nil {
		return err
	}
	c.state.CipherSuiteID = serverHello.cipherSuite

	if data, ok := findExtension(serverHello.extensions, extensionUseSRTP); ok {
		if profiles := parseUseSRTP(data); len(profiles) > 0 {
			c.state.SRTPProtectionProfile = SRTPProtectionProfile(profiles[0])
		}
	}
	_, emsAccepted := findExtension(serverHello.extensions, extensionExtendedMasterSecret)
	useEMS := emsAccepted && c.config.ExtendedMasterSecret
	c.state.ExtendedMasterSecret = useEMS

	// Certificate
	if env, err = c.recvHandshake(flight, deadline); err != nil {
		return err
	}
	if env.header.messageType != handshakeTypeCertificate {
		return fmt.Errorf("%w: expected Certificate got %d", errVerifyDataMismatch, env.header.messageType)
	}
	remoteCert := &handshakeMessageCertificate{}
	if err = remoteCert.unmarshal(env.body); err != nil {
		return err
	}
	c.appendToTranscript(&env.header, env.body)
	if len(remoteCert.certificate) == 0 {
		return errNoCertificate
	}
	c.state.RemoteCertificate = remoteCert.certificate[0]

	if c.config.VerifyPeerCertificate != nil {
		parsed, err := x509.ParseCertificate(c.state.RemoteCertificate)
		if err != nil {
			return err
		}
		if err := c.config.VerifyPeerCertificate(parsed); err != nil {
			return err
		}
	}

	// ServerKeyExchange
	if env, err = c.recvHandshake(flight, deadline); err != nil {
		return err
	}
	if env.header.messageType != handshakeTypeServerKeyExchange {
		return fmt.Errorf("%w: expected ServerKeyExchange got %d", errVerifyDataMismatch, env.header.messageType)
	}
	ske := &handshakeMessageServerKeyExchange{}
	if err = ske.unmarshal(env.body); err != nil {
		return err
	}
	c.appendToTranscript(&env.header, env.body)
	c.curve = ske.namedCurve

	if err = verifyKeySignature(c.localRandom[:], c.remoteRandom[:], ske.publicKey, ske.namedCurve,
		c.state.RemoteCertificate, ske.signature); err != nil {
		return err
	}

	// CertificateRequest? then ServerHelloDone
	clientCertRequested := false
	if env, err = c.recvHandshake(flight, deadline); err != nil {
		return err
	}
	if env.header.messageType == handshakeTypeCertificateRequest {
		clientCertRequested = true
		c.appendToTranscript(&env.header, env.body)
		if env, err = c.recvHandshake(flight, deadline); err != nil {
			return err
		}
	}
	if env.header.messageType != handshakeTypeServerHelloDone {
		return fmt.Errorf("%w: expected ServerHelloDone got %d", errVerifyDataMismatch, env.header.messageType)
	}
	c.appendToTranscript(&env.header, env.body)

	// Flight 5
	flight = &currentFlight{}

	if clientCertRequested {
		if err = c.appendHandshake(flight, &handshakeMessageCertificate{
			certificate: [][]byte{c.config.Certificate},
		}, 0); err != nil {
			return err
		}
	}

	if c.keypair, err = generateKeypair(c.curve); err != nil {
		return err
	}
	preMasterSecret, err := prfPreMasterSecret(ske.publicKey, c.keypair.privateKey, c.curve)
	if err != nil {
		return err
	}

	if err = c.appendHandshake(flight, &handshakeMessageClientKeyExchange{
		publicKey: c.keypair.publicKey,
	}, 0); err != nil {
		return err
	}

	// The master secret binds to the session hash of the transcript up to
	// and including ClientKeyExchange when EMS is in effect.
	if useEMS {
		hash, err := sessionHash(c.handshakeLog, c.cipher.hash)
		if err != nil {
			return err
		}
		c.masterSecret, err = prfExtendedMasterSecret(preMasterSecret, hash, c.cipher.hash)
		if err != nil {
			return err
		}
	} else {
		if c.masterSecret, err = prfMasterSecret(preMasterSecret, c.localRandom[:], c.remoteRandom[:], c.cipher.hash); err != nil {
			return err
		}
	}
	if err = c.cipher.init(c.masterSecret, c.localRandom[:], c.remoteRandom[:], true); err != nil {
		return err
	}
	c.flushBufferedRecords()

	if clientCertRequested {
		signature, err := generateCertificateVerify(c.handshakeLog, c.config.PrivateKey)
		if err != nil {
			return err
		}
		if err = c.appendHandshake(flight, &handshakeMessageCertificateVerify{
			hashAlgorithm:      hashAlgorithmSHA256,
			signatureAlgorithm: signatureAlgorithmECDSA,
			signature:          signature,
		}, 0); err != nil {
			return err
		}
	}

	flight.addChangeCipherSpec()

	verifyData, err := prfVerifyDataClient(c.masterSecret, c.handshakeLog, c.cipher.hash)
	if err != nil {
		return err
	}
	if err = c.appendHandshake(flight, &handshakeMessageFinished{verifyData: verifyData}, 1); err != nil {
		return err
	}
	if err = c.writeFlight(flight); err != nil {
		return err
	}

	// Flight 6: ChangeCipherSpec + Finished
	if err = c.recvCCS(flight, deadline); err != nil {
		return err
	}
	if env, err = c.recvHandshake(flight, deadline); err != nil {
		return err
	}
	if env.header.messageType != handshakeTypeFinished {
		return fmt.Errorf("%w: expected Finished got %d", errVerifyDataMismatch, env.header.messageType)
	}

	expected, err := prfVerifyDataServer(c.masterSecret, c.handshakeLog, c.cipher.hash)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected, env.body) != 1 {
		return errVerifyDataMismatch
	}
	c.appendToTranscript(&env.header, env.body)

	return nil
}
