// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"crypto/subtle"
	"crypto/x509"
	"fmt"
	"time"
)

// handshakeAsServer drives flights 2, 4 and 6 and validates flights 1, 3
// and 5.
func (c *Conn) handshakeAsServer() error { //nolint:gocognit,gocyclo,maintidx
	deadline := time.Now().Add(handshakeTimeout)

	var err error
	if c.localRandom, err = newHandshakeRandom(); err != nil {
		return err
	}
	if len(c.config.Certificate) == 0 {
		return errNoCertificate
	}

	remoteAddr := ""
	if addr := c.nextConn.RemoteAddr(); addr != nil {
		remoteAddr = addr.String()
	}

	// Flight 1/3: ClientHello, with the stateless cookie round trip.
	env, err := c.recvHandshake(nil, deadline)
	if err != nil {
		return err
	}
	if env.header.messageType != handshakeTypeClientHello {
		return fmt.Errorf("%w: expected ClientHello got %d", errVerifyDataMismatch, env.header.messageType)
	}
	clientHello := &handshakeMessageClientHello{}
	if err = clientHello.unmarshal(env.body); err != nil {
		return err
	}

	if !c.config.InsecureSkipHelloVerify {
		cookieSrc, err := newCookieSource()
		if err != nil {
			return err
		}
		cookie := cookieSrc.generate(remoteAddr, clientHello.random[:])

		// Flight 2: HelloVerifyRequest. Neither it nor the cookie-less
		// ClientHello enter the transcript.
		flight2 := &currentFlight{}
		if err = c.appendHandshake(flight2, &handshakeMessageHelloVerifyRequest{
			version: dtls1_2,
			cookie:  cookie,
		}, 0); err != nil {
			return err
		}
		if err = c.writeFlight(flight2); err != nil {
			return err
		}

		// A repeated ClientHello that fails to echo the cookie is
		// dropped silently.
		for {
			if env, err = c.recvHandshake(flight2, deadline); err != nil {
				return err
			}
			if env.header.messageType != handshakeTypeClientHello {
				continue
			}
			repeated := &handshakeMessageClientHello{}
			if err = repeated.unmarshal(env.body); err != nil {
				continue
			}
			if !cookieSrc.verify(remoteAddr, repeated.random[:], repeated.cookie) {
				c.log.Debugf("dropping ClientHello with bad cookie")
				continue
			}
			clientHello = repeated
			break
		}
	}

	c.appendToTranscript(&env.header, env.body)
	c.remoteRandom = clientHello.random

	// Cipher suite: first server preference present in the offer.
	prefs := c.config.CipherSuites
	if len(prefs) == 0 {
		prefs = defaultCipherSuites()
	}
	var suiteID CipherSuiteID
	for _, pref := range prefs {
		for _, offered := range clientHello.cipherSuites {
			if pref == offered {
				suiteID = pref
				break
			}
		}
		if suiteID != 0 {
			break
		}
	}
	if suiteID == 0 {
		return errCipherSuiteNoIntersection
	}
	if c.cipher, err = cipherSuiteForID(suiteID); err != nil {
		return err
	}
	c.state.CipherSuiteID = suiteID

	// Curve: the client's first supported group that we also support.
	c.curve = namedCurveX25519
	if data, ok := findExtension(clientHello.extensions, extensionSupportedGroups); ok {
		for _, offered := range parseSupportedGroups(data) {
			if offered == namedCurveX25519 || offered == namedCurveP256 {
				c.curve = offered
				break
			}
		}
	}

	// SRTP profile: first of ours in the client's use_srtp list.
	var srtpProfile SRTPProtectionProfile
	if data, ok := findExtension(clientHello.extensions, extensionUseSRTP); ok {
		offered := parseUseSRTP(data)
		for _, ours := range c.config.SRTPProtectionProfiles {
			for _, theirs := range offered {
				if uint16(ours) == theirs {
					srtpProfile = ours
					break
				}
			}
			if srtpProfile != 0 {
				break
			}
		}
	}
	c.state.SRTPProtectionProfile = srtpProfile

	_, emsOffered := findExtension(clientHello.extensions, extensionExtendedMasterSecret)
	useEMS := emsOffered && c.config.ExtendedMasterSecret
	c.state.ExtendedMasterSecret = useEMS

	// Flight 4.
	flight := &currentFlight{}

	var serverExtensions []extension
	if srtpProfile != 0 {
		serverExtensions = append(serverExtensions, useSRTPExtension([]uint16{uint16(srtpProfile)}))
	}
	if useEMS {
		serverExtensions = append(serverExtensions, extendedMasterSecretExtension())
	}
	if err = c.appendHandshake(flight, &handshakeMessageServerHello{
		version:     dtls1_2,
		random:      c.localRandom,
		cipherSuite: suiteID,
		extensions:  serverExtensions,
	}, 0); err != nil {
		return err
	}

	if err = c.appendHandshake(flight, &handshakeMessageCertificate{
		certificate: [][]byte{c.config.Certificate},
	}, 0); err != nil {
		return err
	}

	if c.keypair, err = generateKeypair(c.curve); err != nil {
		return err
	}
	signature, err := generateKeySignature(c.remoteRandom[:], c.localRandom[:],
		c.keypair.publicKey, c.curve, c.config.PrivateKey)
	if err != nil {
		return err
	}
	if err = c.appendHandshake(flight, &handshakeMessageServerKeyExchange{
		ellipticCurveType:  ellipticCurveTypeNamedCurve,
		namedCurve:         c.curve,
		publicKey:          c.keypair.publicKey,
		hashAlgorithm:      hashAlgorithmSHA256,
		signatureAlgorithm: signatureAlgorithmECDSA,
		signature:          signature,
	}, 0); err != nil {
		return err
	}

	if c.config.RequireClientCertificate {
		if err = c.appendHandshake(flight, &handshakeMessageCertificateRequest{
			certificateTypes: []clientCertificateType{clientCertificateTypeECDSASign, clientCertificateTypeRSASign},
		}, 0); err != nil {
			return err
		}
	}

	if err = c.appendHandshake(flight, &handshakeMessageServerHelloDone{}, 0); err != nil {
		return err
	}
	if err = c.writeFlight(flight); err != nil {
		return err
	}

	// Flight 5.
	if env, err = c.recvHandshake(flight, deadline); err != nil {
		return err
	}

	if c.config.RequireClientCertificate {
		if env.header.messageType != handshakeTypeCertificate {
			return fmt.Errorf("%w: expected client Certificate got %d", errVerifyDataMismatch, env.header.messageType)
		}
		clientCert := &handshakeMessageCertificate{}
		if err = clientCert.unmarshal(env.body); err != nil {
			return err
		}
		c.appendToTranscript(&env.header, env.body)
		if len(clientCert.certificate) == 0 {
			return errNoCertificate
		}
		c.state.RemoteCertificate = clientCert.certificate[0]

		if c.config.VerifyPeerCertificate != nil {
			parsed, err := x509.ParseCertificate(c.state.RemoteCertificate)
			if err != nil {
				return err
			}
			if err := c.config.VerifyPeerCertificate(parsed); err != nil {
				return err
			}
		}

		if env, err = c.recvHandshake(flight, deadline); err != nil {
			return err
		}
	}

	if env.header.messageType != handshakeTypeClientKeyExchange {
		return fmt.Errorf("%w: expected ClientKeyExchange got %d", errVerifyDataMismatch, env.header.messageType)
	}
	cke := &handshakeMessageClientKeyExchange{}
	if err = cke.unmarshal(env.body); err != nil {
		return err
	}
	c.appendToTranscript(&env.header, env.body)

	preMasterSecret, err := prfPreMasterSecret(cke.publicKey, c.keypair.privateKey, c.curve)
	if err != nil {
		return err
	}
	if useEMS {
		hash, err := sessionHash(c.handshakeLog, c.cipher.hash)
		if err != nil {
			return err
		}
		if c.masterSecret, err = prfExtendedMasterSecret(preMasterSecret, hash, c.cipher.hash); err != nil {
			return err
		}
	} else {
		if c.masterSecret, err = prfMasterSecret(preMasterSecret, c.remoteRandom[:], c.localRandom[:], c.cipher.hash); err != nil {
			return err
		}
	}
	if err = c.cipher.init(c.masterSecret, c.remoteRandom[:], c.localRandom[:], false); err != nil {
		return err
	}
	c.flushBufferedRecords()

	if c.config.RequireClientCertificate {
		if env, err = c.recvHandshake(flight, deadline); err != nil {
			return err
		}
		if env.header.messageType != handshakeTypeCertificateVerify {
			return fmt.Errorf("%w: expected CertificateVerify got %d", errVerifyDataMismatch, env.header.messageType)
		}
		certVerify := &handshakeMessageCertificateVerify{}
		if err = certVerify.unmarshal(env.body); err != nil {
			return err
		}
		// verified over the transcript up to and excluding this message
		if err = verifyCertificateVerify(c.handshakeLog, c.state.RemoteCertificate, certVerify.signature); err != nil {
			return err
		}
		c.appendToTranscript(&env.header, env.body)
	}

	if err = c.recvCCS(flight, deadline); err != nil {
		return err
	}

	if env, err = c.recvHandshake(flight, deadline); err != nil {
		return err
	}
	if env.header.messageType != handshakeTypeFinished {
		return fmt.Errorf("%w: expected Finished got %d", errVerifyDataMismatch, env.header.messageType)
	}

	// The client's verify_data covers the transcript excluding its own
	// Finished; the server's covers the transcript including it.
	expected, err := prfVerifyDataClient(c.masterSecret, c.handshakeLog, c.cipher.hash)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected, env.body) != 1 {
		return errVerifyDataMismatch
	}
	c.appendToTranscript(&env.header, env.body)

	// Flight 6.
	flight = &currentFlight{}
	flight.addChangeCipherSpec()
	verifyData, err := prfVerifyDataServer(c.masterSecret, c.handshakeLog, c.cipher.hash)
	if err != nil {
		return err
	}
	if err = c.appendHandshake(flight, &handshakeMessageFinished{verifyData: verifyData}, 1); err != nil {
		return err
	}
	return c.writeFlight(flight)
}
