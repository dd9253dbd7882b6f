// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtls

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
)

const cookieLength = 20

// cookieSource computes stateless HelloVerifyRequest cookies: an HMAC over
// the client's reported address and hello random, keyed by a per-connection
// secret. The server keeps no per-client state before the cookie round trip.
type cookieSource struct {
	secret []byte
}

func newCookieSource() (*cookieSource, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return &cookieSource{secret: secret}, nil
}

func (c *cookieSource) generate(remoteAddr string, clientRandom []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(remoteAddr))
	_, _ = mac.Write(clientRandom)
	return mac.Sum(nil)[:cookieLength]
}

func (c *cookieSource) verify(remoteAddr string, clientRandom, cookie []byte) bool {
	return hmac.Equal(c.generate(remoteAddr, clientRandom), cookie)
}
