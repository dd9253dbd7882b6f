// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package srtp

import "fmt"

// ProtectionProfile specifies the SRTP protection profile, negotiated via
// the DTLS use_srtp extension (RFC 5764 §4.1.2).
type ProtectionProfile uint16

// Supported protection profiles.
const (
	ProtectionProfileAes128CmHmacSha1_80 ProtectionProfile = 0x0001
	ProtectionProfileAeadAes128Gcm       ProtectionProfile = 0x0007
)

// KeyLen returns the length of the master/session encryption key in bytes.
func (p ProtectionProfile) KeyLen() (int, error) {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80, ProtectionProfileAeadAes128Gcm:
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: %#v", errNoSuchProfile, p)
	}
}

// SaltLen returns the length of the master/session salt in bytes.
func (p ProtectionProfile) SaltLen() (int, error) {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80:
		return 14, nil
	case ProtectionProfileAeadAes128Gcm:
		return 12, nil
	default:
		return 0, fmt.Errorf("%w: %#v", errNoSuchProfile, p)
	}
}

// AuthTagLen returns the length of the SRTP auth tag in bytes.
func (p ProtectionProfile) AuthTagLen() (int, error) {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80:
		return 10, nil
	case ProtectionProfileAeadAes128Gcm:
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: %#v", errNoSuchProfile, p)
	}
}

// AuthKeyLen returns the length of the session authentication key; zero for
// AEAD profiles.
func (p ProtectionProfile) AuthKeyLen() (int, error) {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80:
		return 20, nil
	case ProtectionProfileAeadAes128Gcm:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %#v", errNoSuchProfile, p)
	}
}

// KeyMaterialLen is the total exporter length: two keys plus two salts
// (RFC 5764 Table 1).
func (p ProtectionProfile) KeyMaterialLen() (int, error) {
	keyLen, err := p.KeyLen()
	if err != nil {
		return 0, err
	}
	saltLen, err := p.SaltLen()
	if err != nil {
		return 0, err
	}
	return 2*keyLen + 2*saltLen, nil
}

func (p ProtectionProfile) String() string {
	switch p {
	case ProtectionProfileAes128CmHmacSha1_80:
		return "SRTP_AES128_CM_HMAC_SHA1_80"
	case ProtectionProfileAeadAes128Gcm:
		return "SRTP_AEAD_AES_128_GCM"
	default:
		return fmt.Sprintf("unknown profile %#v", uint16(p))
	}
}
