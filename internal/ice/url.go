// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package ice

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// SchemeType indicates the type of server used in the ice.URL structure.
type SchemeType int

// Possible scheme types.
const (
	SchemeTypeUnknown SchemeType = iota
	SchemeTypeSTUN
	SchemeTypeSTUNS
	SchemeTypeTURN
	SchemeTypeTURNS
)

// NewSchemeType defines a procedure for creating a new SchemeType from a raw
// string naming the scheme type.
func NewSchemeType(raw string) SchemeType {
	switch raw {
	case "stun":
		return SchemeTypeSTUN
	case "stuns":
		return SchemeTypeSTUNS
	case "turn":
		return SchemeTypeTURN
	case "turns":
		return SchemeTypeTURNS
	default:
		return SchemeTypeUnknown
	}
}

func (t SchemeType) String() string {
	switch t {
	case SchemeTypeSTUN:
		return "stun"
	case SchemeTypeSTUNS:
		return "stuns"
	case SchemeTypeTURN:
		return "turn"
	case SchemeTypeTURNS:
		return "turns"
	default:
		return ErrUnknownType.Error()
	}
}

// ProtoType indicates the transport protocol type that is used in the
// ice.URL structure.
type ProtoType int

// Possible proto types.
const (
	ProtoTypeUnknown ProtoType = iota
	ProtoTypeUDP
	ProtoTypeTCP
)

func (t ProtoType) String() string {
	switch t {
	case ProtoTypeUDP:
		return "udp"
	case ProtoTypeTCP:
		return "tcp"
	default:
		return ErrUnknownType.Error()
	}
}

// URL represents a STUN (RFC 7064) or TURN (RFC 7065) URL.
type URL struct {
	Scheme   SchemeType
	Host     string
	Port     int
	Username string
	Password string
	Proto    ProtoType
}

var (
	// ErrUnknownType indicates an unsupported element.
	ErrUnknownType = errors.New("ice: unknown type")
	errSchemeType  = errors.New("ice: unknown scheme type")
	errHost        = errors.New("ice: invalid hostname")
	errPort        = errors.New("ice: invalid port")
	errProtoType   = errors.New("ice: invalid transport protocol type")
	errSTUNQuery   = errors.New("ice: queries not supported in stun address")
)

// ParseURL parses a STUN or TURN urls following the ABNF syntax described in
// RFC 7064 and RFC 7065 respectively.
func ParseURL(raw string) (*URL, error) { //nolint:gocognit
	rawParts, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	var u URL
	u.Scheme = NewSchemeType(rawParts.Scheme)
	if u.Scheme == SchemeTypeUnknown {
		return nil, errSchemeType
	}

	if host, rawPort, splitErr := net.SplitHostPort(rawParts.Opaque); splitErr == nil {
		u.Host = host
		if u.Port, err = strconv.Atoi(rawPort); err != nil {
			return nil, errPort
		}
	} else {
		u.Host = rawParts.Opaque
		u.Port = 3478
		if u.Scheme == SchemeTypeTURNS || u.Scheme == SchemeTypeSTUNS {
			u.Port = 5349
		}
	}
	if u.Host == "" {
		return nil, errHost
	}

	switch u.Scheme {
	case SchemeTypeSTUN, SchemeTypeSTUNS:
		if rawParts.RawQuery != "" {
			return nil, errSTUNQuery
		}
		u.Proto = ProtoTypeUDP
		if u.Scheme == SchemeTypeSTUNS {
			u.Proto = ProtoTypeTCP
		}
	case SchemeTypeTURN, SchemeTypeTURNS:
		u.Proto = ProtoTypeUDP
		if u.Scheme == SchemeTypeTURNS {
			u.Proto = ProtoTypeTCP
		}
		if proto := rawParts.Query().Get("transport"); proto != "" {
			switch proto {
			case "udp":
				u.Proto = ProtoTypeUDP
			case "tcp":
				u.Proto = ProtoTypeTCP
			default:
				return nil, errProtoType
			}
		}
	case SchemeTypeUnknown:
	}

	return &u, nil
}

func (u URL) String() string {
	rawURL := fmt.Sprintf("%s:%s:%d", u.Scheme, u.Host, u.Port)
	if u.Scheme == SchemeTypeTURN || u.Scheme == SchemeTypeTURNS {
		rawURL += "?transport=" + u.Proto.String()
	}
	return rawURL
}

// IsSecure returns whether the this URL's scheme describes secure scheme or not.
func (u URL) IsSecure() bool {
	return u.Scheme == SchemeTypeSTUNS || u.Scheme == SchemeTypeTURNS
}
