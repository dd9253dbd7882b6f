// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"github.com/sjhorn/webrtc/internal/ice"
)

// BundlePolicy affects which media tracks are negotiated if the remote
// endpoint is not bundle-aware, and what ICE candidates are gathered.
type BundlePolicy int

// BundlePolicy enums.
const (
	BundlePolicyUnknown BundlePolicy = iota
	// BundlePolicyBalanced indicates to gather ICE candidates for each
	// media type in use (audio, video, and data).
	BundlePolicyBalanced
	// BundlePolicyMaxCompat indicates to gather ICE candidates for each track.
	BundlePolicyMaxCompat
	// BundlePolicyMaxBundle indicates to gather ICE candidates for only one track.
	BundlePolicyMaxBundle
	// BundlePolicyDisable omits the BUNDLE group entirely and gives every
	// m-line its own transport and credentials.
	BundlePolicyDisable
)

// NewBundlePolicy defines a procedure for creating a new BundlePolicy from a
// raw string.
func NewBundlePolicy(raw string) BundlePolicy {
	switch raw {
	case "balanced":
		return BundlePolicyBalanced
	case "max-compat":
		return BundlePolicyMaxCompat
	case "max-bundle":
		return BundlePolicyMaxBundle
	case "disable":
		return BundlePolicyDisable
	default:
		return BundlePolicyUnknown
	}
}

func (t BundlePolicy) String() string {
	switch t {
	case BundlePolicyBalanced:
		return "balanced"
	case BundlePolicyMaxCompat:
		return "max-compat"
	case BundlePolicyMaxBundle:
		return "max-bundle"
	case BundlePolicyDisable:
		return "disable"
	default:
		return ErrUnknownType.Error()
	}
}

// ICETransportPolicy defines the ICE candidate policy surface the
// permitted candidates.
type ICETransportPolicy int

// ICETransportPolicy enums.
const (
	// ICETransportPolicyAll indicates any type of candidate is used.
	ICETransportPolicyAll ICETransportPolicy = iota
	// ICETransportPolicyRelay indicates only media relay candidates are used.
	ICETransportPolicyRelay
)

func (t ICETransportPolicy) String() string {
	switch t {
	case ICETransportPolicyAll:
		return "all"
	case ICETransportPolicyRelay:
		return "relay"
	default:
		return ErrUnknownType.Error()
	}
}

// ICEServer describes a single STUN and TURN server that can be used by the
// ICEAgent to establish a connection with a peer.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// urls parses and validates the server list, attaching credentials to
// turn/turns entries.
func (s ICEServer) urls() ([]*ice.URL, error) {
	var out []*ice.URL
	for _, raw := range s.URLs {
		u, err := ice.ParseURL(raw)
		if err != nil {
			return nil, &TypeError{Err: err}
		}
		if u.Scheme == ice.SchemeTypeTURN || u.Scheme == ice.SchemeTypeTURNS {
			if s.Username == "" || s.Credential == "" {
				return nil, &InvalidAccessError{Err: errNoTurnCredentials}
			}
			u.Username = s.Username
			u.Password = s.Credential
		}
		out = append(out, u)
	}
	return out, nil
}

// Configuration defines a set of parameters to configure how the
// peer-to-peer communication via PeerConnection is established.
type Configuration struct {
	// ICEServers defines a slice describing servers available to be used by
	// ICE, such as STUN and TURN servers.
	ICEServers []ICEServer

	// ICETransportPolicy indicates which candidates the ICEAgent is allowed
	// to use.
	ICETransportPolicy ICETransportPolicy

	// BundlePolicy indicates how the negotiation of media between peers
	// is affected.
	BundlePolicy BundlePolicy

	// Certificates are the identity certificates for this connection. An
	// ephemeral one is generated when empty.
	Certificates []Certificate
}

func (c *Configuration) iceURLs() ([]*ice.URL, error) {
	var out []*ice.URL
	for _, server := range c.ICEServers {
		urls, err := server.urls()
		if err != nil {
			return nil, err
		}
		out = append(out, urls...)
	}
	return out, nil
}
