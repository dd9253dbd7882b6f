// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"fmt"
	"sync/atomic"
)

type stateChangeOp int

const (
	stateChangeOpSetLocal stateChangeOp = iota + 1
	stateChangeOpSetRemote
)

func (op stateChangeOp) String() string {
	switch op {
	case stateChangeOpSetLocal:
		return "SetLocal"
	case stateChangeOpSetRemote:
		return "SetRemote"
	default:
		return "Unknown State Change Operation"
	}
}

// SignalingState indicates the state of the offer/answer process.
type SignalingState int32

// SignalingState enums.
const (
	SignalingStateUnknown SignalingState = iota
	// SignalingStateStable indicates there is no offer/answer exchange in
	// progress.
	SignalingStateStable
	// SignalingStateHaveLocalOffer indicates that a local description, of
	// type "offer", has been successfully applied.
	SignalingStateHaveLocalOffer
	// SignalingStateHaveRemoteOffer indicates that a remote description, of
	// type "offer", has been successfully applied.
	SignalingStateHaveRemoteOffer
	// SignalingStateHaveLocalPranswer indicates that a remote description
	// of type "offer" and a local description of type "pranswer" have been
	// successfully applied.
	SignalingStateHaveLocalPranswer
	// SignalingStateHaveRemotePranswer indicates that a local description
	// of type "offer" and a remote description of type "pranswer" have
	// been successfully applied.
	SignalingStateHaveRemotePranswer
	// SignalingStateClosed indicates The PeerConnection has been closed.
	SignalingStateClosed
)

// NewSignalingState defines a procedure for creating a new SignalingState
// from a raw string naming the signaling state.
func NewSignalingState(raw string) SignalingState {
	switch raw {
	case "stable":
		return SignalingStateStable
	case "have-local-offer":
		return SignalingStateHaveLocalOffer
	case "have-remote-offer":
		return SignalingStateHaveRemoteOffer
	case "have-local-pranswer":
		return SignalingStateHaveLocalPranswer
	case "have-remote-pranswer":
		return SignalingStateHaveRemotePranswer
	case "closed":
		return SignalingStateClosed
	default:
		return SignalingStateUnknown
	}
}

func (t SignalingState) String() string {
	switch t {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return ErrUnknownType.Error()
	}
}

// Get thread safe read value.
func (t *SignalingState) Get() SignalingState {
	return SignalingState(atomic.LoadInt32((*int32)(t)))
}

// Set thread safe write value.
func (t *SignalingState) Set(state SignalingState) {
	atomic.StoreInt32((*int32)(t), int32(state))
}

// checkNextSignalingState validates the transition table of RFC 3264 plus
// the WebRTC rollback rules. Illegal transitions return a typed error and
// leave the connection untouched.
func checkNextSignalingState(cur, next SignalingState, op stateChangeOp, sdpType SDPType) (SignalingState, error) { //nolint:gocognit,gocyclo
	if cur == SignalingStateClosed {
		return cur, &InvalidModificationError{Err: errSignalingStateProhibited}
	}

	// Special case for rollbacks
	if sdpType == SDPTypeRollback {
		if cur == SignalingStateStable {
			return cur, &InvalidModificationError{Err: errSignalingStateCannotRollback}
		}
		if next == SignalingStateStable {
			return next, nil
		}
		return cur, &InvalidModificationError{Err: fmt.Errorf("%w: %s -> %s", errSignalingStateProposedTransitionInvalid, cur, next)}
	}

	switch cur {
	case SignalingStateStable:
		switch op {
		case stateChangeOpSetLocal:
			if sdpType == SDPTypeOffer && next == SignalingStateHaveLocalOffer {
				return next, nil
			}
		case stateChangeOpSetRemote:
			if sdpType == SDPTypeOffer && next == SignalingStateHaveRemoteOffer {
				return next, nil
			}
		}
	case SignalingStateHaveLocalOffer:
		if op == stateChangeOpSetRemote {
			switch sdpType {
			case SDPTypeAnswer:
				if next == SignalingStateStable {
					return next, nil
				}
			case SDPTypePranswer:
				if next == SignalingStateHaveRemotePranswer {
					return next, nil
				}
			case SDPTypeUnknown, SDPTypeOffer, SDPTypeRollback:
			}
		}
		if op == stateChangeOpSetLocal && sdpType == SDPTypeOffer && next == SignalingStateHaveLocalOffer {
			return next, nil
		}
	case SignalingStateHaveRemotePranswer:
		if op == stateChangeOpSetRemote && sdpType == SDPTypeAnswer && next == SignalingStateStable {
			return next, nil
		}
	case SignalingStateHaveRemoteOffer:
		if op == stateChangeOpSetLocal {
			switch sdpType {
			case SDPTypeAnswer:
				if next == SignalingStateStable {
					return next, nil
				}
			case SDPTypePranswer:
				if next == SignalingStateHaveLocalPranswer {
					return next, nil
				}
			case SDPTypeUnknown, SDPTypeOffer, SDPTypeRollback:
			}
		}
		if op == stateChangeOpSetRemote && sdpType == SDPTypeOffer && next == SignalingStateHaveRemoteOffer {
			return next, nil
		}
	case SignalingStateHaveLocalPranswer:
		if op == stateChangeOpSetLocal && sdpType == SDPTypeAnswer && next == SignalingStateStable {
			return next, nil
		}
	case SignalingStateUnknown, SignalingStateClosed:
	}

	return cur, &InvalidModificationError{
		Err: fmt.Errorf("%w: %s(%s) %s -> %s", errSignalingStateProposedTransitionInvalid, op, sdpType, cur, next),
	}
}
