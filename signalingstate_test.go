// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package webrtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignalingState(t *testing.T) {
	for _, tt := range []struct {
		raw      string
		expected SignalingState
	}{
		{"stable", SignalingStateStable},
		{"have-local-offer", SignalingStateHaveLocalOffer},
		{"have-remote-offer", SignalingStateHaveRemoteOffer},
		{"have-local-pranswer", SignalingStateHaveLocalPranswer},
		{"have-remote-pranswer", SignalingStateHaveRemotePranswer},
		{"closed", SignalingStateClosed},
		{"bogus", SignalingStateUnknown},
	} {
		assert.Equal(t, tt.expected, NewSignalingState(tt.raw))
		if tt.expected != SignalingStateUnknown {
			assert.Equal(t, tt.raw, tt.expected.String())
		}
	}
}

// The transition table from RFC 3264 and the WebRTC rollback rules.
func TestCheckNextSignalingState(t *testing.T) {
	for _, tt := range []struct {
		name    string
		cur     SignalingState
		next    SignalingState
		op      stateChangeOp
		sdpType SDPType
		wantErr bool
	}{
		{"stable->SetLocal(offer)", SignalingStateStable, SignalingStateHaveLocalOffer, stateChangeOpSetLocal, SDPTypeOffer, false},
		{"stable->SetRemote(offer)", SignalingStateStable, SignalingStateHaveRemoteOffer, stateChangeOpSetRemote, SDPTypeOffer, false},
		{"stable->SetLocal(answer) rejected", SignalingStateStable, SignalingStateStable, stateChangeOpSetLocal, SDPTypeAnswer, true},
		{"stable->SetRemote(answer) rejected", SignalingStateStable, SignalingStateStable, stateChangeOpSetRemote, SDPTypeAnswer, true},
		{"stable rollback rejected", SignalingStateStable, SignalingStateStable, stateChangeOpSetLocal, SDPTypeRollback, true},

		{"have-local-offer->SetRemote(answer)", SignalingStateHaveLocalOffer, SignalingStateStable, stateChangeOpSetRemote, SDPTypeAnswer, false},
		{"have-local-offer->SetRemote(pranswer)", SignalingStateHaveLocalOffer, SignalingStateHaveRemotePranswer, stateChangeOpSetRemote, SDPTypePranswer, false},
		{"have-local-offer->SetLocal(offer) repeat", SignalingStateHaveLocalOffer, SignalingStateHaveLocalOffer, stateChangeOpSetLocal, SDPTypeOffer, false},
		{"have-local-offer->SetRemote(offer) rejected", SignalingStateHaveLocalOffer, SignalingStateHaveRemoteOffer, stateChangeOpSetRemote, SDPTypeOffer, true},
		{"have-local-offer rollback", SignalingStateHaveLocalOffer, SignalingStateStable, stateChangeOpSetLocal, SDPTypeRollback, false},

		{"have-remote-offer->SetLocal(answer)", SignalingStateHaveRemoteOffer, SignalingStateStable, stateChangeOpSetLocal, SDPTypeAnswer, false},
		{"have-remote-offer->SetLocal(pranswer)", SignalingStateHaveRemoteOffer, SignalingStateHaveLocalPranswer, stateChangeOpSetLocal, SDPTypePranswer, false},
		{"have-remote-offer->SetRemote(offer) repeat", SignalingStateHaveRemoteOffer, SignalingStateHaveRemoteOffer, stateChangeOpSetRemote, SDPTypeOffer, false},
		{"have-remote-offer->SetLocal(offer) rejected", SignalingStateHaveRemoteOffer, SignalingStateHaveLocalOffer, stateChangeOpSetLocal, SDPTypeOffer, true},
		{"have-remote-offer rollback", SignalingStateHaveRemoteOffer, SignalingStateStable, stateChangeOpSetRemote, SDPTypeRollback, false},

		{"have-local-pranswer->SetLocal(answer)", SignalingStateHaveLocalPranswer, SignalingStateStable, stateChangeOpSetLocal, SDPTypeAnswer, false},
		{"have-remote-pranswer->SetRemote(answer)", SignalingStateHaveRemotePranswer, SignalingStateStable, stateChangeOpSetRemote, SDPTypeAnswer, false},

		{"closed is terminal", SignalingStateClosed, SignalingStateStable, stateChangeOpSetLocal, SDPTypeOffer, true},
	} {
		next, err := checkNextSignalingState(tt.cur, tt.next, tt.op, tt.sdpType)
		if tt.wantErr {
			assert.Errorf(t, err, "%s", tt.name)

			var modErr *InvalidModificationError
			assert.ErrorAsf(t, err, &modErr, "%s returns a typed error", tt.name)
		} else {
			require.NoErrorf(t, err, "%s", tt.name)
			assert.Equalf(t, tt.next, next, "%s", tt.name)
		}
	}
}
