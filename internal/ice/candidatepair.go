// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package ice

import (
	"fmt"
	"time"
)

// CandidatePairState is the state of a candidate pair in the checklist,
// RFC 8445 §6.1.2.6.
type CandidatePairState int

// Possible pair states.
const (
	CandidatePairStateFrozen CandidatePairState = iota
	CandidatePairStateWaiting
	CandidatePairStateInProgress
	CandidatePairStateSucceeded
	CandidatePairStateFailed
)

func (s CandidatePairState) String() string {
	switch s {
	case CandidatePairStateFrozen:
		return "frozen"
	case CandidatePairStateWaiting:
		return "waiting"
	case CandidatePairStateInProgress:
		return "in-progress"
	case CandidatePairStateSucceeded:
		return "succeeded"
	case CandidatePairStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CandidatePair is a local/remote combination on the checklist.
type CandidatePair struct {
	Local  *Candidate
	Remote *Candidate

	State     CandidatePairState
	Nominated bool

	// remoteSucceeded is set when a valid inbound check arrived on the
	// pair; together with a successful outbound check the pair succeeds.
	remoteSucceeded bool
	localSucceeded  bool

	lastCheckSent time.Time
	roundTrip     time.Duration
}

// Priority combines the two directional priorities per RFC 8445 §6.1.2.3:
// 2^32·MIN(G,D) + 2·MAX(G,D) + (G>D ? 1 : 0).
func (p *CandidatePair) Priority(controlling bool) uint64 {
	var g, d uint32
	if controlling {
		g, d = p.Local.Priority, p.Remote.Priority
	} else {
		g, d = p.Remote.Priority, p.Local.Priority
	}

	minP, maxP := uint64(g), uint64(d)
	if minP > maxP {
		minP, maxP = maxP, minP
	}
	var tie uint64
	if g > d {
		tie = 1
	}
	return (1<<32)*minP + 2*maxP + tie
}

// foundationKey is the checklist grouping key: at most one pair per key may
// be in progress.
func (p *CandidatePair) foundationKey() string {
	return p.Local.Foundation + ":" + p.Remote.Foundation
}

func (p *CandidatePair) String() string {
	return fmt.Sprintf("%s <-> %s (%s, nominated=%v)", p.Local, p.Remote, p.State, p.Nominated)
}
