package fcr

import "time"

// minPrepareElapsed is the propagation guard for the PREPARE/round-0 leg of
// the L2 heuristic. Not tunable below this floor without revisiting the
// safety claim it encodes.
const minPrepareElapsed = 5 * time.Second

// snapshot is an immutable copy of the monitor's state at a moment in time,
// used so evaluate/mapInstance can run as a pure function without holding
// the monitor's lock.
type snapshot struct {
	hasProgress bool
	state       InstanceState
	now         time.Time
}

// mapInstance implements the instance-mapping algorithm: given a target
// tipset height, determine which consensus instance is responsible for
// finalizing it and whether that instance has already decided.
func mapInstance(h uint64, snap snapshot, cache *certCache) (coverage, uint64) {
	if latest, ok := cache.latest(); ok && latest.FinalizedHeight >= h {
		return coverageFinalized, latest.Instance
	}

	if !snap.hasProgress {
		return coveragePending, 0
	}

	current := snap.state.Instance

	if cert, ok := cache.get(current); ok {
		if cert.FinalizedHeight >= h {
			return coverageFinalized, current
		}
		// The current instance already decided but its segment doesn't
		// reach h: the next instance will cover it.
		return coveragePending, current + 1
	}

	return coverageActive, current
}

// Evaluate returns the confirmation status of a target tipset height given
// the monitor's current state. It never blocks on RPC; it is a pure
// function of (h, current snapshot, certificate cache).
func (m *Monitor) Evaluate(h uint64) ConfirmationStatus {
	m.mu.RLock()
	snap := snapshot{hasProgress: m.hasProgress, state: m.state, now: time.Now()}
	m.mu.RUnlock()

	cov, instance := mapInstance(h, snap, m.certs)

	switch cov {
	case coverageFinalized:
		return ConfirmationStatus{Level: L3, Instance: instance, CertificateID: instance}
	case coveragePending:
		return ConfirmationStatus{Level: L1, Instance: instance}
	default: // coverageActive
		return ConfirmationStatus{Level: evaluatePhase(snap), Instance: instance}
	}
}

// Status returns the confirmation level of the monitor's current instance
// directly, without reference to any particular tipset height. This is
// what the facilitator's status endpoint reports: "how confirmed is
// whatever the chain is working on right now."
func (m *Monitor) Status() ConfirmationStatus {
	m.mu.RLock()
	snap := snapshot{hasProgress: m.hasProgress, state: m.state, now: time.Now()}
	m.mu.RUnlock()

	if !snap.hasProgress {
		return ConfirmationStatus{Level: L1}
	}
	return ConfirmationStatus{Level: evaluatePhase(snap), Instance: snap.state.Instance}
}

// evaluatePhase applies the L2 safe heuristic to the active instance's
// current phase/round/elapsed-time.
func evaluatePhase(snap snapshot) Level {
	s := snap.state
	switch {
	case s.Phase >= PhaseDecide:
		return L3
	case s.Phase == PhaseCommit:
		return L2
	case s.Phase == PhasePrepare && s.Round == 0:
		elapsed := snap.now.Sub(time.Unix(s.PhaseStartTime, 0))
		if elapsed >= minPrepareElapsed {
			return L2
		}
		return L1
	default:
		return L1
	}
}
