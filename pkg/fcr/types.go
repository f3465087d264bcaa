// Package fcr implements the Fast Confirmation Rule monitor: a poller of
// the host chain's fast-finality consensus subprotocol that exposes a
// four-level confirmation lattice for pending settlements.
package fcr

import "fmt"

// Level is a confirmation index for a pending transaction.
type Level int

const (
	// L0 is reserved for the window between acceptance and inclusion in
	// any tipset; the monitor itself never reports it (the settlement
	// engine assigns it when tipsetHeight is unknown).
	L0 Level = iota
	L1 // included in a tipset
	L2 // FCR-safe (quorum witnessed or propagation window elapsed)
	L3 // finalized by a certificate
	LB // bond-backstop: settlement resolved via bond claim, not chain finality
)

func (l Level) String() string {
	switch l {
	case L0:
		return "L0"
	case L1:
		return "L1"
	case L2:
		return "L2"
	case L3:
		return "L3"
	case LB:
		return "LB"
	default:
		return fmt.Sprintf("L?(%d)", int(l))
	}
}

// Higher reports whether l is a strictly higher confirmation level than other.
func (l Level) Higher(other Level) bool {
	return l > other
}

// Phase is a round of the consensus subprotocol's phase traversal.
type Phase int

const (
	PhaseQuality Phase = iota
	PhaseConverge
	PhasePrepare
	PhaseCommit
	PhaseDecide
)

func (p Phase) String() string {
	switch p {
	case PhaseQuality:
		return "QUALITY"
	case PhaseConverge:
		return "CONVERGE"
	case PhasePrepare:
		return "PREPARE"
	case PhaseCommit:
		return "COMMIT"
	case PhaseDecide:
		return "DECIDE"
	default:
		return fmt.Sprintf("PHASE?(%d)", int(p))
	}
}

// InstanceState is the monitor's view of the consensus subprotocol at a
// point in time.
type InstanceState struct {
	Instance       uint64
	Round          uint64
	Phase          Phase
	PhaseStartTime int64 // unix seconds
	RoundBumps     uint64
}

// Certificate is a committed record issued by the subprotocol for a given
// instance, carrying the finalized height of its chain segment.
type Certificate struct {
	Instance       uint64
	FinalizedHeight uint64
}

// coverage describes where a target height falls relative to the current
// instance, per the mapping rules in the instance-mapping algorithm.
type coverage int

const (
	coverageFinalized coverage = iota
	coveragePending
	coverageActive
)

// ConfirmationStatus is the result of evaluating a target tipset height
// against the monitor's current state.
type ConfirmationStatus struct {
	Level         Level
	Instance      uint64
	CertificateID uint64 // valid when Level == L3
}
