package fcr

import (
	"testing"
	"time"
)

func newTestMonitor() *Monitor {
	return NewMonitor(NewFakeConsensusRPC(), DefaultConfig())
}

func TestEvaluatePendingBeforeAnyProgress(t *testing.T) {
	m := newTestMonitor()
	status := m.Evaluate(100)
	if status.Level != L1 {
		t.Errorf("Level = %v, want L1", status.Level)
	}
}

func TestEvaluateFinalizedViaCertificate(t *testing.T) {
	m := newTestMonitor()
	m.mu.Lock()
	m.hasProgress = true
	m.state = InstanceState{Instance: 5, Phase: PhasePrepare}
	m.mu.Unlock()
	m.certs.put(&Certificate{Instance: 4, FinalizedHeight: 200})

	status := m.Evaluate(150)
	if status.Level != L3 {
		t.Fatalf("Level = %v, want L3", status.Level)
	}
	if status.Instance != 4 {
		t.Errorf("Instance = %d, want 4", status.Instance)
	}
}

func TestEvaluateActiveCommitIsL2(t *testing.T) {
	m := newTestMonitor()
	m.mu.Lock()
	m.hasProgress = true
	m.state = InstanceState{Instance: 5, Round: 1, Phase: PhaseCommit, PhaseStartTime: time.Now().Unix()}
	m.mu.Unlock()

	status := m.Evaluate(1000)
	if status.Level != L2 {
		t.Errorf("Level = %v, want L2", status.Level)
	}
}

func TestEvaluateActiveDecideIsL3(t *testing.T) {
	m := newTestMonitor()
	m.mu.Lock()
	m.hasProgress = true
	m.state = InstanceState{Instance: 5, Phase: PhaseDecide, PhaseStartTime: time.Now().Unix()}
	m.mu.Unlock()

	status := m.Evaluate(1000)
	if status.Level != L3 {
		t.Errorf("Level = %v, want L3", status.Level)
	}
}

func TestEvaluatePrepareRoundZeroPromotesAfterDelay(t *testing.T) {
	m := newTestMonitor()
	m.mu.Lock()
	m.hasProgress = true
	m.state = InstanceState{Instance: 5, Round: 0, Phase: PhasePrepare, PhaseStartTime: time.Now().Add(-6 * time.Second).Unix()}
	m.mu.Unlock()

	status := m.Evaluate(1000)
	if status.Level != L2 {
		t.Errorf("Level = %v, want L2 after propagation window elapsed", status.Level)
	}
}

func TestEvaluatePrepareRoundZeroTooRecentIsL1(t *testing.T) {
	m := newTestMonitor()
	m.mu.Lock()
	m.hasProgress = true
	m.state = InstanceState{Instance: 5, Round: 0, Phase: PhasePrepare, PhaseStartTime: time.Now().Unix()}
	m.mu.Unlock()

	status := m.Evaluate(1000)
	if status.Level != L1 {
		t.Errorf("Level = %v, want L1 before propagation window elapses", status.Level)
	}
}

func TestEvaluatePrepareRoundBumpDemotesToL1(t *testing.T) {
	m := newTestMonitor()
	m.mu.Lock()
	m.hasProgress = true
	m.state = InstanceState{Instance: 5, Round: 1, Phase: PhasePrepare, PhaseStartTime: time.Now().Add(-10 * time.Second).Unix(), RoundBumps: 1}
	m.mu.Unlock()

	status := m.Evaluate(1000)
	if status.Level != L1 {
		t.Errorf("Level = %v, want L1 (round bump demotes until COMMIT)", status.Level)
	}
}

func TestStatusBeforeAnyProgress(t *testing.T) {
	m := newTestMonitor()
	status := m.Status()
	if status.Level != L1 {
		t.Errorf("Level = %v, want L1", status.Level)
	}
}

func TestStatusReflectsCurrentInstancePhase(t *testing.T) {
	m := newTestMonitor()
	m.mu.Lock()
	m.hasProgress = true
	m.state = InstanceState{Instance: 9, Phase: PhaseCommit, PhaseStartTime: time.Now().Unix()}
	m.mu.Unlock()

	status := m.Status()
	if status.Level != L2 {
		t.Errorf("Level = %v, want L2", status.Level)
	}
	if status.Instance != 9 {
		t.Errorf("Instance = %d, want 9", status.Instance)
	}
}

func TestMapInstanceNextInstanceWhenCurrentAlreadyDecidedShortOfHeight(t *testing.T) {
	m := newTestMonitor()
	m.mu.Lock()
	m.hasProgress = true
	m.state = InstanceState{Instance: 5, Phase: PhasePrepare}
	m.mu.Unlock()
	m.certs.put(&Certificate{Instance: 5, FinalizedHeight: 50})

	status := m.Evaluate(100)
	if status.Instance != 6 {
		t.Errorf("Instance = %d, want 6 (next instance covers the height)", status.Instance)
	}
	if status.Level != L1 {
		t.Errorf("Level = %v, want L1 (pending)", status.Level)
	}
}
