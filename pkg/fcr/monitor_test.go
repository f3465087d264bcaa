package fcr

import (
	"context"
	"testing"
	"time"
)

func TestPollFirstSampleSetsState(t *testing.T) {
	rpc := NewFakeConsensusRPC()
	rpc.SetProgress(Progress{Instance: 1, Round: 0, Phase: PhaseQuality})
	m := NewMonitor(rpc, DefaultConfig())

	m.poll(context.Background())

	state, ok := m.State()
	if !ok {
		t.Fatal("expected hasProgress after first poll")
	}
	if state.Instance != 1 || state.Phase != PhaseQuality {
		t.Errorf("state = %+v, want instance 1, phase QUALITY", state)
	}
}

func TestPollInstanceAdvanceResetsRoundAndFetchesCertificate(t *testing.T) {
	rpc := NewFakeConsensusRPC()
	rpc.SetProgress(Progress{Instance: 1, Round: 3, Phase: PhaseCommit})
	m := NewMonitor(rpc, DefaultConfig())
	m.poll(context.Background())

	rpc.AddCertificate(&Certificate{Instance: 1, FinalizedHeight: 500})
	rpc.SetProgress(Progress{Instance: 2, Round: 0, Phase: PhaseQuality})
	m.poll(context.Background())

	state, _ := m.State()
	if state.Instance != 2 || state.Round != 0 || state.RoundBumps != 0 {
		t.Errorf("state = %+v, want instance 2 round 0 with reset bumps", state)
	}

	// certificate fetch for the finalized instance happens asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.certs.get(1); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected certificate for instance 1 to be cached after instance advance")
}

func TestPollRoundBumpIncrementsCounter(t *testing.T) {
	rpc := NewFakeConsensusRPC()
	rpc.SetProgress(Progress{Instance: 1, Round: 0, Phase: PhasePrepare})
	m := NewMonitor(rpc, DefaultConfig())
	m.poll(context.Background())

	rpc.SetProgress(Progress{Instance: 1, Round: 1, Phase: PhasePrepare})
	m.poll(context.Background())

	state, _ := m.State()
	if state.Round != 1 || state.RoundBumps != 1 {
		t.Errorf("state = %+v, want round 1 with 1 bump", state)
	}
}

func TestPollPhaseChangeSameRound(t *testing.T) {
	rpc := NewFakeConsensusRPC()
	rpc.SetProgress(Progress{Instance: 1, Round: 0, Phase: PhaseQuality})
	m := NewMonitor(rpc, DefaultConfig())
	m.poll(context.Background())

	rpc.SetProgress(Progress{Instance: 1, Round: 0, Phase: PhaseConverge})
	m.poll(context.Background())

	state, _ := m.State()
	if state.Phase != PhaseConverge || state.RoundBumps != 0 {
		t.Errorf("state = %+v, want phase CONVERGE with bumps unchanged", state)
	}
}

func TestStartStop(t *testing.T) {
	rpc := NewFakeConsensusRPC()
	rpc.SetProgress(Progress{Instance: 1, Round: 0, Phase: PhaseQuality})
	m := NewMonitor(rpc, Config{PollInterval: 10 * time.Millisecond})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second Start should be a no-op, got: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := m.State(); !ok {
		t.Error("expected at least one poll to have run")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
