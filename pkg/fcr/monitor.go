package fcr

import (
	"context"
	"log"
	"sync"
	"time"
)

// Monitor is a long-running poller of the consensus subprotocol's
// phase/round/instance progress, maintaining the InstanceState described
// in the data model and a bounded cache of finality certificates.
type Monitor struct {
	rpc          ConsensusRPC
	pollInterval time.Duration
	logger       *log.Logger

	mu          sync.RWMutex
	hasProgress bool
	state       InstanceState
	certs       *certCache

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config configures a Monitor.
type Config struct {
	PollInterval time.Duration
	Logger       *log.Logger
}

// DefaultConfig returns the monitor's default tuning.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		Logger:       log.New(log.Writer(), "[FCR] ", log.LstdFlags),
	}
}

// NewMonitor builds a Monitor over the given consensus RPC.
func NewMonitor(rpc ConsensusRPC, cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[FCR] ", log.LstdFlags)
	}
	return &Monitor{
		rpc:          rpc,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
		certs:        newCertCache(),
	}
}

// Start begins the polling loop. It is a no-op if already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	if manifest, err := m.rpc.GetManifest(ctx); err != nil {
		m.logger.Printf("fetching manifest: %v", err)
	} else {
		m.logger.Printf("monitoring network %q (committee size %d)", manifest.NetworkName, manifest.CommitteeSize)
	}

	go m.run(ctx)

	m.logger.Printf("started (polling every %s)", m.pollInterval)
	return nil
}

// Stop halts the polling loop and waits for it to exit.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	<-m.doneCh
	m.logger.Println("stopped")
	return nil
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll fetches one GetProgress sample and diffs it against the previous
// state, per the instance-advance / round-bump / phase-change rules.
func (m *Monitor) poll(ctx context.Context) {
	progress, err := m.rpc.GetProgress(ctx)
	if err != nil {
		m.logger.Printf("GetProgress failed: %v", err)
		return
	}

	now := time.Now()

	m.mu.Lock()
	old := m.state
	hadProgress := m.hasProgress

	switch {
	case !hadProgress:
		m.state = InstanceState{Instance: progress.Instance, Round: progress.Round, Phase: progress.Phase, PhaseStartTime: now.Unix()}
		m.hasProgress = true
	case progress.Instance > old.Instance:
		m.state = InstanceState{Instance: progress.Instance, Round: 0, Phase: progress.Phase, PhaseStartTime: now.Unix()}
	case progress.Round > old.Round:
		m.state.Round = progress.Round
		m.state.Phase = progress.Phase
		m.state.PhaseStartTime = now.Unix()
		m.state.RoundBumps++
	case progress.Phase != old.Phase:
		m.state.Phase = progress.Phase
		m.state.PhaseStartTime = now.Unix()
	}
	advanced := hadProgress && progress.Instance > old.Instance
	m.mu.Unlock()

	if advanced {
		go m.fetchCertificate(old.Instance)
	}
}

func (m *Monitor) fetchCertificate(instance uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cert, err := m.rpc.GetCertificate(ctx, instance)
	if err != nil {
		m.logger.Printf("fetching certificate for instance %d: %v", instance, err)
		return
	}
	m.certs.put(cert)
}

// State returns a copy of the monitor's current instance state.
func (m *Monitor) State() (InstanceState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.hasProgress
}
