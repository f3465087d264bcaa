package fcr

import (
	"context"
	"sync"
)

// FakeConsensusRPC is an in-memory ConsensusRPC test double.
type FakeConsensusRPC struct {
	mu           sync.Mutex
	Progress     Progress
	Manifest     Manifest
	Certificates map[uint64]*Certificate
	ProgressErr  error
}

// NewFakeConsensusRPC returns a FakeConsensusRPC with an empty certificate set.
func NewFakeConsensusRPC() *FakeConsensusRPC {
	return &FakeConsensusRPC{Certificates: make(map[uint64]*Certificate)}
}

func (f *FakeConsensusRPC) GetProgress(context.Context) (Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Progress, f.ProgressErr
}

func (f *FakeConsensusRPC) GetManifest(context.Context) (Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Manifest, nil
}

func (f *FakeConsensusRPC) GetCertificate(_ context.Context, instance uint64) (*Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cert, ok := f.Certificates[instance]
	if !ok {
		return nil, ErrCertificateUnavailable
	}
	return cert, nil
}

func (f *FakeConsensusRPC) GetLatestCertificate(ctx context.Context) (*Certificate, error) {
	f.mu.Lock()
	var best *Certificate
	for _, c := range f.Certificates {
		if best == nil || c.Instance > best.Instance {
			best = c
		}
	}
	f.mu.Unlock()
	if best == nil {
		return nil, ErrCertificateUnavailable
	}
	return best, nil
}

// SetProgress updates the sample the next GetProgress call returns.
func (f *FakeConsensusRPC) SetProgress(p Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Progress = p
}

// AddCertificate registers a certificate for an instance.
func (f *FakeConsensusRPC) AddCertificate(cert *Certificate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Certificates[cert.Instance] = cert
}

var _ ConsensusRPC = (*FakeConsensusRPC)(nil)
