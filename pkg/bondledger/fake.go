package bondledger

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type commitment struct {
	provider    common.Address
	amount      *big.Int
	committedAt time.Time
	deadline    time.Time
	settled     bool
	claimed     bool
}

// FakeLedger is an in-memory Ledger test double that reproduces the bond
// contract's guarantees directly (id uniqueness, deadline, at-most-one
// resolution) rather than merely recording calls.
type FakeLedger struct {
	mu sync.Mutex

	BondBalance    *big.Int
	TotalCommitted *big.Int
	commitments    map[common.Hash]*commitment

	Now func() time.Time // overridable for deterministic deadline tests
}

// NewFakeLedger returns a FakeLedger with the given bond balance.
func NewFakeLedger(bondBalance *big.Int) *FakeLedger {
	return &FakeLedger{
		BondBalance:    new(big.Int).Set(bondBalance),
		TotalCommitted: big.NewInt(0),
		commitments:    make(map[common.Hash]*commitment),
		Now:            time.Now,
	}
}

func (f *FakeLedger) CommitPayment(_ context.Context, id common.Hash, provider common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.commitments[id]; exists {
		return ErrAlreadyCommitted
	}
	available := new(big.Int).Sub(f.BondBalance, f.TotalCommitted)
	if available.Cmp(amount) < 0 {
		return ErrInsufficientBond
	}

	now := f.Now()
	f.commitments[id] = &commitment{
		provider:    provider,
		amount:      new(big.Int).Set(amount),
		committedAt: now,
		deadline:    now.Add(commitDeadlineWindow),
	}
	f.TotalCommitted.Add(f.TotalCommitted, amount)
	return nil
}

func (f *FakeLedger) ReleasePayment(_ context.Context, id common.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.commitments[id]
	if !ok {
		return ErrNotCommitted
	}
	if c.settled || c.claimed {
		return ErrAlreadyResolved
	}
	c.settled = true
	f.TotalCommitted.Sub(f.TotalCommitted, c.amount)
	return nil
}

func (f *FakeLedger) ClaimPayment(_ context.Context, id common.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.commitments[id]
	if !ok {
		return ErrNotCommitted
	}
	if c.settled || c.claimed {
		return ErrAlreadyResolved
	}
	if f.Now().Before(c.deadline) {
		return ErrDeadlineNotPassed
	}
	c.claimed = true
	f.TotalCommitted.Sub(f.TotalCommitted, c.amount)
	f.BondBalance.Sub(f.BondBalance, c.amount)
	return nil
}

func (f *FakeLedger) GetExposure(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.TotalCommitted), nil
}

func (f *FakeLedger) GetAvailableBond(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Sub(f.BondBalance, f.TotalCommitted), nil
}

func (f *FakeLedger) HasCapacity(ctx context.Context, amount *big.Int) (bool, error) {
	available, err := f.GetAvailableBond(ctx)
	if err != nil {
		return false, err
	}
	return available.Cmp(amount) >= 0, nil
}

var _ Ledger = (*FakeLedger)(nil)
