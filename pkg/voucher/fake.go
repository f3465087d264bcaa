package voucher

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

// FakeEscrow reproduces the escrow contract's collect semantics in memory:
// signature/chainId/escrow checks, strictly-increasing nonce and
// valueAggregate, delta transfer bookkeeping, and thaw-amount clamping.
type FakeEscrow struct {
	mu sync.Mutex

	Accounts       map[common.Address]*Account
	settledNonce   map[common.Hash]uint64
	collectedValue map[common.Hash]*big.Int

	ChainID int64
	Escrow  common.Address

	// Transfers records seller => cumulative amount collected, for test
	// assertions.
	Transfers map[common.Address]*big.Int
}

// NewFakeEscrow builds a FakeEscrow for the given chain id and contract
// address (vouchers must declare these to be accepted).
func NewFakeEscrow(chainID int64, escrowAddr common.Address) *FakeEscrow {
	return &FakeEscrow{
		Accounts:       make(map[common.Address]*Account),
		settledNonce:   make(map[common.Hash]uint64),
		collectedValue: make(map[common.Hash]*big.Int),
		ChainID:        chainID,
		Escrow:         escrowAddr,
		Transfers:      make(map[common.Address]*big.Int),
	}
}

func zero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// Collect validates and applies a voucher the way the real escrow contract
// would: signature recovery, chain/escrow match, strictly-increasing nonce
// and valueAggregate, then transfers the delta to the seller.
func (f *FakeEscrow) Collect(_ context.Context, v *sigdigest.Voucher) (common.Hash, error) {
	valid, err := sigdigest.IsValidVoucher(v)
	if err != nil || !valid {
		return common.Hash{}, ErrInvalidSignature
	}
	if v.ChainID != f.ChainID || v.Escrow != f.Escrow {
		return common.Hash{}, ErrCollectFailed
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if settled, ok := f.settledNonce[v.ID]; ok && v.Nonce <= settled {
		return common.Hash{}, ErrStaleVoucher
	}
	prevCollected := zero(f.collectedValue[v.ID])
	if v.ValueAggregate.Cmp(prevCollected) <= 0 {
		return common.Hash{}, ErrCollectFailed
	}

	delta := new(big.Int).Sub(v.ValueAggregate, prevCollected)
	f.settledNonce[v.ID] = v.Nonce
	f.collectedValue[v.ID] = new(big.Int).Set(v.ValueAggregate)

	prevTransfer := zero(f.Transfers[v.Seller])
	f.Transfers[v.Seller] = new(big.Int).Add(prevTransfer, delta)

	if acct, ok := f.Accounts[v.Buyer]; ok {
		remaining := new(big.Int).Sub(acct.Balance, v.ValueAggregate)
		if acct.ThawingAmount.Cmp(remaining) > 0 {
			acct.ThawingAmount = remaining
		}
	}

	handle := common.BytesToHash(append(v.ID.Bytes(), v.Seller.Bytes()...))
	return handle, nil
}

// GetAccount returns the buyer's tracked balance state, defaulting to zero.
func (f *FakeEscrow) GetAccount(_ context.Context, buyer common.Address) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct, ok := f.Accounts[buyer]; ok {
		return *acct, nil
	}
	return Account{Balance: big.NewInt(0), ThawingAmount: big.NewInt(0)}, nil
}

// GetSettledNonce returns the last-settled nonce for a voucher id.
func (f *FakeEscrow) GetSettledNonce(_ context.Context, id common.Hash) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settledNonce[id], nil
}

// GetCollectedValue returns the cumulative collected value for a voucher id.
func (f *FakeEscrow) GetCollectedValue(_ context.Context, id common.Hash) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return zero(f.collectedValue[id]), nil
}

var _ Escrow = (*FakeEscrow)(nil)
