package chainrpc

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

// FakeRPC is an in-memory RPC test double. It lets tests script balances,
// used-nonce state, and submission outcomes without a live node, mirroring
// the production/test-double split used throughout this codebase for
// external collaborators.
type FakeRPC struct {
	mu sync.Mutex

	Balances     map[common.Address]*big.Int
	UsedNonces   map[common.Hash]bool
	Height       uint64
	GasPrice     *big.Int
	Chain        int64
	SubmitErr    error
	Receipts     map[TxHandle]*Receipt
	Submissions  []*sigdigest.PaymentAuthorization
	NextHandle   int
}

// NewFakeRPC returns a FakeRPC with empty maps and a default gas price.
func NewFakeRPC(chainID int64) *FakeRPC {
	return &FakeRPC{
		Balances:   make(map[common.Address]*big.Int),
		UsedNonces: make(map[common.Hash]bool),
		Receipts:   make(map[TxHandle]*Receipt),
		GasPrice:   big.NewInt(5_000_000_000),
		Chain:      chainID,
	}
}

func (f *FakeRPC) BalanceOf(_ context.Context, _, address common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.Balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *FakeRPC) IsAuthorizationUsed(_ context.Context, _, authorizer common.Address, nonce common.Hash) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.UsedNonces[nonce]
}

func (f *FakeRPC) SubmitTransfer(_ context.Context, payment *sigdigest.PaymentAuthorization) (TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return TxHandle{}, f.SubmitErr
	}
	f.NextHandle++
	f.Submissions = append(f.Submissions, payment)
	var h common.Hash
	h[31] = byte(f.NextHandle)
	handle := TxHandle(h)
	f.Receipts[handle] = &Receipt{TxHash: handle, Status: 1, BlockNumber: f.Height}
	return handle, nil
}

func (f *FakeRPC) WaitForReceipt(_ context.Context, handle TxHandle, confirmations uint64) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Receipts[handle]
	if !ok {
		return nil, ErrPending
	}
	if f.Height < r.BlockNumber || f.Height-r.BlockNumber+1 < confirmations {
		return nil, ErrPending
	}
	return r, nil
}

func (f *FakeRPC) CurrentHeight(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Height, nil
}

func (f *FakeRPC) CurrentGasPrice(_ context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.GasPrice), nil
}

func (f *FakeRPC) ChainID() int64 {
	return f.Chain
}

func (f *FakeRPC) HealthCheck(_ context.Context) error {
	return nil
}

// SetReceiptStatus lets a test flip a previously submitted tx to reverted.
func (f *FakeRPC) SetReceiptStatus(handle TxHandle, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.Receipts[handle]; ok {
		r.Status = status
	}
}

var _ RPC = (*FakeRPC)(nil)
