package voucher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

// voucherTTL is how long a stored-but-unsettled voucher survives GC.
const voucherTTL = 7 * 24 * time.Hour

// key identifies a voucher by the (id, buyer, seller) triple the store
// tracks the latest revision for.
type key struct {
	id     common.Hash
	buyer  common.Address
	seller common.Address
}

type entry struct {
	voucher      *sigdigest.Voucher
	storedAt     time.Time
	settled      bool
	settleHandle common.Hash
	hasSettleTx  bool
}

// Record is a read-only snapshot of a stored voucher.
type Record struct {
	Voucher             *sigdigest.Voucher
	Settled             bool
	SettlingTxHandle    common.Hash
	HasSettlingTxHandle bool
}

// Store is the deferred-payment voucher store: it persists the latest
// voucher per (id, buyer, seller), enforces monotonic nonces off-chain, and
// drives settlement against the escrow contract.
type Store struct {
	escrow Escrow

	mu       sync.Mutex
	vouchers map[key]*entry
	byBuyer  map[common.Address]map[key]struct{}
}

// NewStore builds a Store backed by the given escrow contract adapter.
func NewStore(escrow Escrow) *Store {
	return &Store{
		escrow:   escrow,
		vouchers: make(map[key]*entry),
		byBuyer:  make(map[common.Address]map[key]struct{}),
	}
}

func keyOf(v *sigdigest.Voucher) key {
	return key{id: v.ID, buyer: v.Buyer, seller: v.Seller}
}

// StoreVoucher validates the voucher's signature and nonce, then persists it
// as the latest revision for its (id, buyer, seller) triple.
func (s *Store) StoreVoucher(v *sigdigest.Voucher) error {
	valid, err := sigdigest.IsValidVoucher(v)
	if err != nil || !valid {
		return fmt.Errorf("%w: signature does not recover to buyer", ErrInvalidSignature)
	}

	k := keyOf(v)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.vouchers[k]; ok && v.Nonce <= existing.voucher.Nonce {
		return ErrStaleVoucher
	}

	s.vouchers[k] = &entry{voucher: v, storedAt: time.Now()}
	if s.byBuyer[v.Buyer] == nil {
		s.byBuyer[v.Buyer] = make(map[key]struct{})
	}
	s.byBuyer[v.Buyer][k] = struct{}{}
	return nil
}

// SettleVoucher settles the latest stored voucher for the given id/buyer/
// seller against the escrow contract, marking it settled on success.
func (s *Store) SettleVoucher(ctx context.Context, id common.Hash, buyer, seller common.Address) (common.Hash, error) {
	k := key{id: id, buyer: buyer, seller: seller}

	s.mu.Lock()
	e, ok := s.vouchers[k]
	if !ok {
		s.mu.Unlock()
		return common.Hash{}, ErrVoucherNotFound
	}
	if e.settled {
		s.mu.Unlock()
		return common.Hash{}, ErrAlreadySettled
	}
	v := e.voucher
	s.mu.Unlock()

	handle, err := s.escrow.Collect(ctx, v)
	if err != nil {
		return common.Hash{}, err
	}

	s.mu.Lock()
	// Re-fetch: a concurrent StoreVoucher may have replaced the entry with a
	// newer revision while the on-chain call was in flight. The entry is
	// marked settled only if it is still the revision just collected; a
	// newer revision that replaced it stays unsettled.
	if current, ok := s.vouchers[k]; ok && current.voucher.Nonce == v.Nonce {
		current.settled = true
		current.settleHandle = handle
		current.hasSettleTx = true
	}
	s.mu.Unlock()

	return handle, nil
}

// Get returns the latest stored revision for (id, buyer, seller).
func (s *Store) Get(id common.Hash, buyer, seller common.Address) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.vouchers[key{id: id, buyer: buyer, seller: seller}]
	if !ok {
		return Record{}, false
	}
	return Record{
		Voucher:             e.voucher,
		Settled:             e.settled,
		SettlingTxHandle:    e.settleHandle,
		HasSettlingTxHandle: e.hasSettleTx,
	}, true
}

// ListByBuyer returns every voucher revision currently stored for a buyer.
func (s *Store) ListByBuyer(buyer common.Address) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.byBuyer[buyer]
	records := make([]Record, 0, len(keys))
	for k := range keys {
		e := s.vouchers[k]
		records = append(records, Record{
			Voucher:             e.voucher,
			Settled:             e.settled,
			SettlingTxHandle:    e.settleHandle,
			HasSettlingTxHandle: e.hasSettleTx,
		})
	}
	return records
}

// GC drops unsettled vouchers older than voucherTTL. Settled vouchers are
// kept indefinitely as a settlement record.
func (s *Store) GC(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.vouchers {
		if !e.settled && now.Sub(e.storedAt) > voucherTTL {
			delete(s.vouchers, k)
			delete(s.byBuyer[k.buyer], k)
			removed++
		}
	}
	return removed
}

// Account is a read-through to the escrow contract's buyer balance state.
func (s *Store) Account(ctx context.Context, buyer common.Address) (Account, error) {
	return s.escrow.GetAccount(ctx, buyer)
}
