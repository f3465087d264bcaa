// Package riskledger maintains the per-wallet risk state (pending exposure,
// daily usage, tier) and the settlement-record map keyed by payment id. It
// is the facilitator's authoritative in-memory source of truth for credit
// conservation; persistence is an optional mirror, not a replacement.
package riskledger

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

// walletState is a single payer's risk aggregation. Every field access must
// hold mu, which is the sole mechanism closing the TOCTOU between a risk
// check and a credit reservation for that wallet.
type walletState struct {
	mu sync.Mutex

	pending      *big.Int
	dailyAmount  *big.Int
	dailyDate    string
	firstSeen    time.Time
	hasFirstSeen bool
	tierOverride *Tier
}

type settlementEntry struct {
	mu     sync.Mutex
	record SettlementRecord
}

// Ledger is the risk state engine: wallet aggregates plus the settlement
// map and non-terminal id set.
type Ledger struct {
	limits      Limits
	maxAttempts int

	mu          sync.RWMutex
	wallets     map[common.Address]*walletState
	settlements map[common.Hash]*settlementEntry
	nonTerminal map[common.Hash]struct{}
}

// NewLedger builds an empty Ledger under the given limits. maxAttempts is
// the default attempt budget stamped onto new settlement records.
func NewLedger(limits Limits, maxAttempts int) *Ledger {
	return &Ledger{
		limits:      limits,
		maxAttempts: maxAttempts,
		wallets:     make(map[common.Address]*walletState),
		settlements: make(map[common.Hash]*settlementEntry),
		nonTerminal: make(map[common.Hash]struct{}),
	}
}

func (l *Ledger) wallet(addr common.Address) *walletState {
	l.mu.RLock()
	w, ok := l.wallets[addr]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.wallets[addr]; ok {
		return w
	}
	w = &walletState{pending: big.NewInt(0), dailyAmount: big.NewInt(0)}
	l.wallets[addr] = w
	return w
}

func (w *walletState) ensureFirstSeen(now time.Time) {
	if !w.hasFirstSeen {
		w.firstSeen = now
		w.hasFirstSeen = true
	}
}

func (w *walletState) tier(now time.Time) Tier {
	if w.tierOverride != nil {
		return *w.tierOverride
	}
	return tierFromAge(w.firstSeen, now)
}

// dailyUsed returns the wallet's daily usage for the current UTC date
// without mutating the bucket; a stale date reads as zero (the rollover
// is only committed on the next successful ReleaseCredit).
func (w *walletState) dailyUsed(today string) *big.Int {
	if w.dailyDate != today {
		return big.NewInt(0)
	}
	return new(big.Int).Set(w.dailyAmount)
}

func utcDateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// checkLocked evaluates the three risk gates against amount for a wallet
// already locked by the caller. It does not mutate wallet state.
func (l *Ledger) checkLocked(w *walletState, amount *big.Int, now time.Time) CheckResult {
	if amount.Cmp(l.limits.MaxPerTransaction) > 0 {
		return CheckResult{
			Allowed: false, Score: 80, Reason: ReasonExceedsPerTx,
			Message: fmt.Sprintf("amount %s exceeds max per transaction %s", amount, l.limits.MaxPerTransaction),
		}
	}

	prospectivePending := new(big.Int).Add(w.pending, amount)
	if prospectivePending.Cmp(l.limits.MaxPendingPerWallet) > 0 {
		return CheckResult{
			Allowed: false, Score: 70, Reason: ReasonExceedsPending,
			Message: fmt.Sprintf("pending %s would exceed max pending per wallet %s", prospectivePending, l.limits.MaxPendingPerWallet),
		}
	}

	tier := w.tier(now)
	effectiveCap := l.limits.effectiveDailyCap(tier)
	today := utcDateKey(now)
	prospectiveDaily := new(big.Int).Add(w.dailyUsed(today), amount)
	if prospectiveDaily.Cmp(effectiveCap) > 0 {
		return CheckResult{
			Allowed: false, Score: 60, Reason: ReasonExceedsDaily,
			Message: fmt.Sprintf("daily usage %s would exceed effective cap %s for tier %s", prospectiveDaily, effectiveCap, tier),
		}
	}

	return CheckResult{Allowed: true}
}

// CheckPayment is a pure read: it runs the three risk gates for a candidate
// amount and populates firstSeen as a side effect of observing the wallet,
// but performs no other mutation.
func (l *Ledger) CheckPayment(addr common.Address, amount *big.Int) CheckResult {
	w := l.wallet(addr)
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensureFirstSeen(now)
	return l.checkLocked(w, amount, now)
}

// Tier returns the wallet's current risk tier.
func (l *Ledger) Tier(addr common.Address) Tier {
	w := l.wallet(addr)
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensureFirstSeen(now)
	return w.tier(now)
}

// SetTierOverride manually pins a wallet's tier, bypassing age-based derivation.
func (l *Ledger) SetTierOverride(addr common.Address, tier Tier) {
	w := l.wallet(addr)
	w.mu.Lock()
	defer w.mu.Unlock()
	t := tier
	w.tierOverride = &t
}

// ReserveCredit re-validates the risk gates under the wallet's lock and, if
// they still allow the payment, records the reservation and creates a new
// settlement record in the pending state. Re-validating under the same
// per-wallet lock that CheckPayment takes closes the gap between a caller's
// earlier read and this commit (P3).
func (l *Ledger) ReserveCredit(id common.Hash, payment *sigdigest.PaymentAuthorization, requirements *sigdigest.PaymentRequirements) (CheckResult, error) {
	l.mu.RLock()
	_, exists := l.settlements[id]
	l.mu.RUnlock()
	if exists {
		return CheckResult{}, ErrSettlementExists
	}

	w := l.wallet(payment.From)
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensureFirstSeen(now)

	result := l.checkLocked(w, payment.Value, now)
	if !result.Allowed {
		return result, ErrRiskRejected
	}

	w.pending.Add(w.pending, payment.Value)

	entry := &settlementEntry{record: SettlementRecord{
		PaymentID:    id,
		Payment:      payment,
		Requirements: requirements,
		Status:       StatusPending,
		Attempts:     0,
		MaxAttempts:  l.maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}}

	l.mu.Lock()
	if _, already := l.settlements[id]; already {
		l.mu.Unlock()
		// Lost a race to insert between the RLock check above and here;
		// undo the reservation we just made.
		w.pending.Sub(w.pending, payment.Value)
		return CheckResult{}, ErrSettlementExists
	}
	l.settlements[id] = entry
	l.nonTerminal[id] = struct{}{}
	l.mu.Unlock()

	return result, nil
}

// ReleaseCredit subtracts the settlement's value from the wallet's pending
// balance, credits the daily bucket on success, transitions the settlement
// to its terminal state, and removes it from the non-terminal set.
func (l *Ledger) ReleaseCredit(id common.Hash, success bool) error {
	l.mu.RLock()
	entry, ok := l.settlements[id]
	l.mu.RUnlock()
	if !ok {
		return ErrSettlementNotFound
	}

	entry.mu.Lock()
	from := entry.record.Payment.From
	value := entry.record.Payment.Value
	entry.mu.Unlock()

	w := l.wallet(from)
	now := time.Now()

	w.mu.Lock()
	w.pending.Sub(w.pending, value)
	if w.pending.Sign() < 0 {
		w.pending.SetInt64(0)
	}
	if success {
		today := utcDateKey(now)
		if w.dailyDate != today {
			w.dailyDate = today
			w.dailyAmount = big.NewInt(0)
		}
		w.dailyAmount.Add(w.dailyAmount, value)
	}
	w.mu.Unlock()

	entry.mu.Lock()
	if success {
		entry.record.Status = StatusConfirmed
	} else {
		entry.record.Status = StatusFailed
	}
	entry.record.UpdatedAt = now
	entry.mu.Unlock()

	l.mu.Lock()
	delete(l.nonTerminal, id)
	l.mu.Unlock()

	return nil
}

// UpdatePendingSettlement applies a shallow field patch to a settlement
// record, serialized per-id. Must only be called by the settlement engine
// or the FCR updater.
func (l *Ledger) UpdatePendingSettlement(id common.Hash, patch SettlementPatch) error {
	l.mu.RLock()
	entry, ok := l.settlements[id]
	l.mu.RUnlock()
	if !ok {
		return ErrSettlementNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	r := &entry.record
	if patch.Status != nil {
		r.Status = *patch.Status
	}
	if patch.Handle != nil {
		r.Handle = *patch.Handle
		r.HasHandle = true
	}
	if patch.Attempts != nil {
		r.Attempts = *patch.Attempts
	}
	if patch.LastError != nil {
		r.LastError = *patch.LastError
	}
	if patch.TipsetHeight != nil {
		r.TipsetHeight = *patch.TipsetHeight
		r.HasTipsetHeight = true
	}
	if patch.ConfirmationLevel != nil {
		// P5: confirmation level is monotone non-decreasing.
		if *patch.ConfirmationLevel > r.ConfirmationLevel {
			r.ConfirmationLevel = *patch.ConfirmationLevel
		}
	}
	if patch.F3Instance != nil {
		r.F3Instance = *patch.F3Instance
	}
	if patch.ConfirmedAt != nil {
		r.ConfirmedAt = *patch.ConfirmedAt
		r.HasConfirmedAt = true
	}
	r.UpdatedAt = time.Now()

	return nil
}

// Get returns a copy of a settlement record.
func (l *Ledger) Get(id common.Hash) (SettlementRecord, bool) {
	l.mu.RLock()
	entry, ok := l.settlements[id]
	l.mu.RUnlock()
	if !ok {
		return SettlementRecord{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record, true
}

// NonTerminalIDs returns a snapshot of payment ids whose settlement has not
// yet reached a terminal state.
func (l *Ledger) NonTerminalIDs() []common.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]common.Hash, 0, len(l.nonTerminal))
	for id := range l.nonTerminal {
		ids = append(ids, id)
	}
	return ids
}

// PendingOf returns a wallet's current pending (non-terminal) exposure.
func (l *Ledger) PendingOf(addr common.Address) *big.Int {
	w := l.wallet(addr)
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.pending)
}

// Limits returns the ledger's configured risk limits.
func (l *Ledger) Limits() Limits {
	return l.limits
}

// Stats is a point-in-time aggregate over non-terminal settlements, used by
// the health endpoint.
type Stats struct {
	PendingSettlements int
	TotalPendingAmount *big.Int
	DistinctWallets    int
}

// Stats aggregates the current non-terminal settlements.
func (l *Ledger) Stats() Stats {
	ids := l.NonTerminalIDs()
	total := big.NewInt(0)
	wallets := make(map[common.Address]struct{})
	for _, id := range ids {
		rec, ok := l.Get(id)
		if !ok {
			continue
		}
		total.Add(total, rec.Payment.Value)
		wallets[rec.Payment.From] = struct{}{}
	}
	return Stats{
		PendingSettlements: len(ids),
		TotalPendingAmount: total,
		DistinctWallets:    len(wallets),
	}
}
