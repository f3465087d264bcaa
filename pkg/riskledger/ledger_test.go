package riskledger

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/fcr"
	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

const tokenDecimals = 18

func scale(usd int64) *big.Int {
	s := new(big.Int).Exp(big.NewInt(10), big.NewInt(tokenDecimals), nil)
	return new(big.Int).Mul(big.NewInt(usd), s)
}

func testLedger() *Ledger {
	limits := NewLimits(scale(100), scale(1000), scale(500), tokenDecimals)
	return NewLedger(limits, 5)
}

func testPayment(from common.Address, amountUSD int64) *sigdigest.PaymentAuthorization {
	return &sigdigest.PaymentAuthorization{
		From:        from,
		To:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Value:       scale(amountUSD),
		ValidAfter:  time.Now().Add(-time.Minute).Unix(),
		ValidBefore: time.Now().Add(time.Hour).Unix(),
		Signature:   []byte("deterministic-test-signature-000000000000000000000000000000000"),
	}
}

func TestCheckPaymentExceedsPerTransaction(t *testing.T) {
	l := testLedger()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	result := l.CheckPayment(addr, scale(101))
	if result.Allowed {
		t.Fatal("expected rejection")
	}
	if result.Reason != ReasonExceedsPerTx || result.Score != 80 {
		t.Errorf("got reason=%s score=%d", result.Reason, result.Score)
	}
}

func TestCheckPaymentAtLimitAllowed(t *testing.T) {
	l := testLedger()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	result := l.CheckPayment(addr, scale(100))
	if !result.Allowed {
		t.Errorf("value == maxPerTransaction should be allowed, got reason=%s", result.Reason)
	}
}

func TestCheckPaymentExceedsPending(t *testing.T) {
	// Tight pending ceiling so a per-tx-legal amount can still overflow it.
	limits := NewLimits(scale(100), scale(120), scale(500), tokenDecimals)
	l := NewLedger(limits, 5)
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	l.SetTierOverride(addr, TierVerified)

	p1 := testPayment(addr, 90)
	id1 := p1.PaymentID()
	if _, err := l.ReserveCredit(id1, p1, nil); err != nil {
		t.Fatalf("reserve 1: %v", err)
	}

	result := l.CheckPayment(addr, scale(60))
	if result.Allowed {
		t.Fatal("expected pending-limit rejection")
	}
	if result.Reason != ReasonExceedsPending {
		t.Errorf("reason = %s, want exceeds_pending", result.Reason)
	}
}

func TestCheckPaymentExceedsDaily(t *testing.T) {
	l := testLedger()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	// Unknown tier caps daily at $5.
	result := l.CheckPayment(addr, scale(6))
	if result.Allowed {
		t.Fatal("expected daily-limit rejection for unknown-tier wallet")
	}
	if result.Reason != ReasonExceedsDaily {
		t.Errorf("reason = %s, want exceeds_daily", result.Reason)
	}
}

func TestReserveAndReleaseCreditConservation(t *testing.T) {
	l := testLedger()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	l.SetTierOverride(addr, TierVerified)

	p := testPayment(addr, 50)
	id := p.PaymentID()

	if _, err := l.ReserveCredit(id, p, nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := l.PendingOf(addr); got.Cmp(scale(50)) != 0 {
		t.Errorf("pending = %s, want %s", got, scale(50))
	}

	ids := l.NonTerminalIDs()
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("non-terminal set = %v, want [%s]", ids, id)
	}

	if err := l.ReleaseCredit(id, true); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := l.PendingOf(addr); got.Sign() != 0 {
		t.Errorf("pending after release = %s, want 0", got)
	}
	if len(l.NonTerminalIDs()) != 0 {
		t.Error("expected empty non-terminal set after release")
	}

	rec, ok := l.Get(id)
	if !ok || rec.Status != StatusConfirmed {
		t.Errorf("record status = %v, want confirmed", rec.Status)
	}
}

func TestReserveCreditDuplicateRejected(t *testing.T) {
	l := testLedger()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	l.SetTierOverride(addr, TierVerified)
	p := testPayment(addr, 10)
	id := p.PaymentID()

	if _, err := l.ReserveCredit(id, p, nil); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := l.ReserveCredit(id, p, nil); err != ErrSettlementExists {
		t.Errorf("second reserve err = %v, want ErrSettlementExists", err)
	}
}

func TestReserveCreditRejectsWhenOverLimit(t *testing.T) {
	l := testLedger()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	p := testPayment(addr, 101)
	id := p.PaymentID()

	result, err := l.ReserveCredit(id, p, nil)
	if err != ErrRiskRejected {
		t.Fatalf("err = %v, want ErrRiskRejected", err)
	}
	if result.Allowed {
		t.Error("result.Allowed should be false")
	}
	if got := l.PendingOf(addr); got.Sign() != 0 {
		t.Errorf("pending should remain 0 on rejected reservation, got %s", got)
	}
}

func TestUpdatePendingSettlementConfirmationLevelMonotone(t *testing.T) {
	l := testLedger()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	l.SetTierOverride(addr, TierVerified)
	p := testPayment(addr, 10)
	id := p.PaymentID()
	if _, err := l.ReserveCredit(id, p, nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	l2 := fcr.L2
	if err := l.UpdatePendingSettlement(id, SettlementPatch{ConfirmationLevel: &l2}); err != nil {
		t.Fatalf("patch to L2: %v", err)
	}

	l1 := fcr.L1
	if err := l.UpdatePendingSettlement(id, SettlementPatch{ConfirmationLevel: &l1}); err != nil {
		t.Fatalf("patch to L1: %v", err)
	}

	rec, _ := l.Get(id)
	if rec.ConfirmationLevel != fcr.L2 {
		t.Errorf("confirmation level regressed to %v, want it to stay at L2", rec.ConfirmationLevel)
	}
}

func TestTierDerivedFromAge(t *testing.T) {
	now := time.Now()
	if got := tierFromAge(now, now); got != TierUnknown {
		t.Errorf("fresh wallet tier = %s, want UNKNOWN", got)
	}
	if got := tierFromAge(now.Add(-8*24*time.Hour), now); got != TierHistory7d {
		t.Errorf("8-day wallet tier = %s, want HISTORY_7D", got)
	}
	if got := tierFromAge(now.Add(-31*24*time.Hour), now); got != TierHistory30d {
		t.Errorf("31-day wallet tier = %s, want HISTORY_30D", got)
	}
}

func TestStatsAggregatesNonTerminalSettlements(t *testing.T) {
	l := testLedger()
	addrA := common.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB := common.HexToAddress("0x2222222222222222222222222222222222222299")

	pA := testPayment(addrA, 10)
	pA.Signature = []byte("sig-a-00000000000000000000000000000000000000")
	pB := testPayment(addrB, 20)
	pB.Signature = []byte("sig-b-00000000000000000000000000000000000000")

	if _, err := l.ReserveCredit(pA.PaymentID(), pA, nil); err != nil {
		t.Fatalf("reserve A: %v", err)
	}
	if _, err := l.ReserveCredit(pB.PaymentID(), pB, nil); err != nil {
		t.Fatalf("reserve B: %v", err)
	}

	stats := l.Stats()
	if stats.PendingSettlements != 2 {
		t.Errorf("PendingSettlements = %d, want 2", stats.PendingSettlements)
	}
	if stats.DistinctWallets != 2 {
		t.Errorf("DistinctWallets = %d, want 2", stats.DistinctWallets)
	}
	if stats.TotalPendingAmount.Cmp(scale(30)) != 0 {
		t.Errorf("TotalPendingAmount = %s, want %s", stats.TotalPendingAmount, scale(30))
	}
}
