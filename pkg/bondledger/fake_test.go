package bondledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func testIDs() (common.Hash, common.Address) {
	return common.HexToHash("0xaaaa"), common.HexToAddress("0xbbbb")
}

func TestCommitPaymentRejectsDuplicateID(t *testing.T) {
	l := NewFakeLedger(big.NewInt(1000))
	id, provider := testIDs()

	if err := l.CommitPayment(context.Background(), id, provider, big.NewInt(100)); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := l.CommitPayment(context.Background(), id, provider, big.NewInt(100)); err != ErrAlreadyCommitted {
		t.Errorf("second commit err = %v, want ErrAlreadyCommitted", err)
	}
}

func TestCommitPaymentRejectsOverCapacity(t *testing.T) {
	l := NewFakeLedger(big.NewInt(100))
	id, provider := testIDs()

	if err := l.CommitPayment(context.Background(), id, provider, big.NewInt(150)); err != ErrInsufficientBond {
		t.Errorf("err = %v, want ErrInsufficientBond", err)
	}
}

func TestReleasePaymentIdempotentFailOnSecondCall(t *testing.T) {
	l := NewFakeLedger(big.NewInt(1000))
	id, provider := testIDs()
	_ = l.CommitPayment(context.Background(), id, provider, big.NewInt(100))

	if err := l.ReleasePayment(context.Background(), id); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := l.ReleasePayment(context.Background(), id); err != ErrAlreadyResolved {
		t.Errorf("second release err = %v, want ErrAlreadyResolved", err)
	}

	exposure, _ := l.GetExposure(context.Background())
	if exposure.Sign() != 0 {
		t.Errorf("exposure = %s, want 0 after release", exposure)
	}
}

func TestClaimPaymentRequiresDeadlinePassed(t *testing.T) {
	l := NewFakeLedger(big.NewInt(1000))
	id, provider := testIDs()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return base }
	_ = l.CommitPayment(context.Background(), id, provider, big.NewInt(500))

	if err := l.ClaimPayment(context.Background(), id); err != ErrDeadlineNotPassed {
		t.Errorf("err = %v, want ErrDeadlineNotPassed", err)
	}

	l.Now = func() time.Time { return base.Add(10*time.Minute + time.Second) }
	if err := l.ClaimPayment(context.Background(), id); err != nil {
		t.Fatalf("claim after deadline: %v", err)
	}

	balance := l.BondBalance
	if balance.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("bond balance = %s, want 500 after claim", balance)
	}
}

func TestClaimPaymentAtMostOneResolution(t *testing.T) {
	l := NewFakeLedger(big.NewInt(1000))
	id, provider := testIDs()
	l.Now = func() time.Time { return time.Unix(0, 0) }
	_ = l.CommitPayment(context.Background(), id, provider, big.NewInt(200))
	l.Now = func() time.Time { return time.Unix(0, 0).Add(time.Hour) }

	if err := l.ClaimPayment(context.Background(), id); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := l.ReleasePayment(context.Background(), id); err != ErrAlreadyResolved {
		t.Errorf("release after claim err = %v, want ErrAlreadyResolved", err)
	}
	if err := l.ClaimPayment(context.Background(), id); err != ErrAlreadyResolved {
		t.Errorf("second claim err = %v, want ErrAlreadyResolved", err)
	}
}

func TestHasCapacity(t *testing.T) {
	l := NewFakeLedger(big.NewInt(1000))
	id, provider := testIDs()
	_ = l.CommitPayment(context.Background(), id, provider, big.NewInt(400))

	ok, err := l.HasCapacity(context.Background(), big.NewInt(600))
	if err != nil || !ok {
		t.Errorf("HasCapacity(600) = %v, %v; want true, nil", ok, err)
	}
	ok, err = l.HasCapacity(context.Background(), big.NewInt(601))
	if err != nil || ok {
		t.Errorf("HasCapacity(601) = %v, %v; want false, nil", ok, err)
	}
}
