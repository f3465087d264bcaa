package persistence

import (
	"testing"
)

type testSettlement struct {
	Status string `json:"status"`
}

func TestSaveLoadSettlementAndPendingIndex(t *testing.T) {
	store := NewStore(NewMemKV(), "fac:")

	if err := store.SaveSettlement("0xabc", &testSettlement{Status: "submitted"}, true); err != nil {
		t.Fatalf("SaveSettlement: %v", err)
	}

	var got testSettlement
	ok, err := store.LoadSettlement("0xabc", &got)
	if err != nil || !ok {
		t.Fatalf("LoadSettlement: ok=%v err=%v", ok, err)
	}
	if got.Status != "submitted" {
		t.Errorf("status = %s, want submitted", got.Status)
	}

	pending, err := store.PendingSettlementIDs()
	if err != nil {
		t.Fatalf("PendingSettlementIDs: %v", err)
	}
	if len(pending) != 1 || pending[0] != "0xabc" {
		t.Errorf("pending = %v, want [0xabc]", pending)
	}

	if err := store.SaveSettlement("0xabc", &testSettlement{Status: "confirmed"}, false); err != nil {
		t.Fatalf("SaveSettlement terminal: %v", err)
	}
	pending, err = store.PendingSettlementIDs()
	if err != nil {
		t.Fatalf("PendingSettlementIDs after terminal: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %v, want empty after terminal transition", pending)
	}
}

func TestWalletStateRoundTrip(t *testing.T) {
	store := NewStore(NewMemKV(), "fac:")
	addr := "0xDEAD000000000000000000000000000000beef"

	if err := store.SaveWalletPending(addr, "1000000000000000000"); err != nil {
		t.Fatalf("SaveWalletPending: %v", err)
	}
	got, err := store.LoadWalletPending(addr)
	if err != nil || got != "1000000000000000000" {
		t.Errorf("LoadWalletPending = %q, err=%v", got, err)
	}

	if err := store.SaveFirstSeen(addr, 1700000000); err != nil {
		t.Fatalf("SaveFirstSeen: %v", err)
	}
	ts, ok, err := store.LoadFirstSeen(addr)
	if err != nil || !ok || ts != 1700000000 {
		t.Errorf("LoadFirstSeen = (%d, %v), err=%v", ts, ok, err)
	}
}

func TestVoucherIndexByBuyer(t *testing.T) {
	store := NewStore(NewMemKV(), "fac:")
	buyer := "0xBUYER0000000000000000000000000000000001"

	if err := store.SaveVoucher("0x01", buyer, "0xseller", &testSettlement{Status: "stored"}); err != nil {
		t.Fatalf("SaveVoucher: %v", err)
	}
	if err := store.SaveVoucher("0x02", buyer, "0xseller", &testSettlement{Status: "stored"}); err != nil {
		t.Fatalf("SaveVoucher: %v", err)
	}

	keys, err := store.VoucherKeysForBuyer(buyer)
	if err != nil {
		t.Fatalf("VoucherKeysForBuyer: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
}
