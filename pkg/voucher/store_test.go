package voucher

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

const testChainID = 314159

var (
	testAsset  = common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")
	testEscrow = common.HexToAddress("0xdddd000000000000000000000000000000dddd")
	testSeller = common.HexToAddress("0xcccc000000000000000000000000000000cccc")
)

func newTestKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func signedVoucher(t *testing.T, key *ecdsa.PrivateKey, buyer common.Address, id common.Hash, nonce uint64, valueAggregate int64) *sigdigest.Voucher {
	t.Helper()
	v := &sigdigest.Voucher{
		ID:             id,
		Buyer:          buyer,
		Seller:         testSeller,
		ValueAggregate: big.NewInt(valueAggregate),
		Asset:          testAsset,
		Timestamp:      1,
		Nonce:          nonce,
		Escrow:         testEscrow,
		ChainID:        testChainID,
	}
	digest := sigdigest.VoucherDigest(v)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatalf("crypto.Sign: %v", err)
	}
	v.Signature = sig
	return v
}

func TestStoreVoucherRejectsStaleNonce(t *testing.T) {
	key, buyer := newTestKey(t)
	escrow := NewFakeEscrow(testChainID, testEscrow)
	store := NewStore(escrow)

	id := common.HexToHash("0x01")
	if err := store.StoreVoucher(signedVoucher(t, key, buyer, id, 1, 100)); err != nil {
		t.Fatalf("StoreVoucher(nonce=1): %v", err)
	}
	if err := store.StoreVoucher(signedVoucher(t, key, buyer, id, 1, 200)); err != ErrStaleVoucher {
		t.Errorf("StoreVoucher(nonce==last) = %v, want ErrStaleVoucher", err)
	}
	if err := store.StoreVoucher(signedVoucher(t, key, buyer, id, 2, 250)); err != nil {
		t.Errorf("StoreVoucher(nonce=2): %v", err)
	}

	rec, ok := store.Get(id, buyer, testSeller)
	if !ok || rec.Voucher.Nonce != 2 {
		t.Fatalf("Get = %+v, want latest nonce 2", rec)
	}
}

func TestStoreVoucherRejectsBadSignature(t *testing.T) {
	key, buyer := newTestKey(t)
	_, otherBuyer := newTestKey(t)
	escrow := NewFakeEscrow(testChainID, testEscrow)
	store := NewStore(escrow)

	v := signedVoucher(t, key, buyer, common.HexToHash("0x01"), 1, 100)
	v.Buyer = otherBuyer // signature no longer recovers to the declared buyer

	if err := store.StoreVoucher(v); err == nil {
		t.Error("expected signature rejection")
	}
}

func TestSettleVoucherDelta(t *testing.T) {
	key, buyer := newTestKey(t)
	escrow := NewFakeEscrow(testChainID, testEscrow)
	store := NewStore(escrow)
	id := common.HexToHash("0x01")

	if err := store.StoreVoucher(signedVoucher(t, key, buyer, id, 1, 100)); err != nil {
		t.Fatalf("store first voucher: %v", err)
	}
	if _, err := store.SettleVoucher(context.Background(), id, buyer, testSeller); err != nil {
		t.Fatalf("settle first voucher: %v", err)
	}
	if got := escrow.Transfers[testSeller]; got == nil || got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("seller transfer = %v, want 100", got)
	}

	if err := store.StoreVoucher(signedVoucher(t, key, buyer, id, 2, 250)); err != nil {
		t.Fatalf("store second voucher: %v", err)
	}
	if _, err := store.SettleVoucher(context.Background(), id, buyer, testSeller); err != nil {
		t.Fatalf("settle second voucher: %v", err)
	}
	if got := escrow.Transfers[testSeller]; got == nil || got.Cmp(big.NewInt(250)) != 0 {
		t.Errorf("seller cumulative transfer = %v, want 250 (100 + delta 150)", got)
	}
}

func TestSettleVoucherNotFound(t *testing.T) {
	_, buyer := newTestKey(t)
	escrow := NewFakeEscrow(testChainID, testEscrow)
	store := NewStore(escrow)

	if _, err := store.SettleVoucher(context.Background(), common.HexToHash("0x99"), buyer, testSeller); err != ErrVoucherNotFound {
		t.Errorf("err = %v, want ErrVoucherNotFound", err)
	}
}

func TestListByBuyer(t *testing.T) {
	key, buyer := newTestKey(t)
	escrow := NewFakeEscrow(testChainID, testEscrow)
	store := NewStore(escrow)

	idA := common.HexToHash("0x01")
	idB := common.HexToHash("0x02")
	if err := store.StoreVoucher(signedVoucher(t, key, buyer, idA, 1, 100)); err != nil {
		t.Fatal(err)
	}
	if err := store.StoreVoucher(signedVoucher(t, key, buyer, idB, 1, 50)); err != nil {
		t.Fatal(err)
	}

	records := store.ListByBuyer(buyer)
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
}
