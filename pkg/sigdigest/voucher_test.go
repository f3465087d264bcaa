package sigdigest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestVoucherSignerRoundTrip(t *testing.T) {
	key, buyer := newTestKey(t)

	v := &Voucher{
		ID:             common.HexToHash("0x01"),
		Buyer:          buyer,
		Seller:         common.HexToAddress("0xcccc000000000000000000000000000000cccc"),
		ValueAggregate: big.NewInt(100),
		Asset:          common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"),
		Timestamp:      123456,
		Nonce:          1,
		Escrow:         common.HexToAddress("0xdddd000000000000000000000000000000dddd"),
		ChainID:        314159,
	}

	digest := VoucherDigest(v)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatalf("crypto.Sign: %v", err)
	}
	v.Signature = sig

	valid, err := IsValidVoucher(v)
	if err != nil {
		t.Fatalf("IsValidVoucher: %v", err)
	}
	if !valid {
		t.Error("IsValidVoucher = false, want true")
	}
}

func TestVoucherDigestChangesWithAggregate(t *testing.T) {
	base := &Voucher{
		ID:             common.HexToHash("0x01"),
		Buyer:          common.HexToAddress("0x1111000000000000000000000000000000aaaa"),
		Seller:         common.HexToAddress("0xcccc000000000000000000000000000000cccc"),
		ValueAggregate: big.NewInt(100),
		Asset:          common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"),
		Timestamp:      1,
		Nonce:          1,
		Escrow:         common.HexToAddress("0xdddd000000000000000000000000000000dddd"),
		ChainID:        314159,
	}
	bumped := *base
	bumped.ValueAggregate = big.NewInt(250)
	bumped.Nonce = 2

	if VoucherDigest(base) == VoucherDigest(&bumped) {
		t.Error("VoucherDigest unchanged after bumping nonce/valueAggregate")
	}
}
