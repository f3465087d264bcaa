package sigdigest

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func signPayment(t *testing.T, d *Digester, p *PaymentAuthorization, key *ecdsa.PrivateKey) {
	t.Helper()
	digest := d.PaymentDigest(p)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatalf("crypto.Sign: %v", err)
	}
	p.Signature = sig
}

func newTestKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("crypto.GenerateKey: %v", err)
	}
	return priv, crypto.PubkeyToAddress(priv.PublicKey)
}

func TestRecoverSignerRoundTrip(t *testing.T) {
	d := NewDigester("USDFC", 314159)
	key, addr := newTestKey(t)

	p := &PaymentAuthorization{
		Token:       common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"),
		From:        addr,
		To:          common.HexToAddress("0xbbbb000000000000000000000000000000bbbb"),
		Value:       big.NewInt(1_000000000000000000),
		ValidAfter:  1000,
		ValidBefore: 2000,
		Nonce:       common.HexToHash("0x01"),
	}
	signPayment(t, d, p, key)

	signer, err := d.RecoverSigner(p)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if signer != addr {
		t.Errorf("recovered signer = %s, want %s", signer.Hex(), addr.Hex())
	}

	valid, err := d.IsValidFor(p)
	if err != nil {
		t.Fatalf("IsValidFor: %v", err)
	}
	if !valid {
		t.Error("IsValidFor = false, want true")
	}
}

func TestRecoverSignerWrongKey(t *testing.T) {
	d := NewDigester("USDFC", 314159)
	key, _ := newTestKey(t)
	_, otherAddr := newTestKey(t)

	p := &PaymentAuthorization{
		Token:       common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"),
		From:        otherAddr,
		To:          common.HexToAddress("0xbbbb000000000000000000000000000000bbbb"),
		Value:       big.NewInt(1),
		ValidAfter:  0,
		ValidBefore: 9999999999,
		Nonce:       common.HexToHash("0x02"),
	}
	signPayment(t, d, p, key)

	valid, err := d.IsValidFor(p)
	if err != nil {
		t.Fatalf("IsValidFor: %v", err)
	}
	if valid {
		t.Error("IsValidFor = true, want false for mismatched signer")
	}
}

func TestRecoverSignerBadLength(t *testing.T) {
	d := NewDigester("USDFC", 314159)
	p := &PaymentAuthorization{Signature: []byte{1, 2, 3}}
	if _, err := d.RecoverSigner(p); err == nil {
		t.Error("RecoverSigner with bad signature length = nil error, want error")
	}
}

func TestWithinWindow(t *testing.T) {
	p := &PaymentAuthorization{ValidAfter: 1000, ValidBefore: 2000}
	if WithinWindow(p, time.Unix(999, 0)) {
		t.Error("WithinWindow true before validAfter")
	}
	if !WithinWindow(p, time.Unix(1000, 0)) {
		t.Error("WithinWindow false at validAfter boundary")
	}
	if WithinWindow(p, time.Unix(2000, 0)) {
		t.Error("WithinWindow true at validBefore boundary, want exclusive")
	}
}

func TestExpiresWithin(t *testing.T) {
	p := &PaymentAuthorization{ValidBefore: 1000}
	if !ExpiresWithin(p, time.Unix(890, 0), 120) {
		t.Error("ExpiresWithin = false, want true for validBefore-now == 110 < 120")
	}
	if ExpiresWithin(p, time.Unix(800, 0), 120) {
		t.Error("ExpiresWithin = true, want false for validBefore-now == 200 > 120")
	}
	if !ExpiresWithin(p, time.Unix(880, 0), 120) {
		t.Error("ExpiresWithin = false, want true for validBefore-now == 120 (the boundary itself is rejected)")
	}
}

func TestPaymentIDDeterminism(t *testing.T) {
	p1 := &PaymentAuthorization{Signature: []byte{1, 2, 3}}
	p2 := &PaymentAuthorization{Signature: []byte{1, 2, 3}}
	p3 := &PaymentAuthorization{Signature: []byte{1, 2, 4}}

	if PaymentID(p1) != PaymentID(p2) {
		t.Error("PaymentID differs for identical signatures")
	}
	if PaymentID(p1) == PaymentID(p3) {
		t.Error("PaymentID collided for distinct signatures")
	}
}
