package sigdigest

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Digester computes EIP-712 digests and recovers signers for payment
// authorizations against a fixed token name/chain id. The verifying
// contract is taken from each authorization's token address, since a
// facilitator may accept more than one stablecoin.
type Digester struct {
	TokenName    string
	TokenVersion string
	ChainID      int64
}

// NewDigester builds a Digester for the given stablecoin name and chain,
// defaulting to EIP-712 domain version "1" as EIP-3009 tokens commonly do.
func NewDigester(tokenName string, chainID int64) *Digester {
	return &Digester{TokenName: tokenName, TokenVersion: "1", ChainID: chainID}
}

func (d *Digester) paymentDomain(verifyingContract common.Address) Domain {
	return Domain{
		Name:              d.TokenName,
		Version:           d.TokenVersion,
		ChainID:           d.ChainID,
		VerifyingContract: verifyingContract,
	}
}

func transferStructHash(p *PaymentAuthorization) common.Hash {
	return crypto.Keccak256Hash(
		transferAuthTypeHash.Bytes(),
		encodeAddress(p.From),
		encodeAddress(p.To),
		encodeUint256(p.Value),
		encodeUint256(big.NewInt(p.ValidAfter)),
		encodeUint256(big.NewInt(p.ValidBefore)),
		p.Nonce.Bytes(),
	)
}

// PaymentDigest returns the EIP-712 digest a payer must have signed to
// authorize this transfer.
func (d *Digester) PaymentDigest(p *PaymentAuthorization) common.Hash {
	domain := d.paymentDomain(p.Token)
	return eip712Digest(domainSeparator(domain), transferStructHash(p))
}

// RecoverSigner recovers the address that produced payment.Signature over
// the payment's EIP-712 digest. Returns ErrInvalidSignature on malformed
// signatures or an unrecoverable digest.
func (d *Digester) RecoverSigner(p *PaymentAuthorization) (common.Address, error) {
	if len(p.Signature) != 65 {
		return common.Address{}, fmt.Errorf("%w: signature length %d, want 65", ErrInvalidSignature, len(p.Signature))
	}

	sig := make([]byte, 65)
	copy(sig, p.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] != 0 && sig[64] != 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id %d", ErrInvalidSignature, sig[64])
	}

	digest := d.PaymentDigest(p)
	pubKey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// IsValidFor reports whether the authorization's signature recovers to its
// declared From address.
func (d *Digester) IsValidFor(p *PaymentAuthorization) (bool, error) {
	signer, err := d.RecoverSigner(p)
	if err != nil {
		return false, err
	}
	return signer == p.From, nil
}

// WithinWindow reports whether now falls within [validAfter, validBefore).
func WithinWindow(p *PaymentAuthorization, now time.Time) bool {
	ts := now.Unix()
	return p.ValidAfter <= ts && ts < p.ValidBefore
}

// ExpiresWithin reports whether the authorization's remaining validity
// window is too short to settle: a remaining window of exactly
// budgetSeconds is itself rejected, not just anything shorter.
func ExpiresWithin(p *PaymentAuthorization, now time.Time, budgetSeconds int64) bool {
	return p.ValidBefore-now.Unix() <= budgetSeconds
}

// PaymentID returns keccak256(payment.signature), the deterministic
// settlement/bond primary key for this authorization.
func PaymentID(p *PaymentAuthorization) common.Hash {
	return paymentID(p.Signature)
}
