package sigdigest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func voucherDomain(v *Voucher) Domain {
	return Domain{
		Name:              "DeferredPaymentEscrow",
		Version:           "1",
		ChainID:           v.ChainID,
		VerifyingContract: v.Escrow,
	}
}

func voucherStructHash(v *Voucher) common.Hash {
	return crypto.Keccak256Hash(
		voucherTypeHash.Bytes(),
		v.ID.Bytes(),
		encodeAddress(v.Buyer),
		encodeAddress(v.Seller),
		encodeUint256(v.ValueAggregate),
		encodeAddress(v.Asset),
		encodeUint256(big.NewInt(v.Timestamp)),
		encodeUint256(new(big.Int).SetUint64(v.Nonce)),
		encodeAddress(v.Escrow),
		encodeUint256(big.NewInt(v.ChainID)),
	)
}

// VoucherDigest returns the EIP-712 digest a buyer must have signed to
// authorize this voucher, under the DeferredPaymentEscrow domain.
func VoucherDigest(v *Voucher) common.Hash {
	return eip712Digest(domainSeparator(voucherDomain(v)), voucherStructHash(v))
}

// RecoverVoucherSigner recovers the address that produced voucher.Signature
// over the voucher's EIP-712 digest.
func RecoverVoucherSigner(v *Voucher) (common.Address, error) {
	if len(v.Signature) != 65 {
		return common.Address{}, fmt.Errorf("%w: signature length %d, want 65", ErrInvalidSignature, len(v.Signature))
	}

	sig := make([]byte, 65)
	copy(sig, v.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] != 0 && sig[64] != 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id %d", ErrInvalidSignature, sig[64])
	}

	digest := VoucherDigest(v)
	pubKey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// IsValidVoucher reports whether the voucher's signature recovers to its
// declared Buyer address.
func IsValidVoucher(v *Voucher) (bool, error) {
	signer, err := RecoverVoucherSigner(v)
	if err != nil {
		return false, err
	}
	return signer == v.Buyer, nil
}
