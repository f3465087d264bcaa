package sigdigest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain is an EIP-712 domain separator's inputs.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// go-ethereum does not ship a generic EIP-712 encoder, so the domain and
// struct type hashes are composed directly with crypto.Keccak256, the same
// primitive used elsewhere in this codebase for commitment hashing.
var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	transferAuthTypeHash = crypto.Keccak256Hash([]byte(
		"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))

	voucherTypeHash = crypto.Keccak256Hash([]byte(
		"Voucher(bytes32 id,address buyer,address seller,uint256 valueAggregate,address asset,uint256 timestamp,uint256 nonce,address escrow,uint256 chainId)"))
)

func encodeUint256(v *big.Int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

func encodeAddress(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func domainSeparator(d Domain) common.Hash {
	return crypto.Keccak256Hash(
		eip712DomainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		encodeUint256(big.NewInt(d.ChainID)),
		encodeAddress(d.VerifyingContract),
	)
}

// eip712Digest composes the final signing hash: keccak256(0x1901 || domainSeparator || structHash).
func eip712Digest(domainSep, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSep.Bytes(), structHash.Bytes())
}

func paymentID(signature []byte) common.Hash {
	return crypto.Keccak256Hash(signature)
}
