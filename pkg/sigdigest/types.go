package sigdigest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentAuthorization is an off-chain-signed intent by a payer to transfer
// a token amount to a recipient within a time window, shaped like an
// EIP-3009 transferWithAuthorization call.
type PaymentAuthorization struct {
	Token        common.Address `json:"token"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Value        *big.Int       `json:"value"`
	ValidAfter   int64          `json:"validAfter"`
	ValidBefore  int64          `json:"validBefore"`
	Nonce        common.Hash    `json:"nonce"`
	Signature    []byte         `json:"signature"`
}

// PaymentRequirements is the counter-party's demand that an authorization
// must satisfy before the facilitator will submit it on-chain.
type PaymentRequirements struct {
	PayTo             common.Address `json:"payTo"`
	MaxAmountRequired *big.Int       `json:"maxAmountRequired"`
	TokenAddress      common.Address `json:"tokenAddress"`
	ChainID           int64          `json:"chainId"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description"`
}

// Voucher is an off-chain promise by a buyer to a seller, collected against
// an escrow contract as a monotonically increasing aggregate.
type Voucher struct {
	ID             common.Hash    `json:"id"`
	Buyer          common.Address `json:"buyer"`
	Seller         common.Address `json:"seller"`
	ValueAggregate *big.Int       `json:"valueAggregate"`
	Asset          common.Address `json:"asset"`
	Timestamp      int64          `json:"timestamp"`
	Nonce          uint64         `json:"nonce"`
	Escrow         common.Address `json:"escrow"`
	ChainID        int64          `json:"chainId"`
	Signature      []byte         `json:"signature"`
}

// PaymentID returns the deterministic settlement/bond key for an
// authorization: keccak256 of its signature. Two authorizations collide
// here only if they carry the same signature.
func (p *PaymentAuthorization) PaymentID() common.Hash {
	return paymentID(p.Signature)
}
