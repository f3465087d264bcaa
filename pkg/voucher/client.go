// Package voucher implements the deferred-payment voucher store: durable
// off-chain vouchers with a monotonically increasing aggregate value,
// settled on-chain as deltas against an escrow contract.
package voucher

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

var minGasPrice = big.NewInt(5_000_000_000)

// Account mirrors the escrow contract's per-buyer balance state.
type Account struct {
	Balance       *big.Int
	ThawingAmount *big.Int
	ThawEndTime   int64
}

// Escrow is the on-chain capability this store consumes.
type Escrow interface {
	Collect(ctx context.Context, v *sigdigest.Voucher) (common.Hash, error)
	GetAccount(ctx context.Context, buyer common.Address) (Account, error)
	GetSettledNonce(ctx context.Context, id common.Hash) (uint64, error)
	GetCollectedValue(ctx context.Context, id common.Hash) (*big.Int, error)
}

// voucherTuple mirrors the ABI's Voucher tuple field-for-field, in order,
// for packing with accounts/abi.
type voucherTuple struct {
	ID             [32]byte
	Buyer          common.Address
	Seller         common.Address
	ValueAggregate *big.Int
	Asset          common.Address
	Timestamp      *big.Int
	Nonce          *big.Int
	Escrow         common.Address
	ChainID        *big.Int
}

func toTuple(v *sigdigest.Voucher) voucherTuple {
	return voucherTuple{
		ID:             [32]byte(v.ID),
		Buyer:          v.Buyer,
		Seller:         v.Seller,
		ValueAggregate: v.ValueAggregate,
		Asset:          v.Asset,
		Timestamp:      big.NewInt(v.Timestamp),
		Nonce:          new(big.Int).SetUint64(v.Nonce),
		Escrow:         v.Escrow,
		ChainID:        big.NewInt(v.ChainID),
	}
}

// EVMEscrow is the production Escrow implementation.
type EVMEscrow struct {
	client          *ethclient.Client
	chainID         *big.Int
	contractAddress common.Address
	abi             abi.ABI

	privateKey *ecdsa.PrivateKey
	fromAddr   common.Address
}

// Config configures an EVMEscrow.
type Config struct {
	Endpoint        string
	ChainID         int64
	ContractAddress common.Address
	SigningKeyHex   string
}

// NewEVMEscrow dials the endpoint and prepares the facilitator's signing key.
func NewEVMEscrow(cfg Config) (*EVMEscrow, error) {
	client, err := ethclient.Dial(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing chain endpoint %s: %w", cfg.Endpoint, err)
	}

	contractABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("parsing escrow ABI: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SigningKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing facilitator signing key: %w", err)
	}
	fromAddr := crypto.PubkeyToAddress(privateKey.PublicKey)

	return &EVMEscrow{
		client:          client,
		chainID:         big.NewInt(cfg.ChainID),
		contractAddress: cfg.ContractAddress,
		abi:             contractABI,
		privateKey:      privateKey,
		fromAddr:        fromAddr,
	}, nil
}

// Collect submits the voucher and its signature to the escrow contract.
func (e *EVMEscrow) Collect(ctx context.Context, v *sigdigest.Voucher) (common.Hash, error) {
	callData, err := e.abi.Pack("collect", toTuple(v), v.Signature)
	if err != nil {
		return common.Hash{}, fmt.Errorf("packing collect: %w", err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.fromAddr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching gas price: %w", err)
	}
	if gasPrice.Cmp(minGasPrice) < 0 {
		gasPrice = minGasPrice
	}

	tx := types.NewTransaction(nonce, e.contractAddress, big.NewInt(0), 250_000, gasPrice, callData)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(e.chainID), e.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrCollectFailed, err)
	}
	return signedTx.Hash(), nil
}

func (e *EVMEscrow) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	contractAddr := e.contractAddress
	result, err := e.client.CallContract(ctx, gethereum.CallMsg{To: &contractAddr, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	return e.abi.Unpack(method, result)
}

// GetAccount reads the buyer's escrow balance state.
func (e *EVMEscrow) GetAccount(ctx context.Context, buyer common.Address) (Account, error) {
	outputs, err := e.call(ctx, "getAccount", buyer)
	if err != nil {
		return Account{}, err
	}
	balance, _ := outputs[0].(*big.Int)
	thawing, _ := outputs[1].(*big.Int)
	thawEnd, _ := outputs[2].(*big.Int)
	return Account{Balance: balance, ThawingAmount: thawing, ThawEndTime: thawEnd.Int64()}, nil
}

// GetSettledNonce reads the contract's last-settled nonce for a voucher id.
func (e *EVMEscrow) GetSettledNonce(ctx context.Context, id common.Hash) (uint64, error) {
	outputs, err := e.call(ctx, "getSettledNonce", id)
	if err != nil {
		return 0, err
	}
	v, _ := outputs[0].(*big.Int)
	return v.Uint64(), nil
}

// GetCollectedValue reads the contract's total collected value for a
// voucher id.
func (e *EVMEscrow) GetCollectedValue(ctx context.Context, id common.Hash) (*big.Int, error) {
	outputs, err := e.call(ctx, "getCollectedValue", id)
	if err != nil {
		return nil, err
	}
	v, _ := outputs[0].(*big.Int)
	return v, nil
}

var _ Escrow = (*EVMEscrow)(nil)
