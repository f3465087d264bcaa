// Package chainrpc is a thin, typed wrapper around an EVM JSON-RPC
// endpoint, exposing only the operations the facilitator core needs.
package chainrpc

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

var minGasPrice = big.NewInt(5_000_000_000) // 5 Gwei floor

// RPC is the chain adapter's capability set, modeled as an interface so the
// settlement engine and verification pipeline can be tested against an
// in-memory double.
type RPC interface {
	BalanceOf(ctx context.Context, token, address common.Address) (*big.Int, error)
	IsAuthorizationUsed(ctx context.Context, token, authorizer common.Address, nonce common.Hash) bool
	SubmitTransfer(ctx context.Context, payment *sigdigest.PaymentAuthorization) (TxHandle, error)
	WaitForReceipt(ctx context.Context, handle TxHandle, confirmations uint64) (*Receipt, error)
	CurrentHeight(ctx context.Context) (uint64, error)
	CurrentGasPrice(ctx context.Context) (*big.Int, error)
	ChainID() int64
	HealthCheck(ctx context.Context) error
}

// EVMClient is the production RPC implementation, backed by go-ethereum's
// ethclient. It is stateless and safe for concurrent use by multiple
// goroutines (§5: the chain RPC client is shared, stateless, thread-safe).
type EVMClient struct {
	client      *ethclient.Client
	chainID     *big.Int
	networkName string
	abi         abi.ABI

	privateKey *ecdsa.PrivateKey
	fromAddr   common.Address

	logger *log.Logger
}

// Config configures an EVMClient.
type Config struct {
	Endpoint       string
	ChainID        int64
	NetworkName    string
	SigningKeyHex  string // facilitator's process-wide signing key
	Logger         *log.Logger
}

// NewEVMClient dials the endpoint, verifies the reported chain id against
// the configured one, and prepares the facilitator's signing key.
func NewEVMClient(cfg Config) (*EVMClient, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[ChainRPC] ", log.LstdFlags)
	}

	client, err := ethclient.Dial(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing chain endpoint %s: %w", cfg.Endpoint, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reported, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching chain id: %w", err)
	}
	if reported.Int64() != cfg.ChainID {
		logger.Printf("warning: configured chain id %d does not match reported chain id %s", cfg.ChainID, reported.String())
	}

	contractABI, err := abi.JSON(strings.NewReader(tokenABI))
	if err != nil {
		return nil, fmt.Errorf("parsing token ABI: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SigningKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing facilitator signing key: %w", err)
	}
	fromAddr := crypto.PubkeyToAddress(privateKey.PublicKey)

	return &EVMClient{
		client:      client,
		chainID:     big.NewInt(cfg.ChainID),
		networkName: cfg.NetworkName,
		abi:         contractABI,
		privateKey:  privateKey,
		fromAddr:    fromAddr,
		logger:      logger,
	}, nil
}

// ChainID returns the configured chain id (not necessarily the endpoint's
// reported one, which is only checked for a warning at construction).
func (c *EVMClient) ChainID() int64 {
	return c.chainID.Int64()
}

// FacilitatorAddress is the address used to sign and submit transfers.
func (c *EVMClient) FacilitatorAddress() common.Address {
	return c.fromAddr
}

// BalanceOf reads a token balance for address.
func (c *EVMClient) BalanceOf(ctx context.Context, token, address common.Address) (*big.Int, error) {
	callData, err := c.abi.Pack("balanceOf", address)
	if err != nil {
		return nil, fmt.Errorf("%w: packing balanceOf: %v", ErrBalanceCheckFailed, err)
	}

	result, err := c.client.CallContract(ctx, gethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBalanceCheckFailed, err)
	}

	outputs, err := c.abi.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("%w: unpacking result: %v", ErrBalanceCheckFailed, err)
	}
	balance, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected balanceOf return type", ErrBalanceCheckFailed)
	}
	return balance, nil
}

// IsAuthorizationUsed reads the token's authorization-nonce map. It is
// best-effort: a transport error is swallowed and reported as false, since
// verification treats this gate as non-fatal on infrastructure failure.
func (c *EVMClient) IsAuthorizationUsed(ctx context.Context, token, authorizer common.Address, nonce common.Hash) bool {
	callData, err := c.abi.Pack("authorizationState", authorizer, nonce)
	if err != nil {
		c.logger.Printf("packing authorizationState: %v", err)
		return false
	}

	result, err := c.client.CallContract(ctx, gethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		c.logger.Printf("authorizationState call failed, treating as unused: %v", err)
		return false
	}

	outputs, err := c.abi.Unpack("authorizationState", result)
	if err != nil {
		c.logger.Printf("unpacking authorizationState: %v", err)
		return false
	}
	used, ok := outputs[0].(bool)
	if !ok {
		return false
	}
	return used
}

// SubmitTransfer packs and sends transferWithAuthorization for the given
// payment. Gas policy is a single current-price attempt; retry and gas
// escalation are the settlement engine's responsibility, not the adapter's.
func (c *EVMClient) SubmitTransfer(ctx context.Context, payment *sigdigest.PaymentAuthorization) (TxHandle, error) {
	if len(payment.Signature) != 65 {
		return TxHandle{}, fmt.Errorf("%w: signature length %d, want 65", ErrSubmissionFailed, len(payment.Signature))
	}
	var r, s [32]byte
	copy(r[:], payment.Signature[0:32])
	copy(s[:], payment.Signature[32:64])
	v := payment.Signature[64]
	if v < 27 {
		v += 27
	}

	callData, err := c.abi.Pack("transferWithAuthorization",
		payment.From, payment.To, payment.Value,
		big.NewInt(payment.ValidAfter), big.NewInt(payment.ValidBefore),
		payment.Nonce, v, r, s)
	if err != nil {
		return TxHandle{}, fmt.Errorf("%w: packing transferWithAuthorization: %v", ErrSubmissionFailed, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.fromAddr)
	if err != nil {
		return TxHandle{}, fmt.Errorf("%w: fetching nonce: %v", ErrSubmissionFailed, err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return TxHandle{}, fmt.Errorf("%w: fetching gas price: %v", ErrSubmissionFailed, err)
	}
	if gasPrice.Cmp(minGasPrice) < 0 {
		gasPrice = minGasPrice
	}

	tx := types.NewTransaction(nonce, payment.Token, big.NewInt(0), 150_000, gasPrice, callData)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return TxHandle{}, fmt.Errorf("%w: signing transaction: %v", ErrSubmissionFailed, err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return TxHandle{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	return TxHandle(signedTx.Hash()), nil
}

// WaitForReceipt returns the receipt once it has at least `confirmations`
// blocks behind it. Returns ErrPending (not an error the caller should
// treat as fatal) when the transaction is not yet mined or not yet deep
// enough.
func (c *EVMClient) WaitForReceipt(ctx context.Context, handle TxHandle, confirmations uint64) (*Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.Hash(handle))
	if err != nil {
		if err == gethereum.NotFound {
			return nil, ErrPending
		}
		return nil, fmt.Errorf("fetching receipt: %w", err)
	}

	if confirmations > 1 {
		head, err := c.client.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCUnavailable, err)
		}
		mined := receipt.BlockNumber.Uint64()
		if head < mined || head-mined+1 < confirmations {
			return nil, ErrPending
		}
	}

	return &Receipt{
		TxHash:      handle,
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// CurrentHeight returns the latest block number.
func (c *EVMClient) CurrentHeight(ctx context.Context) (uint64, error) {
	height, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRPCUnavailable, err)
	}
	return height, nil
}

// CurrentGasPrice returns the network-suggested gas price, floored at 5 Gwei.
func (c *EVMClient) CurrentGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPCUnavailable, err)
	}
	if gasPrice.Cmp(minGasPrice) < 0 {
		gasPrice = minGasPrice
	}
	return gasPrice, nil
}

// HealthCheck reports whether the chain endpoint is reachable.
func (c *EVMClient) HealthCheck(ctx context.Context) error {
	if _, err := c.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRPCUnavailable, err)
	}
	return nil
}
