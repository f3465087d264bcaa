// Package bondledger is a translator over the on-chain bond contract that
// backs facilitator payments: it packs/unpacks calls and leaves the actual
// safety contract (at-most-one resolution, deadline monotonicity, ledger
// conservation) to the contract itself.
package bondledger

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
)

var minGasPrice = big.NewInt(5_000_000_000)

// Ledger is the bond adapter's capability set.
type Ledger interface {
	CommitPayment(ctx context.Context, id common.Hash, provider common.Address, amount *big.Int) error
	ReleasePayment(ctx context.Context, id common.Hash) error
	ClaimPayment(ctx context.Context, id common.Hash) error
	GetExposure(ctx context.Context) (*big.Int, error)
	GetAvailableBond(ctx context.Context) (*big.Int, error)
	HasCapacity(ctx context.Context, amount *big.Int) (bool, error)
}

// EVMLedger is the production Ledger implementation.
type EVMLedger struct {
	client          *ethclient.Client
	chainID         *big.Int
	contractAddress common.Address
	abi             abi.ABI

	privateKey *ecdsa.PrivateKey
	fromAddr   common.Address

	logger *log.Logger
}

// Config configures an EVMLedger.
type Config struct {
	Endpoint        string
	ChainID         int64
	ContractAddress common.Address
	SigningKeyHex   string
	Logger          *log.Logger
}

// NewEVMLedger dials the endpoint and prepares the facilitator's signing key.
func NewEVMLedger(cfg Config) (*EVMLedger, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[BondLedger] ", log.LstdFlags)
	}

	client, err := ethclient.Dial(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing chain endpoint %s: %w", cfg.Endpoint, err)
	}

	contractABI, err := abi.JSON(strings.NewReader(bondABI))
	if err != nil {
		return nil, fmt.Errorf("parsing bond ABI: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SigningKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing facilitator signing key: %w", err)
	}
	fromAddr := crypto.PubkeyToAddress(privateKey.PublicKey)

	return &EVMLedger{
		client:          client,
		chainID:         big.NewInt(cfg.ChainID),
		contractAddress: cfg.ContractAddress,
		abi:             contractABI,
		privateKey:      privateKey,
		fromAddr:        fromAddr,
		logger:          logger,
	}, nil
}

func (l *EVMLedger) sendCall(ctx context.Context, method string, args ...interface{}) error {
	callData, err := l.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("packing %s: %w", method, err)
	}

	nonce, err := l.client.PendingNonceAt(ctx, l.fromAddr)
	if err != nil {
		return fmt.Errorf("fetching nonce: %w", err)
	}

	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetching gas price: %w", err)
	}
	if gasPrice.Cmp(minGasPrice) < 0 {
		gasPrice = minGasPrice
	}

	tx := types.NewTransaction(nonce, l.contractAddress, big.NewInt(0), 200_000, gasPrice, callData)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(l.chainID), l.privateKey)
	if err != nil {
		return fmt.Errorf("signing transaction: %w", err)
	}

	if err := l.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("sending transaction: %w", err)
	}
	return nil
}

// CommitPayment commits bond collateral for a payment id. Not safe to
// retry blindly: the contract reverts if the id already has a commitment.
func (l *EVMLedger) CommitPayment(ctx context.Context, id common.Hash, provider common.Address, amount *big.Int) error {
	if err := l.sendCall(ctx, "commitPayment", id, provider, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return nil
}

// ReleasePayment releases a commitment. A send failure, including one for
// an id that is already released, is logged and returned wrapped in
// ErrReleaseFailed.
func (l *EVMLedger) ReleasePayment(ctx context.Context, id common.Hash) error {
	if err := l.sendCall(ctx, "releasePayment", id); err != nil {
		l.logger.Printf("releasePayment(%s) failed: %v", id.Hex(), err)
		return fmt.Errorf("%w: %v", ErrReleaseFailed, err)
	}
	return nil
}

// ClaimPayment claims a commitment past its deadline. A send failure is
// returned wrapped in ErrClaimFailed.
func (l *EVMLedger) ClaimPayment(ctx context.Context, id common.Hash) error {
	if err := l.sendCall(ctx, "claimPayment", id); err != nil {
		return fmt.Errorf("%w: %v", ErrClaimFailed, err)
	}
	return nil
}

func (l *EVMLedger) callUint256(ctx context.Context, method string) (*big.Int, error) {
	callData, err := l.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	contractAddr := l.contractAddress
	result, err := l.client.CallContract(ctx, gethereum.CallMsg{To: &contractAddr, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	outputs, err := l.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	v, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected return type from %s", method)
	}
	return v, nil
}

// GetExposure returns the facilitator's total outstanding committed amount.
func (l *EVMLedger) GetExposure(ctx context.Context) (*big.Int, error) {
	return l.callUint256(ctx, "totalCommitted")
}

// GetAvailableBond returns bondBalance − totalCommitted.
func (l *EVMLedger) GetAvailableBond(ctx context.Context) (*big.Int, error) {
	balance, err := l.callUint256(ctx, "bondBalance")
	if err != nil {
		return nil, err
	}
	committed, err := l.callUint256(ctx, "totalCommitted")
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(balance, committed), nil
}

// HasCapacity reports whether GetAvailableBond() ≥ amount.
func (l *EVMLedger) HasCapacity(ctx context.Context, amount *big.Int) (bool, error) {
	available, err := l.GetAvailableBond(ctx)
	if err != nil {
		return false, err
	}
	return available.Cmp(amount) >= 0, nil
}

// commitDeadlineWindow mirrors the contract's fixed commitment window, used
// only by the in-memory fake for deterministic testing.
const commitDeadlineWindow = 10 * time.Minute

var _ Ledger = (*EVMLedger)(nil)
