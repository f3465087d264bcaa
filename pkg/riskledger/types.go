package riskledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/chainrpc"
	"github.com/bomanaps/fil-x402-facilitator/pkg/fcr"
	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

// RejectReason names the risk gate that failed.
type RejectReason string

const (
	ReasonExceedsPerTx   RejectReason = "exceeds_max_per_transaction"
	ReasonExceedsPending RejectReason = "exceeds_max_pending_per_wallet"
	ReasonExceedsDaily   RejectReason = "exceeds_daily_limit_per_wallet"
)

// CheckResult is the outcome of evaluating a wallet's risk gates for a
// candidate payment amount.
type CheckResult struct {
	Allowed bool
	Score   int
	Reason  RejectReason
	Message string
}

// SettlementStatus is a settlement record's position in its state machine.
type SettlementStatus string

const (
	StatusPending   SettlementStatus = "pending"
	StatusSubmitted SettlementStatus = "submitted"
	StatusRetry     SettlementStatus = "retry"
	StatusConfirmed SettlementStatus = "confirmed"
	StatusFailed    SettlementStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s SettlementStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// SettlementRecord is the state machine attached to a payment id, from
// acceptance through chain confirmation.
type SettlementRecord struct {
	PaymentID    common.Hash
	Payment      *sigdigest.PaymentAuthorization
	Requirements *sigdigest.PaymentRequirements
	Status       SettlementStatus
	Handle       chainrpc.TxHandle
	HasHandle    bool
	Attempts     int
	MaxAttempts  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastError    string

	// FCR fields.
	TipsetHeight      uint64
	HasTipsetHeight   bool
	ConfirmationLevel fcr.Level
	F3Instance        uint64
	ConfirmedAt       time.Time
	HasConfirmedAt    bool
}

// SettlementPatch is a shallow field update applied by updatePendingSettlement.
// Nil fields are left unchanged; setting Handle, TipsetHeight or ConfirmedAt
// also sets the record's matching Has* flag.
type SettlementPatch struct {
	Status       *SettlementStatus
	Handle       *chainrpc.TxHandle
	Attempts     *int
	LastError    *string
	TipsetHeight *uint64

	ConfirmationLevel *fcr.Level
	F3Instance        *uint64
	ConfirmedAt       *time.Time
}
