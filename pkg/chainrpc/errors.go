package chainrpc

import "errors"

// Sentinel errors surfaced by the chain RPC adapter. The adapter itself
// never retries; retry policy belongs to the settlement engine.
var (
	// ErrBalanceCheckFailed is returned when balanceOf cannot be read.
	ErrBalanceCheckFailed = errors.New("chainrpc: balance check failed")

	// ErrSubmissionFailed wraps a submission failure reason.
	ErrSubmissionFailed = errors.New("chainrpc: submission failed")

	// ErrPending is returned by WaitForReceipt when the transaction has not
	// yet been mined.
	ErrPending = errors.New("chainrpc: transaction pending")

	// ErrRPCUnavailable is returned when the chain endpoint cannot be
	// reached for a read that has no safe fallback value.
	ErrRPCUnavailable = errors.New("chainrpc: rpc unavailable")
)
