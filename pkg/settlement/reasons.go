// Package settlement implements the verification pipeline and settlement
// engine: the strictly ordered gates a payment authorization must clear,
// and the worker that submits, retries, and tracks it to a terminal state.
package settlement

// Reason strings are stable, client-facing identifiers for verification
// and settlement failures.
const (
	ReasonTokenMismatch        = "token_mismatch"
	ReasonRecipientMismatch    = "recipient_mismatch"
	ReasonInsufficientAmount   = "insufficient_amount"
	ReasonInvalidSignature     = "invalid_signature"
	ReasonExpiredOrNotYetValid = "expired_or_not_yet_valid"
	ReasonExpiresTooSoon       = "expires_too_soon"
	ReasonNonceAlreadyUsed     = "nonce_already_used"
	ReasonBalanceCheckFailed   = "balance_check_failed"
	ReasonInsufficientBalance  = "insufficient_balance"

	ErrPaymentAlreadySubmitted  = "payment_already_submitted"
	ErrInsufficientBondCapacity = "insufficient_bond_capacity"
	ErrInternal                 = "internal_error"
)

// expiryHeadroom is the minimum time before validBefore that settlement
// must still have in hand to attempt submission (B1: exactly 120s is
// rejected; sigdigest.ExpiresWithin compares with <=).
const expiryHeadroom int64 = 120 // seconds
