package voucher

import "errors"

var (
	ErrStaleVoucher     = errors.New("stale_voucher")
	ErrVoucherNotFound  = errors.New("voucher_not_found")
	ErrAlreadySettled   = errors.New("already_settled")
	ErrInvalidSignature = errors.New("invalid_voucher_signature")
	ErrCollectFailed    = errors.New("collect_failed")
)
