package sigdigest

import "errors"

// Sentinel errors for signature and digest failures. Callers distinguish
// these with errors.Is rather than parsing error strings.
var (
	// ErrInvalidSignature covers malformed signatures (wrong length, bad
	// recovery id) and signatures whose recovered address cannot be derived.
	ErrInvalidSignature = errors.New("sigdigest: invalid signature")

	// ErrSignerMismatch names a recovered address that does not match the
	// authorization's declared sender. IsValidFor reports that case as
	// (false, nil) and does not return this error.
	ErrSignerMismatch = errors.New("sigdigest: recovered signer does not match from address")
)
