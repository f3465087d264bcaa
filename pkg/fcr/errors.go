package fcr

import "errors"

var (
	// ErrProgressUnavailable is returned when GetProgress cannot be reached.
	ErrProgressUnavailable = errors.New("fcr: consensus progress unavailable")
	// ErrCertificateUnavailable is returned when a requested certificate
	// does not exist or could not be fetched.
	ErrCertificateUnavailable = errors.New("fcr: certificate unavailable")
)
