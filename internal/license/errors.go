package license

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput reports bad caller parameters (empty company name,
	// non-positive day count, empty machine id). Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedKey reports a key that could not be decoded at all:
	// missing prefix, bad base64, bad JSON.
	ErrMalformedKey = errors.New("malformed license key")

	// ErrSignatureMismatch reports a key that decoded fine but whose
	// authentication tag does not match. Distinct from ErrMalformedKey so
	// callers can tell tampering from corruption.
	ErrSignatureMismatch = errors.New("license signature mismatch")
)

// ExpiredError reports a key whose signature checked out but whose
// expiration date is in the past.
type ExpiredError struct {
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("license expired on %s", e.ExpiredAt.Format("2006-01-02"))
}
