package order

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("order: validation failed")
	ErrEmptyCart  = fmt.Errorf("%w: cart has no purchasable items", ErrValidation)
	ErrCartLookup = errors.New("order: cart lookup failed")
)

// SubmissionError carries the backing store's failure. Message is shown to
// the customer verbatim.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string { return e.Message }
func (e *SubmissionError) Unwrap() error { return e.Err }

func newSubmissionError(err error) *SubmissionError {
	return &SubmissionError{Message: err.Error(), Err: err}
}

func newValidation(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
