package reward

import (
	"errors"
	"fmt"
)

// ErrInsufficientBalance is returned when a debit would drive the cached
// balance negative. The conditional update in the store detects it without a
// separate read.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ValidationError marks malformed input rejected before any storage access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
