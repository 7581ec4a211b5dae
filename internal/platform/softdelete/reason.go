package softdelete

import (
	"errors"
	"fmt"
)

// Reason explains why a record was soft deleted. The set is closed; any
// other value is rejected before the transition is attempted.
type Reason string

const (
	ReasonWrongChart Reason = "wrong_chart"
	ReasonDuplicate  Reason = "duplicate"
	ReasonTest       Reason = "test"
	ReasonOther      Reason = "other"
)

// ErrInvalidReason is returned for deletion reasons outside the closed set.
var ErrInvalidReason = errors.New("invalid deletion reason")

// Valid reports whether the reason is in the closed set.
func (r Reason) Valid() bool {
	switch r {
	case ReasonWrongChart, ReasonDuplicate, ReasonTest, ReasonOther:
		return true
	}
	return false
}

// ParseReason validates a caller-supplied reason string.
func ParseReason(s string) (Reason, error) {
	r := Reason(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidReason, s)
	}
	return r, nil
}
