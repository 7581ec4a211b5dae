package record

import "errors"

var (
	// ErrForbidden is returned for any authorization failure. The reason
	// for a denial is never surfaced to callers; it is logged and counted
	// instead.
	ErrForbidden = errors.New("access denied")
	// ErrNotFound is returned for records that do not exist and,
	// deliberately, for soft-deleted records read outside the audit view.
	ErrNotFound = errors.New("record not found")
)
