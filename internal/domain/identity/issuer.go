package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
)

var (
	// ErrInvalidIdentifierFormat rejects writes carrying malformed
	// patient or portal identifiers. Values are never coerced.
	ErrInvalidIdentifierFormat = errors.New("invalid identifier format")
	// ErrExhaustedKeyspace is returned when the collision-retry budget
	// runs out. Near-impossible for the 8-digit patient space; reachable
	// for portal IDs after very many resets.
	ErrExhaustedKeyspace = errors.New("identifier keyspace exhausted")
	// ErrImmutableFieldViolation rejects updates to write-once fields.
	ErrImmutableFieldViolation = errors.New("immutable field cannot be changed")
	// ErrInvalidInput rejects malformed demographic payloads.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind selects which identifier format to validate or mint.
type Kind string

const (
	KindPatientID Kind = "patient_id"
	KindPortalID  Kind = "portal_id"
)

var (
	patientIDPattern = regexp.MustCompile(`^[0-9]{8}$`)
	portalIDPattern  = regexp.MustCompile(`^TSH [0-9]{3}-[0-9]{3}$`)
)

// Validate is the pure format check applied on every external write path
// and defensively before issuance.
func Validate(value string, kind Kind) bool {
	switch kind {
	case KindPatientID:
		return patientIDPattern.MatchString(value)
	case KindPortalID:
		return portalIDPattern.MatchString(value)
	}
	return false
}

// issueAttempts bounds collision retries during issuance. Exceeding it
// surfaces ErrExhaustedKeyspace instead of looping forever.
const issueAttempts = 10

// Issuer mints candidate identifier values. Uniqueness is not decided
// here: the repository's insert-if-absent write is the authority, and the
// service retries minting on collision.
type Issuer interface {
	MintPatientID() (string, error)
	MintPortalID() (string, error)
}

// RandomIssuer draws identifiers uniformly at random from the full
// keyspace using crypto/rand.
type RandomIssuer struct{}

func NewRandomIssuer() RandomIssuer { return RandomIssuer{} }

// MintPatientID returns a random 8-digit numeric string.
func (RandomIssuer) MintPatientID() (string, error) {
	digits, err := randomDigits(8)
	if err != nil {
		return "", fmt.Errorf("mint patient id: %w", err)
	}
	return digits, nil
}

// MintPortalID returns a random portal ID formatted as "TSH DDD-DDD".
func (RandomIssuer) MintPortalID() (string, error) {
	digits, err := randomDigits(6)
	if err != nil {
		return "", fmt.Errorf("mint portal id: %w", err)
	}
	return FormatPortalID(digits), nil
}

// FormatPortalID renders 6 raw digits in the portal display format.
func FormatPortalID(digits string) string {
	return "TSH " + digits[:3] + "-" + digits[3:]
}

// randomDigits returns n uniformly distributed decimal digits, preserving
// leading zeros.
func randomDigits(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
