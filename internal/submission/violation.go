package submission

// ============================================================================
// Submission Violation Definitions
// Purpose: Define every validation failure reported next to the id input
// ============================================================================

import (
	"errors"
	"fmt"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/pkg/types"
)

// Predefined errors
var (
	// ErrMissingPriority indicates a submission without a priority
	ErrMissingPriority = errors.New("submission: priority is required")

	// ErrInvalidPriority indicates a priority outside HIGH/MEDIUM/LOW
	ErrInvalidPriority = errors.New("submission: invalid priority")

	// ErrInvalidRequest indicates a request that failed struct validation
	ErrInvalidRequest = errors.New("submission: invalid request")
)

// Kind classifies a Violation
type Kind string

const (
	KindEmptyInput         Kind = "EmptyInput"
	KindMalformedArray     Kind = "MalformedArray"
	KindInvalidNumber      Kind = "InvalidNumber"
	KindNotPositiveInteger Kind = "NotPositiveInteger"
	KindDuplicatesPresent  Kind = "DuplicatesPresent"
	KindNoIdentifiers      Kind = "NoIdentifiers"
	KindTooManyIdentifiers Kind = "TooManyIdentifiers"
)

// Violation is a single human-readable validation failure.
// Token carries the offending input for InvalidNumber and NotPositiveInteger.
type Violation struct {
	Kind  Kind
	Token string
}

// Message renders the violation for display next to the input
func (v Violation) Message() string {
	switch v.Kind {
	case KindEmptyInput:
		return "Please enter at least one ID"
	case KindMalformedArray:
		return "Input must be an array of numbers"
	case KindInvalidNumber:
		return fmt.Sprintf("Invalid number: %q", v.Token)
	case KindNotPositiveInteger:
		return fmt.Sprintf("Invalid ID: %s (must be a positive integer)", v.Token)
	case KindDuplicatesPresent:
		return "Duplicate IDs are not allowed"
	case KindNoIdentifiers:
		return "At least one ID is required"
	case KindTooManyIdentifiers:
		return fmt.Sprintf("Maximum %d IDs allowed per request", types.MaxIdentifiers)
	default:
		return string(v.Kind)
	}
}

func (v Violation) Error() string {
	return "submission: " + v.Message()
}
