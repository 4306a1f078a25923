package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks a failure the submitting user can fix: missing or
	// unparseable metadata, an unknown file reference, a missing or invalid
	// measurement identifier. Parked to the user's error directory.
	ErrValidation = errors.New("validation error")
	// ErrProvenance marks a corrupt or unreadable provenance.json. Parked to
	// the stage's intervention directory; the user cannot fix this.
	ErrProvenance = errors.New("provenance error")
	// ErrIO marks an I/O failure during a stage transition (rename, copy,
	// write). Parked to the stage's intervention directory.
	ErrIO = errors.New("io error")
	// ErrUnexpected marks a programmer error or failure with no more specific
	// classification. Parked to the stage's intervention directory.
	ErrUnexpected = errors.New("unexpected error")
)

// Destination is where a failed task directory should be parked.
type Destination int

const (
	// DestinationUserError parks the task in the submitting user's error
	// directory, alongside an error.txt the user can act on.
	DestinationUserError Destination = iota
	// DestinationIntervention parks the task in the stage-local
	// interventions directory for an operator to inspect.
	DestinationIntervention
)

func (d Destination) String() string {
	switch d {
	case DestinationUserError:
		return "user-error"
	case DestinationIntervention:
		return "intervention"
	default:
		return "unknown"
	}
}

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification via FailureDestination.
// The marker should be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUnexpected
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureDestination maps a stage error to where the task directory should
// be parked. Only ErrValidation is user-fixable; everything else (including
// an error with no recognized marker) is treated as a system intervention,
// per the recommended default in spec.md's open question on generic I/O
// failures during registration: park, never retry, never drop.
func FailureDestination(err error) Destination {
	if errors.Is(err, ErrValidation) {
		return DestinationUserError
	}
	return DestinationIntervention
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
