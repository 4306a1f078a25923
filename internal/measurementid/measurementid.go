// Package measurementid implements the domain-identifier predicate the
// evaluation stage uses to validate a dataset's measurement ID. The
// original specification treats this predicate as an external
// collaborator (isValidMeasurementId(name) -> bool); here it is a
// config-driven regular expression the caller supplies.
package measurementid

import (
	"fmt"
	"regexp"
)

// Validator checks a measurement identifier against a compiled pattern.
type Validator struct {
	pattern *regexp.Regexp
}

// New compiles pattern into a Validator. An empty pattern is rejected:
// evaluation must not silently accept every identifier. The pattern is
// anchored at both ends so it must match the whole identifier.
func New(pattern string) (*Validator, error) {
	if pattern == "" {
		return nil, fmt.Errorf("measurement id pattern must not be empty")
	}
	compiled, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("compile measurement id pattern: %w", err)
	}
	return &Validator{pattern: compiled}, nil
}

// Valid reports whether id fully matches the configured pattern. A blank
// id is never valid.
func (v *Validator) Valid(id string) bool {
	if v == nil || id == "" {
		return false
	}
	return v.pattern.MatchString(id)
}
