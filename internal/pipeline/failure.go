package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why a query failed. The session layer records the kind
// with each error turn; the API maps it to a status code.
type Kind string

const (
	// KindValidation: the question was rejected before any network call.
	KindValidation Kind = "validation"

	// KindTransient: an external call failed after bounded retries.
	KindTransient Kind = "transient"

	// KindParse: the model answered but its output was unusable. Parse
	// failures normally degrade to plain text rather than surfacing.
	KindParse Kind = "parse"

	// KindConfiguration: a setting was invalid. Fatal at startup,
	// rejected in place for imported snapshots.
	KindConfiguration Kind = "configuration"
)

// Failure wraps an error with its classification.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// fail wraps err with a kind, preserving the chain for errors.Is.
func fail(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// failf is fail with formatting.
func failf(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from an error chain. Unclassified
// errors count as transient: they came from somewhere external.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindTransient
}
