package core

import (
	"errors"
	"fmt"
)

// Sentinels for the failure classes callers branch on. The typed errors below
// unwrap to them, so errors.Is works on either form.
var (
	ErrValidation       = errors.New("validation failed")
	ErrClassification   = errors.New("could not classify input")
	ErrEmptyResult      = errors.New("no transactions in the selected period")
	ErrMalformedPayload = errors.New("malformed payload")
)

// ValidationError rejects a whole import or batch. Index is the offending
// record position, or -1 when the payload itself is at fault.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	case e.Field == "":
		return fmt.Sprintf("%s: record %d: %s", ErrValidation, e.Index, e.Reason)
	default:
		return fmt.Sprintf("%s: record %d: %s %s", ErrValidation, e.Index, e.Field, e.Reason)
	}
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ClassificationError carries the fragment that failed so the caller can keep
// the original text for a retry.
type ClassificationError struct {
	Fragment string
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrClassification, e.Fragment, e.Err)
}

func (e *ClassificationError) Unwrap() []error { return []error{ErrClassification, e.Err} }

// MalformedPayloadError reports bulk text that is not parseable at all.
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformedPayload, e.Err)
}

func (e *MalformedPayloadError) Unwrap() []error { return []error{ErrMalformedPayload, e.Err} }
