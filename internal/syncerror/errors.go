// Package syncerror provides the structured error taxonomy for the cost
// synchronization pipeline. Every error is scoped to a single account and
// carries enough context for the batch aggregator and for user remediation.
package syncerror

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies a sync error.
type Kind string

const (
	// KindConfiguration: stored credentials are missing required fields.
	// User-fixable, not retryable until fixed.
	KindConfiguration Kind = "configuration"
	// KindAuthorization: the provider rejected a role exchange.
	KindAuthorization Kind = "authorization"
	// KindCredential: transient failure during credential exchange.
	KindCredential Kind = "credential"
	// KindProviderAPI: the upstream billing API failed.
	KindProviderAPI Kind = "provider_api"
	// KindValidation: a normalized payload was malformed.
	KindValidation Kind = "validation"
	// KindPersistence: a database write failed.
	KindPersistence Kind = "persistence"
)

// Error is a classified, account-scoped sync error.
type Error struct {
	Kind      Kind
	Op        string
	AccountID uuid.UUID
	Hint      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// WithAccount returns a copy of the error scoped to the given account.
func (e *Error) WithAccount(id uuid.UUID) *Error {
	dup := *e
	dup.AccountID = id
	return &dup
}

// Configuration reports missing or incomplete stored credential material.
func Configuration(op, hint string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Hint: hint}
}

// Authorization reports a rejected credential exchange.
func Authorization(op string, err error) *Error {
	return &Error{
		Kind: KindAuthorization,
		Op:   op,
		Err:  err,
		Hint: "check the role trust policy, external id, and that resolver credentials are configured",
	}
}

// Credential reports a transient credential-exchange failure.
func Credential(op string, err error) *Error {
	return &Error{Kind: KindCredential, Op: op, Err: err, Retryable: true}
}

// ProviderAPI reports an upstream billing API failure.
func ProviderAPI(op string, err error) *Error {
	return &Error{Kind: KindProviderAPI, Op: op, Err: err, Retryable: true}
}

// Validation reports a malformed normalized payload.
func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// Persistence reports a database write failure.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// KindOf returns the Kind of err, or empty string for unclassified errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsRetryable reports whether the error is worth retrying after backoff.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// HintOf returns the remediation hint attached to err, if any.
func HintOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Hint
	}
	return ""
}
