// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a conversion failure so callers can tell "fix your
// key" from "fix your file" from "try again later".
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindTransient      ErrorKind = "transient"
	KindPermanent      ErrorKind = "permanent"
	KindAuthentication ErrorKind = "authentication"
	KindEmptyDocument  ErrorKind = "empty_document"
)

// Error is the tagged failure returned by every stage of a conversion.
type Error struct {
	Kind ErrorKind

	// Op names the stage or call that failed (e.g. "ocr", "upload", "validate").
	Op string

	// StatusCode is the HTTP status of the last response, 0 when none.
	StatusCode int

	// Attempts is the number of outbound attempts made before giving up.
	Attempts int

	// RateLimited is set when the final transient failure was an HTTP 429.
	RateLimited bool

	// Exhausted is set when a transient failure outlived the retry budget.
	Exhausted bool

	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Exhausted && e.RateLimited:
		fmt.Fprintf(&b, "rate limited, attempts exhausted after %d attempt(s)", e.Attempts)
	case e.Exhausted:
		fmt.Fprintf(&b, "attempts exhausted after %d attempt(s)", e.Attempts)
	default:
		b.WriteString(string(e.Kind))
		b.WriteString(" error")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports bad input detected before any network call.
func NewValidationError(op, detail string) *Error {
	return &Error{Kind: KindValidation, Op: op, Detail: detail}
}

// ErrEmptyDocument is wrapped by the normalizer when OCR produced no pages.
var ErrEmptyDocument = errors.New("document has no pages")

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries no classification.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsAuthentication reports whether err is a fatal credential failure.
func IsAuthentication(err error) bool {
	return KindOf(err) == KindAuthentication
}

// IsRateLimited reports whether err is an exhausted rate-limit failure.
func IsRateLimited(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.RateLimited
}

// WarningKind classifies a non-fatal normalization finding.
type WarningKind string

const (
	WarningMalformedMath WarningKind = "malformed_math"
	WarningMissingImage  WarningKind = "missing_image"
)

// Warning is collected alongside a successful result rather than raised.
type Warning struct {
	Kind   WarningKind `json:"kind" yaml:"kind"`
	Page   int         `json:"page" yaml:"page"`
	Detail string      `json:"detail" yaml:"detail"`
}

func (w Warning) String() string {
	return fmt.Sprintf("page %d: %s: %s", w.Page, w.Kind, w.Detail)
}
