package extract

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies extraction failures.
type Kind string

const (
	KindMalformedResponse Kind = "MalformedResponse"
	KindSchemaMismatch    Kind = "SchemaMismatch"
	KindOracleUnavailable Kind = "OracleUnavailable"
	KindMissingContent    Kind = "MissingContent"
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrMalformedResponse = errors.New("malformed oracle response")
	ErrSchemaMismatch    = errors.New("record does not match template")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrMissingContent    = errors.New("missing content")
)

// Error is returned by the extractor and the content checker.
type Error struct {
	Kind Kind
	// Step names the repair step that failed, for malformed responses.
	Step string
	// Missing lists key paths for schema mismatches and missing content.
	Missing []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Step != "" {
		fmt.Fprintf(&b, " at %s", e.Step)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrMalformedResponse:
		return e.Kind == KindMalformedResponse
	case ErrSchemaMismatch:
		return e.Kind == KindSchemaMismatch
	case ErrOracleUnavailable:
		return e.Kind == KindOracleUnavailable
	case ErrMissingContent:
		return e.Kind == KindMissingContent
	}
	return false
}
