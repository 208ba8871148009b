// Package extract turns free text into structured records by prompting an
// oracle and repairing its answer.
package extract

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"labelproof/internal/record"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the extract package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Oracle completes a prompt. Implementations should be deterministic
// (temperature zero) but callers never assume so.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extractor sends prompt and source text to an oracle and parses the
// repaired answer into a record.
type Extractor struct {
	oracle     Oracle
	model      string
	tokenLimit int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTokenLimit truncates the source text so the whole request stays
// within limit tokens of model. A limit <= 0 disables truncation.
func WithTokenLimit(model string, limit int) Option {
	return func(e *Extractor) {
		e.model = model
		e.tokenLimit = limit
	}
}

// New creates an Extractor backed by oracle.
func New(oracle Oracle, opts ...Option) *Extractor {
	e := &Extractor{oracle: oracle}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the oracle to convert source according to prompt. When
// tmpl is non-nil the parsed record must conform to it.
func (e *Extractor) Extract(ctx context.Context, prompt, source string, tmpl *record.Template) (*record.Record, error) {
	if e.tokenLimit > 0 {
		available, err := availableTokens(e.model, prompt, e.tokenLimit)
		if err != nil {
			return nil, err
		}
		truncated := truncateByTokens(e.model, source, available)
		if len(truncated) < len(source) {
			log.Warnf("Source text truncated from %d to %d bytes to fit token limit", len(source), len(truncated))
		}
		source = truncated
	}

	response, err := e.oracle.Complete(ctx, prompt+source)
	if err != nil {
		return nil, &Error{Kind: KindOracleUnavailable, Err: err}
	}
	log.Debugf("Oracle response: %s", response)

	rec, err := ParseResponse(response)
	if err != nil {
		return nil, err
	}

	if tmpl != nil {
		if err := tmpl.Validate(rec); err != nil {
			var missing []string
			var cerr *record.ConformanceError
			if errors.As(err, &cerr) {
				missing = cerr.Missing
			}
			return nil, &Error{Kind: KindSchemaMismatch, Missing: missing, Err: err}
		}
	}
	return rec, nil
}

// ParseResponse runs the repair pipeline and parser over an oracle answer
// without contacting the oracle.
func ParseResponse(response string) (*record.Record, error) {
	repaired, err := Repair(response)
	if err != nil {
		return nil, err
	}
	rec, err := record.Parse([]byte(repaired))
	if err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Step: "parse", Err: err}
	}
	return rec, nil
}
