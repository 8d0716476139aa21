package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCorpus is returned when a corpus loads with zero entries.
var ErrEmptyCorpus = errors.New("knowledge corpus has no entries")

// LoadError reports a corpus source that could not be read or decoded.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load corpus %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SchemaProblem is a single field-level violation.
type SchemaProblem struct {
	EntryID string
	Field   string
	Reason  string
}

func (p SchemaProblem) String() string {
	return fmt.Sprintf("%s.%s: %s", p.EntryID, p.Field, p.Reason)
}

// SchemaError lists every violation found in a corpus.
type SchemaError struct {
	Source   string
	Problems []SchemaProblem
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("invalid corpus %s: %s", e.Source, strings.Join(parts, "; "))
}

// EmbedderUnavailableError means the preferred encoder could not be brought up.
type EmbedderUnavailableError struct {
	Embedder string
	Err      error
}

func (e *EmbedderUnavailableError) Error() string {
	return fmt.Sprintf("embedder %s unavailable: %v", e.Embedder, e.Err)
}

func (e *EmbedderUnavailableError) Unwrap() error { return e.Err }

// QueryEncodingError means a single query could not be turned into a vector.
type QueryEncodingError struct {
	Reason string
	Err    error
}

func (e *QueryEncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode query: %s: %v", e.Reason, e.Err)
	}
	return "encode query: " + e.Reason
}

func (e *QueryEncodingError) Unwrap() error { return e.Err }
