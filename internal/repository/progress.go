package repository

import (
	"context"
	"errors"
)

// ErrPersistence wraps every failure to write the CSV or the progress state.
// Callers treat it as fatal.
var ErrPersistence = errors.New("persistence failure")

// ProgressStore tracks which product endpoints already have a CSV row.
type ProgressStore interface {
	// Load reads the persisted state. A missing state is empty, not an error.
	Load(ctx context.Context) error
	Contains(url string) bool
	MarkDone(url string)
	// Forget drops a url whose CSV row has gone missing.
	Forget(url string)
	// Done returns every completed url, sorted.
	Done() []string
	// Persist writes everything marked so far.
	Persist(ctx context.Context) error
	// Reset drops the persisted state, forcing a full re-scrape.
	Reset(ctx context.Context) error
	Len() int
}
