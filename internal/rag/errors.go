package rag

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the retrieval engine. Callers branch on them with
// errors.Is; the concrete cause is always wrapped alongside.
var (
	// ErrDimensionMismatch is returned when an embedding's length differs
	// from the store's configured dimensionality.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrContentTooLong is returned when text exceeds the embedder's input
	// budget and the deployment rejects rather than truncates.
	ErrContentTooLong = errors.New("content too long")

	// ErrRetrievalFailed is returned when embedding or index lookup fails
	// or times out at query time.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrCorpusUnavailable is returned when the persistence backend cannot
	// be reached.
	ErrCorpusUnavailable = errors.New("corpus unavailable")

	// ErrInvalidFilter is returned for filters using keys outside the
	// metadata vocabulary.
	ErrInvalidFilter = errors.New("invalid filter")
)

// CheckDimensions verifies every entry's embedding has length dim.
func CheckDimensions(entries []Entry, dim int) error {
	for i := range entries {
		if n := len(entries[i].Embedding); n != dim {
			return fmt.Errorf("%w: entry %q has %d dimensions, store expects %d",
				ErrDimensionMismatch, entries[i].ID, n, dim)
		}
	}
	return nil
}

// Unavailable wraps err as ErrCorpusUnavailable unless it already carries
// one of the engine's error kinds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCorpusUnavailable) || errors.Is(err, ErrDimensionMismatch) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrCorpusUnavailable, err)
}
