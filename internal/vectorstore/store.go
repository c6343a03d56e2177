// Package vectorstore provides tenant-scoped vector indexes.
//
// Every backend stores all users in one collection and isolates them by
// the user_id payload field. The filter is evaluated inside the backend on
// every query, and a missing user in the context fails closed with
// ErrMissingTenant.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/careerd/internal/metadata"
)

var (
	// ErrInvalidConfig indicates an invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")

	// ErrInvalidCollectionName indicates a collection name outside the allowed pattern.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrDimensionMismatch indicates an embedding of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyRecord indicates a record without id or embedding.
	ErrEmptyRecord = errors.New("record requires id and embedding")
)

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName checks a collection name is safe for every backend.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidCollectionName, name, collectionNamePattern)
	}
	return nil
}

// Record is one document to store.
type Record struct {
	ID        string
	Text      string
	Metadata  metadata.Map
	Embedding []float32
}

// Hit is one query result. Lower distance means more similar.
type Hit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance float32        `json:"distance"`
}

// Index is a persistent, tenant-scoped nearest-neighbor index.
//
// Upsert and Query read the user from ctx (see ContextWithUser).
type Index interface {
	// Upsert inserts records, replacing any existing record with the same ID.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to k hits for the context user, ordered by
	// increasing distance. An empty result is not an error.
	Query(ctx context.Context, embedding []float32, k int) ([]Hit, error)

	// Count returns the number of records in the collection across all users.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

func validateRecords(records []Record, dimension int) error {
	for i, r := range records {
		if r.ID == "" || len(r.Embedding) == 0 {
			return fmt.Errorf("%w: record %d", ErrEmptyRecord, i)
		}
		if dimension > 0 && len(r.Embedding) != dimension {
			return fmt.Errorf("%w: record %d has %d, want %d", ErrDimensionMismatch, i, len(r.Embedding), dimension)
		}
	}
	return nil
}
