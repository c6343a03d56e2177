package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/careerd/internal/metadata"
)

// IsolationMode defines how tenant isolation is enforced by a backend.
//
// Implementations must fail closed: a missing or invalid user is an
// error, never an unfiltered result.
type IsolationMode interface {
	// Scope returns the user every query must be filtered by.
	Scope(ctx context.Context) (string, error)

	// InjectMetadata stamps records with the context user. Records that
	// already name another user are rejected.
	InjectMetadata(ctx context.Context, records []Record) error

	// Mode returns the isolation mode name for logging.
	Mode() string
}

// PayloadIsolation keeps every user in one collection and filters on the
// user_id payload field.
type PayloadIsolation struct{}

// NewPayloadIsolation creates a PayloadIsolation.
func NewPayloadIsolation() *PayloadIsolation {
	return &PayloadIsolation{}
}

// Scope returns the context user.
func (p *PayloadIsolation) Scope(ctx context.Context) (string, error) {
	return UserFromContext(ctx)
}

// InjectMetadata sets user_id on every record in place.
func (p *PayloadIsolation) InjectMetadata(ctx context.Context, records []Record) error {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return err
	}
	for i := range records {
		if owner, ok := records[i].Metadata.Get(metadata.KeyUserID); ok {
			if s, isStr := owner.Str(); !isStr || s != userID {
				return fmt.Errorf("%w: record %q", ErrTenantMismatch, records[i].ID)
			}
		}
		records[i].Metadata = records[i].Metadata.Clone().Set(metadata.KeyUserID, metadata.String(userID))
	}
	return nil
}

// Mode returns "payload".
func (p *PayloadIsolation) Mode() string {
	return "payload"
}

// userFilter returns the equality filter for the context user.
func userFilter(ctx context.Context, iso IsolationMode) (map[string]string, error) {
	userID, err := iso.Scope(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{metadata.KeyUserID: userID}, nil
}
