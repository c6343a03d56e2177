package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/careerd/internal/docstore"
	"github.com/fyrsmithlabs/careerd/internal/metadata"
)

// TypeProfile is the document type of the stored structured profile.
const TypeProfile = "profile"

// Querier is the retrieval half of docstore.Store.
type Querier interface {
	Query(ctx context.Context, userID, queryText string, topK int) ([]docstore.Hit, error)
}

// Aggregator rebuilds a user's profile from retrieved documents.
type Aggregator struct {
	docs Querier
}

// NewAggregator creates an Aggregator.
func NewAggregator(docs Querier) *Aggregator {
	return &Aggregator{docs: docs}
}

// Aggregate returns the profile held by the nearest profile document and
// the total number of hits. Without a profile hit the profile is empty.
func (a *Aggregator) Aggregate(ctx context.Context, userID, queryText string, topK int) (Profile, int, error) {
	hits, err := a.docs.Query(ctx, userID, queryText, topK)
	if err != nil {
		return Profile{}, 0, err
	}
	return fromHits(hits), len(hits), nil
}

// Context is Aggregate that also returns the text of every hit joined
// by blank lines, for use as model context.
func (a *Aggregator) Context(ctx context.Context, userID, queryText string, topK int) (Profile, string, int, error) {
	hits, err := a.docs.Query(ctx, userID, queryText, topK)
	if err != nil {
		return Profile{}, "", 0, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return fromHits(hits), strings.Join(texts, "\n\n"), len(hits), nil
}

func fromHits(hits []docstore.Hit) Profile {
	for _, h := range hits {
		if fmt.Sprint(h.Metadata[metadata.KeyType]) != TypeProfile {
			continue
		}
		return Profile{
			Summary:    stringValue(h.Metadata["summary"]),
			Skills:     SplitList(stringValue(h.Metadata["skills"])),
			Experience: SplitList(stringValue(h.Metadata["experience"])),
			Education:  SplitList(stringValue(h.Metadata["education"])),
		}
	}
	return Empty()
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	return fmt.Sprint(v)
}

// SplitList reverses the ", " join applied to list metadata. Blank
// entries are dropped and the result is never nil.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ", ") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
