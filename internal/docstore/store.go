// Package docstore stores and retrieves per-user text documents.
//
// A document is embedded once on write and keyed deterministically by
// user and type, so writing the same kind of document twice replaces it.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/embeddings"
	"github.com/fyrsmithlabs/careerd/internal/metadata"
	"github.com/fyrsmithlabs/careerd/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/careerd/internal/docstore"

// DefaultTopK is used when neither the caller nor the config sets one.
const DefaultTopK = 5

var (
	// ErrMissingUser is returned when userID is empty.
	ErrMissingUser = errors.New("user_id is required")

	// ErrForeignID is returned when an explicit document id does not
	// belong to the writing user.
	ErrForeignID = errors.New("document id belongs to another user")
)

// Hit is a retrieved document.
type Hit = vectorstore.Hit

// Store is a tenant-scoped document store over an embedder and an Index.
type Store struct {
	embedder embeddings.Embedder
	index    vectorstore.Index
	topK     int
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultTopK sets the result count used when Query gets topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(s *Store) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store.
func New(embedder embeddings.Embedder, index vectorstore.Index, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if index == nil {
		return nil, errors.New("index is required")
	}
	s := &Store{
		embedder: embedder,
		index:    index,
		topK:     DefaultTopK,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DocumentID returns meta["id"] when it is a non-empty string, otherwise
// "{userID}:{type}" with type defaulting to "doc". Upsert only accepts ids
// prefixed with "{userID}:".
func DocumentID(userID string, meta metadata.Map) string {
	if id, ok := meta.GetString(metadata.KeyID); ok {
		return id
	}
	docType, ok := meta.GetString(metadata.KeyType)
	if !ok {
		docType = "doc"
	}
	return userID + ":" + docType
}

// Upsert embeds text and writes it under DocumentID. The latest write for
// an id wins. Embedding failures are returned wrapping
// embeddings.ErrEmbeddingUnavailable.
func (s *Store) Upsert(ctx context.Context, userID, text string, meta metadata.Map) (string, error) {
	ctx, span := s.tracer.Start(ctx, "docstore.Upsert")
	defer span.End()

	if userID == "" {
		return "", ErrMissingUser
	}
	id := DocumentID(userID, meta)
	span.SetAttributes(attribute.String("document.id", id))
	if !strings.HasPrefix(id, userID+":") {
		return "", fmt.Errorf("%w: %q", ErrForeignID, id)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return "", fmt.Errorf("embedding document %s: %w", id, asUnavailable(err))
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("embedding document %s: %w: got %d vectors", id, embeddings.ErrEmbeddingUnavailable, len(vectors))
	}

	record := vectorstore.Record{
		ID:        id,
		Text:      text,
		Metadata:  metadata.Sanitize(userID, meta),
		Embedding: vectors[0],
	}
	if err := s.index.Upsert(vectorstore.ContextWithUser(ctx, userID), []vectorstore.Record{record}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return "", fmt.Errorf("storing document %s: %w", id, err)
	}

	s.logger.Debug("document stored", zap.String("user_id", userID), zap.String("id", id), zap.Int("chars", len(text)))
	return id, nil
}

// Query returns at most topK of the user's documents nearest to
// queryText. A user with no documents gets an empty slice.
func (s *Store) Query(ctx context.Context, userID, queryText string, topK int) ([]Hit, error) {
	ctx, span := s.tracer.Start(ctx, "docstore.Query")
	defer span.End()

	if userID == "" {
		return nil, ErrMissingUser
	}
	if topK <= 0 {
		topK = s.topK
	}
	span.SetAttributes(attribute.Int("top_k", topK))

	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("embedding query: %w", asUnavailable(err))
	}

	hits, err := s.index.Query(vectorstore.ContextWithUser(ctx, userID), vector, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

func asUnavailable(err error) error {
	if errors.Is(err, embeddings.ErrEmbeddingUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", embeddings.ErrEmbeddingUnavailable, err)
}
