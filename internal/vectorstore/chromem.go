package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/metadata"
)

// kindsKey holds the JSON-encoded kinds of non-string metadata values,
// since chromem stores metadata as strings only.
const kindsKey = "_kinds"

var errPrecomputed = errors.New("chromem: embeddings must be precomputed")

// ChromemConfig holds configuration for the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps the DB in memory.
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool

	// Collection is the collection name. Default: "user_profiles".
	Collection string

	// Dimension, when positive, is enforced on every upserted embedding.
	Dimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "user_profiles"
	}
}

// ChromemStore implements Index on chromem-go.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	isolation  IsolationMode
	logger     *zap.Logger
}

// NewChromemStore opens or creates the chromem database and collection.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		cfg.Path = path
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
		zap.String("collection", cfg.Collection),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemStore{
		db:         db,
		collection: collection,
		config:     cfg,
		isolation:  NewPayloadIsolation(),
		logger:     logger,
	}, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errPrecomputed
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Upsert writes records. chromem replaces documents with an existing ID.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, s.config.Dimension); err != nil {
		return err
	}
	if err := s.isolation.InjectMetadata(ctx, records); err != nil {
		return fmt.Errorf("injecting tenant metadata: %w", err)
	}

	for _, r := range records {
		doc := chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Metadata:  encodeStringMetadata(r.Metadata),
			Embedding: r.Embedding,
		}
		if err := s.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("adding document %s: %w", r.ID, err)
		}
	}

	s.logger.Debug("upserted documents to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(records)),
	)
	return nil
}

// Query searches the context user's documents.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, k int) ([]Hit, error) {
	where, err := userFilter(ctx, s.isolation)
	if err != nil {
		return nil, fmt.Errorf("injecting tenant filter: %w", err)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrDimensionMismatch)
	}

	// chromem requires nResults <= document count.
	count := s.collection.Count()
	if count == 0 {
		return []Hit{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: decodeStringMetadata(r.Metadata),
			Distance: 1 - r.Similarity,
		})
	}
	return hits, nil
}

// Count returns the collection size.
func (s *ChromemStore) Count(context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op; persistent writes are flushed per document.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

func encodeStringMetadata(m metadata.Map) map[string]string {
	out := make(map[string]string, len(m)+1)
	kinds := map[string]string{}
	for _, e := range m {
		v := e.Value.Flatten()
		if v.Kind() != metadata.KindString {
			kinds[e.Key] = v.Kind().String()
		}
		if v.Kind() == metadata.KindNull {
			out[e.Key] = ""
			continue
		}
		out[e.Key] = v.String()
	}
	if len(kinds) > 0 {
		b, _ := json.Marshal(kinds)
		out[kindsKey] = string(b)
	}
	return out
}

func decodeStringMetadata(m map[string]string) map[string]any {
	kinds := map[string]string{}
	if raw, ok := m[kindsKey]; ok {
		_ = json.Unmarshal([]byte(raw), &kinds)
	}
	out := make(map[string]any, len(m))
	for k, s := range m {
		if k == kindsKey {
			continue
		}
		out[k] = decodeKind(kinds[k], s)
	}
	return out
}

func decodeKind(kind, s string) any {
	switch kind {
	case metadata.KindNull.String():
		return nil
	case metadata.KindInt.String():
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case metadata.KindFloat.String():
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case metadata.KindBool.String():
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return s
}

var _ Index = (*ChromemStore)(nil)
