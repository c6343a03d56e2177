package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/config"
)

// Open creates the Index selected by cfg.Provider, instrumented with
// metrics and tracing:
//   - "chromem" (default): embedded persistent database, no external service
//   - "qdrant": remote Qdrant over gRPC
//   - "postgres": PostgreSQL with pgvector
//
// dimension is the embedder's vector size, or 0 when unknown.
func Open(ctx context.Context, cfg config.VectorStoreConfig, dimension int, logger *zap.Logger) (Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		idx Index
		err error
	)
	provider := cfg.Provider
	switch provider {
	case config.StoreChromem, "":
		provider = config.StoreChromem
		idx, err = NewChromemStore(ChromemConfig{
			Path:       cfg.ChromemPath,
			Compress:   cfg.ChromemCompress,
			Collection: cfg.Collection,
			Dimension:  dimension,
		}, logger)
	case config.StoreQdrant:
		idx, err = NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			UseTLS:     cfg.QdrantTLS,
			APIKey:     cfg.QdrantAPIKey.Value(),
			Collection: cfg.Collection,
			Dimension:  dimension,
		}, logger)
	case config.StorePostgres:
		idx, err = NewPostgresStore(ctx, PostgresConfig{
			DSN:        cfg.PostgresDSN.Value(),
			Collection: cfg.Collection,
			Dimension:  dimension,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant, postgres)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s store: %w", provider, err)
	}
	return Instrument(provider, idx), nil
}

// Factory opens the Index at most once and shares the handle.
type Factory struct {
	cfg       config.VectorStoreConfig
	dimension int
	logger    *zap.Logger

	once  sync.Once
	index Index
	err   error
}

// NewFactory creates a Factory. Nothing is opened until Index is called.
func NewFactory(cfg config.VectorStoreConfig, dimension int, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, dimension: dimension, logger: logger}
}

// Index returns the shared Index, opening it on the first call. Later
// calls return the same handle or the same error.
func (f *Factory) Index(ctx context.Context) (Index, error) {
	f.once.Do(func() {
		f.index, f.err = Open(ctx, f.cfg, f.dimension, f.logger)
	})
	return f.index, f.err
}

// Close closes the Index if it was opened.
func (f *Factory) Close() error {
	if f.index == nil {
		return nil
	}
	return f.index.Close()
}
