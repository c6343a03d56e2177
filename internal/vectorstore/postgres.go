package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/lib/pq" // postgres driver
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/metadata"
)

// PostgresConfig holds configuration for the pgvector backend.
type PostgresConfig struct {
	DSN        string
	Collection string

	// Dimension, when positive, types the embedding column as vector(N).
	Dimension int
}

// PostgresStore implements Index on PostgreSQL with the pgvector extension.
// The collection name is the table name.
type PostgresStore struct {
	db        *sql.DB
	config    PostgresConfig
	isolation IsolationMode
	logger    *zap.Logger

	mu    sync.Mutex
	ready bool
}

// NewPostgresStore opens the database and verifies connectivity. The
// table is created on first write.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres DSN required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		cfg.Collection = "user_profiles"
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	logger.Info("postgres store initialized", zap.String("table", cfg.Collection))
	return &PostgresStore{db: db, config: cfg, isolation: NewPayloadIsolation(), logger: logger}, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	column := "vector"
	if s.config.Dimension > 0 {
		column = fmt.Sprintf("vector(%d)", s.config.Dimension)
	}
	// The table name is validated against ^[a-z0-9_]{1,64}$.
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata JSONB NOT NULL,
			embedding %s NOT NULL
		)`, s.config.Collection, column),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_user_id_idx ON %s (user_id)`, s.config.Collection, s.config.Collection),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("preparing table %s: %w", s.config.Collection, err)
		}
	}
	s.ready = true
	return nil
}

// Upsert inserts records, updating rows that share an id.
func (s *PostgresStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, s.config.Dimension); err != nil {
		return err
	}
	if err := s.isolation.InjectMetadata(ctx, records); err != nil {
		return fmt.Errorf("injecting tenant metadata: %w", err)
	}
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := fmt.Sprintf(`INSERT INTO %s (id, user_id, text, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, s.config.Collection)

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", r.ID, err)
		}
		userID, _ := r.Metadata.GetString(metadata.KeyUserID)
		if _, err := tx.ExecContext(ctx, stmt, r.ID, userID, r.Text, meta, pgvector.NewVector(r.Embedding)); err != nil {
			return fmt.Errorf("upserting %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// Query orders the user's rows by cosine distance.
func (s *PostgresStore) Query(ctx context.Context, embedding []float32, k int) ([]Hit, error) {
	userID, err := s.isolation.Scope(ctx)
	if err != nil {
		return nil, fmt.Errorf("injecting tenant filter: %w", err)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, text, metadata, embedding <=> $1 AS distance
		FROM %s WHERE user_id = $2 ORDER BY distance LIMIT $3`, s.config.Collection),
		pgvector.NewVector(embedding), userID, k)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.config.Collection, err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var (
			h    Hit
			meta []byte
			dist float64
		)
		if err := rows.Scan(&h.ID, &h.Text, &meta, &dist); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		h.Metadata, err = decodeJSONMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", h.ID, err)
		}
		h.Distance = float32(dist)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Count returns the number of rows in the table.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	if err := s.ensureTable(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.config.Collection)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// decodeJSONMetadata keeps integers as int64 rather than float64.
func decodeJSONMetadata(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	for k, v := range m {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if !strings.ContainsAny(n.String(), ".eE") {
			if i, err := n.Int64(); err == nil {
				m[k] = i
				continue
			}
		}
		if f, err := n.Float64(); err == nil {
			m[k] = f
		}
	}
	return m, nil
}

var _ Index = (*PostgresStore)(nil)
