package vectorstore

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/careerd/internal/config"
)

func TestOpen_Chromem(t *testing.T) {
	cfg := config.VectorStoreConfig{Provider: config.StoreChromem, Collection: "factory_test", ChromemPath: t.TempDir()}
	idx, err := Open(context.Background(), cfg, 2, nil)
	require.NoError(t, err)
	defer idx.Close()

	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("chromem", "upsert", "success"))
	require.NoError(t, idx.Upsert(userCtx("alice"), []Record{record("a", "a", []float32{1, 0})}))
	assert.Equal(t, before+1, testutil.ToFloat64(OperationsTotal.WithLabelValues("chromem", "upsert", "success")))

	errBefore := testutil.ToFloat64(OperationsTotal.WithLabelValues("chromem", "query", "error"))
	_, err = idx.Query(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrMissingTenant)
	assert.Equal(t, errBefore+1, testutil.ToFloat64(OperationsTotal.WithLabelValues("chromem", "query", "error")))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), config.VectorStoreConfig{Provider: "pinecone"}, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Open(context.Background(), config.VectorStoreConfig{Provider: config.StorePostgres, Collection: "x"}, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFactory_OpensOnce(t *testing.T) {
	f := NewFactory(config.VectorStoreConfig{Collection: "once_test"}, 0, nil)
	a, err := f.Index(context.Background())
	require.NoError(t, err)
	b, err := f.Index(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.NoError(t, f.Close())

	bad := NewFactory(config.VectorStoreConfig{Provider: "nope"}, 0, nil)
	_, err1 := bad.Index(context.Background())
	_, err2 := bad.Index(context.Background())
	assert.Error(t, err1)
	assert.True(t, errors.Is(err2, ErrInvalidConfig))
	assert.NoError(t, bad.Close())
}

func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("QDRANT_HOST not set")
	}
	port := 6334
	if p, err := strconv.Atoi(os.Getenv("QDRANT_PORT")); err == nil {
		port = p
	}
	store, err := NewQdrantStore(context.Background(), QdrantConfig{Host: host, Port: port, Collection: "careerd_it", Dimension: 3}, nil)
	require.NoError(t, err)
	defer store.Close()
	exerciseIndex(t, store)
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("CAREERD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CAREERD_TEST_POSTGRES_DSN not set")
	}
	store, err := NewPostgresStore(context.Background(), PostgresConfig{DSN: dsn, Collection: "careerd_it", Dimension: 3}, nil)
	require.NoError(t, err)
	defer store.Close()
	exerciseIndex(t, store)
}

// exerciseIndex checks replace-by-id and tenant isolation on a live backend.
func exerciseIndex(t *testing.T, idx Index) {
	t.Helper()
	alice, bob := userCtx("it-alice"), userCtx("it-bob")

	require.NoError(t, idx.Upsert(alice, []Record{record("it-alice:profile", "v1", []float32{1, 0, 0}, "type", "profile")}))
	require.NoError(t, idx.Upsert(alice, []Record{record("it-alice:profile", "v2", []float32{1, 0, 0}, "type", "profile")}))
	require.NoError(t, idx.Upsert(bob, []Record{record("it-bob:profile", "bob", []float32{1, 0, 0}, "type", "profile")}))

	hits, err := idx.Query(alice, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "it-alice:profile", hits[0].ID)
	assert.Equal(t, "v2", hits[0].Text)
	assert.Equal(t, "it-alice", hits[0].Metadata["user_id"])
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("u:profile"), PointID("u:profile"))
	assert.NotEqual(t, PointID("u:profile"), PointID("u:cv_raw"))
}

func TestDecodeJSONMetadata(t *testing.T) {
	m, err := decodeJSONMetadata([]byte(`{"n":5,"f":1.5,"s":"x","b":true,"z":null}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(5), "f": 1.5, "s": "x", "b": true, "z": nil}, m)
}
