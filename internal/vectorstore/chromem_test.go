package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/metadata"
)

func newTestChromem(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{Collection: "test_profiles"}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func userCtx(userID string) context.Context {
	return ContextWithUser(context.Background(), userID)
}

func record(id, text string, vec []float32, kv ...any) Record {
	return Record{ID: id, Text: text, Embedding: vec, Metadata: metadata.Pairs(kv...)}
}

func TestChromemStore_UpsertReplaces(t *testing.T) {
	store := newTestChromem(t)
	ctx := userCtx("alice")

	require.NoError(t, store.Upsert(ctx, []Record{record("alice:profile", "first", []float32{1, 0, 0}, "type", "profile")}))
	require.NoError(t, store.Upsert(ctx, []Record{record("alice:profile", "second", []float32{0, 1, 0}, "type", "profile")}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := store.Query(ctx, []float32{0, 1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "second", hits[0].Text)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
}

func TestChromemStore_TenantIsolation(t *testing.T) {
	store := newTestChromem(t)

	require.NoError(t, store.Upsert(userCtx("alice"), []Record{record("alice:doc", "alice cv", []float32{1, 0, 0})}))
	require.NoError(t, store.Upsert(userCtx("bob"), []Record{
		record("bob:doc", "bob cv", []float32{1, 0, 0}),
		record("bob:interests", "bob interests", []float32{0.9, 0.1, 0}),
	}))

	hits, err := store.Query(userCtx("alice"), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alice:doc", hits[0].ID)
	assert.Equal(t, "alice", hits[0].Metadata["user_id"])

	hits, err = store.Query(userCtx("carol"), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemStore_OrderingAndCap(t *testing.T) {
	store := newTestChromem(t)
	ctx := userCtx("alice")

	require.NoError(t, store.Upsert(ctx, []Record{
		record("far", "far", []float32{0, 0, 1}),
		record("near", "near", []float32{1, 0.1, 0}),
		record("mid", "mid", []float32{1, 1, 0}),
	}))

	hits, err := store.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ID)
	assert.Equal(t, "mid", hits[1].ID)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)

	hits, err = store.Query(ctx, []float32{1, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestChromemStore_EmptyCollection(t *testing.T) {
	store := newTestChromem(t)
	hits, err := store.Query(userCtx("alice"), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestChromemStore_FailsClosed(t *testing.T) {
	store := newTestChromem(t)

	err := store.Upsert(context.Background(), []Record{record("x", "x", []float32{1, 0})})
	assert.ErrorIs(t, err, ErrMissingTenant)

	_, err = store.Query(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrMissingTenant)

	_, err = store.Query(ContextWithUser(context.Background(), "  "), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrInvalidTenant)

	err = store.Upsert(userCtx("alice"), []Record{record("x", "x", []float32{1, 0}, "user_id", "bob")})
	assert.ErrorIs(t, err, ErrTenantMismatch)
}

func TestChromemStore_MetadataKinds(t *testing.T) {
	store := newTestChromem(t)
	ctx := userCtx("alice")

	require.NoError(t, store.Upsert(ctx, []Record{record("k", "kinds", []float32{1, 0},
		"type", "profile", "n", 5, "f", 0.25, "ok", true, "missing", nil)}))

	hits, err := store.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, map[string]any{
		"type":    "profile",
		"n":       int64(5),
		"f":       0.25,
		"ok":      true,
		"missing": nil,
		"user_id": "alice",
	}, hits[0].Metadata)
}

func TestChromemStore_Validation(t *testing.T) {
	_, err := NewChromemStore(ChromemConfig{Collection: "Bad-Name"}, nil)
	assert.ErrorIs(t, err, ErrInvalidCollectionName)

	store, err := NewChromemStore(ChromemConfig{Dimension: 3}, nil)
	require.NoError(t, err)
	err = store.Upsert(userCtx("alice"), []Record{record("x", "x", []float32{1, 0})})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = store.Upsert(userCtx("alice"), []Record{{Text: "no id", Embedding: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, ErrEmptyRecord)

	_, err = store.Query(userCtx("alice"), []float32{1, 0, 0}, 0)
	assert.Error(t, err)
}

func TestChromemStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := userCtx("alice")

	store, err := NewChromemStore(ChromemConfig{Path: dir, Compress: true}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, []Record{record("alice:profile", "persisted", []float32{1, 0}, "type", "profile")}))
	require.NoError(t, store.Close())

	reopened, err := NewChromemStore(ChromemConfig{Path: dir, Compress: true}, nil)
	require.NoError(t, err)
	hits, err := reopened.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "persisted", hits[0].Text)
	assert.Equal(t, "profile", hits[0].Metadata["type"])
}

func TestEncodeStringMetadata(t *testing.T) {
	encoded := encodeStringMetadata(metadata.Pairs("skills", []string{"go", "sql"}, "n", 3))
	assert.Equal(t, "go, sql", encoded["skills"])
	assert.Equal(t, "3", encoded["n"])
	assert.JSONEq(t, `{"n":"int"}`, encoded[kindsKey])

	assert.Equal(t, map[string]any{"a": "1"}, decodeStringMetadata(map[string]string{"a": "1"}))
}
