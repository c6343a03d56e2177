package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/careerd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalProvider(t *testing.T) {
	p, err := NewLocalProvider(128)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "Python and SQL for data analysis")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "python and sql for data analysis")
	require.NoError(t, err)
	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, cosine(a, b), 1e-6, "embedding is case-insensitive and deterministic")

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	docs, err := p.EmbedDocuments(ctx, []string{"sql excel dashboards reporting", "watercolor painting landscapes"})
	require.NoError(t, err)
	q, _ := p.EmbedQuery(ctx, "sql reporting")
	assert.Greater(t, cosine(q, docs[0]), cosine(q, docs[1]))

	blank, err := p.EmbedQuery(ctx, "!!!")
	require.NoError(t, err)
	assert.Equal(t, float32(1), blank[0])

	_, err = p.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedQuery(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = NewLocalProvider(2)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTEIProvider(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/embed", r.URL.Path)
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float32, len(req.Inputs))
		for i := range req.Inputs {
			out[i] = []float32{float32(i), 1, 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL + "/", Model: "BAAI/bge-small-en-v1.5", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 384, p.Dimension())

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1, 0}, {1, 1, 0}}, vectors)
	assert.Equal(t, "Bearer k", gotAuth)

	v, err := p.EmbedQuery(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, v)
}

func TestTEIProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "boom", nil},
		{"unauthorized", http.StatusUnauthorized, "no", ErrNotConfigured},
		{"wrong count", http.StatusOK, "[]", nil},
		{"bad json", http.StatusOK, "{", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
			require.NoError(t, err)
			_, err = p.EmbedQuery(context.Background(), "x")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	_, err := NewTEIProvider(TEIConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	_, err := NewProvider(ctx, config.EmbeddingsConfig{Provider: config.ProviderOpenAI, Model: "text-embedding-3-small"}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewProvider(ctx, config.EmbeddingsConfig{Provider: config.ProviderGemini}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewProvider(ctx, config.EmbeddingsConfig{Provider: "word2vec"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewProvider(ctx, config.EmbeddingsConfig{Provider: config.ProviderLocal, Dimension: 64}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 64, p.Dimension())
	assert.True(t, IsAvailable(p))

	p, err = NewProvider(ctx, config.EmbeddingsConfig{Provider: config.ProviderOpenAI, Model: "text-embedding-3-small", APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())
}

func TestResolve_Unconfigured(t *testing.T) {
	p, err := Resolve(context.Background(), config.EmbeddingsConfig{Provider: config.ProviderOpenAI, Model: "m"}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, IsAvailable(p))

	_, err = p.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = p.EmbedDocuments(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	_, err = Resolve(context.Background(), config.EmbeddingsConfig{Provider: "nope"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type failingProvider struct{ LocalProvider }

func (failingProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func TestInstrument_ClassifiesAndRecords(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), zap.NewNop())
	ctx := context.Background()

	p := Instrument(&failingProvider{LocalProvider{dimension: 16}}, "test", "m1", m)

	_, err := p.EmbedQuery(ctx, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	_, err = p.EmbedDocuments(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.NotErrorIs(t, err, ErrEmbeddingUnavailable)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			switch data := metric.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					counts[metric.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					counts[metric.Name] += int64(dp.Count)
				}
			}
		}
	}
	assert.Equal(t, int64(2), counts["careerd.embedding.errors_total"])
	assert.Equal(t, int64(3), counts["careerd.embedding.duration_seconds"])
}

func TestDimensionForModel(t *testing.T) {
	assert.Equal(t, 3072, dimensionForModel("text-embedding-3-large"))
	assert.Equal(t, 1536, dimensionForModel("text-embedding-ada-002"))
	assert.Equal(t, 768, dimensionForModel("models/text-embedding-004"))
	assert.Equal(t, 384, dimensionForModel("all-MiniLM-L6-v2"))
	assert.Equal(t, 0, dimensionForModel("custom"))
}

func TestUnavailable_DefaultReason(t *testing.T) {
	p := Unavailable(nil)
	_, err := p.EmbedQuery(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, p.Close())
}
