package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider is a deterministic feature-hashing embedder. Each lowercase
// word and word bigram is hashed into one of Dimension buckets with a signed
// weight, and the result is L2-normalized. Texts that share vocabulary score
// as similar, which is enough for development and tests without a network.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local provider.
func NewLocalProvider(dimension int) (*LocalProvider, error) {
	if dimension < 8 {
		return nil, fmt.Errorf("%w: local dimension must be >= 8, got %d", ErrInvalidConfig, dimension)
	}
	return &LocalProvider{dimension: dimension}, nil
}

func (p *LocalProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *LocalProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return p.vector(text), nil
}

func (p *LocalProvider) vector(text string) []float32 {
	vec := make([]float32, p.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	for i, w := range words {
		p.add(vec, w, 1)
		if i > 0 {
			p.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		// Text without words still needs a unit vector for cosine math.
		vec[0] = 1
		return vec
	}
	norm := float32(1 / math.Sqrt(sumSq))
	for i := range vec {
		vec[i] *= norm
	}
	return vec
}

func (p *LocalProvider) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func (p *LocalProvider) Dimension() int { return p.dimension }

func (p *LocalProvider) Close() error { return nil }
