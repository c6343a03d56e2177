// Package career produces career recommendations from a profile, stated
// interests and retrieved context.
package career

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/llm"
	"github.com/fyrsmithlabs/careerd/internal/profile"
)

// DefaultMaxContextChars bounds the retrieved context sent to the model.
const DefaultMaxContextChars = 12000

// Career names produced by the rule-based fallback.
const (
	CareerDataAnalyst      = "Data Analyst"
	CareerDataScientist    = "Data Scientist"
	CareerSoftwareEngineer = "Software Engineer"
	CareerExploreOptions   = "Explore Options"
)

const (
	fallbackJustification = "Rule-based suggestion using detected skills and interests."
	parseFailureMessage   = "Could not parse model output; provided a safe default."
)

const recommendSystemPrompt = "You are a senior career coach. Given a user's profile, interests, and retrieved context, recommend a career path and a concrete plan." +
	" Respond only with strict JSON keys: recommended_career (string), justification (string)," +
	" learning_path (array of strings), next_steps (array of strings)."

// Recommendation is a suggested career with a plan. Lists are never nil.
type Recommendation struct {
	RecommendedCareer string   `json:"recommended_career"`
	Justification     string   `json:"justification"`
	LearningPath      []string `json:"learning_path"`
	NextSteps         []string `json:"next_steps"`
}

// SafeDefault is returned when model output holds no JSON object.
func SafeDefault() Recommendation {
	return Recommendation{
		RecommendedCareer: CareerExploreOptions,
		Justification:     parseFailureMessage,
		LearningPath:      []string{},
		NextSteps:         []string{},
	}
}

// Generator recommends careers with a model when available, and with
// Fallback otherwise.
type Generator struct {
	gen             llm.Capability
	maxContextChars int
	logger          *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxContextChars bounds the context passed to the model.
func WithMaxContextChars(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxContextChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator.
func NewGenerator(gen llm.Capability, opts ...Option) *Generator {
	g := &Generator{gen: gen, maxContextChars: DefaultMaxContextChars, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Recommend uses Fallback when no model is configured. Unparseable model
// output gives SafeDefault; an error from the model call is returned.
func (g *Generator) Recommend(ctx context.Context, p profile.Profile, interests []string, contextText string) (Recommendation, error) {
	client, ok := g.gen.Client()
	if !ok {
		return Fallback(p, interests), nil
	}

	raw, err := client.Complete(ctx, llm.Request{
		System:      recommendSystemPrompt,
		User:        g.userPrompt(p, interests, contextText),
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		return Recommendation{}, fmt.Errorf("generating recommendation: %w", err)
	}

	obj, err := llm.ParseJSONObject(raw)
	if err != nil {
		g.logger.Warn("unparseable recommendation output", zap.Error(err), zap.Int("chars", len(raw)))
		return SafeDefault(), nil
	}
	rec := Recommendation{
		RecommendedCareer: llm.StringField(obj, "recommended_career"),
		Justification:     llm.StringField(obj, "justification"),
		LearningPath:      llm.ListField(obj, "learning_path"),
		NextSteps:         llm.ListField(obj, "next_steps"),
	}
	if _, present := obj["recommended_career"]; !present {
		rec.RecommendedCareer = CareerExploreOptions
	}
	return rec, nil
}

func (g *Generator) userPrompt(p profile.Profile, interests []string, contextText string) string {
	var b strings.Builder
	b.WriteString("Profile summary: " + p.Summary + "\n")
	b.WriteString("Skills: " + strings.Join(p.Skills, ", ") + "\n")
	b.WriteString("Interests: " + strings.Join(interests, ", ") + "\n")
	b.WriteString("Retrieved context (from user's history/embeddings):\n")
	b.WriteString(BoundContext(contextText, g.maxContextChars) + "\n")
	b.WriteString("Return ONLY JSON.")
	return b.String()
}

// BoundContext cleans text and keeps at most max runes.
func BoundContext(text string, max int) string {
	text = profile.CleanText(text)
	runes := []rune(text)
	if max > 0 && len(runes) > max {
		return string(runes[:max])
	}
	return text
}
