package profile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/llm"
)

const extractSystemPrompt = "You are an expert career analyst. Read the user's CV/resume text and extract a JSON with keys:" +
	" summary (2-3 sentences), skills (array of concise skill names), experience (array of role highlights)," +
	" education (array of degree/program entries). Return ONLY valid JSON."

// maxPromptChars bounds the résumé text sent to the model.
const maxPromptChars = 12000

// Extractor turns résumé text into a Profile, with a model when one is
// available and the heuristic otherwise.
type Extractor struct {
	gen    llm.Capability
	logger *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(gen llm.Capability, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{gen: gen, logger: logger}
}

// Extract uses the heuristic when no model is configured. Unparseable model
// output gives the truncated text as summary with empty lists; an error from
// the model call is returned.
func (e *Extractor) Extract(ctx context.Context, text string) (Profile, error) {
	text = CleanText(text)

	client, ok := e.gen.Client()
	if !ok {
		return Heuristic(text), nil
	}

	raw, err := client.Complete(ctx, llm.Request{
		System:      extractSystemPrompt,
		User:        "CV Text:\n" + prefix(text, maxPromptChars),
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		return Profile{}, fmt.Errorf("extracting profile: %w", err)
	}

	obj, err := llm.ParseJSONObject(raw)
	if err != nil {
		e.logger.Warn("unparseable profile output", zap.Error(err), zap.Int("chars", len(raw)))
		p := Empty()
		p.Summary = Truncate(text, summaryLimit)
		return p, nil
	}
	return Profile{
		Summary:    llm.StringField(obj, "summary"),
		Skills:     llm.ListField(obj, "skills"),
		Experience: llm.ListField(obj, "experience"),
		Education:  llm.ListField(obj, "education"),
	}, nil
}

// prefix returns at most n runes of s.
func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
