// Package profile extracts a structured profile from résumé text and
// reassembles it from stored documents.
package profile

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Profile is the structured résumé summary.
type Profile struct {
	Summary    string   `json:"summary"`
	Skills     []string `json:"skills"`
	Experience []string `json:"experience"`
	Education  []string `json:"education"`
}

// Empty returns a profile with empty, non-nil lists.
func Empty() Profile {
	return Profile{Skills: []string{}, Experience: []string{}, Education: []string{}}
}

const (
	summaryLimit = 500
	maxSkills    = 20
)

var whitespace = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace to one space and trims the ends.
func CleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// skillVocabulary is matched case-insensitively against résumé tokens.
var skillVocabulary = map[string]struct{}{
	"python": {}, "sql": {}, "excel": {}, "ml": {}, "nlp": {},
	"java": {}, "c++": {}, "javascript": {}, "pandas": {}, "numpy": {},
}

// Heuristic extracts a profile without a model. Tokens are split on
// whitespace and stripped of ",.;:" at both ends; those in the skill
// vocabulary are kept in their original case, deduplicated, sorted and
// capped at 20. The summary is the first 500 characters.
func Heuristic(text string) Profile {
	seen := map[string]struct{}{}
	skills := []string{}
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ",.;:")
		if tok == "" {
			continue
		}
		if _, ok := skillVocabulary[strings.ToLower(tok)]; !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		skills = append(skills, tok)
	}
	sort.Strings(skills)
	if len(skills) > maxSkills {
		skills = skills[:maxSkills]
	}

	p := Empty()
	p.Summary = Truncate(text, summaryLimit)
	p.Skills = skills
	return p
}

// Truncate returns the first n runes of s, followed by "..." when s was
// longer.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// ComposeText renders p as the stored profile document.
func ComposeText(p Profile) string {
	return "SUMMARY: " + p.Summary +
		"\nSKILLS: " + strings.Join(p.Skills, ", ") +
		"\nEXPERIENCE: " + strings.Join(p.Experience, " | ") +
		"\nEDUCATION: " + strings.Join(p.Education, " | ")
}
