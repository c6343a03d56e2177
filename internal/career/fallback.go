package career

import (
	"strings"

	"github.com/fyrsmithlabs/careerd/internal/profile"
)

var (
	analystSkills   = []string{"sql", "excel"}
	scientistSkills = []string{"python", "ml", "pandas"}
	engineerSkills  = []string{"java", "c++", "javascript", "python"}
)

// Fallback is the deterministic recommendation used without a model. The
// first rule whose skills intersect the profile wins.
func Fallback(p profile.Profile, _ []string) Recommendation {
	skills := skillSet(p.Skills)

	career := CareerExploreOptions
	switch {
	case hasAny(skills, analystSkills):
		career = CareerDataAnalyst
	case hasAny(skills, scientistSkills):
		career = CareerDataScientist
	case hasAny(skills, engineerSkills):
		career = CareerSoftwareEngineer
	}

	return Recommendation{
		RecommendedCareer: career,
		Justification:     fallbackJustification,
		LearningPath: []string{
			"Clarify target roles and domains",
			"Close key skill gaps via curated courses",
			"Build one portfolio project aligned with role",
			"Network and apply to 5-10 roles/week",
		},
		NextSteps: []string{"Draft a tailored resume", "Update LinkedIn", "Schedule mock interviews"},
	}
}

// skillSet lowercases skills. Entries that hold a comma-joined list, as
// stored metadata does, are split first.
func skillSet(skills []string) map[string]struct{} {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		for _, part := range strings.Split(s, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				set[part] = struct{}{}
			}
		}
	}
	return set
}

func hasAny(set map[string]struct{}, keys []string) bool {
	for _, k := range keys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}
