package topics

import "github.com/ent0n29/isoauditor/internal/memory"

const (
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelAdvanced     = "Advanced"

	maxSuggestions = 3
)

// Progress is the keyword view of a user's recent activity across sessions.
type Progress struct {
	TotalConversations int      `json:"total_conversations"`
	LearningLevel      string   `json:"learning_level"`
	TopicsCovered      []string `json:"topics_covered"`
	SuggestedNextSteps []string `json:"suggested_next_steps"`
}

// AssessProgress classifies turns by the progress rules. Order of turns does not matter.
func AssessProgress(turns []memory.Turn) Progress {
	covered := make(map[string]bool, len(ProgressRules))
	for _, turn := range turns {
		text := NewText(turn.Query, turn.Response)
		for _, r := range ProgressRules {
			if text.Mentions(r.Keyword) {
				covered[r.Topic] = true
			}
		}
	}

	out := Progress{
		TotalConversations: len(turns),
		LearningLevel:      Level(len(covered)),
		TopicsCovered:      []string{},
		SuggestedNextSteps: []string{},
	}
	for _, topic := range Universe {
		if covered[topic] {
			out.TopicsCovered = append(out.TopicsCovered, topic)
			continue
		}
		if len(out.SuggestedNextSteps) < maxSuggestions {
			out.SuggestedNextSteps = append(out.SuggestedNextSteps, topic)
		}
	}
	return out
}

// Level maps a count of covered categories to a learning level.
func Level(categories int) string {
	switch {
	case categories <= 2:
		return LevelBeginner
	case categories <= 5:
		return LevelIntermediate
	default:
		return LevelAdvanced
	}
}
