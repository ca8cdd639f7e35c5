package topics

import (
	"time"

	"github.com/ent0n29/isoauditor/internal/memory"
)

const (
	maxTopicsDiscussed = 10
	maxRecentQueries   = 5
	recentQueryChars   = 100
)

// Summary is the keyword view of one session.
type Summary struct {
	TotalExchanges  int        `json:"total_exchanges"`
	SessionStart    *time.Time `json:"session_start"`
	TopicsDiscussed []string   `json:"topics_discussed"`
	ComplianceFocus *string    `json:"compliance_focus"`
	RecentQueries   []string   `json:"recent_queries"`
}

// Summarize derives a Summary from turns in log order. It reads nothing but its argument.
//
// ComplianceFocus is taken from the last turn that matches any focus rule.
func Summarize(turns []memory.Turn) Summary {
	out := Summary{
		TotalExchanges:  len(turns),
		TopicsDiscussed: []string{},
		RecentQueries:   []string{},
	}
	if len(turns) == 0 {
		return out
	}

	start := turns[0].CreatedAt
	out.SessionStart = &start

	seen := make(map[string]struct{}, len(SummaryKeywords))
	var focus string
	for _, turn := range turns {
		text := NewText(turn.Query, turn.Response)
		for _, kw := range SummaryKeywords {
			if _, ok := seen[kw]; ok || !text.Mentions(kw) {
				continue
			}
			seen[kw] = struct{}{}
			out.TopicsDiscussed = append(out.TopicsDiscussed, kw)
		}
		if f := FirstMatch(FocusRules, text); f != "" {
			focus = f
		}
	}
	if len(out.TopicsDiscussed) > maxTopicsDiscussed {
		out.TopicsDiscussed = out.TopicsDiscussed[:maxTopicsDiscussed]
	}
	if focus != "" {
		out.ComplianceFocus = &focus
	}

	tail := turns
	if len(tail) > maxRecentQueries {
		tail = tail[len(tail)-maxRecentQueries:]
	}
	for _, turn := range tail {
		out.RecentQueries = append(out.RecentQueries, Truncate(turn.Query, recentQueryChars))
	}
	return out
}

// Truncate cuts s to limit characters and marks the cut with "...".
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
