package session

import (
	"sort"

	"github.com/ent0n29/isoauditor/internal/memory"
)

// Group folds turns of one user into per-session infos, most recently active first.
func Group(turns []memory.Turn) []Info {
	index := make(map[string]int)
	out := make([]Info, 0)
	for _, t := range turns {
		i, ok := index[t.SessionID]
		if !ok {
			index[t.SessionID] = len(out)
			out = append(out, Info{
				SessionID:    t.SessionID,
				CreatedAt:    t.CreatedAt,
				LastActivity: t.CreatedAt,
			})
			i = len(out) - 1
		}
		info := &out[i]
		info.MessageCount++
		if t.CreatedAt.Before(info.CreatedAt) {
			info.CreatedAt = t.CreatedAt
		}
		if t.CreatedAt.After(info.LastActivity) {
			info.LastActivity = t.CreatedAt
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].LastActivity.After(out[b].LastActivity)
	})
	return out
}
