package topics

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/isoauditor/internal/memory"
)

func turns(pairs ...string) []memory.Turn {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]memory.Turn, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, memory.Turn{
			ID:        string(rune('a' + i/2)),
			Query:     pairs[i],
			Response:  pairs[i+1],
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil)
	if got.TotalExchanges != 0 || got.SessionStart != nil || got.ComplianceFocus != nil {
		t.Fatalf("Summarize(nil) = %+v", got)
	}
	if got.TopicsDiscussed == nil || got.RecentQueries == nil {
		t.Fatalf("empty summary should carry empty lists")
	}
}

func TestSummarizeTopicsFirstSeenOrder(t *testing.T) {
	in := turns(
		"How do I write an access policy?", "Start from the scope.",
		"What about risk assessment?", "Identify assets first.",
		"Another policy question", "Sure.",
	)
	got := Summarize(in)
	want := []string{"policy", "risk assessment"}
	if !reflect.DeepEqual(got.TopicsDiscussed, want) {
		t.Fatalf("TopicsDiscussed = %v, want %v", got.TopicsDiscussed, want)
	}
	if got.TotalExchanges != 3 {
		t.Fatalf("TotalExchanges = %d, want 3", got.TotalExchanges)
	}
	if got.SessionStart == nil || !got.SessionStart.Equal(in[0].CreatedAt) {
		t.Fatalf("SessionStart = %v, want %v", got.SessionStart, in[0].CreatedAt)
	}
}

func TestSummarizeFocusLastMatchingTurnWins(t *testing.T) {
	got := Summarize(turns(
		"Explain the risk assessment method", "ok",
		"And the audit plan?", "ok",
		"Thanks", "You're welcome",
	))
	if got.ComplianceFocus == nil || *got.ComplianceFocus != AuditPreparation {
		t.Fatalf("ComplianceFocus = %v, want %q", got.ComplianceFocus, AuditPreparation)
	}
}

func TestSummarizeFocusRulePriorityWithinTurn(t *testing.T) {
	got := Summarize(turns("audit of our control set", "Each control needs evidence."))
	if got.ComplianceFocus == nil || *got.ComplianceFocus != ControlImplementation {
		t.Fatalf("ComplianceFocus = %v, want %q", got.ComplianceFocus, ControlImplementation)
	}
}

func TestSummarizeRecentQueriesTruncated(t *testing.T) {
	long := strings.Repeat("x", 120)
	got := Summarize(turns(
		"q1", "r", "q2", "r", "q3", "r", "q4", "r", "q5", "r", long, "r",
	))
	if len(got.RecentQueries) != 5 {
		t.Fatalf("len(RecentQueries) = %d, want 5", len(got.RecentQueries))
	}
	if got.RecentQueries[0] != "q2" {
		t.Fatalf("RecentQueries[0] = %q, want q2", got.RecentQueries[0])
	}
	if want := strings.Repeat("x", 100) + "..."; got.RecentQueries[4] != want {
		t.Fatalf("RecentQueries[4] = %q, want %q", got.RecentQueries[4], want)
	}
}

func TestSummarizeIsDeterministic(t *testing.T) {
	in := turns("risk assessment and policy", "control objectives", "incident?", "see procedure")
	a := Summarize(in)
	b := Summarize(in)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Summarize not deterministic: %+v vs %+v", a, b)
	}
}

func TestAssessProgressBeginnerScenario(t *testing.T) {
	got := AssessProgress(turns(
		"How do I run a risk assessment?", "Define criteria and scope.",
		"Do I need a policy?", "Yes, a top-level one.",
	))
	if got.LearningLevel != LevelBeginner {
		t.Fatalf("LearningLevel = %q, want %q", got.LearningLevel, LevelBeginner)
	}
	wantCovered := []string{RiskAssessment, PolicyDevelopment}
	if !reflect.DeepEqual(got.TopicsCovered, wantCovered) {
		t.Fatalf("TopicsCovered = %v, want %v", got.TopicsCovered, wantCovered)
	}
	wantNext := []string{ControlImplementation, AuditPreparation, IncidentManagement}
	if !reflect.DeepEqual(got.SuggestedNextSteps, wantNext) {
		t.Fatalf("SuggestedNextSteps = %v, want %v", got.SuggestedNextSteps, wantNext)
	}
	if got.TotalConversations != 2 {
		t.Fatalf("TotalConversations = %d, want 2", got.TotalConversations)
	}
}

func TestAssessProgressAdvanced(t *testing.T) {
	got := AssessProgress(turns(
		"risk assessment", "", "control", "", "policy", "",
		"audit", "", "incident", "", "business continuity", "",
	))
	if got.LearningLevel != LevelAdvanced {
		t.Fatalf("LearningLevel = %q, want %q", got.LearningLevel, LevelAdvanced)
	}
	want := []string{AssetManagement, AccessControl, DataProtection}
	if !reflect.DeepEqual(got.SuggestedNextSteps, want) {
		t.Fatalf("SuggestedNextSteps = %v, want %v", got.SuggestedNextSteps, want)
	}
}

func TestAssessProgressEmpty(t *testing.T) {
	got := AssessProgress(nil)
	if got.LearningLevel != LevelBeginner || got.TotalConversations != 0 {
		t.Fatalf("AssessProgress(nil) = %+v", got)
	}
	if len(got.SuggestedNextSteps) != 3 {
		t.Fatalf("SuggestedNextSteps = %v, want first three topics", got.SuggestedNextSteps)
	}
}

func TestLevelThresholds(t *testing.T) {
	cases := map[int]string{0: LevelBeginner, 2: LevelBeginner, 3: LevelIntermediate, 5: LevelIntermediate, 6: LevelAdvanced}
	for n, want := range cases {
		if got := Level(n); got != want {
			t.Fatalf("Level(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé..." {
		t.Fatalf("Truncate() = %q, want hé...", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("Truncate() = %q, want short", got)
	}
}
