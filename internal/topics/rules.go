// Package topics classifies conversation text against fixed keyword rule tables.
package topics

import "strings"

// Rule maps a lowercase keyword to a topic tag.
type Rule struct {
	Keyword string
	Topic   string
}

const (
	RiskAssessment        = "Risk Assessment"
	ControlImplementation = "Control Implementation"
	PolicyDevelopment     = "Policy Development"
	AuditPreparation      = "Audit Preparation"
	IncidentManagement    = "Incident Management"
	BusinessContinuity    = "Business Continuity"
	AssetManagement       = "Asset Management"
	AccessControl         = "Access Control"
	DataProtection        = "Data Protection"
	TrainingAwareness     = "Training & Awareness"
)

// SummaryKeywords are reported verbatim in topics_discussed, first seen first.
var SummaryKeywords = []string{
	"risk assessment",
	"control",
	"policy",
	"procedure",
	"audit",
	"compliance",
	"security",
	"incident",
	"business continuity",
	"access control",
	"data protection",
	"asset management",
}

// FocusRules decide a turn's compliance focus. Order matters: the first match in a turn wins.
var FocusRules = []Rule{
	{Keyword: "risk assessment", Topic: RiskAssessment},
	{Keyword: "control", Topic: ControlImplementation},
	{Keyword: "policy", Topic: PolicyDevelopment},
	{Keyword: "audit", Topic: AuditPreparation},
}

// ProgressRules are applied independently; every match counts as a covered category.
var ProgressRules = []Rule{
	{Keyword: "risk assessment", Topic: RiskAssessment},
	{Keyword: "control", Topic: ControlImplementation},
	{Keyword: "policy", Topic: PolicyDevelopment},
	{Keyword: "audit", Topic: AuditPreparation},
	{Keyword: "incident", Topic: IncidentManagement},
	{Keyword: "business continuity", Topic: BusinessContinuity},
}

// Universe is the full study plan in suggestion priority order.
var Universe = []string{
	RiskAssessment,
	ControlImplementation,
	PolicyDevelopment,
	AuditPreparation,
	IncidentManagement,
	BusinessContinuity,
	AssetManagement,
	AccessControl,
	DataProtection,
	TrainingAwareness,
}

// Text is one exchange prepared for matching.
type Text struct {
	query    string
	response string
}

func NewText(query, response string) Text {
	return Text{query: strings.ToLower(query), response: strings.ToLower(response)}
}

// Mentions reports whether keyword appears in the query or the response.
func (t Text) Mentions(keyword string) bool {
	return strings.Contains(t.query, keyword) || strings.Contains(t.response, keyword)
}

// FirstMatch returns the topic of the first rule that matches, or "".
func FirstMatch(rules []Rule, t Text) string {
	for _, r := range rules {
		if t.Mentions(r.Keyword) {
			return r.Topic
		}
	}
	return ""
}
