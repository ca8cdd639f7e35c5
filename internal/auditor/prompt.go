package auditor

import (
	"fmt"
	"strings"

	"github.com/ent0n29/isoauditor/internal/conversation"
	"github.com/ent0n29/isoauditor/internal/topics"
)

const auditorRole = `You are an expert internal auditor for the ISO/IEC 27001:2022 information security management standard.

You know the standard's clauses 4 to 10, the Annex A control groups and their controls, implementation guidance, and good practice for running an ISMS.

Reference material:
%s

Your job is to:
1. Answer questions about ISO/IEC 27001:2022 compliance.
2. Give practical implementation guidance.
3. Explain specific controls and what evidence an auditor expects for them.
4. Help with risk assessment and risk treatment.
5. Use the conversation context below to keep answers consistent with what was already discussed.
6. Refer back to earlier questions when the user builds on them.
7. Suggest the next steps that would improve the user's compliance posture.`

const auditorRules = `Guidelines:
- When the user refers to an earlier question, build on that answer instead of repeating it.
- Give accurate, actionable advice grounded in the standard. When unsure, say so and point to the official text.
- If a question is unrelated to ISO/IEC 27001:2022, decline politely and suggest contacting a certification body.`

// PromptInput is everything the system prompt is built from.
type PromptInput struct {
	Knowledge       string
	Context         []conversation.Message
	ComplianceFocus *string
	MaxChars        int
}

// BuildSystemPrompt renders the auditor role, the reference dictionary, the learner context and
// the replayed messages. Each replayed message is cut to MaxChars characters.
func BuildSystemPrompt(in PromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, auditorRole, in.Knowledge)
	b.WriteString("\n\n")

	if len(in.Context) > 0 {
		b.WriteString("Learner context:\n")
		fmt.Fprintf(&b, "The user has %d earlier messages in this session about ISO/IEC 27001:2022.\n", len(in.Context))
		if in.ComplianceFocus != nil && *in.ComplianceFocus != "" {
			fmt.Fprintf(&b, "Their current compliance focus is %s.\n", *in.ComplianceFocus)
		}
		b.WriteString("Tailor the answer to what they have already learned.\n\n")

		b.WriteString("Recent conversation:\n")
		for _, msg := range in.Context {
			fmt.Fprintf(&b, "%s: %s\n", speaker(msg.Role), topics.Truncate(msg.Content, in.MaxChars))
		}
		b.WriteString("\n")
	}

	b.WriteString(auditorRules)
	return b.String()
}

func speaker(role string) string {
	if role == conversation.RoleUser {
		return "User"
	}
	return "Auditor"
}
