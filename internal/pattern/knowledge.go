package pattern

import (
	"regexp"
	"strings"

	"QueryChain/internal/plan"
)

// KnowledgeRequest names the subject of a knowledge base lookup.
type KnowledgeRequest struct {
	Subject string
}

var knowledgeShapes = []*regexp.Regexp{
	regexp.MustCompile(`\bwho\s+(?:is|was)\s+([a-z][a-z\s.'-]*)`),
	regexp.MustCompile(`\bwhat\s+(?:is|are|was)\s+([a-z][a-z\s.'-]*)`),
	regexp.MustCompile(`\btell\s+me\s+about\s+([a-z][a-z\s.'-]*)`),
}

var articleRE = regexp.MustCompile(`^(?:a|an|the)\s+`)

// NewKnowledge recognises who-is, what-is and tell-me-about questions.
func NewKnowledge(priority int) *Rule[KnowledgeRequest] {
	return NewRule("knowledge_base", priority, matchAny(knowledgeShapes), ExtractKnowledge, BuildKnowledge)
}

// ExtractKnowledge returns the subject of a question.
func ExtractKnowledge(text string) (KnowledgeRequest, error) {
	for _, re := range knowledgeShapes {
		if m := re.FindStringSubmatch(text); m != nil {
			subject := strings.Trim(m[1], edgeTrimSet)
			subject = articleRE.ReplaceAllString(subject, "")
			if subject != "" {
				return KnowledgeRequest{Subject: subject}, nil
			}
		}
	}
	return KnowledgeRequest{}, failf("no subject found in %q", text)
}

// BuildKnowledge turns a request into one kb_lookup step.
func BuildKnowledge(req KnowledgeRequest) (*plan.Plan, error) {
	step := plan.Step{
		Tool:        "knowledge_base",
		Operation:   "kb_lookup",
		Params:      map[string]plan.Param{"query": plan.Text(req.Subject)},
		Description: "Look up information about " + req.Subject,
	}
	return plan.New(plan.KindSingle, step.Description, []plan.Step{step})
}
