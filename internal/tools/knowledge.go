package tools

import (
	"context"

	"QueryChain/internal/knowledge"
	"QueryChain/internal/value"
)

// KnowledgeName is the registry name of the knowledge base tool.
const KnowledgeName = "knowledge_base"

// Knowledge answers kb_lookup(query) from a knowledge provider.
type Knowledge struct {
	*Tool
	provider knowledge.Provider
}

// NewKnowledge builds the knowledge base tool.
func NewKnowledge(provider knowledge.Provider) *Knowledge {
	k := &Knowledge{provider: provider}
	k.Tool = NewTool(KnowledgeName, map[string]Operation{
		"kb_lookup": k.lookup,
	})
	return k
}

func (k *Knowledge) lookup(_ context.Context, args Args) (value.Value, error) {
	subject, err := args.Text("query")
	if err != nil {
		return value.Value{}, err
	}
	if k.provider == nil {
		return value.Value{}, Fail(KindUnavailable, "knowledge base not configured")
	}
	entry, ok := k.provider.Lookup(subject)
	if !ok {
		return value.Value{}, Fail(KindLookupMiss, "no entry found for %s", subject)
	}
	return value.Text(entry.Summary), nil
}
