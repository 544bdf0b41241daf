// Package llm defines the provider-neutral contract for text generation. The
// agent uses it for prompt-driven tool steps and for the fallback responder;
// concrete providers live in sub-packages.
package llm
