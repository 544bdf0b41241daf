// Package agent answers natural-language questions. It normalizes the text,
// selects and compiles a plan through the pattern registry, executes it on the
// engine and substitutes the fallback answer when either step fails. Every
// answer is recorded with its outcome reason.
package agent
