package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunPrintsAnswer(t *testing.T) {
	t.Setenv("QUERYCHAIN_CONFIG", "")
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	if err := run(context.Background(), []string{"What", "is", "15", "+", "25?"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "40.0" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestRunExplain(t *testing.T) {
	t.Setenv("QUERYCHAIN_CONFIG", "")
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-explain", "Convert 100 USD to EUR"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	if !strings.HasPrefix(text, "85.0\n") || !strings.Contains(text, "outcome:    answered") || !strings.Contains(text, "currency.currency_convert") {
		t.Fatalf("unexpected explain output:\n%s", text)
	}
}

func TestRunRequiresQuestion(t *testing.T) {
	if err := run(context.Background(), nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected usage error")
	}
}
