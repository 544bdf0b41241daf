package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleEntries() []Entry {
	return []Entry{
		{Name: "Ada Lovelace", Summary: "Ada Lovelace was an English mathematician known for her work on the Analytical Engine.", Keywords: []string{"analytical engine", "computing"}},
		{Name: "Marie Curie", Summary: "Marie Curie was a physicist and chemist who pioneered research on radioactivity.", Keywords: []string{"radioactivity"}},
	}
}

func TestLookupMatchesNameSubstring(t *testing.T) {
	p := NewStaticProvider(sampleEntries(), 0)

	entry, ok := p.Lookup("ada lovelace")
	if !ok || entry.Name != "Ada Lovelace" {
		t.Fatalf("expected Ada Lovelace, got %+v (found=%v)", entry, ok)
	}
	if _, ok := p.Lookup("Curie"); !ok {
		t.Fatalf("expected partial name match")
	}
	if _, ok := p.Lookup("SomeRandomPerson"); ok {
		t.Fatalf("expected miss for unknown subject")
	}
	if _, ok := p.Lookup("   "); ok {
		t.Fatalf("expected miss for empty subject")
	}
}

func TestQueryByKeyword(t *testing.T) {
	p := NewStaticProvider(sampleEntries(), 1)
	results := p.Query("history of computing and the analytical engine")
	if len(results) != 1 || results[0].Name != "Ada Lovelace" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if got := p.Query(""); got != nil {
		t.Fatalf("expected nil for empty query, got %+v", got)
	}
}

func TestNilProvider(t *testing.T) {
	var p *StaticProvider
	if _, ok := p.Lookup("ada"); ok {
		t.Fatalf("nil provider must miss")
	}
	if p.Len() != 0 {
		t.Fatalf("nil provider must be empty")
	}
}

func TestLoadStaticProvider(t *testing.T) {
	dir := t.TempDir()

	wrapped := filepath.Join(dir, "kb.json")
	if err := os.WriteFile(wrapped, []byte(`{"entries":[{"name":"Isaac Newton","summary":"Physicist."}]}`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	p, err := LoadStaticProvider(wrapped, 3)
	if err != nil {
		t.Fatalf("load wrapped: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", p.Len())
	}

	plain := filepath.Join(dir, "list.json")
	if err := os.WriteFile(plain, []byte(`[{"name":"Alan Turing","summary":"Mathematician."},{"name":"Grace Hopper","summary":"Computer scientist."}]`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	p, err = LoadStaticProvider(plain, 3)
	if err != nil {
		t.Fatalf("load list: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", p.Len())
	}

	if _, err := LoadStaticProvider("", 3); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadStaticProvider(filepath.Join(dir, "missing.json"), 3); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestQueryRanksNameMentionsFirst(t *testing.T) {
	p := NewStaticProvider([]Entry{
		{Name: "Grace Hopper", Keywords: []string{"compiler"}},
		{Name: "Alan Turing", Keywords: []string{"computing", "enigma"}},
	}, 5)
	results := p.Query("did grace hopper work on computing with the enigma?")
	if len(results) != 2 || results[0].Name != "Grace Hopper" || results[1].Name != "Alan Turing" {
		t.Fatalf("unexpected ranking: %+v", results)
	}
}

func TestLookupPrefersExactName(t *testing.T) {
	p := NewStaticProvider([]Entry{{Name: "Ada Lovelace Institute"}, {Name: "Ada Lovelace"}}, 0)
	entry, ok := p.Lookup("Ada Lovelace")
	if !ok || entry.Name != "Ada Lovelace" {
		t.Fatalf("expected exact match, got %+v", entry)
	}
}

func TestLoadStaticProviderYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	content := "entries:\n  - name: Alan Turing\n    summary: Mathematician.\n    keywords: [enigma]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	p, err := LoadStaticProvider(path, 3)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if got := p.Query("who broke enigma"); len(got) != 1 || got[0].Summary != "Mathematician." {
		t.Fatalf("unexpected yaml entries: %+v", got)
	}
}
