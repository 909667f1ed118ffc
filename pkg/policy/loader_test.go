package policy

import (
	"strings"
	"testing"

	"depsentry/pkg/diag"
)

const samplePolicy = `multiple-versions = "deny"
highlight = "lowest-version"

[[deny]]
name = "openssl"

[[deny]]
name = "git2"
version = "<0.18"

[[allow]]
name = "serde"

[[skip]]
name = "rand"
version = "=0.7.3"

[[skip-tree]]
name = "dev-helper"
depth = 2
`

func TestParse(t *testing.T) {
	files := diag.NewFiles()

	cfg, fileID, err := Parse("policy.toml", []byte(samplePolicy), files)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.MultipleVersions != LintDeny {
		t.Errorf("multiple-versions = %v, expected deny", cfg.MultipleVersions)
	}
	if cfg.Highlight != HighlightLowestVersion {
		t.Errorf("highlight = %v, expected lowest-version", cfg.Highlight)
	}

	if len(cfg.Deny) != 2 {
		t.Fatalf("Expected 2 deny entries, got %d", len(cfg.Deny))
	}
	if cfg.Deny[0].Value.Name != "openssl" {
		t.Errorf("First deny entry = %q, expected 'openssl'", cfg.Deny[0].Value.Name)
	}
	if cfg.Deny[1].Value.Version == nil || cfg.Deny[1].Value.Version.Original != "<0.18" {
		t.Errorf("Second deny entry should carry the <0.18 constraint, got %v", cfg.Deny[1].Value.Version)
	}

	if len(cfg.Allow) != 1 || len(cfg.Skip) != 1 {
		t.Errorf("Expected 1 allow and 1 skip entry, got %d and %d", len(cfg.Allow), len(cfg.Skip))
	}

	if len(cfg.SkipTree) != 1 {
		t.Fatalf("Expected 1 skip-tree entry, got %d", len(cfg.SkipTree))
	}
	ts := cfg.SkipTree[0].Value
	if ts.ID.Name != "dev-helper" {
		t.Errorf("skip-tree name = %q, expected 'dev-helper'", ts.ID.Name)
	}
	if ts.Depth == nil || *ts.Depth != 2 {
		t.Errorf("skip-tree depth = %v, expected 2", ts.Depth)
	}

	if files.Name(fileID) != "policy.toml" {
		t.Errorf("File registered as %q, expected 'policy.toml'", files.Name(fileID))
	}
}

func TestParse_EntrySpansCoverQuotedName(t *testing.T) {
	files := diag.NewFiles()

	cfg, fileID, err := Parse("policy.toml", []byte(samplePolicy), files)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// Each entry span slices back to the quoted crate name it was parsed
	// from, in its own table.
	for _, d := range cfg.Deny {
		got := files.Slice(fileID, d.Span)
		expected := `"` + d.Value.Name + `"`
		if got != expected {
			t.Errorf("Deny span sliced to %q, expected %s", got, expected)
		}
	}

	// The two deny entries must not share a span.
	if cfg.Deny[0].Span == cfg.Deny[1].Span {
		t.Error("Distinct entries should have distinct spans")
	}
}

func TestParse_Defaults(t *testing.T) {
	files := diag.NewFiles()

	cfg, _, err := Parse("policy.toml", []byte(""), files)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.MultipleVersions != LintWarn {
		t.Errorf("Default multiple-versions should be warn, got %v", cfg.MultipleVersions)
	}
	if cfg.Highlight != HighlightAll {
		t.Errorf("Default highlight should be all, got %v", cfg.Highlight)
	}
}

func TestParse_Invalid(t *testing.T) {
	files := diag.NewFiles()

	cases := map[string]string{
		"malformed toml": "[[deny]\nname =",
		"bad lint level": `multiple-versions = "fatal"`,
		"bad highlight":  `highlight = "prettiest"`,
		"nameless entry": "[[deny]]\nversion = \"1.0\"",
		"bad constraint": "[[deny]]\nname = \"x\"\nversion = \"not a constraint\"",
	}

	for label, text := range cases {
		if _, _, err := Parse("policy.toml", []byte(text), files); err == nil {
			t.Errorf("%s: expected error, got nil", label)
		}
	}
}

func TestParse_UnlocatableEntryGetsZeroSpan(t *testing.T) {
	files := diag.NewFiles()

	// Single-quoted TOML strings parse fine but defeat the quoted-name scan;
	// the entry falls back to a zero span instead of failing.
	text := "[[deny]]\nname = 'openssl'\n"
	cfg, _, err := Parse("policy.toml", []byte(text), files)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(cfg.Deny) != 1 {
		t.Fatalf("Expected 1 deny entry, got %d", len(cfg.Deny))
	}
	if cfg.Deny[0].Span.Start != 0 || cfg.Deny[0].Span.End != 0 {
		t.Errorf("Expected zero span fallback, got %v", cfg.Deny[0].Span)
	}
	if !strings.Contains(text, "'openssl'") {
		t.Fatal("Fixture must keep the single-quoted form")
	}
}
