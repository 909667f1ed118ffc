package policy

import (
	"sort"
	"strings"
	"testing"

	"depsentry/pkg/crates"
	"depsentry/pkg/diag"
	"depsentry/pkg/semver"
)

func spanned(t *testing.T, name, constraint string, start int) crates.Spanned[crates.ID] {
	t.Helper()
	id := crates.NewID(name)
	if constraint != "" {
		c, err := semver.ParseConstraint(constraint)
		if err != nil {
			t.Fatalf("ParseConstraint(%q) error = %v", constraint, err)
		}
		id.Version = c
	}
	return crates.WithSpan(id, crates.Span{Start: start, End: start + len(name)})
}

func TestParseLintLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LintLevel
	}{
		{"", LintWarn},
		{"allow", LintAllow},
		{"warn", LintWarn},
		{"deny", LintDeny},
	}

	for _, tt := range tests {
		level, err := ParseLintLevel(tt.input)
		if err != nil {
			t.Errorf("ParseLintLevel(%q) error = %v", tt.input, err)
		}
		if level != tt.expected {
			t.Errorf("ParseLintLevel(%q) = %v, expected %v", tt.input, level, tt.expected)
		}
	}

	if _, err := ParseLintLevel("fatal"); err == nil {
		t.Error("Expected error for unknown lint level")
	}
}

func TestLintLevelSeverity(t *testing.T) {
	if LintDeny.Severity() != diag.SeverityError {
		t.Error("deny should map to error severity")
	}
	if LintWarn.Severity() != diag.SeverityWarning {
		t.Error("warn should map to warning severity")
	}
	if LintAllow.Severity() != diag.SeverityNote {
		t.Error("allow should map to note severity")
	}
}

func TestParseGraphHighlight(t *testing.T) {
	tests := []struct {
		input    string
		expected GraphHighlight
	}{
		{"", HighlightAll},
		{"all", HighlightAll},
		{"simplest-path", HighlightSimplestPath},
		{"lowest-version", HighlightLowestVersion},
	}

	for _, tt := range tests {
		h, err := ParseGraphHighlight(tt.input)
		if err != nil {
			t.Errorf("ParseGraphHighlight(%q) error = %v", tt.input, err)
		}
		if h != tt.expected {
			t.Errorf("ParseGraphHighlight(%q) = %v, expected %v", tt.input, h, tt.expected)
		}
	}

	if _, err := ParseGraphHighlight("bogus"); err == nil {
		t.Error("Expected error for unknown highlight mode")
	}
}

func TestValidate_CleanConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Deny = []crates.Spanned[crates.ID]{
		spanned(t, "openssl", "", 10),
	}
	cfg.Allow = nil
	cfg.Skip = []crates.Spanned[crates.ID]{
		spanned(t, "rand", "=0.7.3", 40),
	}

	vc, conflicts := cfg.Validate(0)
	if len(conflicts) != 0 {
		t.Fatalf("Expected no conflicts, got %d", len(conflicts))
	}
	if vc == nil {
		t.Fatal("Expected a validated config")
	}

	if len(vc.Denied) != 1 || len(vc.Skipped) != 1 {
		t.Errorf("Validated lists lost entries: %d denied, %d skipped", len(vc.Denied), len(vc.Skipped))
	}
}

func TestValidate_SortsLists(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Deny = []crates.Spanned[crates.ID]{
		spanned(t, "zeta", "", 0),
		spanned(t, "alpha", "", 20),
		spanned(t, "mid", "", 40),
	}

	vc, conflicts := cfg.Validate(0)
	if len(conflicts) != 0 {
		t.Fatalf("Expected no conflicts, got %d", len(conflicts))
	}

	if !sort.SliceIsSorted(vc.Denied, func(i, j int) bool {
		return vc.Denied[i].Value.Compare(vc.Denied[j].Value) < 0
	}) {
		t.Error("Denied list should be sorted by crate identity")
	}

	// The raw config is untouched.
	if cfg.Deny[0].Value.Name != "zeta" {
		t.Error("Validate must not mutate the raw config")
	}
}

func TestValidate_DenyAllowConflict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Deny = []crates.Spanned[crates.ID]{spanned(t, "serde", "", 10)}
	cfg.Allow = []crates.Spanned[crates.ID]{spanned(t, "serde", "", 50)}

	vc, conflicts := cfg.Validate(0)
	if vc != nil {
		t.Error("A conflicting config must not produce a validated config")
	}
	if len(conflicts) != 1 {
		t.Fatalf("Expected 1 conflict, got %d", len(conflicts))
	}

	d := conflicts[0]
	if d.Severity != diag.SeverityError {
		t.Errorf("Conflict should be an error, got %v", d.Severity)
	}

	// The earlier-declared category is named first in the message.
	if !strings.Contains(d.Message, "both `deny` and `allow`") {
		t.Errorf("Unexpected conflict message: %q", d.Message)
	}

	// The later declaration is the primary label.
	if d.Primary.Span.Start != 50 {
		t.Errorf("Primary label should anchor the later declaration, got span start %d", d.Primary.Span.Start)
	}
	if len(d.Secondary) != 1 || d.Secondary[0].Span.Start != 10 {
		t.Errorf("Secondary label should anchor the earlier declaration, got %v", d.Secondary)
	}
}

func TestValidate_PrimaryFollowsDeclarationOrder(t *testing.T) {
	// Same conflict, but the allow entry is declared first: the deny entry
	// becomes the primary.
	cfg := DefaultConfig()
	cfg.Allow = []crates.Spanned[crates.ID]{spanned(t, "serde", "", 10)}
	cfg.Deny = []crates.Spanned[crates.ID]{spanned(t, "serde", "", 50)}

	_, conflicts := cfg.Validate(0)
	if len(conflicts) != 1 {
		t.Fatalf("Expected 1 conflict, got %d", len(conflicts))
	}

	d := conflicts[0]
	if !strings.Contains(d.Message, "both `allow` and `deny`") {
		t.Errorf("Unexpected conflict message: %q", d.Message)
	}
	if d.Primary.Span.Start != 50 {
		t.Errorf("Primary should be the later declaration, got span start %d", d.Primary.Span.Start)
	}
	if !strings.Contains(d.Primary.Message, "deny") {
		t.Errorf("Primary label should name the later category, got %q", d.Primary.Message)
	}
}

func TestValidate_ReportsAllConflicts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Deny = []crates.Spanned[crates.ID]{
		spanned(t, "serde", "", 0),
		spanned(t, "rand", "", 20),
	}
	cfg.Allow = []crates.Spanned[crates.ID]{spanned(t, "serde", "", 40)}
	cfg.Skip = []crates.Spanned[crates.ID]{spanned(t, "rand", "", 60)}

	vc, conflicts := cfg.Validate(0)
	if vc != nil {
		t.Error("Expected nil config on conflict")
	}
	if len(conflicts) != 2 {
		t.Fatalf("Expected both conflicts reported, got %d", len(conflicts))
	}
}

func TestValidate_DistinctConstraintsDoNotConflict(t *testing.T) {
	// The same name under different constraints is two distinct identities.
	cfg := DefaultConfig()
	cfg.Deny = []crates.Spanned[crates.ID]{spanned(t, "rand", "<0.8", 0)}
	cfg.Skip = []crates.Spanned[crates.ID]{spanned(t, "rand", "=0.8.5", 30)}

	vc, conflicts := cfg.Validate(0)
	if len(conflicts) != 0 {
		t.Fatalf("Expected no conflicts, got %d", len(conflicts))
	}
	if vc == nil {
		t.Fatal("Expected a validated config")
	}
}

func TestValidate_KeepsDuplicateEntries(t *testing.T) {
	// Duplicate entries within one category are kept, not deduplicated.
	cfg := DefaultConfig()
	cfg.Skip = []crates.Spanned[crates.ID]{
		spanned(t, "rand", "", 0),
		spanned(t, "rand", "", 20),
	}

	vc, conflicts := cfg.Validate(0)
	if len(conflicts) != 0 {
		t.Fatalf("Expected no conflicts, got %d", len(conflicts))
	}
	if len(vc.Skipped) != 2 {
		t.Errorf("Expected both duplicate entries kept, got %d", len(vc.Skipped))
	}
}
