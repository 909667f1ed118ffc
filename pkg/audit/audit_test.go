package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"depsentry/pkg/diag"
)

const testMetadata = `{
  "packages": [
    {
      "name": "app",
      "version": "0.1.0",
      "manifest_path": "/ws/app/Cargo.toml",
      "dependencies": [
        {"name": "rand", "version": "0.7.3"},
        {"name": "rand", "version": "0.8.5"}
      ]
    },
    {
      "name": "rand",
      "version": "0.7.3",
      "source": "registry",
      "manifest_path": "/registry/rand-0.7.3/Cargo.toml"
    },
    {
      "name": "rand",
      "version": "0.8.5",
      "source": "registry",
      "manifest_path": "/registry/rand-0.8.5/Cargo.toml"
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestRun_DefaultPolicy(t *testing.T) {
	dir := t.TempDir()
	metadata := writeFile(t, dir, "metadata.json", testMetadata)

	res, err := Run(metadata, "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Graph.Len() != 3 {
		t.Errorf("Expected 3 crates, got %d", res.Graph.Len())
	}

	// The default policy warns on the duplicate rand versions but the run
	// does not fail.
	if res.Failed() {
		t.Error("Warnings alone should not fail the audit")
	}

	var warned bool
	for _, d := range res.Findings {
		if d.Diagnostic.Severity == diag.SeverityWarning &&
			strings.Contains(d.Diagnostic.Message, "rand") {
			warned = true
		}
	}
	if !warned {
		t.Error("Expected a duplicate-version warning for rand")
	}

	// Default highlight renders a tree per duplicate version.
	if len(res.Trees) != 2 {
		t.Errorf("Expected 2 provenance trees, got %d", len(res.Trees))
	}
}

func TestRun_DenyFailsAudit(t *testing.T) {
	dir := t.TempDir()
	metadata := writeFile(t, dir, "metadata.json", testMetadata)
	policy := writeFile(t, dir, "policy.toml", `multiple-versions = "allow"

[[deny]]
name = "rand"
`)

	res, err := Run(metadata, policy)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !res.Failed() {
		t.Error("Expected the audit to fail on the denied crate")
	}

	errs := 0
	for _, d := range res.Findings {
		if d.Diagnostic.Severity == diag.SeverityError {
			errs++
		}
	}
	if errs != 2 {
		t.Errorf("Expected both rand versions denied, got %d errors", errs)
	}
}

func TestRun_ConflictingPolicyStopsBeforeCheck(t *testing.T) {
	dir := t.TempDir()
	metadata := writeFile(t, dir, "metadata.json", testMetadata)
	policy := writeFile(t, dir, "policy.toml", `[[deny]]
name = "rand"

[[skip]]
name = "rand"
`)

	res, err := Run(metadata, policy)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.ConfigDiags) != 1 {
		t.Fatalf("Expected 1 config conflict, got %d", len(res.ConfigDiags))
	}
	if res.Config != nil {
		t.Error("A conflicting policy must not produce a validated config")
	}
	if len(res.Findings) != 0 {
		t.Error("The check must not run on a conflicting policy")
	}
	if !res.Failed() {
		t.Error("Config conflicts should fail the audit")
	}

	// The conflict anchors into the policy file text.
	d := res.ConfigDiags[0]
	if got := res.Files.Slice(d.Primary.File, d.Primary.Span); got != `"rand"` {
		t.Errorf("Primary label sliced to %q, expected '\"rand\"'", got)
	}
}

func TestRun_MissingMetadata(t *testing.T) {
	if _, err := Run(filepath.Join(t.TempDir(), "missing.json"), ""); err == nil {
		t.Error("Expected error for missing metadata file")
	}
}

func TestWhy(t *testing.T) {
	dir := t.TempDir()
	metadata := writeFile(t, dir, "metadata.json", testMetadata)

	g, err := Run(metadata, "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	tree, err := Why(g.Graph, "rand@=0.7.3")
	if err != nil {
		t.Fatalf("Why() error = %v", err)
	}

	if !strings.HasPrefix(tree, "rand v0.7.3\n") {
		t.Errorf("Tree should be rooted at the selected crate, got:\n%s", tree)
	}
	if !strings.Contains(tree, "app v0.1.0") {
		t.Errorf("Tree should include the consumer, got:\n%s", tree)
	}
}

func TestParseTarget(t *testing.T) {
	id, err := ParseTarget("serde")
	if err != nil {
		t.Fatalf("ParseTarget() error = %v", err)
	}
	if id.Name != "serde" || !id.Version.IsAny() {
		t.Errorf("Expected name-only selector, got %v", id)
	}

	id, err = ParseTarget("serde@^1.0")
	if err != nil {
		t.Fatalf("ParseTarget() error = %v", err)
	}
	if id.Version == nil || id.Version.Original != "^1.0" {
		t.Errorf("Expected ^1.0 constraint, got %v", id.Version)
	}

	if _, err := ParseTarget(""); err == nil {
		t.Error("Expected error for empty selector")
	}
	if _, err := ParseTarget("serde@not a constraint"); err == nil {
		t.Error("Expected error for invalid constraint")
	}
}

func TestReportFlattensFindings(t *testing.T) {
	dir := t.TempDir()
	metadata := writeFile(t, dir, "metadata.json", testMetadata)

	res, err := Run(metadata, "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rep := res.Report()
	if rep.Crates != 3 {
		t.Errorf("Report crates = %d, expected 3", rep.Crates)
	}
	if rep.Warnings == 0 {
		t.Error("Report should count the duplicate-version warning")
	}
	if rep.Failed {
		t.Error("Report should not be failed for warnings")
	}
	if len(rep.Findings) != len(res.Findings) {
		t.Errorf("Report flattened %d findings, expected %d", len(rep.Findings), len(res.Findings))
	}
}
