package diag

import (
	"strings"
	"testing"

	"depsentry/pkg/crates"
	"depsentry/pkg/graph"
	"depsentry/pkg/semver"
)

func buildGraph(t *testing.T, specs ...[3]string) *graph.CrateGraph {
	t.Helper()
	g := graph.NewCrateGraph()
	for _, s := range specs {
		v, err := semver.ParseVersion(s[1])
		if err != nil {
			t.Fatalf("ParseVersion(%q) error = %v", s[1], err)
		}
		g.Add(&crates.Crate{Name: s[0], Version: v, Source: s[2], ManifestPath: "/ws/" + s[0] + "/Cargo.toml"})
	}
	return g
}

func TestCrateSpansRoundTrip(t *testing.T) {
	g := buildGraph(t,
		[3]string{"app", "0.1.0", ""},
		[3]string{"serde", "1.0.200", "registry"},
		[3]string{"rand", "0.8.5", "registry"},
	)

	spans, text := NewCrateSpans(g)

	if spans.Len() != g.Len() {
		t.Fatalf("Expected %d spans, got %d", g.Len(), spans.Len())
	}

	files := NewFiles()
	id := files.Add("resolved crates", text)

	// Each span slices back to exactly its crate's line, newline excluded.
	for i, crate := range g.Crates() {
		line := files.Slice(id, spans.Span(i))

		if strings.ContainsRune(line, '\n') {
			t.Errorf("Span %d covers a newline: %q", i, line)
		}
		if !strings.HasPrefix(line, crate.Name+" "+crate.Version.String()) {
			t.Errorf("Span %d = %q, expected it to start with %q", i, line, crate.Label())
		}
	}
}

func TestCrateSpansOriginFallsBackToManifestDir(t *testing.T) {
	// A path dependency has no source; its line names the manifest directory.
	g := buildGraph(t, [3]string{"app", "0.1.0", ""})

	spans, text := NewCrateSpans(g)

	files := NewFiles()
	id := files.Add("resolved crates", text)

	line := files.Slice(id, spans.Span(0))
	if !strings.HasSuffix(line, "/ws/app") {
		t.Errorf("Expected line to end with the manifest directory, got %q", line)
	}
}

func TestCrateSpansFollowCanonicalOrder(t *testing.T) {
	g := buildGraph(t,
		[3]string{"zeta", "1.0.0", "registry"},
		[3]string{"alpha", "1.0.0", "registry"},
	)

	_, text := NewCrateSpans(g)

	// Insertion order, not name order.
	if !strings.HasPrefix(text, "zeta ") {
		t.Errorf("Expected synthesized text to start with the first-added crate, got %q", text)
	}
}
