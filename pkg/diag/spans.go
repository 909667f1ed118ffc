package diag

import (
	"fmt"
	"path/filepath"
	"strings"

	"depsentry/pkg/crates"
	"depsentry/pkg/graph"
)

// CrateSpans maps each node of a resolved graph to a span in a synthesized
// text, one line per crate. No real configuration text names the crates, so
// diagnostics about a crate point into this synthesized rendering instead of
// a "no location" marker.
type CrateSpans struct {
	spans []crates.Span
}

// NewCrateSpans renders every crate of the graph, in canonical enumeration
// order, as a "<name> <version> <source-or-manifest-dir>" line and records
// the byte range of each line excluding its trailing newline. It returns the
// index and the synthesized text.
func NewCrateSpans(g *graph.CrateGraph) (*CrateSpans, string) {
	var sl strings.Builder
	sl.Grow(4 * 1024)

	spans := make([]crates.Span, 0, g.Len())
	for _, crate := range g.Crates() {
		start := sl.Len()
		origin := crate.Source
		if origin == "" {
			origin = filepath.Dir(crate.ManifestPath)
		}
		fmt.Fprintf(&sl, "%s %s %s\n", crate.Name, crate.Version, origin)

		spans = append(spans, crates.Span{Start: start, End: sl.Len() - 1})
	}

	return &CrateSpans{spans: spans}, sl.String()
}

// Span returns the span of the i-th node in canonical order.
func (cs *CrateSpans) Span(i int) crates.Span {
	return cs.spans[i]
}

// Len returns the number of recorded spans.
func (cs *CrateSpans) Len() int {
	return len(cs.spans)
}
