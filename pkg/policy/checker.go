package policy

import (
	"fmt"
	"sort"

	"depsentry/pkg/crates"
	"depsentry/pkg/diag"
	"depsentry/pkg/graph"
)

// CheckOptions carries the inputs of a policy check besides the validated
// config itself.
type CheckOptions struct {
	// Graph is the resolved dependency graph, treated as a read-only
	// snapshot.
	Graph *graph.CrateGraph
	// Spans indexes the synthesized crate text; SpansFile is the id that
	// text was registered under, so crate-level findings have a real anchor.
	Spans     *diag.CrateSpans
	SpansFile diag.FileID
	// TreeSink, when set, receives the rendered provenance tree of each
	// duplicate version selected by the config's highlight mode.
	TreeSink func(id crates.ID, tree string)
}

// Check runs the policy over every crate of the graph in canonical order and
// returns the findings. Policy application per crate: skip and skip-tree
// exemptions first, then deny, then the allow list (when one is present,
// unlisted crates are findings). Duplicate versions of a name are reported
// at the config's multiple-versions level.
func Check(cfg *ValidConfig, opts CheckOptions) ([]diag.Diag, error) {
	g := opts.Graph

	treeSkipped, err := treeSkipSet(cfg, g)
	if err != nil {
		return nil, err
	}

	var out []diag.Diag
	skipHits := make([]bool, len(cfg.Skipped))

	for i, crate := range g.Crates() {
		pack := diag.PackFor(crates.ExactID(crate))
		crateLabel := diag.NewLabel(opts.SpansFile, opts.Spans.Span(i), "")

		if idx, ok := matchCrate(cfg.Skipped, crate); ok {
			skipHits[idx] = true
			pack.PushDiagnostic(diag.NewNote(
				fmt.Sprintf("crate `%s` skipped per policy", crate.Label()),
				crateLabel,
			).WithSecondary(diag.NewLabel(cfg.FileID, cfg.Skipped[idx].Span, "skip entry")))
			out = append(out, pack.Drain()...)
			continue
		}

		if treeSkipped[int64(i)] {
			pack.PushDiagnostic(diag.NewNote(
				fmt.Sprintf("crate `%s` skipped by a skip-tree entry", crate.Label()),
				crateLabel,
			))
			out = append(out, pack.Drain()...)
			continue
		}

		if idx, ok := matchCrate(cfg.Denied, crate); ok {
			pack.PushDiagnostic(diag.NewError(
				fmt.Sprintf("crate `%s` is explicitly denied", crate.Label()),
				crateLabel,
			).WithSecondary(diag.NewLabel(cfg.FileID, cfg.Denied[idx].Span, "denied here")))
		}

		if len(cfg.Allowed) > 0 {
			if _, ok := matchCrate(cfg.Allowed, crate); !ok {
				pack.PushDiagnostic(diag.NewError(
					fmt.Sprintf("crate `%s` is not explicitly allowed", crate.Label()),
					crateLabel,
				))
			}
		}

		out = append(out, pack.Drain()...)
	}

	for i, hit := range skipHits {
		if !hit {
			out = append(out, diag.NewDiag(diag.NewWarning(
				fmt.Sprintf("skip entry `%s` matched no crate in the graph", cfg.Skipped[i].Value),
				diag.NewLabel(cfg.FileID, cfg.Skipped[i].Span, "unmatched skip entry"),
			)))
		}
	}

	dups, err := duplicateVersions(cfg, opts)
	if err != nil {
		return nil, err
	}
	out = append(out, dups...)

	return out, nil
}

// treeSkipSet collects every node exempted by a skip-tree entry: the
// matching roots plus their transitive dependencies, depth-limited when the
// entry sets a depth.
func treeSkipSet(cfg *ValidConfig, g *graph.CrateGraph) (map[int64]bool, error) {
	skipped := make(map[int64]bool)

	for _, ts := range cfg.TreeSkipped {
		for _, root := range g.NodesFor(ts.Value.ID) {
			maxDepth := -1 // unlimited
			if ts.Value.Depth != nil {
				maxDepth = *ts.Value.Depth
			}

			type visit struct {
				node  int64
				depth int
			}
			queue := []visit{{node: root}}
			seen := map[int64]bool{root: true}

			for len(queue) > 0 {
				v := queue[0]
				queue = queue[1:]
				skipped[v.node] = true

				if maxDepth >= 0 && v.depth >= maxDepth {
					continue
				}
				for _, dep := range g.Dependencies(v.node) {
					if !seen[dep.Node] {
						seen[dep.Node] = true
						queue = append(queue, visit{node: dep.Node, depth: v.depth + 1})
					}
				}
			}
		}
	}

	return skipped, nil
}

// duplicateVersions reports crate names resolved at more than one version.
func duplicateVersions(cfg *ValidConfig, opts CheckOptions) ([]diag.Diag, error) {
	if cfg.MultipleVersions == LintAllow {
		return nil, nil
	}

	g := opts.Graph

	byName := make(map[string][]int64)
	var names []string
	for i, crate := range g.Crates() {
		if _, seen := byName[crate.Name]; !seen {
			names = append(names, crate.Name)
		}
		byName[crate.Name] = append(byName[crate.Name], int64(i))
	}
	sort.Strings(names)

	var out []diag.Diag
	for _, name := range names {
		nodes := byName[name]
		if len(nodes) < 2 {
			continue
		}

		d := diag.Diagnostic{
			Severity: cfg.MultipleVersions.Severity(),
			Message:  fmt.Sprintf("found %d duplicate entries for crate `%s`", len(nodes), name),
			Primary:  diag.NewLabel(opts.SpansFile, opts.Spans.Span(int(nodes[0])), "first version"),
		}

		dd := diag.NewDiag(d)
		for _, n := range nodes {
			dd.Crates = append(dd.Crates, crates.ExactID(g.Crate(n)))
			if n != nodes[0] {
				dd.Diagnostic = dd.Diagnostic.WithSecondary(
					diag.NewLabel(opts.SpansFile, opts.Spans.Span(int(n)), "duplicate version"))
			}
		}
		out = append(out, dd)

		if opts.TreeSink != nil {
			if err := renderDuplicateTrees(cfg.Highlight, nodes, opts); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

// renderDuplicateTrees writes the provenance tree of the duplicates selected
// by the highlight mode: the lowest resolved version, the duplicate with the
// fewest consumer chains, or every duplicate.
func renderDuplicateTrees(h GraphHighlight, nodes []int64, opts CheckOptions) error {
	g := opts.Graph
	grapher := graph.NewGrapher(g)

	if h == HighlightAll {
		for _, n := range nodes {
			if err := emitTree(grapher, g, n, opts.TreeSink); err != nil {
				return err
			}
		}
		return nil
	}

	if h.LowestVersion() {
		lowest := nodes[0]
		for _, n := range nodes[1:] {
			if g.Crate(n).Version.Compare(g.Crate(lowest).Version) < 0 {
				lowest = n
			}
		}
		return emitTree(grapher, g, lowest, opts.TreeSink)
	}

	// Simplest path: the duplicate whose rendered tree has the fewest lines.
	simplest := nodes[0]
	best := -1
	for _, n := range nodes {
		id := crates.ExactID(g.Crate(n))
		tree, err := grapher.WriteGraph(id)
		if err != nil {
			return err
		}
		lines := countLines(tree)
		if best < 0 || lines < best {
			best = lines
			simplest = n
		}
	}
	return emitTree(grapher, g, simplest, opts.TreeSink)
}

func emitTree(grapher *graph.Grapher, g *graph.CrateGraph, node int64, sink func(crates.ID, string)) error {
	id := crates.ExactID(g.Crate(node))
	tree, err := grapher.WriteGraph(id)
	if err != nil {
		return err
	}
	sink(id, tree)
	return nil
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}

// matchCrate finds an entry in a list sorted by crate identity whose name
// equals the crate's and whose constraint matches its resolved version.
// Name equality narrows the candidates via binary search; the constraint
// check walks the name's run.
func matchCrate(xs []crates.Spanned[crates.ID], c *crates.Crate) (int, bool) {
	i := sort.Search(len(xs), func(i int) bool {
		return xs[i].Value.Name >= c.Name
	})
	for ; i < len(xs) && xs[i].Value.Name == c.Name; i++ {
		if xs[i].Value.Version.Matches(c.Version) {
			return i, true
		}
	}
	return 0, false
}
