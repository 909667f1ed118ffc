package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"depsentry/pkg/crates"
)

// ErrCrateNotFound is returned when a queried identity has no node in the
// graph. It signals a caller mistake, not a policy finding, so it is kept
// out of the diagnostic stream.
var ErrCrateNotFound = errors.New("crate not found in graph")

const (
	glyphDown   = '│'
	glyphTee    = '├'
	glyphEll    = '└'
	glyphRight  = '─'
	revisitMark = " (*)"
)

// Grapher renders inverted dependency trees: not what a crate depends on,
// but every consumer chain that pulls it in from the graph's roots.
type Grapher struct {
	g *CrateGraph
}

// NewGrapher creates a grapher over an immutable graph snapshot. Concurrent
// WriteGraph calls are safe; each owns its own visited set and buffer.
func NewGrapher(g *CrateGraph) *Grapher {
	return &Grapher{g: g}
}

// frame is one pending node of the traversal. levels holds, per ancestor,
// whether that ancestor still has siblings to print below it.
type frame struct {
	node   int64
	kind   DepKind
	levels []bool
	root   bool
}

// WriteGraph renders the consumer tree of the crate selected by id.
// Output is deterministic: consumers are sorted by crate identity before
// expansion, so the byte stream does not depend on the graph's internal
// edge-iteration order.
func (gr *Grapher) WriteGraph(id crates.ID) (string, error) {
	root, ok := gr.g.NodeFor(id)
	if !ok {
		return "", fmt.Errorf("unable to find node for %s: %w", id, ErrCrateNotFound)
	}

	var out strings.Builder
	out.Grow(1024)

	// Visited keys on graph node ids, never on name+version: two resolved
	// versions of the same name are distinct nodes and tracked separately.
	visited := make(map[int64]bool)

	// Explicit frame stack instead of native recursion so depth is bounded
	// by heap, not goroutine stack.
	stack := []frame{{node: root, root: true}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		first := !visited[f.node]
		visited[f.node] = true

		gr.writeLine(&out, f, first)

		if !first {
			// Already expanded earlier in this render; the revisit marker
			// stands in for the subtree. This bounds the walk on cycles and
			// diamonds.
			continue
		}

		consumers := gr.g.Consumers(f.node)
		if len(consumers) == 0 {
			continue
		}

		sort.Slice(consumers, func(i, j int) bool {
			a, b := gr.g.Crate(consumers[i].Node), gr.g.Crate(consumers[j].Node)
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			if c := a.Version.Compare(b.Version); c != 0 {
				return c < 0
			}
			return consumers[i].Node < consumers[j].Node
		})

		// Push in reverse so the first consumer is expanded first.
		for i := len(consumers) - 1; i >= 0; i-- {
			levels := make([]bool, len(f.levels)+1)
			copy(levels, f.levels)
			levels[len(f.levels)] = i < len(consumers)-1

			stack = append(stack, frame{
				node:   consumers[i].Node,
				kind:   consumers[i].Kind,
				levels: levels,
			})
		}
	}

	return out.String(), nil
}

func (gr *Grapher) writeLine(out *strings.Builder, f frame, first bool) {
	if n := len(f.levels); n > 0 {
		for _, continues := range f.levels[:n-1] {
			if continues {
				out.WriteRune(glyphDown)
			} else {
				out.WriteByte(' ')
			}
			out.WriteString("   ")
		}

		if f.levels[n-1] {
			out.WriteRune(glyphTee)
		} else {
			out.WriteRune(glyphEll)
		}
		out.WriteRune(glyphRight)
		out.WriteRune(glyphRight)
		out.WriteByte(' ')
	}

	crate := gr.g.Crate(f.node)
	if !f.root && f.kind != DepNormal {
		fmt.Fprintf(out, "(%s) ", f.kind)
	}
	out.WriteString(crate.Label())
	if !first {
		out.WriteString(revisitMark)
	}
	out.WriteByte('\n')
}
