package policy

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"depsentry/pkg/crates"
	"depsentry/pkg/diag"
)

// LintLevel controls whether a finding is ignored, reported, or fatal.
type LintLevel int

const (
	LintAllow LintLevel = iota
	LintWarn
	LintDeny
)

// ParseLintLevel parses a lint level from its configuration form.
// The empty string maps to the default, warn.
func ParseLintLevel(s string) (LintLevel, error) {
	switch s {
	case "allow":
		return LintAllow, nil
	case "", "warn":
		return LintWarn, nil
	case "deny":
		return LintDeny, nil
	}
	return LintWarn, fmt.Errorf("unknown lint level: %q", s)
}

func (l LintLevel) String() string {
	switch l {
	case LintAllow:
		return "allow"
	case LintDeny:
		return "deny"
	default:
		return "warn"
	}
}

// Severity maps a lint level to the severity of the diagnostics it produces.
func (l LintLevel) Severity() diag.Severity {
	switch l {
	case LintDeny:
		return diag.SeverityError
	case LintAllow:
		return diag.SeverityNote
	default:
		return diag.SeverityWarning
	}
}

// GraphHighlight selects which duplicate-version provenance trees are
// rendered alongside a multiple-versions finding.
type GraphHighlight int

const (
	// HighlightSimplestPath renders the duplicate with the fewest consumer
	// chains, which tends to be the best removal candidate.
	HighlightSimplestPath GraphHighlight = iota
	// HighlightLowestVersion renders the duplicate with the lowest version.
	HighlightLowestVersion
	// HighlightAll renders every duplicate.
	HighlightAll
)

// ParseGraphHighlight parses a highlight mode from its configuration form.
// The empty string maps to the default, all.
func ParseGraphHighlight(s string) (GraphHighlight, error) {
	switch s {
	case "simplest-path":
		return HighlightSimplestPath, nil
	case "lowest-version":
		return HighlightLowestVersion, nil
	case "", "all":
		return HighlightAll, nil
	}
	return HighlightAll, fmt.Errorf("unknown graph highlight: %q", s)
}

func (h GraphHighlight) String() string {
	switch h {
	case HighlightSimplestPath:
		return "simplest-path"
	case HighlightLowestVersion:
		return "lowest-version"
	default:
		return "all"
	}
}

// Simplest reports whether the simplest-path duplicate should be rendered.
func (h GraphHighlight) Simplest() bool {
	return h == HighlightSimplestPath || h == HighlightAll
}

// LowestVersion reports whether the lowest-version duplicate should be
// rendered.
func (h GraphHighlight) LowestVersion() bool {
	return h == HighlightLowestVersion || h == HighlightAll
}

// Config is the raw, user-authored policy: unsorted, unvalidated, with each
// list entry carrying the span it was declared at for diagnostic anchoring.
type Config struct {
	// MultipleVersions controls how duplicate versions of a crate are
	// reported.
	MultipleVersions LintLevel
	// Highlight selects duplicate provenance-tree rendering.
	Highlight GraphHighlight
	// Deny lists crates that fail the audit.
	Deny []crates.Spanned[crates.ID]
	// Allow, when non-empty, means only the listed crates are permitted.
	Allow []crates.Spanned[crates.ID]
	// Skip lists crates exempt from policy checks.
	Skip []crates.Spanned[crates.ID]
	// SkipTree lists crates whose transitive dependencies are exempt,
	// optionally down to a depth.
	SkipTree []crates.Spanned[crates.TreeSkip]
}

// DefaultConfig returns the policy used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		MultipleVersions: LintWarn,
		Highlight:        HighlightAll,
	}
}

// ValidConfig is the validated policy. The Denied, Allowed and Skipped lists
// are sorted ascending by crate identity and free of cross-category
// conflicts. It is constructed only by Config.Validate and must not be
// hand-built or mutated afterwards.
type ValidConfig struct {
	FileID           diag.FileID
	MultipleVersions LintLevel
	Highlight        GraphHighlight
	Denied           []crates.Spanned[crates.ID]
	Allowed          []crates.Spanned[crates.ID]
	Skipped          []crates.Spanned[crates.ID]
	TreeSkipped      []crates.Spanned[crates.TreeSkip]
}

// Validate checks the raw policy for internal consistency. On success it
// returns the validated, sorted configuration; on conflict it returns every
// conflict diagnostic found, never a partial config. fileID anchors the
// diagnostics to the policy file the entries were declared in.
func (c Config) Validate(fileID diag.FileID) (*ValidConfig, []diag.Diagnostic) {
	denied := sortedCopy(c.Deny)
	allowed := sortedCopy(c.Allow)
	skipped := sortedCopy(c.Skip)

	// The three sorts are independent and the comparison is pure, so they
	// run in parallel.
	var g errgroup.Group
	for _, list := range [][]crates.Spanned[crates.ID]{denied, allowed, skipped} {
		list := list
		g.Go(func() error {
			sortByID(list)
			return nil
		})
	}
	_ = g.Wait() // the sorts cannot fail

	var diagnostics []diag.Diagnostic

	addConflict := func(a crates.Spanned[crates.ID], aCat string, b crates.Spanned[crates.ID], bCat string) {
		diagnostics = append(diagnostics, conflictDiag(fileID, a, aCat, b, bCat))
	}

	// Fixed pass order: deny/allow, deny/skip, allow/skip. Every pass runs
	// to completion so the user sees all conflicts in one go.
	for _, d := range denied {
		if i, ok := searchID(allowed, d.Value); ok {
			addConflict(d, "deny", allowed[i], "allow")
		}
		if i, ok := searchID(skipped, d.Value); ok {
			addConflict(d, "deny", skipped[i], "skip")
		}
	}
	for _, a := range allowed {
		if i, ok := searchID(skipped, a.Value); ok {
			addConflict(a, "allow", skipped[i], "skip")
		}
	}

	if len(diagnostics) > 0 {
		return nil, diagnostics
	}

	return &ValidConfig{
		FileID:           fileID,
		MultipleVersions: c.MultipleVersions,
		Highlight:        c.Highlight,
		Denied:           denied,
		Allowed:          allowed,
		Skipped:          skipped,
		TreeSkipped:      c.SkipTree,
	}, nil
}

// conflictDiag builds the diagnostic for one crate identity declared in two
// mutually exclusive categories. The declaration that starts later in the
// source is the primary label: the earlier one was fine until the later one
// broke the configuration. The message names the earlier category first.
func conflictDiag(fileID diag.FileID, a crates.Spanned[crates.ID], aCat string, b crates.Spanned[crates.ID], bCat string) diag.Diagnostic {
	later, laterCat := a, aCat
	earlier, earlierCat := b, bCat
	if b.Span.Start > a.Span.Start {
		later, laterCat = b, bCat
		earlier, earlierCat = a, aCat
	}

	msg := fmt.Sprintf("crate `%s` was specified in both `%s` and `%s`",
		a.Value.Name, earlierCat, laterCat)

	return diag.NewError(msg,
		diag.NewLabel(fileID, later.Span, fmt.Sprintf("marked as `%s`", laterCat)),
	).WithSecondary(
		diag.NewLabel(fileID, earlier.Span, fmt.Sprintf("marked as `%s`", earlierCat)),
	)
}

func sortedCopy(xs []crates.Spanned[crates.ID]) []crates.Spanned[crates.ID] {
	out := make([]crates.Spanned[crates.ID], len(xs))
	copy(out, xs)
	return out
}

func sortByID(xs []crates.Spanned[crates.ID]) {
	sort.SliceStable(xs, func(i, j int) bool {
		return xs[i].Value.Compare(xs[j].Value) < 0
	})
}

// searchID binary-searches a list sorted by sortByID for an identity equal
// to id under crates.ID ordering.
func searchID(xs []crates.Spanned[crates.ID], id crates.ID) (int, bool) {
	i := sort.Search(len(xs), func(i int) bool {
		return xs[i].Value.Compare(id) >= 0
	})
	if i < len(xs) && xs[i].Value.Equal(id) {
		return i, true
	}
	return i, false
}
