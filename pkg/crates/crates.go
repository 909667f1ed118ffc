package crates

import (
	"fmt"
	"strings"

	"depsentry/pkg/semver"
)

// Crate holds the resolution metadata of a single node in the resolved
// dependency graph.
type Crate struct {
	Name         string
	Version      *semver.Version
	Source       string // registry/source descriptor, empty for path dependencies
	ManifestPath string // path to the crate's manifest file
}

// Label returns the "name vX.Y.Z" form used in rendered trees.
func (c *Crate) Label() string {
	return fmt.Sprintf("%s v%s", c.Name, c.Version)
}

// ID identifies a set of crates by name and version constraint.
// A nil Version constraint matches any version.
type ID struct {
	Name    string
	Version *semver.Constraint
}

// NewID creates an identity matching any version of the named crate.
func NewID(name string) ID {
	return ID{Name: name}
}

// Compare orders identities by name first, then by constraint text,
// producing the total order used for sorting and binary search.
func (id ID) Compare(other ID) int {
	if c := strings.Compare(id.Name, other.Name); c != 0 {
		return c
	}
	return id.Version.Compare(other.Version)
}

// Equal reports whether two identities are indistinguishable under Compare.
func (id ID) Equal(other ID) bool {
	return id.Compare(other) == 0
}

// Matches reports whether the identity selects the given crate.
func (id ID) Matches(c *Crate) bool {
	return id.Name == c.Name && id.Version.Matches(c.Version)
}

func (id ID) String() string {
	if id.Version.IsAny() {
		return id.Name
	}
	return fmt.Sprintf("%s %s", id.Name, id.Version)
}

// ExactID returns the identity selecting exactly this crate's resolved
// version.
func ExactID(c *Crate) ID {
	return ID{
		Name: c.Name,
		Version: &semver.Constraint{
			Op:       "=",
			Version:  c.Version,
			Original: "=" + c.Version.Original,
		},
	}
}

// Span is a byte-offset range into a source text, used to anchor diagnostics.
type Span struct {
	Start int
	End   int
}

func (s Span) String() string {
	return fmt.Sprintf("%d..%d", s.Start, s.End)
}

// Spanned pairs a value with the span of the source text it came from.
// The span is used only for diagnostics and never affects comparisons.
type Spanned[T any] struct {
	Value T
	Span  Span
}

// WithSpan tags a value with a span.
func WithSpan[T any](v T, span Span) Spanned[T] {
	return Spanned[T]{Value: v, Span: span}
}

// TreeSkip exempts a crate, and optionally its transitive neighborhood up to
// Depth, from policy checks. Entries are never sorted or conflict-checked
// against the deny/allow/skip categories.
type TreeSkip struct {
	ID    ID
	Depth *int
}
