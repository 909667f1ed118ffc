package crates

import (
	"testing"

	"depsentry/pkg/semver"
)

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q) error = %v", s, err)
	}
	return v
}

func mustConstraint(t *testing.T, s string) *semver.Constraint {
	t.Helper()
	c, err := semver.ParseConstraint(s)
	if err != nil {
		t.Fatalf("ParseConstraint(%q) error = %v", s, err)
	}
	return c
}

func TestCrateLabel(t *testing.T) {
	c := &Crate{Name: "serde", Version: mustVersion(t, "1.0.200")}

	if got := c.Label(); got != "serde v1.0.200" {
		t.Errorf("Label() = %q, expected 'serde v1.0.200'", got)
	}
}

func TestIDMatches(t *testing.T) {
	crate := &Crate{Name: "tokio", Version: mustVersion(t, "1.38.0")}

	anyVersion := NewID("tokio")
	if !anyVersion.Matches(crate) {
		t.Error("Name-only identity should match any version of the crate")
	}

	wrongName := NewID("hyper")
	if wrongName.Matches(crate) {
		t.Error("Identity with a different name should not match")
	}

	constrained := ID{Name: "tokio", Version: mustConstraint(t, "^1.0")}
	if !constrained.Matches(crate) {
		t.Error("Expected ^1.0 to match 1.38.0")
	}

	tooNew := ID{Name: "tokio", Version: mustConstraint(t, "<1.0")}
	if tooNew.Matches(crate) {
		t.Error("Expected <1.0 not to match 1.38.0")
	}
}

func TestIDCompare_NameFirst(t *testing.T) {
	a := NewID("alpha")
	b := NewID("beta")

	if a.Compare(b) >= 0 {
		t.Error("Expected 'alpha' to sort before 'beta'")
	}

	// Same name: constraint text breaks the tie, nil sorting as "*".
	c1 := ID{Name: "alpha", Version: mustConstraint(t, "=1.0.0")}
	c2 := ID{Name: "alpha", Version: mustConstraint(t, "=2.0.0")}
	if c1.Compare(c2) >= 0 {
		t.Error("Expected '=1.0.0' to sort before '=2.0.0'")
	}

	if !c1.Equal(ID{Name: "alpha", Version: mustConstraint(t, "=1.0.0")}) {
		t.Error("Identities with equal name and constraint text should be equal")
	}
}

func TestIDString(t *testing.T) {
	plain := NewID("serde")
	if got := plain.String(); got != "serde" {
		t.Errorf("String() = %q, expected 'serde'", got)
	}

	versioned := ID{Name: "serde", Version: mustConstraint(t, "=1.0.0")}
	if got := versioned.String(); got != "serde =1.0.0" {
		t.Errorf("String() = %q, expected 'serde =1.0.0'", got)
	}
}

func TestExactID(t *testing.T) {
	crate := &Crate{Name: "rand", Version: mustVersion(t, "0.8.5")}
	id := ExactID(crate)

	if !id.Matches(crate) {
		t.Error("ExactID should match its own crate")
	}

	other := &Crate{Name: "rand", Version: mustVersion(t, "0.7.3")}
	if id.Matches(other) {
		t.Error("ExactID should not match a different resolved version")
	}
}

func TestWithSpan(t *testing.T) {
	id := NewID("serde")
	s := WithSpan(id, Span{Start: 10, End: 17})

	if s.Value.Name != "serde" {
		t.Errorf("Expected value to carry through, got %q", s.Value.Name)
	}
	if s.Span.Start != 10 || s.Span.End != 17 {
		t.Errorf("Expected span 10..17, got %v", s.Span)
	}
}
