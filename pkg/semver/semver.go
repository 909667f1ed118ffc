package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version represents a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Original   string
}

// Constraint represents a version constraint such as "=0.1.9" or "^1.2".
// A nil *Constraint is treated as matching any version.
type Constraint struct {
	// Op is the comparison operator (=, ^, ~, >, >=, <, <=, *).
	Op string
	// Version is the version to compare against (nil for "*").
	Version *Version
	// Original is the original constraint string.
	Original string
}

// versionRegex matches semantic version strings.
var versionRegex = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z\-\.]+))?(?:\+([0-9A-Za-z\-\.]+))?$`)

// constraintRegex matches version constraint strings.
var constraintRegex = regexp.MustCompile(`^([~^]|>=|<=|>|<|=)?\s*v?(\d+(?:\.\d+)?(?:\.\d+)?(?:-[0-9A-Za-z\-\.]+)?)$`)

// ParseVersion parses a version string into a Version struct.
func ParseVersion(s string) (*Version, error) {
	matches := versionRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("invalid version format: %s", s)
	}

	v := &Version{Original: s}

	var err error
	v.Major, err = strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid major version: %w", err)
	}

	if matches[2] != "" {
		v.Minor, err = strconv.Atoi(matches[2])
		if err != nil {
			return nil, fmt.Errorf("invalid minor version: %w", err)
		}
	}

	if matches[3] != "" {
		v.Patch, err = strconv.Atoi(matches[3])
		if err != nil {
			return nil, fmt.Errorf("invalid patch version: %w", err)
		}
	}

	if matches[4] != "" {
		v.Prerelease = matches[4]
	}

	return v, nil
}

// String returns the version as a string.
func (v *Version) String() string {
	return v.Original
}

// Compare compares two versions.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
func (v *Version) Compare(other *Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}

	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}

	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}

	// Prerelease versions have lower precedence
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	if v.Prerelease != other.Prerelease {
		if v.Prerelease < other.Prerelease {
			return -1
		}
		return 1
	}

	return 0
}

// Any returns the constraint that matches every version.
func Any() *Constraint {
	return &Constraint{Op: "*", Original: "*"}
}

// ParseConstraint parses a version constraint string.
func ParseConstraint(s string) (*Constraint, error) {
	s = strings.TrimSpace(s)

	if s == "" || s == "*" {
		return Any(), nil
	}

	matches := constraintRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("invalid constraint format: %s", s)
	}

	op := matches[1]
	if op == "" {
		op = "^"
	}

	version, err := ParseVersion(matches[2])
	if err != nil {
		return nil, fmt.Errorf("invalid version in constraint: %w", err)
	}

	return &Constraint{
		Op:       op,
		Version:  version,
		Original: s,
	}, nil
}

// String returns the original constraint text.
func (c *Constraint) String() string {
	if c == nil {
		return "*"
	}
	return c.Original
}

// IsAny reports whether the constraint matches every version.
func (c *Constraint) IsAny() bool {
	return c == nil || c.Op == "*"
}

// Compare orders constraints by their textual form. The ordering carries no
// set-theoretic meaning; it only has to be total and stable so constraints
// can participate in sorting and binary search.
func (c *Constraint) Compare(other *Constraint) int {
	return strings.Compare(c.String(), other.String())
}

// Matches checks if a version satisfies the constraint.
func (c *Constraint) Matches(v *Version) bool {
	if c.IsAny() {
		return true
	}

	switch c.Op {
	case "=":
		return v.Compare(c.Version) == 0

	case "^":
		// Caret: allows changes that do not modify the left-most non-zero digit
		// ^1.2.3 := >=1.2.3 <2.0.0
		// ^0.2.3 := >=0.2.3 <0.3.0
		// ^0.0.3 := >=0.0.3 <0.0.4
		if v.Compare(c.Version) < 0 {
			return false
		}
		if c.Version.Major != 0 {
			return v.Major == c.Version.Major
		}
		if c.Version.Minor != 0 {
			return v.Major == 0 && v.Minor == c.Version.Minor
		}
		return v.Major == 0 && v.Minor == 0 && v.Patch == c.Version.Patch

	case "~":
		// Tilde: allows patch-level changes
		// ~1.2.3 := >=1.2.3 <1.3.0
		if v.Compare(c.Version) < 0 {
			return false
		}
		return v.Major == c.Version.Major && v.Minor == c.Version.Minor

	case ">":
		return v.Compare(c.Version) > 0

	case ">=":
		return v.Compare(c.Version) >= 0

	case "<":
		return v.Compare(c.Version) < 0

	case "<=":
		return v.Compare(c.Version) <= 0

	default:
		return false
	}
}

// MatchesString parses s as a version and checks it against the constraint.
// Unparseable versions never match.
func (c *Constraint) MatchesString(s string) bool {
	v, err := ParseVersion(s)
	if err != nil {
		return false
	}
	return c.Matches(v)
}

// IsValidVersion checks if a string is a valid semantic version.
func IsValidVersion(s string) bool {
	_, err := ParseVersion(s)
	return err == nil
}

// IsValidConstraint checks if a string is a valid version constraint.
func IsValidConstraint(s string) bool {
	_, err := ParseConstraint(s)
	return err == nil
}
