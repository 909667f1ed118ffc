package audit

import (
	"fmt"
	"strings"
	"time"

	"depsentry/pkg/crates"
	"depsentry/pkg/diag"
	"depsentry/pkg/graph"
	"depsentry/pkg/logging"
	"depsentry/pkg/policy"
	"depsentry/pkg/semver"
)

// Result is everything one audit run produced: the loaded graph snapshot,
// the span index and file registry diagnostics point into, and the findings.
type Result struct {
	Graph    *graph.CrateGraph
	Spans    *diag.CrateSpans
	Files    *diag.Files
	LockFile diag.FileID

	// ConfigDiags holds policy-validation conflicts. When non-empty the
	// check did not run and Config is nil.
	ConfigDiags []diag.Diagnostic
	Config      *policy.ValidConfig

	Findings []diag.Diag
	// Trees maps a duplicate version's exact identity to its provenance
	// tree, per the policy's highlight mode.
	Trees map[string]string

	GeneratedAt time.Time
}

// Failed reports whether the run produced any error-severity finding or any
// configuration conflict.
func (r *Result) Failed() bool {
	if len(r.ConfigDiags) > 0 {
		return true
	}
	for _, d := range r.Findings {
		if d.Diagnostic.Severity == diag.SeverityError {
			return true
		}
	}
	return false
}

// Run loads the resolved-metadata document and the policy file, validates
// the policy, and runs the check pass. A missing policy path audits with the
// default policy. Loading failures are errors; policy conflicts and findings
// are reported through the Result.
func Run(metadataPath, policyPath string) (*Result, error) {
	g, err := graph.LoadFile(metadataPath)
	if err != nil {
		return nil, err
	}
	logging.Debug("loaded resolved graph", "crates", g.Len())

	files := diag.NewFiles()
	spans, text := diag.NewCrateSpans(g)
	lockID := files.Add("resolved crates", text)

	cfg := policy.DefaultConfig()
	policyID := files.Add("policy", "")
	if policyPath != "" {
		cfg, policyID, err = policy.LoadFile(policyPath, files)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{
		Graph:       g,
		Spans:       spans,
		Files:       files,
		LockFile:    lockID,
		Trees:       make(map[string]string),
		GeneratedAt: time.Now(),
	}

	vc, conflicts := cfg.Validate(policyID)
	if len(conflicts) > 0 {
		logging.Warn("policy validation failed", "conflicts", len(conflicts))
		res.ConfigDiags = conflicts
		return res, nil
	}
	res.Config = vc

	findings, err := policy.Check(vc, policy.CheckOptions{
		Graph:     g,
		Spans:     spans,
		SpansFile: lockID,
		TreeSink: func(id crates.ID, tree string) {
			res.Trees[id.String()] = tree
		},
	})
	if err != nil {
		return nil, err
	}
	res.Findings = findings

	logging.Debug("audit complete", "findings", len(findings))
	return res, nil
}

// Why renders the provenance tree of the crate selected by target, given as
// "name" or "name@constraint".
func Why(g *graph.CrateGraph, target string) (string, error) {
	id, err := ParseTarget(target)
	if err != nil {
		return "", err
	}
	return graph.NewGrapher(g).WriteGraph(id)
}

// ParseTarget parses a "name" or "name@constraint" crate selector.
func ParseTarget(target string) (crates.ID, error) {
	name, constraint, found := strings.Cut(target, "@")
	if name == "" {
		return crates.ID{}, fmt.Errorf("empty crate selector")
	}

	id := crates.NewID(name)
	if found {
		c, err := semver.ParseConstraint(constraint)
		if err != nil {
			return crates.ID{}, fmt.Errorf("selector %q: %w", target, err)
		}
		id.Version = c
	}
	return id, nil
}
