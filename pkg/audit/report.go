package audit

import (
	"time"

	"depsentry/pkg/diag"
)

// Report is the JSON projection of a Result served over the web surface.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Crates      int       `json:"crates"`
	Errors      int       `json:"errors"`
	Warnings    int       `json:"warnings"`
	Notes       int       `json:"notes"`
	Failed      bool      `json:"failed"`
	Conflicts   []Finding `json:"conflicts,omitempty"`
	Findings    []Finding `json:"findings,omitempty"`
	// Trees maps duplicate crate identities to rendered provenance trees.
	Trees map[string]string `json:"trees,omitempty"`
}

// Finding is one diagnostic flattened for serialization.
type Finding struct {
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Col      int      `json:"col"`
	Crates   []string `json:"crates,omitempty"`
}

// Report flattens the result for serialization.
func (r *Result) Report() *Report {
	rep := &Report{
		GeneratedAt: r.GeneratedAt,
		Crates:      r.Graph.Len(),
		Failed:      r.Failed(),
		Trees:       r.Trees,
	}

	for _, c := range r.ConfigDiags {
		rep.Conflicts = append(rep.Conflicts, r.finding(c, nil))
	}

	for _, d := range r.Findings {
		var ids []string
		for _, id := range d.Crates {
			ids = append(ids, id.String())
		}
		rep.Findings = append(rep.Findings, r.finding(d.Diagnostic, ids))

		switch d.Diagnostic.Severity {
		case diag.SeverityError:
			rep.Errors++
		case diag.SeverityWarning:
			rep.Warnings++
		default:
			rep.Notes++
		}
	}
	rep.Errors += len(r.ConfigDiags)

	return rep
}

func (r *Result) finding(d diag.Diagnostic, ids []string) Finding {
	line, col := r.Files.Location(d.Primary.File, d.Primary.Span.Start)
	return Finding{
		Severity: d.Severity.String(),
		Message:  d.Message,
		File:     r.Files.Name(d.Primary.File),
		Line:     line,
		Col:      col,
		Crates:   ids,
	}
}
