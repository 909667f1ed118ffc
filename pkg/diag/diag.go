package diag

import (
	"depsentry/pkg/crates"
)

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SeverityNote is for informational findings.
	SeverityNote Severity = iota
	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning
	// SeverityError is for findings that fail the audit.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityNote:
		return "note"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// Label anchors a message to a span in a registered file.
type Label struct {
	File    FileID
	Span    crates.Span
	Message string
}

// NewLabel creates a label for the given file and span.
func NewLabel(file FileID, span crates.Span, message string) Label {
	return Label{File: file, Span: span, Message: message}
}

// Diagnostic is a severity-leveled message with a required primary label
// and zero or more secondary labels.
type Diagnostic struct {
	Severity  Severity
	Message   string
	Primary   Label
	Secondary []Label
}

// NewError creates an error-severity diagnostic.
func NewError(message string, primary Label) Diagnostic {
	return Diagnostic{Severity: SeverityError, Message: message, Primary: primary}
}

// NewWarning creates a warning-severity diagnostic.
func NewWarning(message string, primary Label) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Message: message, Primary: primary}
}

// NewNote creates a note-severity diagnostic.
func NewNote(message string, primary Label) Diagnostic {
	return Diagnostic{Severity: SeverityNote, Message: message, Primary: primary}
}

// WithSecondary returns a copy of the diagnostic with extra secondary labels.
func (d Diagnostic) WithSecondary(labels ...Label) Diagnostic {
	d.Secondary = append(d.Secondary, labels...)
	return d
}

// Diag pairs a diagnostic with the crates (at most two in practice) it is
// about, so consumers can group findings per crate.
type Diag struct {
	Diagnostic Diagnostic
	Crates     []crates.ID
}

// NewDiag wraps a diagnostic with no crate attribution.
func NewDiag(d Diagnostic) Diag {
	return Diag{Diagnostic: d}
}

// WithCrates returns a copy of the Diag attributed to the given crates.
func (d Diag) WithCrates(ids ...crates.ID) Diag {
	d.Crates = append(d.Crates, ids...)
	return d
}

// Pack is an ordered collection of Diags raised while processing one crate.
// The first diagnostic pushed without an attribution is stamped with the
// pack's default crate; the default is consumed by that stamping so later
// unattributed pushes stay unattributed rather than being mis-tagged.
type Pack struct {
	diags        []Diag
	defaultCrate *crates.ID
}

// NewPack creates an empty pack with no default crate.
func NewPack() *Pack {
	return &Pack{}
}

// PackFor creates an empty pack whose first unattributed diagnostic will be
// stamped with id.
func PackFor(id crates.ID) *Pack {
	return &Pack{defaultCrate: &id}
}

// PackOf creates a singleton pack holding just the given diagnostic.
func PackOf(d Diagnostic) *Pack {
	p := NewPack()
	p.PushDiagnostic(d)
	return p
}

// Push appends a Diag, stamping it with the pack's default crate if it
// carries no attribution of its own.
func (p *Pack) Push(d Diag) *Pack {
	if len(d.Crates) == 0 && p.defaultCrate != nil {
		d.Crates = append(d.Crates, *p.defaultCrate)
		p.defaultCrate = nil
	}
	p.diags = append(p.diags, d)
	return p
}

// PushDiagnostic appends a bare diagnostic with no attribution of its own.
func (p *Pack) PushDiagnostic(d Diagnostic) *Pack {
	return p.Push(NewDiag(d))
}

// Len returns the number of diagnostics in the pack.
func (p *Pack) Len() int {
	return len(p.diags)
}

// Empty reports whether the pack holds no diagnostics.
func (p *Pack) Empty() bool {
	return len(p.diags) == 0
}

// Drain returns the collected diagnostics and resets the pack.
func (p *Pack) Drain() []Diag {
	out := p.diags
	p.diags = nil
	p.defaultCrate = nil
	return out
}
