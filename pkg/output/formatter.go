package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"depsentry/pkg/diag"
)

var (
	errColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	noteColor = color.New(color.FgCyan)
	boldColor = color.New(color.Bold)
)

func severityColor(s diag.Severity) *color.Color {
	switch s {
	case diag.SeverityError:
		return errColor
	case diag.SeverityWarning:
		return warnColor
	default:
		return noteColor
	}
}

// PrintDiagnostics renders each diagnostic with a colored severity header,
// its primary label as an underlined snippet sliced from the file registry,
// and its secondary labels below.
func PrintDiagnostics(w io.Writer, files *diag.Files, diags []diag.Diag) {
	for _, d := range diags {
		printDiag(w, files, d)
	}
}

func printDiag(w io.Writer, files *diag.Files, d diag.Diag) {
	severityColor(d.Diagnostic.Severity).Fprint(w, d.Diagnostic.Severity)
	fmt.Fprintf(w, ": %s\n", d.Diagnostic.Message)

	printLabel(w, files, d.Diagnostic.Primary, '^')
	for _, l := range d.Diagnostic.Secondary {
		printLabel(w, files, l, '-')
	}

	if len(d.Crates) > 0 {
		ids := make([]string, len(d.Crates))
		for i, id := range d.Crates {
			ids[i] = id.String()
		}
		fmt.Fprintf(w, "  = affected: %s\n", strings.Join(ids, ", "))
	}

	fmt.Fprintln(w)
}

func printLabel(w io.Writer, files *diag.Files, l diag.Label, marker byte) {
	line, col := files.Location(l.File, l.Span.Start)
	fmt.Fprintf(w, "  --> %s:%d:%d\n", files.Name(l.File), line, col)

	text, lineStart := files.Line(l.File, l.Span.Start)
	fmt.Fprintf(w, "   | %s\n", text)

	// Underline the span, clamped to the snippet's own line.
	end := l.Span.End
	if lineEnd := lineStart + len(text); end > lineEnd {
		end = lineEnd
	}
	n := end - l.Span.Start
	if n < 1 {
		n = 1
	}

	underline := strings.Repeat(" ", col-1) + strings.Repeat(string(marker), n)
	if l.Message != "" {
		fmt.Fprintf(w, "   | %s %s\n", underline, l.Message)
	} else {
		fmt.Fprintf(w, "   | %s\n", underline)
	}
}

// PrintSummary prints colored per-severity counts and the audit verdict.
// It returns the number of error-severity findings.
func PrintSummary(w io.Writer, diags []diag.Diag) int {
	var errs, warns, notes int
	for _, d := range diags {
		switch d.Diagnostic.Severity {
		case diag.SeverityError:
			errs++
		case diag.SeverityWarning:
			warns++
		default:
			notes++
		}
	}

	boldColor.Fprintf(w, "audit: %d error(s), %d warning(s), %d note(s)\n", errs, warns, notes)
	if errs > 0 {
		errColor.Fprintln(w, "audit failed")
	} else {
		color.New(color.FgGreen).Fprintln(w, "audit passed")
	}

	return errs
}

// PrintTree prints a provenance tree under a bold "why is this here" header.
func PrintTree(w io.Writer, target, tree string) {
	boldColor.Fprintf(w, "%s is pulled in by:\n", target)
	fmt.Fprint(w, tree)
}
