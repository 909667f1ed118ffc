package diag

import (
	"strings"

	"depsentry/pkg/crates"
)

// FileID identifies a file registered with a Files store.
type FileID int

// Files is a registry of source texts, real or synthesized, that spans can
// point into. Renderers use it to slice out the snippet a label underlines.
type Files struct {
	names    []string
	contents []string
}

// NewFiles creates an empty file registry.
func NewFiles() *Files {
	return &Files{}
}

// Add registers a file and returns its id.
func (f *Files) Add(name, content string) FileID {
	f.names = append(f.names, name)
	f.contents = append(f.contents, content)
	return FileID(len(f.names) - 1)
}

// Name returns the registered name of a file.
func (f *Files) Name(id FileID) string {
	if int(id) < 0 || int(id) >= len(f.names) {
		return ""
	}
	return f.names[id]
}

// Content returns the full content of a file.
func (f *Files) Content(id FileID) string {
	if int(id) < 0 || int(id) >= len(f.contents) {
		return ""
	}
	return f.contents[id]
}

// Slice returns the text covered by span, clamped to the file bounds.
func (f *Files) Slice(id FileID, span crates.Span) string {
	content := f.Content(id)
	start, end := span.Start, span.End
	if start < 0 {
		start = 0
	}
	if end > len(content) {
		end = len(content)
	}
	if start >= end {
		return ""
	}
	return content[start:end]
}

// Location returns the 1-based line and column of a byte offset.
func (f *Files) Location(id FileID, offset int) (line, col int) {
	content := f.Content(id)
	if offset > len(content) {
		offset = len(content)
	}
	if offset < 0 {
		offset = 0
	}
	prefix := content[:offset]
	line = strings.Count(prefix, "\n") + 1
	if i := strings.LastIndexByte(prefix, '\n'); i >= 0 {
		col = offset - i
	} else {
		col = offset + 1
	}
	return line, col
}

// Line returns the full line of text containing the byte offset, without its
// trailing newline, along with the offset of the line start.
func (f *Files) Line(id FileID, offset int) (text string, lineStart int) {
	content := f.Content(id)
	if offset > len(content) {
		offset = len(content)
	}
	if offset < 0 {
		offset = 0
	}
	start := strings.LastIndexByte(content[:offset], '\n') + 1
	end := strings.IndexByte(content[offset:], '\n')
	if end < 0 {
		end = len(content)
	} else {
		end += offset
	}
	return content[start:end], start
}
