package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"depsentry/pkg/crates"
	"depsentry/pkg/diag"
	"depsentry/pkg/semver"
)

// rawEntry is one [[deny]]/[[allow]]/[[skip]]/[[skip-tree]] table in the
// policy file.
type rawEntry struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
	Depth   *int   `koanf:"depth"`
}

type rawPolicy struct {
	MultipleVersions string     `koanf:"multiple-versions"`
	Highlight        string     `koanf:"highlight"`
	Deny             []rawEntry `koanf:"deny"`
	Allow            []rawEntry `koanf:"allow"`
	Skip             []rawEntry `koanf:"skip"`
	SkipTree         []rawEntry `koanf:"skip-tree"`
}

// LoadFile reads a TOML policy file into a raw Config and registers the file
// content so diagnostics can render snippets from it.
func LoadFile(path string, files *diag.Files) (Config, diag.FileID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, 0, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(filepath.Base(path), data, files)
}

// Parse parses TOML policy text. The TOML decoder exposes no source
// positions, so each list entry's span is recovered by scanning the raw text
// (see entrySpans); entries that cannot be located get a zero span and their
// diagnostics anchor to the start of the file.
func Parse(name string, data []byte, files *diag.Files) (Config, diag.FileID, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), toml.Parser()); err != nil {
		return Config{}, 0, fmt.Errorf("failed to parse policy: %w", err)
	}

	var raw rawPolicy
	if err := k.Unmarshal("", &raw); err != nil {
		return Config{}, 0, fmt.Errorf("failed to unmarshal policy: %w", err)
	}

	cfg := DefaultConfig()

	var err error
	if cfg.MultipleVersions, err = ParseLintLevel(raw.MultipleVersions); err != nil {
		return Config{}, 0, fmt.Errorf("multiple-versions: %w", err)
	}
	if cfg.Highlight, err = ParseGraphHighlight(raw.Highlight); err != nil {
		return Config{}, 0, fmt.Errorf("highlight: %w", err)
	}

	text := string(data)
	if cfg.Deny, err = spannedIDs(text, "deny", raw.Deny); err != nil {
		return Config{}, 0, err
	}
	if cfg.Allow, err = spannedIDs(text, "allow", raw.Allow); err != nil {
		return Config{}, 0, err
	}
	if cfg.Skip, err = spannedIDs(text, "skip", raw.Skip); err != nil {
		return Config{}, 0, err
	}
	if cfg.SkipTree, err = spannedTreeSkips(text, raw.SkipTree); err != nil {
		return Config{}, 0, err
	}

	fileID := files.Add(name, text)
	return cfg, fileID, nil
}

func entryID(table string, e rawEntry) (crates.ID, error) {
	id := crates.ID{Name: e.Name}
	if e.Name == "" {
		return id, fmt.Errorf("%s entry with no name", table)
	}
	if e.Version != "" {
		c, err := semver.ParseConstraint(e.Version)
		if err != nil {
			return id, fmt.Errorf("%s entry %q: %w", table, e.Name, err)
		}
		id.Version = c
	}
	return id, nil
}

func spannedIDs(text, table string, entries []rawEntry) ([]crates.Spanned[crates.ID], error) {
	if len(entries) == 0 {
		return nil, nil
	}

	spans := entrySpans(text, table, entryNames(entries))
	out := make([]crates.Spanned[crates.ID], 0, len(entries))
	for i, e := range entries {
		id, err := entryID(table, e)
		if err != nil {
			return nil, err
		}
		out = append(out, crates.WithSpan(id, spans[i]))
	}
	return out, nil
}

func spannedTreeSkips(text string, entries []rawEntry) ([]crates.Spanned[crates.TreeSkip], error) {
	if len(entries) == 0 {
		return nil, nil
	}

	spans := entrySpans(text, "skip-tree", entryNames(entries))
	out := make([]crates.Spanned[crates.TreeSkip], 0, len(entries))
	for i, e := range entries {
		id, err := entryID("skip-tree", e)
		if err != nil {
			return nil, err
		}
		out = append(out, crates.WithSpan(crates.TreeSkip{ID: id, Depth: e.Depth}, spans[i]))
	}
	return out, nil
}

func entryNames(entries []rawEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// entrySpans locates the i-th [[table]] header and, within the text up to
// the next table header, the entry's quoted crate name. The returned span
// covers the quoted name, which is what conflict diagnostics underline.
func entrySpans(text, table string, names []string) []crates.Span {
	spans := make([]crates.Span, len(names))
	header := "[[" + table + "]]"

	from := 0
	for i, name := range names {
		hi := strings.Index(text[from:], header)
		if hi < 0 {
			break
		}
		regionStart := from + hi + len(header)

		regionEnd := strings.Index(text[regionStart:], "[[")
		if regionEnd < 0 {
			regionEnd = len(text)
		} else {
			regionEnd += regionStart
		}

		needle := `"` + name + `"`
		if ni := strings.Index(text[regionStart:regionEnd], needle); ni >= 0 {
			start := regionStart + ni
			spans[i] = crates.Span{Start: start, End: start + len(needle)}
		}

		from = regionEnd
	}

	return spans
}
