package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"depsentry/pkg/crates"
	"depsentry/pkg/semver"
)

// metadataDoc is the JSON shape of a resolved-metadata document, as produced
// by the package manager's metadata command. The document is trusted to be
// fully resolved; no resolution happens here.
type metadataDoc struct {
	Packages []packageMeta `json:"packages"`
}

type packageMeta struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Source       string    `json:"source,omitempty"`
	ManifestPath string    `json:"manifest_path"`
	Dependencies []depMeta `json:"dependencies,omitempty"`
}

type depMeta struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Kind    string `json:"kind,omitempty"`
}

// Load reads a resolved-metadata JSON document and builds the crate graph.
// Nodes are created in document order, which becomes the graph's canonical
// enumeration order. A dependency reference that names no package in the
// document is an error.
func Load(r io.Reader) (*CrateGraph, error) {
	var doc metadataDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	g := NewCrateGraph()
	exact := make(map[string]int64, len(doc.Packages))

	for _, pkg := range doc.Packages {
		version, err := semver.ParseVersion(pkg.Version)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", pkg.Name, err)
		}

		key := pkg.Name + " " + pkg.Version
		if _, dup := exact[key]; dup {
			return nil, fmt.Errorf("duplicate package entry: %s", key)
		}

		id := g.Add(&crates.Crate{
			Name:         pkg.Name,
			Version:      version,
			Source:       pkg.Source,
			ManifestPath: pkg.ManifestPath,
		})
		exact[key] = id
	}

	for i, pkg := range doc.Packages {
		from := int64(i)
		for _, dep := range pkg.Dependencies {
			to, ok := exact[dep.Name+" "+dep.Version]
			if !ok {
				return nil, fmt.Errorf("package %s references unresolved dependency %s %s",
					pkg.Name, dep.Name, dep.Version)
			}

			kind, err := ParseDepKind(dep.Kind)
			if err != nil {
				return nil, fmt.Errorf("package %s, dependency %s: %w", pkg.Name, dep.Name, err)
			}

			g.AddDependency(from, to, kind)
		}
	}

	return g, nil
}

// LoadFile loads a resolved-metadata document from a file.
func LoadFile(path string) (*CrateGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer f.Close()

	g, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
