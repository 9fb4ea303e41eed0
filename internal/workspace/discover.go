// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

const pnpmWorkspaceFile = "pnpm-workspace.yaml"

var (
	// ErrNoRootPackage is returned when the project root has no package.json.
	ErrNoRootPackage = errors.New("no root package found")
	// ErrNoPackages is returned when every package is private.
	ErrNoPackages = errors.New("no publishable package found")

	// exampleDirs hold demo packages that are never released.
	exampleDirs = []string{"example", "examples"}
)

type (
	// Workspace is the result of Discover.
	Workspace struct {
		Root         string
		RootManifest Manifest
		// Monorepo is true when the released packages live below the root.
		Monorepo bool
		// Packages are the publishable packages ordered by directory.
		Packages []*Package
		// Members are every workspace member, private ones included.
		Members []*Package
	}

	// DuplicateNamesError is returned when two packages share a name.
	DuplicateNamesError struct {
		Names []string
	}
)

// Error implements the error interface.
func (e *DuplicateNamesError) Error() string {
	return "package names must be unique: " + strings.Join(e.Names, ", ")
}

// Discover finds the packages of the project rooted at root.
func Discover(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	rootManifest, err := ReadManifest(abs)
	if err != nil {
		if errors.Is(err, ErrManifestNotFound) {
			return nil, fmt.Errorf("%w in %s", ErrNoRootPackage, abs)
		}
		return nil, err
	}

	patterns := []string(rootManifest.Workspaces)
	if len(patterns) == 0 {
		if patterns, err = pnpmPatterns(abs); err != nil {
			return nil, err
		}
	}

	ws := &Workspace{Root: abs, RootManifest: rootManifest}
	if len(patterns) > 0 {
		if ws.Members, err = expand(abs, patterns); err != nil {
			return nil, err
		}
	}

	for _, m := range ws.Members {
		if m.Manifest.Private || isExample(m.RelativeDir) {
			continue
		}
		ws.Packages = append(ws.Packages, m)
	}

	if len(ws.Packages) == 0 {
		if rootManifest.Private {
			return nil, ErrNoPackages
		}
		ws.Packages = []*Package{newPackage(abs, ".", rootManifest)}
	} else {
		ws.Monorepo = ws.Packages[0].Dir != abs
	}

	if dup := duplicates(ws.Packages); len(dup) > 0 {
		return nil, &DuplicateNamesError{Names: dup}
	}
	return ws, nil
}

// Find returns the member or root package named name.
func (w *Workspace) Find(name string) (*Package, bool) {
	for _, p := range w.Packages {
		if p.Name == name {
			return p, true
		}
	}
	for _, p := range w.Members {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// IsMember reports whether name is a package of this workspace.
func (w *Workspace) IsMember(name string) bool {
	_, ok := w.Find(name)
	return ok
}

func pnpmPatterns(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, pnpmWorkspaceFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", pnpmWorkspaceFile, err)
	}
	var doc struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pnpmWorkspaceFile, err)
	}
	return doc.Packages, nil
}

// expand resolves workspace patterns to member packages. Patterns starting
// with "!" exclude directories matched by earlier patterns.
func expand(root string, patterns []string) ([]*Package, error) {
	fsys := os.DirFS(root)
	var include, exclude []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			exclude = append(exclude, cleanPattern(neg))
			continue
		}
		if p != "" {
			include = append(include, cleanPattern(p))
		}
	}

	seen := make(map[string]bool)
	var members []*Package
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid workspace pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to expand workspace pattern %q: %w", pattern, err)
		}
		for _, rel := range matches {
			if seen[rel] || rel == "." || excluded(rel, exclude) {
				continue
			}
			seen[rel] = true

			dir := filepath.Join(root, filepath.FromSlash(rel))
			if fi, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil || fi.IsDir() {
				continue
			}
			m, err := ReadManifest(dir)
			if err != nil {
				return nil, err
			}
			members = append(members, newPackage(dir, rel, m))
		}
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].RelativeDir < members[j].RelativeDir
	})
	return members, nil
}

func newPackage(dir, rel string, m Manifest) *Package {
	return &Package{
		Name:        m.Name,
		TagName:     m.Release.TagName,
		Version:     m.Version,
		Dir:         dir,
		RelativeDir: rel,
		Manifest:    m,
	}
}

func cleanPattern(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimSuffix(p, "/")
	return path.Clean(p)
}

func excluded(rel string, exclude []string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg == "node_modules" {
			return true
		}
	}
	for _, pattern := range exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// isExample reports whether rel sits directly in an example directory.
func isExample(rel string) bool {
	return slices.Contains(exampleDirs, path.Base(path.Dir(rel)))
}

func duplicates(pkgs []*Package) []string {
	counts := make(map[string]int)
	for _, p := range pkgs {
		counts[p.Name]++
	}
	var dup []string
	for name, n := range counts {
		if n > 1 {
			dup = append(dup, name)
		}
	}
	sort.Strings(dup)
	return dup
}
