// SPDX-License-Identifier: MPL-2.0

// Package lint checks that packages are ready to be published. It runs in
// strict mode only and reports every problem before failing.
package lint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/version"
	"github.com/invowk/rc/internal/workspace"
)

type (
	// Problem is one lint finding.
	Problem struct {
		Package string
		Message string
	}

	// Error aggregates every problem found.
	Error struct {
		Problems []Problem
	}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Problems) == 1 {
		return "1 lint error"
	}
	return fmt.Sprintf("%d lint errors", len(e.Problems))
}

// Run checks pkgs, logs every problem and returns a LintFailed error when
// any was found.
func Run(pkgs []*workspace.Package) error {
	problems := Check(pkgs)
	if len(problems) == 0 {
		return nil
	}
	for i, p := range problems {
		slog.Error(fmt.Sprintf("%d. %s", i+1, p.Message), "package", p.Package)
	}
	return issue.New(issue.KindLintFailed, &Error{Problems: problems})
}

// Check returns the problems of pkgs without logging them.
func Check(pkgs []*workspace.Package) []Problem {
	var problems []Problem
	for _, pkg := range pkgs {
		report := func(format string, args ...any) {
			problems = append(problems, Problem{Package: pkg.Name, Message: fmt.Sprintf(format, args...)})
		}
		m := pkg.Manifest

		if m.Name == "" {
			report("package in %s has no name", pkg.RelativeDir)
		}
		switch {
		case m.Version == "":
			report("%s has no version", pkg.Name)
		case !version.Valid(m.Version):
			report("%s has an invalid version %q", pkg.Name, m.Version)
		}
		if m.License == "" {
			report("%s has no license", pkg.Name)
		}

		for _, field := range []struct{ name, path string }{
			{"main", m.Main},
			{"module", m.Module},
			{"types", m.Types},
		} {
			if field.path != "" && !exists(pkg.Dir, field.path) {
				report("%s: %q points to missing file %s", pkg.Name, field.name, field.path)
			}
		}
		for _, target := range exportTargets(m.Exports) {
			if !exists(pkg.Dir, target) {
				report("%s: \"exports\" points to missing file %s", pkg.Name, target)
			}
		}
		for _, pattern := range m.Files {
			if !matchesAny(pkg.Dir, pattern) {
				report("%s: \"files\" entry %q matches nothing", pkg.Name, pattern)
			}
		}
	}
	return problems
}

func exists(dir, rel string) bool {
	_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
	return err == nil
}

func matchesAny(dir, pattern string) bool {
	pattern = strings.TrimPrefix(strings.TrimPrefix(pattern, "!"), "./")
	pattern = strings.TrimSuffix(pattern, "/")
	if pattern == "" {
		return true
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	return err == nil && len(matches) > 0
}

// exportTargets collects the relative file paths of an "exports" map.
// Targets with wildcards are skipped.
func exportTargets(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if strings.HasPrefix(t, "./") && !strings.Contains(t, "*") {
				out = append(out, t)
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(v)
	return out
}
