// SPDX-License-Identifier: MPL-2.0

// Package tagname derives git tag names for released packages and maps
// historical tags back to the package that owns them.
//
// Tag naming changed over time, so one repository can hold "v1.0.0",
// "pkg@1.0.0", "@scope/pkg@1.0.0" and "scope-pkg-v1.0.0" side by side.
// Resolver recognizes all of them.
package tagname

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/invowk/rc/internal/version"
)

// versionSuffix matches the trailing version of a tag, preceded by the start
// of the string, a "v" or an "@".
var versionSuffix = regexp.MustCompile(`(?:^|v|@)(\d+\.\d+\.\d+(?:-[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*)?(?:\+[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*)?)$`)

// ErrPrefixCollision is returned when two packages would share tag names.
var ErrPrefixCollision = errors.New("packages share a tag prefix")

type (
	// Scheme selects a tag naming convention.
	Scheme struct {
		// Monorepo tags carry the package name; single-package repos use "v<version>".
		Monorepo bool
		// Scoped keeps the npm scope in the tag ("@scope/pkg@1.0.0").
		Scoped bool
		// LineTag uses dash-joined names ("scope-pkg-v1.0.0") instead of "name@".
		LineTag bool
	}

	// Entry describes one package known to a Resolver. TagName is an optional
	// alias used when tags were historically derived from a different name.
	Entry struct {
		Name    string
		TagName string
	}

	// Resolver maps tags to the package that owns them. It is built fresh for
	// each run from the packages in the workspace.
	Resolver struct {
		prefixes map[string]string
		ordered  []string
		single   string
	}
)

// Prefix returns the part of a tag that precedes the version.
func Prefix(name string, s Scheme) string {
	if !s.Monorepo {
		return "v"
	}
	if s.LineTag {
		if s.Scoped {
			return strings.ReplaceAll(strings.TrimPrefix(name, "@"), "/", "-") + "-v"
		}
		return baseName(name) + "-v"
	}
	if s.Scoped {
		return name + "@"
	}
	return baseName(name) + "@"
}

// Tag returns the tag for name at version.
func Tag(name, ver string, s Scheme) string {
	return Prefix(name, s) + ver
}

// Release returns the label used for a package in release commit messages.
func Release(name, ver string, monorepo bool) string {
	if monorepo {
		return name + "@" + ver
	}
	return "v" + ver
}

// ParseVersion extracts the trailing semantic version from tag. Tags that do
// not end in a version are returned unchanged.
func ParseVersion(tag string) string {
	m := versionSuffix.FindStringSubmatch(tag)
	if m == nil {
		return tag
	}
	return m[1]
}

// NewResolver builds the prefix table for entries. Prefixes of the active
// scheme take priority when two packages would produce the same legacy prefix.
func NewResolver(active Scheme, entries ...Entry) *Resolver {
	r := &Resolver{prefixes: make(map[string]string)}
	if !active.Monorepo {
		if len(entries) > 0 {
			r.single = entries[0].Name
		}
		return r
	}

	add := func(prefix, owner string) {
		if _, taken := r.prefixes[prefix]; taken {
			return
		}
		r.prefixes[prefix] = owner
		r.ordered = append(r.ordered, prefix)
	}

	for _, e := range entries {
		add(Prefix(e.Name, active), e.Name)
	}
	for _, e := range entries {
		for _, n := range names(e) {
			for _, s := range variants() {
				add(Prefix(n, s), e.Name)
			}
		}
	}

	// Longest prefix first so that "a-b-v" wins over "a-v" style overlaps.
	sort.SliceStable(r.ordered, func(i, j int) bool {
		return len(r.ordered[i]) > len(r.ordered[j])
	})
	return r
}

// Owner returns the package that owns tag and the version it records.
func (r *Resolver) Owner(tag string) (name, ver string, ok bool) {
	if r.single != "" {
		rest, found := strings.CutPrefix(tag, "v")
		if !found || !version.Valid(rest) {
			return "", "", false
		}
		return r.single, rest, true
	}
	for _, prefix := range r.ordered {
		rest, found := strings.CutPrefix(tag, prefix)
		if !found || !version.Valid(rest) {
			continue
		}
		return r.prefixes[prefix], rest, true
	}
	return "", "", false
}

// CheckUnique reports an error wrapping ErrPrefixCollision when two of names
// would be tagged with the same prefix under s, such as "@a/x" and "@b/x"
// without scoped tags.
func CheckUnique(s Scheme, names ...string) error {
	owners := make(map[string]string, len(names))
	for _, n := range names {
		prefix := Prefix(n, s)
		if other, taken := owners[prefix]; taken && other != n {
			return fmt.Errorf("%w: %s and %s are both tagged %s<version>", ErrPrefixCollision, other, n, prefix)
		}
		owners[prefix] = n
	}
	return nil
}

func names(e Entry) []string {
	if e.TagName != "" && e.TagName != e.Name {
		return []string{e.Name, e.TagName}
	}
	return []string{e.Name}
}

func variants() []Scheme {
	return []Scheme{
		{Monorepo: true, Scoped: true, LineTag: false},
		{Monorepo: true, Scoped: true, LineTag: true},
		{Monorepo: true, Scoped: false, LineTag: false},
		{Monorepo: true, Scoped: false, LineTag: true},
	}
}

func baseName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
