// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"strings"

	"github.com/invowk/rc/internal/changelog"
	"github.com/invowk/rc/internal/registry"
	"github.com/invowk/rc/internal/tagname"
)

const (
	// AccessPublic publishes a package for everyone.
	AccessPublic = "public"
	// AccessRestricted limits a package to its scope's members.
	AccessRestricted = "restricted"
)

// Package is one releasable unit and the decisions made for it during a run.
type Package struct {
	Name string
	// TagName is the name historical tags were derived from, if different.
	TagName string
	Version string
	// NewVersion is empty until a target version is chosen.
	NewVersion string
	DistTag    string
	Access     string
	Registry   string
	Dir        string
	// RelativeDir is Dir relative to the workspace root, slash separated
	// ("." for the root package).
	RelativeDir string
	Manifest    Manifest
	Metadata    registry.Metadata
	// Changelogs are the release windows, newest first.
	Changelogs []changelog.Window
}

// Scoped reports whether the package name carries an npm scope.
func (p *Package) Scoped() bool {
	return strings.HasPrefix(p.Name, "@")
}

// Entry returns the tag-resolution entry for the package.
func (p *Package) Entry() tagname.Entry {
	return tagname.Entry{Name: p.Name, TagName: p.TagName}
}

// Label returns "name@newVersion", or "name@version" before a target is set.
func (p *Package) Label() string {
	if p.NewVersion != "" {
		return p.Name + "@" + p.NewVersion
	}
	return p.Name + "@" + p.Version
}

// Names returns the package names in order.
func Names(pkgs []*Package) []string {
	names := make([]string, len(pkgs))
	for i, p := range pkgs {
		names[i] = p.Name
	}
	return names
}

// Entries returns the tag-resolution entries for pkgs.
func Entries(pkgs []*Package) []tagname.Entry {
	entries := make([]tagname.Entry, len(pkgs))
	for i, p := range pkgs {
		entries[i] = p.Entry()
	}
	return entries
}
