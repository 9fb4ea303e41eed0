// SPDX-License-Identifier: MPL-2.0

package release

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/invowk/rc/internal/changelog"
	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/tagname"
	"github.com/invowk/rc/internal/workspace"
)

// depNotePrefix starts the synthetic entry listing updated workspace
// dependencies.
const depNotePrefix = "chore: update "

// buildChangelogs collects the release windows of every selected package and
// asks before releasing packages without changes.
func (s *state) buildChangelogs(ctx context.Context) error {
	if !s.opts.Log {
		slog.Warn("Skip generate changelog.")
		return nil
	}

	infos, err := s.repo.Tags(ctx)
	if err != nil {
		slog.Warn("failed to list tags", "error", err)
	}
	tags := make([]changelog.Tag, 0, len(infos))
	for _, t := range infos {
		tags = append(tags, changelog.Tag{Name: t.Name, Date: t.Created.Format(time.DateOnly)})
	}
	resolver := tagname.NewResolver(s.scheme, workspace.Entries(s.ws.Packages)...)
	groups := changelog.GroupTags(tags, resolver)

	var unchanged []string
	for _, p := range s.selected {
		head := changelog.Tag{
			Name:    tagname.Tag(p.Name, p.NewVersion, s.scheme),
			Ref:     changelog.HeadRef,
			Version: p.NewVersion,
			Date:    s.deps.Now().Format(time.DateOnly),
		}
		opts := changelog.WindowOptions{Path: s.repoPath(p.Dir), Full: s.opts.LogFull}
		if notes := s.dependencyNotes(ctx, p); len(notes) > 0 {
			opts.Extra = []changelog.Commit{{Message: depNotePrefix + strings.Join(notes, ", ")}}
		}
		p.Changelogs = changelog.BuildWindows(ctx, s.repo, head, groups[p.Name], opts)
		if !changelog.HasChanges(p.Changelogs) {
			unchanged = append(unchanged, p.Name)
		}
	}

	if len(unchanged) == 0 || s.opts.LogFull {
		return nil
	}
	ok, err := s.deps.Prompt.Confirm(ctx,
		"No changes found for "+strings.Join(unchanged, ", ")+", Do you want to continue?", false)
	if err != nil {
		return err
	}
	if !ok {
		return issue.Cancelled("Cancel the release.")
	}
	return nil
}

// dependencyNotes lists "name@version" for every workspace dependency of p
// that changes with this release. A dependency released in the same run
// contributes its new version. Any other dependency contributes its local
// version unless the registry already serves it as latest.
func (s *state) dependencyNotes(ctx context.Context, p *workspace.Package) []string {
	names := make([]string, 0, len(p.Manifest.Dependencies))
	for name := range p.Manifest.Dependencies {
		names = append(names, name)
	}
	slices.Sort(names)

	var notes []string
	for _, name := range names {
		dep, ok := s.ws.Find(name)
		if !ok || dep.Manifest.Private || dep == p {
			continue
		}
		if slices.Contains(s.selected, dep) {
			notes = append(notes, dep.Name+"@"+dep.NewVersion)
			continue
		}
		md, err := s.deps.Metadata.Metadata(ctx, dep.Name, s.registryOf(ctx, dep))
		if err == nil && md.DistTags["latest"] == dep.Version {
			continue
		}
		notes = append(notes, dep.Name+"@"+dep.Version)
	}
	return notes
}

// registryOf returns the registry dep publishes to. Selected packages carry it
// already; others are resolved the same way.
func (s *state) registryOf(ctx context.Context, dep *workspace.Package) string {
	if dep.Registry != "" {
		return dep.Registry
	}
	return s.pm.ResolveRegistry(ctx, s.tools.With(dep.Dir), dep.Name, dep.Manifest.PublishConfig.Registry)
}

// repoPath returns dir relative to the repository root for git path
// filters, or "" for the root itself.
func (s *state) repoPath(dir string) string {
	rel, err := filepath.Rel(s.repo.Root(), dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}
