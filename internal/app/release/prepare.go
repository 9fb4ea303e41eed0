// SPDX-License-Identifier: MPL-2.0

package release

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/invowk/rc/internal/git"
	"github.com/invowk/rc/internal/hosting"
	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/lint"
	"github.com/invowk/rc/internal/registry"
	"github.com/invowk/rc/internal/tagname"
	"github.com/invowk/rc/internal/workspace"
)

var (
	// ErrUncleanTree is returned when the work tree has uncommitted changes.
	ErrUncleanTree = errors.New("unclean working tree")
	// ErrBranchNotAllowed is returned when HEAD is not on a release branch.
	ErrBranchNotAllowed = errors.New("branch not allowed")
	// ErrRestrictedAccess is returned for a package bound to a private
	// registry without restricted access.
	ErrRestrictedAccess = errors.New("private registry requires restricted access")
)

func (s *state) openRepository(_ context.Context) error {
	repo, err := git.Open(s.opts.Cwd, s.run)
	if err != nil {
		if errors.Is(err, git.ErrNotRepository) {
			return issue.New(issue.KindVCSPrecondition, err)
		}
		return err
	}
	s.repo = repo
	return nil
}

// checkRepository enforces a clean work tree on an allowed branch and
// records the commit a rollback returns to.
func (s *state) checkRepository(ctx context.Context) error {
	if !s.opts.NoGitChecks {
		clean, err := s.repo.IsClean(ctx)
		if err != nil {
			return issue.New(issue.KindVCSPrecondition, err)
		}
		if !clean {
			return issue.Errorf(issue.KindVCSPrecondition, "%w: commit or stash changes first", ErrUncleanTree)
		}
		if !s.opts.AnyBranch {
			branch, err := s.repo.CurrentBranch(ctx)
			if err != nil {
				return issue.New(issue.KindVCSPrecondition, err)
			}
			allowed := s.opts.AllowedBranches()
			if !slices.Contains(allowed, branch) {
				return issue.Errorf(issue.KindVCSPrecondition, "%w: current branch %s is not %s",
					ErrBranchNotAllowed, branch, strings.Join(allowed, " or "))
			}
			s.branch = branch
		}
	}
	if s.branch == "" {
		s.branch = s.opts.Branch
	}

	sha, err := s.repo.HeadID(ctx)
	if err != nil {
		return issue.New(issue.KindVCSPrecondition, err)
	}
	s.preRunSHA = sha
	return nil
}

func (s *state) findPackages(ctx context.Context) error {
	ws, err := workspace.Discover(s.opts.Cwd)
	if err != nil {
		return issue.New(issue.KindValidation, err)
	}
	s.ws = ws
	s.scheme = s.opts.Scheme(ws.Monorepo)

	pm, err := registry.Detect(ws.Root, ws.RootManifest.PackageManager)
	if err != nil {
		return issue.New(issue.KindValidation, err)
	}
	if err := pm.CheckVersion(ctx, s.tools.With(ws.Root)); err != nil {
		return issue.New(issue.KindValidation, err)
	}
	s.pm = pm
	slog.Debug("package manager", "id", pm.ID, "version", pm.Version)

	if s.opts.Strict {
		if err := lint.Run(ws.Packages); err != nil {
			return err
		}
	}
	return nil
}

// resolveHosting finds the repository URL (flag, manifests, git remote) and
// derives the commit, compare and release-draft settings from it.
func (s *state) resolveHosting(ctx context.Context) {
	remote, err := s.repo.RemoteURL(ctx)
	if err != nil {
		slog.Debug("failed to read git remotes", "error", err)
	}
	s.hasRemote = remote != ""

	raw := s.opts.GitURL
	for _, p := range append([]*workspace.Package{{Manifest: s.ws.RootManifest}}, s.ws.Packages...) {
		if raw != "" {
			break
		}
		raw = p.Manifest.Repository.URL
	}
	if raw == "" {
		raw = remote
	}

	disable := func(msg string) {
		if s.opts.Log && msg != "" {
			slog.Warn(msg)
		}
	}
	if raw == "" {
		if len(s.ws.Packages) == 1 {
			disable("This package has no repository url.")
		} else {
			disable("All selected packages have no repository url.")
		}
		return
	}
	repo, err := hosting.Parse(raw)
	if err != nil {
		disable(err.Error())
		return
	}

	supported := repo.Supported()
	s.hosting = &repo
	s.releaseDraft = boolOr(s.opts.ReleaseDraft, supported)
	if boolOr(s.opts.LogCommit, supported) {
		s.links.CommitURL = repo.CommitURL(s.opts.GitCommitURL)
	}
	if boolOr(s.opts.LogCompare, supported) {
		s.links.CompareURL = repo.CompareURL(s.opts.GitCompareURL)
	}
	slog.Info("Get git repository url", "url", repo.WebURL)
}

func (s *state) selectPackages(ctx context.Context) error {
	var changed []string
	if len(s.ws.Packages) > 1 && s.branch != "" {
		changed = s.changedPackages(ctx)
	}
	selected, err := s.selector().SelectPackages(ctx, s.ws.Packages, changed)
	if err != nil {
		return err
	}
	names := make([]string, len(selected))
	for i, p := range selected {
		names[i] = p.Name
	}
	if err := tagname.CheckUnique(s.scheme, names...); err != nil {
		return issue.New(issue.KindValidation, err)
	}
	s.selected = selected
	return nil
}

// changedPackages names the packages with files changed since HEAD diverged
// from the release branch.
func (s *state) changedPackages(ctx context.Context) []string {
	files, err := s.repo.ChangedFiles(ctx, s.branch)
	if err != nil {
		slog.Debug("failed to list changed files", "branch", s.branch, "error", err)
		return nil
	}
	var names []string
	for _, p := range s.ws.Packages {
		prefix := p.Dir + string(filepath.Separator)
		if slices.ContainsFunc(files, func(f string) bool { return strings.HasPrefix(f, prefix) }) {
			names = append(names, p.Name)
		}
	}
	return names
}

// resolveRegistries sets the registry and access of every selected package.
// Packages bound for a registry other than npmjs must be restricted.
func (s *state) resolveRegistries(ctx context.Context) error {
	for _, p := range s.selected {
		p.Registry = s.pm.ResolveRegistry(ctx, s.tools.With(p.Dir), p.Name, p.Manifest.PublishConfig.Registry)
		npm := registry.IsNPM(p.Registry)
		if !npm && p.Manifest.PublishConfig.Access != workspace.AccessRestricted {
			return issue.Errorf(issue.KindValidation, "%w: %s publish registry URL is %s, but access is not %s",
				ErrRestrictedAccess, p.Name, p.Registry, workspace.AccessRestricted)
		}
		p.Access = workspace.AccessRestricted
		if npm {
			p.Access = workspace.AccessPublic
		}
	}
	return nil
}

// fetchMetadata loads registry metadata for the selected packages
// concurrently. A failed document fetch falls back to the dist-tags
// endpoint; failures only cost the dist-tag suggestions.
func (s *state) fetchMetadata(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(len(s.selected), 1))
	for _, p := range s.selected {
		g.Go(func() error {
			md, err := s.deps.Metadata.Metadata(gctx, p.Name, p.Registry)
			if err != nil {
				slog.Warn("failed to fetch registry metadata", "package", p.Name, "error", err)
				md = registry.Metadata{Name: p.Name, DistTags: s.distTags(gctx, p)}
			}
			p.Metadata = md
			return nil
		})
	}
	_ = g.Wait()
}

func (s *state) distTags(ctx context.Context, p *workspace.Package) map[string]string {
	src, ok := s.deps.Metadata.(DistTagSource)
	if !ok {
		return map[string]string{}
	}
	tags, err := src.DistTags(ctx, p.Name, p.Registry)
	if err != nil {
		slog.Debug("failed to fetch dist-tags", "package", p.Name, "error", err)
		return map[string]string{}
	}
	return tags
}
