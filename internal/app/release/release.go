// SPDX-License-Identifier: MPL-2.0

package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/invowk/rc/internal/changelog"
	"github.com/invowk/rc/internal/git"
	"github.com/invowk/rc/internal/hosting"
	"github.com/invowk/rc/internal/prompt"
	"github.com/invowk/rc/internal/publish"
	"github.com/invowk/rc/internal/registry"
	"github.com/invowk/rc/internal/selector"
	"github.com/invowk/rc/internal/shell"
	"github.com/invowk/rc/internal/tagname"
	"github.com/invowk/rc/internal/version"
	"github.com/invowk/rc/internal/workspace"
)

type (
	// MetadataSource fetches registry metadata.
	MetadataSource interface {
		Metadata(ctx context.Context, name, registryURL string) (registry.Metadata, error)
	}

	// DistTagSource is implemented by metadata sources that can fetch the
	// dist-tags alone, which fetchMetadata falls back to.
	DistTagSource interface {
		DistTags(ctx context.Context, name, registryURL string) (map[string]string, error)
	}

	// Deps are the collaborators of a run. Zero fields get production
	// defaults; Prompt is required.
	Deps struct {
		Prompt    prompt.Prompter
		Metadata  MetadataSource
		Publisher publish.Registry
		Opener    publish.Opener
		// Tools runs package-manager commands. It defaults to the runner that
		// runs git.
		Tools *shell.Runner
		// Env is the base environment of every command (os.Environ by default).
		Env []string
		// Out receives plans, previews and command echoes.
		Out io.Writer
		// Marker highlights changed versions and packages.
		Marker version.Marker
		Now    func() time.Time
	}

	// Releaser runs releases.
	Releaser struct {
		deps Deps
	}

	// state is everything one run learns before it starts mutating.
	state struct {
		opts  Options
		deps  Deps
		run   *shell.Runner
		tools *shell.Runner
		repo  git.Repository
		ws    *workspace.Workspace
		pm    registry.Manager

		scheme       tagname.Scheme
		hosting      *hosting.Repository
		links        changelog.Links
		releaseDraft bool
		hasRemote    bool
		branch       string

		selected  []*workspace.Package
		preRunSHA string
	}
)

// New creates a Releaser.
func New(deps Deps) *Releaser {
	if deps.Env == nil {
		deps.Env = os.Environ()
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Metadata == nil {
		deps.Metadata = registry.NewClient(registry.WithUserAgent("rc"), registry.EnvToken(deps.Env))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Releaser{deps: deps}
}

// Run performs one release. Errors carry an issue.Kind; a declined
// confirmation is reported as a cancellation.
func (r *Releaser) Run(ctx context.Context, opts Options) error {
	slog.Debug("release options", "options", fmt.Sprintf("%+v", opts))
	if err := opts.Validate(); err != nil {
		return err
	}
	s, err := r.prepare(ctx, opts)
	if err != nil {
		return err
	}
	if err := s.resolveVersions(ctx); err != nil {
		return err
	}
	if err := s.buildChangelogs(ctx); err != nil {
		return err
	}
	return s.execute(ctx)
}

func (r *Releaser) prepare(ctx context.Context, opts Options) (*state, error) {
	run := shell.New(opts.Cwd,
		shell.WithDryRun(opts.DryRun),
		shell.WithVerbose(opts.Verbose),
		shell.WithEcho(r.deps.Out),
		shell.WithEnv(r.deps.Env),
	)
	s := &state{opts: opts, deps: r.deps, run: run, tools: r.deps.Tools}
	if s.tools == nil {
		s.tools = run
	}

	if err := s.openRepository(ctx); err != nil {
		return nil, err
	}
	if err := s.checkRepository(ctx); err != nil {
		return nil, err
	}
	if err := s.findPackages(ctx); err != nil {
		return nil, err
	}
	s.resolveHosting(ctx)
	if err := s.selectPackages(ctx); err != nil {
		return nil, err
	}
	if err := s.resolveRegistries(ctx); err != nil {
		return nil, err
	}
	s.fetchMetadata(ctx)
	return s, nil
}

func (s *state) selector() *selector.Selector {
	opts := []selector.Option{selector.WithOutput(s.deps.Out)}
	if s.deps.Marker != nil {
		opts = append(opts, selector.WithMarker(s.deps.Marker))
	}
	if s.opts.PreIDSet {
		opts = append(opts, selector.WithPreID(s.opts.PreID))
	}
	if s.opts.DistTag != "" {
		opts = append(opts, selector.WithDistTag(s.opts.DistTag))
	}
	return selector.New(s.deps.Prompt, opts...)
}

func (s *state) resolveVersions(ctx context.Context) error {
	sel := s.selector()
	if s.opts.ReleaseType != "" {
		return sel.ResolveByType(ctx, s.selected, s.opts.ReleaseType)
	}
	return sel.ResolveInteractively(ctx, s.selected)
}

// execute performs every mutating step. A failure after the first mutation
// rolls the repository back, unless the run was interrupted. A failed
// rollback is joined to the returned error.
func (s *state) execute(ctx context.Context) (err error) {
	publisher := s.deps.Publisher
	if publisher == nil {
		publisher = registry.NewPublisher(s.tools)
	}
	opener := s.deps.Opener
	if opener == nil {
		opener = publish.BrowserOpener(s.run)
	}
	buildArgs, err := s.opts.BuildArgs()
	if err != nil {
		return err
	}
	o := publish.New(publish.Config{
		Manager:      s.pm,
		Scheme:       s.scheme,
		Links:        s.links,
		Hosting:      s.hosting,
		HasRemote:    s.hasRemote,
		DryRun:       s.opts.DryRun,
		Build:        s.opts.Build,
		BuildCommand: buildArgs,
		Publish:      s.opts.Publish,
		ReleaseDraft: s.releaseDraft,
		OTP:          s.opts.OTP,
		Env:          registry.PublishEnv(s.deps.Env),
	}, s.repo, publisher, s.tools, s.deps.Prompt, publish.WithOpener(opener), publish.WithOutput(s.deps.Out))

	defer func() {
		if err == nil || !o.NeedsRollback() {
			return
		}
		o.Fail()
		if ctx.Err() != nil {
			slog.Warn("Release interrupted, the repository was not rolled back", "commit", s.preRunSHA)
			return
		}
		if rbErr := o.Rollback(context.WithoutCancel(ctx), s.selected, s.preRunSHA); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
	}()

	for _, p := range s.selected {
		if s.opts.Log {
			doc := changelog.Document{Dir: p.Dir, Full: s.opts.LogFull, DryRun: s.opts.DryRun, Preview: s.deps.Out}
			if _, err := doc.Update(p.Changelogs, s.links); err != nil {
				return err
			}
			if !s.opts.DryRun {
				o.Wrote(doc.Path())
			}
		}
		if !s.opts.TagMerge {
			if err := o.BumpAndTagOne(ctx, p); err != nil {
				return err
			}
		}
	}
	if s.opts.TagMerge {
		if err := o.BumpAndTag(ctx, s.selected); err != nil {
			return err
		}
	}
	if err := o.PublishAll(ctx, s.selected); err != nil {
		return err
	}
	if err := o.PushAll(ctx); err != nil {
		return err
	}
	if err := o.DraftRelease(ctx, s.selected); err != nil {
		return err
	}
	o.Finish()
	return nil
}
