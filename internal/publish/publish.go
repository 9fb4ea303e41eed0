// SPDX-License-Identifier: MPL-2.0

package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/invowk/rc/internal/changelog"
	"github.com/invowk/rc/internal/hosting"
	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/prompt"
	"github.com/invowk/rc/internal/registry"
	"github.com/invowk/rc/internal/shell"
	"github.com/invowk/rc/internal/tagname"
	"github.com/invowk/rc/internal/version"
	"github.com/invowk/rc/internal/workspace"
)

// MaxOTPAttempts bounds how many times one package is published while the
// registry keeps asking for a one-time password.
const MaxOTPAttempts = 5

type (
	// Repository is the version control the orchestrator mutates.
	Repository interface {
		Add(ctx context.Context, paths ...string) error
		Commit(ctx context.Context, message string) error
		CreateTag(ctx context.Context, name string) error
		DeleteTag(ctx context.Context, name string) error
		TagExists(ctx context.Context, name string) (bool, error)
		Push(ctx context.Context, followTags bool) error
		PushTags(ctx context.Context) error
		RecentCommits(ctx context.Context, n int) ([]string, error)
		ResetHard(ctx context.Context, commit string) error
		Restore(ctx context.Context, paths ...string) error
	}

	// Registry publishes packages.
	Registry interface {
		Publish(ctx context.Context, req registry.PublishRequest) error
		TwoFactorRequired(ctx context.Context, registryURL string) bool
	}

	// Opener shows a URL to the user, usually in a browser.
	Opener func(ctx context.Context, url string) error

	// Config is the release policy applied by an Orchestrator.
	Config struct {
		Manager registry.Manager
		Scheme  tagname.Scheme
		Links   changelog.Links
		// Hosting is the parsed repository URL; nil when unknown.
		Hosting *hosting.Repository
		// HasRemote enables pushing.
		HasRemote bool

		DryRun       bool
		Build        bool
		// BuildCommand replaces "<cli> run build" when set; it runs even for
		// packages without a build script.
		BuildCommand []string
		Publish      bool
		ReleaseDraft bool
		// OTP is a one-time password given up front.
		OTP string
		// Env is the environment of publish commands.
		Env []string
	}

	// TwoFactorState carries the one-time password conversation across the
	// packages of one run.
	TwoFactorState struct {
		// Token is the cached one-time password, empty when none.
		Token string
		// Required is resolved once, before the first publish.
		Required bool
		// TryAgain is set after the registry rejected a password.
		TryAgain bool

		resolved bool
	}

	// Orchestrator runs the release steps in order and records how far it got.
	Orchestrator struct {
		cfg    Config
		repo   Repository
		reg    Registry
		run    *shell.Runner
		prompt prompt.Prompter
		open   Opener
		out    io.Writer

		state State
		tfa   TwoFactorState
		// written are files changed before the release commit exists.
		written []string
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)
)

// WithOpener replaces the release-draft opener.
func WithOpener(fn Opener) Option {
	return func(o *Orchestrator) { o.open = fn }
}

// WithOutput sets where build and publish output is streamed.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// New creates an Orchestrator. run executes build scripts and opens release
// drafts; p asks for one-time passwords.
func New(cfg Config, repo Repository, reg Registry, run *shell.Runner, p prompt.Prompter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		repo:   repo,
		reg:    reg,
		run:    run,
		prompt: p,
		out:    io.Discard,
		tfa:    TwoFactorState{Token: cfg.OTP},
	}
	o.open = BrowserOpener(run)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns how far the release got.
func (o *Orchestrator) State() State { return o.state }

// TwoFactor returns a copy of the one-time password state.
func (o *Orchestrator) TwoFactor() TwoFactorState { return o.tfa }

// Wrote records files the release changed in the work tree, so that a
// rollback restores them even when no release commit was made.
func (o *Orchestrator) Wrote(paths ...string) {
	o.written = append(o.written, paths...)
}

// NeedsRollback reports whether a failure now leaves anything to undo.
func (o *Orchestrator) NeedsRollback() bool {
	return o.state.Mutated() || len(o.written) > 0
}

// Fail records a failure. Failures before the first mutation leave the
// state untouched since there is nothing to undo.
func (o *Orchestrator) Fail() {
	if o.state.Mutated() {
		o.state = Failed
	}
}

// Tag returns the tag created for pkg.
func (o *Orchestrator) Tag(pkg *workspace.Package) string {
	return tagname.Tag(pkg.Name, pkg.NewVersion, o.cfg.Scheme)
}

// Tags returns the tags created for pkgs.
func (o *Orchestrator) Tags(pkgs []*workspace.Package) []string {
	tags := make([]string, len(pkgs))
	for i, p := range pkgs {
		tags[i] = o.Tag(p)
	}
	return tags
}

// BumpAndTag writes every manifest, records them in one release commit and
// tags each package.
func (o *Orchestrator) BumpAndTag(ctx context.Context, pkgs []*workspace.Package) error {
	slog.Info("Bump version and tag")
	o.state = VersionBumped
	if !o.cfg.DryRun {
		for _, p := range pkgs {
			if err := workspace.WriteVersion(p.Dir, p.NewVersion); err != nil {
				return err
			}
			o.Wrote(filepath.Join(p.Dir, workspace.ManifestFile))
		}
	}
	if err := o.repo.Add(ctx); err != nil {
		return err
	}

	labels := make([]string, len(pkgs))
	for i, p := range pkgs {
		labels[i] = tagname.Release(p.Name, p.NewVersion, o.cfg.Scheme.Monorepo)
	}
	if err := o.repo.Commit(ctx, changelog.ReleaseCommitPrefix+" "+strings.Join(labels, ", ")); err != nil {
		return err
	}
	for _, p := range pkgs {
		if err := o.repo.CreateTag(ctx, o.Tag(p)); err != nil {
			return err
		}
	}
	o.state = Tagged
	return nil
}

// BumpAndTagOne writes the manifest of pkg and gives it its own release
// commit and tag.
func (o *Orchestrator) BumpAndTagOne(ctx context.Context, pkg *workspace.Package) error {
	o.state = VersionBumped
	if !o.cfg.DryRun {
		if err := workspace.WriteVersion(pkg.Dir, pkg.NewVersion); err != nil {
			return err
		}
		o.Wrote(filepath.Join(pkg.Dir, workspace.ManifestFile))
	}
	if err := o.repo.Add(ctx, pkg.Dir); err != nil {
		return err
	}
	tag := o.Tag(pkg)
	if err := o.repo.Commit(ctx, changelog.ReleaseCommitPrefix+" "+tag); err != nil {
		return err
	}
	if err := o.repo.CreateTag(ctx, tag); err != nil {
		return err
	}
	o.state = Tagged
	return nil
}

// PublishAll builds and publishes every package in order, stopping at the
// first failure.
func (o *Orchestrator) PublishAll(ctx context.Context, pkgs []*workspace.Package) error {
	if !o.cfg.Publish {
		o.state = Published
		return nil
	}
	for _, p := range pkgs {
		if !o.cfg.DryRun && o.cfg.Build && (len(o.cfg.BuildCommand) > 0 || p.Manifest.HasScript("build")) {
			if err := o.build(ctx, p); err != nil {
				return err
			}
		}
		if err := o.PublishOne(ctx, p); err != nil {
			return err
		}
		slog.Info(fmt.Sprintf("Publish %s successfully", p.Label()))
	}
	o.state = Published
	return nil
}

func (o *Orchestrator) build(ctx context.Context, p *workspace.Package) error {
	name, args := o.cfg.Manager.CLI, []string{"run", "build"}
	if len(o.cfg.BuildCommand) > 0 {
		name, args = o.cfg.BuildCommand[0], o.cfg.BuildCommand[1:]
	}
	_, err := o.run.Run(ctx, shell.Command{
		Name:   name,
		Args:   args,
		Dir:    p.Dir,
		Stdout: o.out,
		Stderr: o.out,
	})
	if err != nil {
		return fmt.Errorf("build %s: %w", p.Name, err)
	}
	return nil
}

// PublishArgs returns the executable and arguments publishing pkg, without
// the one-time password.
func (o *Orchestrator) PublishArgs(pkg *workspace.Package) (string, []string) {
	pm := o.cfg.Manager
	name, lead := pm.PublishCommand()
	args := append(lead, "--access", pkg.Access, "--tag", pkg.DistTag)
	switch pm.ID {
	case registry.PNPMID:
		args = append(args, "--no-git-checks")
	case registry.YarnID:
		args = append(args, "--new-version", pkg.NewVersion)
	}
	if o.cfg.DryRun && pm.CLI != "yarn" {
		args = append(args, "--dry-run")
	}
	return name, args
}

// PublishOne publishes pkg. When the registry asks for a one-time password
// the user is prompted for a fresh one and the publish is retried, at most
// MaxOTPAttempts times in total.
func (o *Orchestrator) PublishOne(ctx context.Context, pkg *workspace.Package) error {
	if err := o.resolveTwoFactor(ctx, pkg); err != nil {
		return err
	}
	name, args := o.PublishArgs(pkg)
	slog.Debug("publish", "cmd", shell.Quote(name, args...))
	if o.cfg.DryRun && o.cfg.Manager.CLI == "yarn" {
		slog.Info("Skip run publish command in dry-run mode.", "package", pkg.Name)
		return nil
	}

	for attempt := 1; ; attempt++ {
		runArgs := args
		if o.tfa.Token != "" {
			runArgs = append(append([]string(nil), args...), "--otp", o.tfa.Token)
		}
		err := o.reg.Publish(ctx, registry.PublishRequest{
			Name:   name,
			Args:   runArgs,
			Dir:    pkg.Dir,
			Env:    o.cfg.Env,
			Output: o.out,
		})
		if err == nil {
			o.tfa.TryAgain = false
			return nil
		}
		if !needsOTP(err) {
			return issue.New(issue.KindPublishRejected, fmt.Errorf("publish %s: %w", pkg.Label(), err))
		}
		if attempt >= MaxOTPAttempts {
			return issue.Errorf(issue.KindOTPRequired, "publish %s: no valid one-time password after %d attempts", pkg.Label(), attempt)
		}
		// the cached password was just rejected
		o.tfa.Token = ""
		o.tfa.TryAgain = true
		if err := o.askOTP(ctx); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) resolveTwoFactor(ctx context.Context, pkg *workspace.Package) error {
	if !o.tfa.resolved {
		o.tfa.resolved = true
		if !o.cfg.DryRun {
			o.tfa.Required = o.reg.TwoFactorRequired(ctx, pkg.Registry)
		}
	}
	if o.tfa.Required && o.tfa.Token == "" {
		return o.askOTP(ctx)
	}
	return nil
}

func (o *Orchestrator) askOTP(ctx context.Context) error {
	title := "This operation requires a one-time password from your authenticator. Enter it:"
	if o.tfa.TryAgain {
		title = "The one-time password is incorrect or expired. Enter a new one:"
	}
	code, err := o.prompt.Input(ctx, title, ValidateOTP)
	if err != nil {
		return err
	}
	o.tfa.Token = strings.TrimSpace(code)
	return nil
}

// ValidateOTP accepts six digit codes.
func ValidateOTP(code string) error {
	code = strings.TrimSpace(code)
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		return errors.New("the one-time password must be 6 digits")
	}
	return nil
}

func needsOTP(err error) bool {
	var re *shell.RunError
	if errors.As(err, &re) && registry.NeedsOTP(re.Output) {
		return true
	}
	return registry.NeedsOTP(err.Error())
}

// PushAll pushes the release commit and its tags. Hosts rejecting
// "--follow-tags" get a plain push followed by a tag push.
func (o *Orchestrator) PushAll(ctx context.Context) error {
	if !o.cfg.HasRemote {
		slog.Debug("no git remote, skip push")
		o.state = Pushed
		return nil
	}
	if err := o.repo.Push(ctx, true); err != nil {
		slog.Debug("push --follow-tags failed, pushing commits and tags separately", "error", err)
		if err := o.repo.Push(ctx, false); err != nil {
			return pushError(err)
		}
		if err := o.repo.PushTags(ctx); err != nil {
			return pushError(fmt.Errorf("push tags: %w", err))
		}
	}
	o.state = Pushed
	return nil
}

func pushError(err error) error {
	return issue.NewErrorContext().
		WithOperation("push release").
		Wrap(err).
		WithSuggestions(
			"Pull the remote changes and run the release again",
			"Check that your credentials allow pushing to this remote",
		).
		BuildError()
}

// DraftURL returns the release-draft URL of pkg, or "" when drafts do not
// apply to the repository.
func (o *Orchestrator) DraftURL(pkg *workspace.Package) string {
	if !o.cfg.ReleaseDraft || o.cfg.Hosting == nil || !o.cfg.Hosting.IsGitHub() {
		return ""
	}
	body := ""
	if len(pkg.Changelogs) > 0 {
		body = changelog.ReleaseBody(pkg.Changelogs[0], o.cfg.Links)
	}
	return o.cfg.Hosting.ReleaseDraftURL(o.Tag(pkg), body, version.IsPrerelease(pkg.NewVersion))
}

// DraftRelease opens the release draft of every package, or only reports
// the URLs in dry-run mode.
func (o *Orchestrator) DraftRelease(ctx context.Context, pkgs []*workspace.Package) error {
	for _, p := range pkgs {
		u := o.DraftURL(p)
		if u == "" {
			continue
		}
		slog.Info(p.Name+" github release", "url", u)
		if o.cfg.DryRun {
			continue
		}
		if err := o.open(ctx, u); err != nil {
			// the URL was already printed
			slog.Warn("failed to open release draft", "error", err)
		}
	}
	o.state = ReleaseDrafted
	return nil
}

// Finish marks the release as complete.
func (o *Orchestrator) Finish() { o.state = Done }

// Rollback undoes the commits and tags of pkgs, stopping at preRunSHA, and
// restores the files recorded with Wrote. The error wraps ErrRollbackFailed.
func (o *Orchestrator) Rollback(ctx context.Context, pkgs []*workspace.Package, preRunSHA string) error {
	if err := Rollback(ctx, o.repo, o.Tags(pkgs), len(pkgs), preRunSHA, o.written...); err != nil {
		return fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}
	return nil
}
