// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/rc/internal/app/release"
	"github.com/invowk/rc/internal/config"
	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/prompt"
)

// releaseFlags are the flags of the root command. Only flags set on the
// command line override the configuration.
type releaseFlags struct {
	preid         string
	distTag       string
	otp           string
	branch        string
	gitURL        string
	gitCommitURL  string
	gitCompareURL string

	anyBranch    bool
	noGitChecks  bool
	scopedTag    bool
	lineTag      bool
	tagMerge     bool
	noLog        bool
	logFull      bool
	logCommit    bool
	logCompare   bool
	noPublish    bool
	noBuild      bool
	releaseDraft bool
	dryRun       bool
	strict       bool
}

func (f *releaseFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.preid, "preid", "", "pre-release identifier: alpha, beta, rc or empty for anonymous")
	fs.StringVar(&f.distTag, "tag", "", "dist-tag for every published package")
	fs.StringVar(&f.otp, "otp", "", "one-time password for publishing")
	fs.StringVar(&f.branch, "branch", "", "branch releases must start from (default main or master)")
	fs.BoolVar(&f.anyBranch, "any-branch", false, "allow releasing from any branch")
	fs.BoolVar(&f.noGitChecks, "no-git-checks", false, "skip the clean tree and branch checks")

	fs.BoolVar(&f.scopedTag, "scoped-tag", false, "keep the npm scope in tag names")
	fs.BoolVar(&f.lineTag, "line-tag", false, "use dash-joined tag names (pkg-v1.0.0)")
	fs.BoolVar(&f.tagMerge, "tag-merge", true, "release every package in one commit")

	fs.BoolVar(&f.noLog, "no-log", false, "do not write changelogs")
	fs.BoolVar(&f.logFull, "log-full", false, "regenerate the full changelog")
	fs.BoolVar(&f.logCommit, "log-commit", false, "link commits in changelogs (default on for supported hosts)")
	fs.BoolVar(&f.logCompare, "log-compare", false, "link version comparisons in changelogs (default on for supported hosts)")
	fs.StringVar(&f.gitURL, "git-url", "", "repository URL used for links")
	fs.StringVar(&f.gitCommitURL, "git-commit-url", "", "commit link template containing {sha}")
	fs.StringVar(&f.gitCompareURL, "git-compare-url", "", "compare link template containing {diff}")

	fs.BoolVar(&f.noPublish, "no-publish", false, "do not publish to the registry")
	fs.BoolVar(&f.noBuild, "no-build", false, "do not run the build script before publishing")
	fs.BoolVar(&f.releaseDraft, "release-draft", false, "open a hosted release draft (default on for GitHub)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "print every change instead of making it")
	fs.BoolVar(&f.strict, "strict", false, "lint package manifests before releasing")
}

// apply copies the flags set on the command line onto opts.
func (f *releaseFlags) apply(cmd *cobra.Command, opts *release.Options) {
	changed := cmd.Flags().Changed
	setString := func(name, v string, dst *string) {
		if changed(name) {
			*dst = v
		}
	}
	setBool := func(name string, v bool, dst *bool) {
		if changed(name) {
			*dst = v
		}
	}
	setOptional := func(name string, v bool, dst **bool) {
		if changed(name) {
			*dst = &v
		}
	}

	if changed("preid") {
		opts.PreID = f.preid
		opts.PreIDSet = true
	}
	setString("tag", f.distTag, &opts.DistTag)
	setString("otp", f.otp, &opts.OTP)
	setString("branch", f.branch, &opts.Branch)
	setString("git-url", f.gitURL, &opts.GitURL)
	setString("git-commit-url", f.gitCommitURL, &opts.GitCommitURL)
	setString("git-compare-url", f.gitCompareURL, &opts.GitCompareURL)

	setBool("any-branch", f.anyBranch, &opts.AnyBranch)
	setBool("no-git-checks", f.noGitChecks, &opts.NoGitChecks)
	setBool("scoped-tag", f.scopedTag, &opts.ScopedTag)
	setBool("line-tag", f.lineTag, &opts.LineTag)
	setBool("tag-merge", f.tagMerge, &opts.TagMerge)
	setBool("log-full", f.logFull, &opts.LogFull)
	setBool("dry-run", f.dryRun, &opts.DryRun)
	setBool("strict", f.strict, &opts.Strict)
	if changed("no-log") {
		opts.Log = !f.noLog
	}
	if changed("no-publish") {
		opts.Publish = !f.noPublish
	}
	if changed("no-build") {
		opts.Build = !f.noBuild
	}
	setOptional("log-commit", f.logCommit, &opts.LogCommit)
	setOptional("log-compare", f.logCompare, &opts.LogCompare)
	setOptional("release-draft", f.releaseDraft, &opts.ReleaseDraft)
}

// options resolves the release options: defaults, configuration, flags.
func (a *App) options(cmd *cobra.Command, g *globalFlags, rf *releaseFlags, args []string) (release.Options, *config.Config, error) {
	cwd := g.projectDir(cmd)
	loaded, err := a.Config.Load(cmd.Context(), config.LoadOptions{ProjectDir: cwd, ConfigFilePath: g.configFile})
	if err != nil {
		return release.Options{}, nil, err
	}

	opts := release.DefaultOptions()
	loaded.Config.Apply(&opts)
	opts.Cwd = cwd
	if len(args) == 1 {
		opts.ReleaseType = args[0]
	}
	rf.apply(cmd, &opts)
	if g.verbose {
		opts.Verbose = true
	}
	return opts, loaded.Config, nil
}

func (a *App) runRelease(cmd *cobra.Command, g *globalFlags, rf *releaseFlags, args []string) error {
	opts, cfg, err := a.options(cmd, g, rf, args)
	if err != nil {
		return err
	}
	if opts.Verbose != a.verbose {
		a.verbose = opts.Verbose
		setupLogging(a.stderr, a.verbose)
	}

	p := a.Prompt
	if p == nil {
		pc := prompt.DefaultConfig()
		pc.Theme = cfg.UI.Theme
		pc.Accessible = pc.Accessible || cfg.UI.Accessible
		p = prompt.New(pc)
	}

	err = a.NewReleaser(release.Deps{Prompt: p, Out: a.stdout, Marker: highlight}).Run(cmd.Context(), opts)
	switch {
	case err == nil:
		msg := "Release finished."
		if opts.DryRun {
			msg = "Dry run finished, nothing was changed."
		}
		fmt.Fprintln(a.stdout, SuccessStyle.Render(msg))
		return nil
	case issue.IsCancelled(err):
		fmt.Fprintln(a.stderr, WarningStyle.Render(err.Error()))
		return nil
	default:
		return err
	}
}
