// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/invowk/rc/internal/app/release"
	"github.com/invowk/rc/internal/config"
	"github.com/invowk/rc/internal/git"
	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/prompt"
	"github.com/invowk/rc/internal/publish"
	"github.com/invowk/rc/internal/registry"
	"github.com/invowk/rc/internal/workspace"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// ReleaseRunner performs one release.
	ReleaseRunner interface {
		Run(ctx context.Context, opts release.Options) error
	}

	// App wires the CLI to its services. Command handlers receive the App
	// and delegate to it.
	App struct {
		Config      config.Provider
		NewReleaser func(release.Deps) ReleaseRunner
		// Prompt overrides the huh prompter built from the UI configuration.
		Prompt  prompt.Prompter
		stdout  io.Writer
		stderr  io.Writer
		verbose bool
	}

	// Dependencies are the injection points of NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config      config.Provider
		NewReleaser func(release.Deps) ReleaseRunner
		Prompt      prompt.Prompter
		Stdout      io.Writer
		Stderr      io.Writer
	}

	// globalFlags are shared by every command.
	globalFlags struct {
		cwd        string
		configFile string
		verbose    bool
	}
)

// NewApp creates an App.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:      deps.Config,
		NewReleaser: deps.NewReleaser,
		Prompt:      deps.Prompt,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.NewReleaser == nil {
		app.NewReleaser = func(d release.Deps) ReleaseRunner { return release.New(d) }
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	g := &globalFlags{}
	rf := &releaseFlags{}

	root := &cobra.Command{
		Use:   "rc [major|minor|patch|premajor|preminor|prepatch|prerelease]",
		Short: "Release npm packages from a git repository",
		Long: TitleStyle.Render("rc") + SubtitleStyle.Render(" - release npm packages from a git repository") + `

rc bumps versions, writes changelogs, commits and tags, publishes to the
registry, pushes and opens a hosted release draft. Every change is rolled
back when a later step fails.

` + SubtitleStyle.Render("Examples:") + `
  rc                        Choose versions interactively
  rc patch                  Release every selected package as a patch
  rc prerelease --preid rc  Release a pre-release on the rc line
  rc minor --dry-run        Show what a minor release would do
  rc config show            Show the resolved configuration`,
		Args: cobra.MaximumNArgs(1),
		PersistentPreRun: func(*cobra.Command, []string) {
			app.verbose = g.verbose
			setupLogging(app.stderr, g.verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runRelease(cmd, g, rf, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.cwd, "cwd", ".", "project root (env RC_CWD)")
	pf.StringVar(&g.configFile, "config", "", "configuration file (default is rc.config.cue in the project)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose output")
	rf.register(root)

	root.AddCommand(newConfigCommand(app, g))
	return root
}

// projectDir returns --cwd, falling back to RC_CWD when the flag is unset.
func (g *globalFlags) projectDir(cmd *cobra.Command) string {
	if !cmd.Flags().Changed("cwd") {
		if env := os.Getenv(config.EnvPrefix + "_CWD"); env != "" {
			return env
		}
	}
	return g.cwd
}

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Run executes the CLI with the process arguments and returns the exit code.
func Run() int {
	return run(context.Background(), NewApp(Dependencies{}), os.Args[1:])
}

// Execute runs the CLI and exits the process.
func Execute() {
	os.Exit(Run())
}

func run(ctx context.Context, app *App, args []string) int {
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)
	err := fang.Execute(ctx, root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			app.printError(w, err)
		}),
	)
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// printError writes err and, when one exists, the catalog guidance for it.
func (a *App) printError(w io.Writer, err error) {
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, a.verbose))
	guide := guidanceFor(err)
	if guide == nil {
		return
	}
	if rendered, rerr := guide.Render("dark"); rerr == nil {
		fmt.Fprint(w, rendered)
	}
}

// formatErrorForDisplay uses the ActionableError format when available and
// appends the error chain in verbose mode.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	msg := err.Error()
	if verbose {
		if k := issue.KindOf(err); k != issue.KindInternal {
			msg += " (" + k.String() + ")"
		}
	}
	return msg
}

func guidanceFor(err error) *issue.Issue {
	var ae *issue.ActionableError
	switch {
	case errors.Is(err, publish.ErrRollbackFailed):
		return issue.Get(issue.RollbackFailedId)
	case errors.Is(err, git.ErrNotRepository):
		return issue.Get(issue.NotGitRepositoryId)
	case errors.Is(err, release.ErrUncleanTree):
		return issue.Get(issue.DirtyWorkingTreeId)
	case errors.Is(err, release.ErrBranchNotAllowed):
		return issue.Get(issue.BranchNotAllowedId)
	case errors.Is(err, workspace.ErrNoPackages):
		return issue.Get(issue.NoPackagesFoundId)
	case errors.Is(err, registry.ErrUnsupportedManager), errors.Is(err, registry.ErrManagerNotInstalled):
		return issue.Get(issue.PackageManagerUnsupportedId)
	case errors.Is(err, release.ErrRestrictedAccess):
		return issue.Get(issue.RegistryAccessId)
	case errors.As(err, &ae) && ae.Operation == "load configuration":
		return issue.Get(issue.ConfigLoadFailedId)
	}
	return issue.ForKind(issue.KindOf(err))
}
