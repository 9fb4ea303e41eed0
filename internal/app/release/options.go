// SPDX-License-Identifier: MPL-2.0

package release

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/selector"
	"github.com/invowk/rc/internal/shell"
	"github.com/invowk/rc/internal/tagname"
)

// defaultBranches are the branches a release may start from when no branch
// is configured.
var defaultBranches = []string{"main", "master"}

// Options is everything a run needs to know from the command line and the
// configuration files. Pointer fields are unset when nil and then follow the
// hosting service defaults.
type Options struct {
	// Cwd is the project root.
	Cwd string
	// ReleaseType is empty when versions are chosen interactively.
	ReleaseType string
	PreID       string
	// PreIDSet distinguishes an explicit empty identifier from none.
	PreIDSet bool
	// DistTag forces the dist-tag of every package.
	DistTag string
	OTP     string

	Branch      string
	AnyBranch   bool
	NoGitChecks bool

	ScopedTag bool
	LineTag   bool
	TagMerge  bool

	Log           bool
	LogFull       bool
	LogCommit     *bool
	LogCompare    *bool
	GitURL        string
	GitCommitURL  string
	GitCompareURL string

	Publish      bool
	Build        bool
	BuildCommand string // replaces the package build script when set
	ReleaseDraft *bool

	DryRun  bool
	Strict  bool
	Verbose bool
}

// DefaultOptions returns the options of a plain "rc" invocation.
func DefaultOptions() Options {
	return Options{
		Cwd:      ".",
		TagMerge: true,
		Log:      true,
		Publish:  true,
		Build:    true,
	}
}

// Validate checks the options that can be checked without touching the
// repository.
func (o Options) Validate() error {
	preid := ""
	if o.PreIDSet {
		preid = o.PreID
	}
	if err := selector.ValidateRequest(o.ReleaseType, preid); err != nil {
		return err
	}
	if _, err := o.BuildArgs(); err != nil {
		return err
	}
	info, err := os.Stat(o.Cwd)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return issue.Errorf(issue.KindValidation, "[--cwd] directory %q does not exist", o.Cwd)
	case err != nil:
		return issue.New(issue.KindValidation, fmt.Errorf("[--cwd] %w", err))
	case !info.IsDir():
		return issue.Errorf(issue.KindValidation, "[--cwd] %q is not a directory", o.Cwd)
	}
	return nil
}

// BuildArgs splits BuildCommand into words. It returns nil when no custom
// build command is configured.
func (o Options) BuildArgs() ([]string, error) {
	if strings.TrimSpace(o.BuildCommand) == "" {
		return nil, nil
	}
	words, err := shell.Split(o.BuildCommand)
	if err != nil {
		return nil, issue.New(issue.KindValidation, fmt.Errorf("[publish.build_command] %w", err))
	}
	return words, nil
}

// Scheme returns the tag naming scheme for a workspace.
func (o Options) Scheme(monorepo bool) tagname.Scheme {
	return tagname.Scheme{Monorepo: monorepo, Scoped: o.ScopedTag, LineTag: o.LineTag}
}

// AllowedBranches returns the branches a release may start from.
func (o Options) AllowedBranches() []string {
	if o.Branch != "" {
		return []string{o.Branch}
	}
	return slices.Clone(defaultBranches)
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
