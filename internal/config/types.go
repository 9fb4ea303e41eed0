// SPDX-License-Identifier: MPL-2.0

package config

import (
	"github.com/invowk/rc/internal/app/release"
	"github.com/invowk/rc/internal/prompt"
)

type (
	// Config is the resolved configuration. Pointer fields stay nil when no
	// source sets them; the release then derives them from the hosting service.
	Config struct {
		Branch      string `json:"branch,omitempty" mapstructure:"branch"`
		AnyBranch   bool   `json:"any_branch" mapstructure:"any_branch"`
		NoGitChecks bool   `json:"no_git_checks" mapstructure:"no_git_checks"`
		// PreID is nil when unset; "" is a valid identifier.
		PreID   *string       `json:"preid,omitempty" mapstructure:"preid"`
		DistTag string        `json:"dist_tag,omitempty" mapstructure:"dist_tag"`
		Tags    TagConfig     `json:"tags" mapstructure:"tags"`
		Log     LogConfig     `json:"log" mapstructure:"log"`
		Git     GitConfig     `json:"git" mapstructure:"git"`
		Publish PublishConfig `json:"publish" mapstructure:"publish"`
		Strict  bool          `json:"strict" mapstructure:"strict"`
		UI      UIConfig      `json:"ui" mapstructure:"ui"`
	}

	// TagConfig selects the tag naming scheme.
	TagConfig struct {
		Scoped bool `json:"scoped" mapstructure:"scoped"`
		Line   bool `json:"line" mapstructure:"line"`
		// Merge releases every package in one commit.
		Merge bool `json:"merge" mapstructure:"merge"`
	}

	// LogConfig controls changelog generation.
	LogConfig struct {
		Enabled bool  `json:"enabled" mapstructure:"enabled"`
		Full    bool  `json:"full" mapstructure:"full"`
		Commit  *bool `json:"commit,omitempty" mapstructure:"commit"`
		Compare *bool `json:"compare,omitempty" mapstructure:"compare"`
	}

	// GitConfig overrides the detected repository URL and link templates.
	GitConfig struct {
		URL        string `json:"url,omitempty" mapstructure:"url"`
		CommitURL  string `json:"commit_url,omitempty" mapstructure:"commit_url"`
		CompareURL string `json:"compare_url,omitempty" mapstructure:"compare_url"`
	}

	// PublishConfig controls the publish stage.
	PublishConfig struct {
		Enabled      bool  `json:"enabled" mapstructure:"enabled"`
		Build        bool   `json:"build" mapstructure:"build"`
		BuildCommand string `json:"build_command,omitempty" mapstructure:"build_command"`
		ReleaseDraft *bool  `json:"release_draft,omitempty" mapstructure:"release_draft"`
	}

	// UIConfig configures prompts and output.
	UIConfig struct {
		Theme      prompt.Theme `json:"theme" mapstructure:"theme"`
		Accessible bool         `json:"accessible" mapstructure:"accessible"`
		Verbose    bool         `json:"verbose" mapstructure:"verbose"`
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Tags:    TagConfig{Merge: true},
		Log:     LogConfig{Enabled: true},
		Publish: PublishConfig{Enabled: true, Build: true},
		UI:      UIConfig{Theme: prompt.ThemeDefault},
	}
}

// Apply copies the configured values onto opts.
func (c *Config) Apply(opts *release.Options) {
	opts.Branch = c.Branch
	opts.AnyBranch = c.AnyBranch
	opts.NoGitChecks = c.NoGitChecks
	if c.PreID != nil {
		opts.PreID = *c.PreID
		opts.PreIDSet = true
	}
	opts.DistTag = c.DistTag
	opts.ScopedTag = c.Tags.Scoped
	opts.LineTag = c.Tags.Line
	opts.TagMerge = c.Tags.Merge
	opts.Log = c.Log.Enabled
	opts.LogFull = c.Log.Full
	opts.LogCommit = c.Log.Commit
	opts.LogCompare = c.Log.Compare
	opts.GitURL = c.Git.URL
	opts.GitCommitURL = c.Git.CommitURL
	opts.GitCompareURL = c.Git.CompareURL
	opts.Publish = c.Publish.Enabled
	opts.Build = c.Publish.Build
	opts.BuildCommand = c.Publish.BuildCommand
	opts.ReleaseDraft = c.Publish.ReleaseDraft
	opts.Strict = c.Strict
	opts.Verbose = c.UI.Verbose
}
