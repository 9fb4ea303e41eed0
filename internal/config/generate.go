// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrConfigExists is returned by WriteFile when the target already exists.
var ErrConfigExists = errors.New("config file already exists")

// GenerateCUE renders cfg as an rc.config.cue document. Unset optional
// values are written as comments.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder
	sb.WriteString("// rc configuration. Run 'rc config show' to see the resolved values.\n\n")

	if cfg.Branch != "" {
		fmt.Fprintf(&sb, "branch: %q\n", cfg.Branch)
	} else {
		sb.WriteString("// branch: \"main\"\n")
	}
	fmt.Fprintf(&sb, "any_branch: %v\n", cfg.AnyBranch)
	fmt.Fprintf(&sb, "no_git_checks: %v\n", cfg.NoGitChecks)
	if cfg.PreID != nil {
		fmt.Fprintf(&sb, "preid: %q\n", *cfg.PreID)
	} else {
		sb.WriteString("// preid: \"beta\"\n")
	}
	if cfg.DistTag != "" {
		fmt.Fprintf(&sb, "dist_tag: %q\n", cfg.DistTag)
	}
	fmt.Fprintf(&sb, "strict: %v\n", cfg.Strict)

	sb.WriteString("\ntags: {\n")
	fmt.Fprintf(&sb, "\tscoped: %v\n", cfg.Tags.Scoped)
	fmt.Fprintf(&sb, "\tline: %v\n", cfg.Tags.Line)
	fmt.Fprintf(&sb, "\tmerge: %v\n", cfg.Tags.Merge)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tenabled: %v\n", cfg.Log.Enabled)
	fmt.Fprintf(&sb, "\tfull: %v\n", cfg.Log.Full)
	writeOptionalBool(&sb, "commit", cfg.Log.Commit)
	writeOptionalBool(&sb, "compare", cfg.Log.Compare)
	sb.WriteString("}\n")

	if cfg.Git != (GitConfig{}) {
		sb.WriteString("\ngit: {\n")
		writeOptionalString(&sb, "url", cfg.Git.URL)
		writeOptionalString(&sb, "commit_url", cfg.Git.CommitURL)
		writeOptionalString(&sb, "compare_url", cfg.Git.CompareURL)
		sb.WriteString("}\n")
	}

	sb.WriteString("\npublish: {\n")
	fmt.Fprintf(&sb, "\tenabled: %v\n", cfg.Publish.Enabled)
	fmt.Fprintf(&sb, "\tbuild: %v\n", cfg.Publish.Build)
	writeOptionalString(&sb, "build_command", cfg.Publish.BuildCommand)
	writeOptionalBool(&sb, "release_draft", cfg.Publish.ReleaseDraft)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\ttheme: %q\n", cfg.UI.Theme)
	fmt.Fprintf(&sb, "\taccessible: %v\n", cfg.UI.Accessible)
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

func writeOptionalBool(sb *strings.Builder, key string, v *bool) {
	if v == nil {
		fmt.Fprintf(sb, "\t// %s: true\n", key)
		return
	}
	fmt.Fprintf(sb, "\t%s: %v\n", key, *v)
}

func writeOptionalString(sb *strings.Builder, key, v string) {
	if v != "" {
		fmt.Fprintf(sb, "\t%s: %q\n", key, v)
	}
}

// WriteFile writes cfg to dir/rc.config.cue and returns the path. An
// existing file is only replaced when force is set.
func WriteFile(dir string, cfg *Config, force bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if !force && fileExists(path) {
		return path, fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return path, fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}
