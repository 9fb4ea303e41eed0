// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/invowk/rc/internal/cueutil"
	"github.com/invowk/rc/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "rc"
	// FileName is the name of configuration files.
	FileName = "rc.config.cue"
	// EnvPrefix prefixes environment overrides (RC_LOG_FULL=true).
	EnvPrefix = "RC"

	schemaRoot   = "#Config"
	manifestFile = "package.json"
	// manifestOnlyKey is read per package by workspace discovery.
	manifestOnlyKey = "tagName"
)

//go:embed config_schema.cue
var configSchema []byte

// keys lists every setting, for defaults and environment binding.
var keys = []string{
	"branch", "any_branch", "no_git_checks", "preid", "dist_tag",
	"tags.scoped", "tags.line", "tags.merge",
	"log.enabled", "log.full", "log.commit", "log.compare",
	"git.url", "git.commit_url", "git.compare_url",
	"publish.enabled", "publish.build", "publish.build_command", "publish.release_draft",
	"strict",
	"ui.theme", "ui.accessible", "ui.verbose",
}

// ConfigDir returns the rc directory below the platform config directory:
// %APPDATA% on Windows, ~/Library/Application Support on macOS and
// $XDG_CONFIG_HOME (default ~/.config) elsewhere.
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, AppName), nil
}

func loadWithOptions(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir = "."
	}
	var sources []string

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithKind(issue.KindValidation).
				WithSuggestion("Verify the file path passed to --config").
				WithSuggestion("Run 'rc config init' to create a configuration file").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
	} else {
		cfgDir := opts.ConfigDirPath
		if cfgDir == "" {
			var err error
			if cfgDir, err = ConfigDir(); err != nil {
				return nil, err
			}
		}
		if path := filepath.Join(cfgDir, FileName); fileExists(path) {
			if err := mergeFile(v, path); err != nil {
				return nil, err
			}
			sources = append(sources, path)
		}
	}

	manifest := filepath.Join(projectDir, manifestFile)
	ok, err := mergeManifest(v, manifest)
	if err != nil {
		return nil, err
	}
	if ok {
		sources = append(sources, manifest+"#"+AppName)
	}

	project := opts.ConfigFilePath
	if project == "" {
		project = filepath.Join(projectDir, FileName)
	}
	if fileExists(project) {
		if err := mergeFile(v, project); err != nil {
			return nil, err
		}
		sources = append(sources, project)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, issue.Errorf(issue.KindValidation, "failed to parse config: %w", err)
	}
	return &Loaded{Config: &cfg, Sources: sources}, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("tags.merge", d.Tags.Merge)
	v.SetDefault("log.enabled", d.Log.Enabled)
	v.SetDefault("publish.enabled", d.Publish.Enabled)
	v.SetDefault("publish.build", d.Publish.Build)
	v.SetDefault("ui.theme", string(d.UI.Theme))
}

// mergeFile validates a CUE file against the schema and merges it into v.
func mergeFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return mergeDocument(v, data, path)
}

// mergeManifest merges the "rc" key of a package.json. It reports whether
// the key was present.
func mergeManifest(v *viper.Viper, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var m struct {
		RC json.RawMessage `json:"rc"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return false, issue.Errorf(issue.KindValidation, "%s: %w", path, err)
	}
	if len(m.RC) == 0 || string(m.RC) == "null" {
		return false, nil
	}
	return true, mergeDocument(v, m.RC, path+"#"+AppName)
}

func mergeDocument(v *viper.Viper, data []byte, name string) error {
	values, err := cueutil.ParseAndDecode[map[string]any](configSchema, data, schemaRoot,
		cueutil.WithFilename(name), cueutil.WithConcrete(false))
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(name).
			WithKind(issue.KindValidation).
			WithSuggestion("Check that the file contains valid CUE syntax").
			WithSuggestion("Run 'rc config show' to see the accepted settings").
			Wrap(err).
			BuildError()
	}
	delete(*values, manifestOnlyKey)
	if err := v.MergeConfigMap(*values); err != nil {
		return fmt.Errorf("failed to merge %s: %w", name, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
