// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// LoadOptions defines explicit configuration loading inputs.
	LoadOptions struct {
		// ProjectDir is searched for rc.config.cue and package.json.
		ProjectDir string
		// ConfigFilePath replaces the rc.config.cue lookup when set.
		ConfigFilePath string
		// ConfigDirPath overrides the user config directory when set.
		ConfigDirPath string
	}

	// Loaded is a resolved configuration and the files it came from, lowest
	// precedence first.
	Loaded struct {
		Config  *Config
		Sources []string
	}

	// Provider loads configuration from explicit options.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Loaded, error)
	}

	fileProvider struct{}
)

// NewProvider creates a configuration provider.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load reads configuration from the requested sources.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	return loadWithOptions(ctx, opts)
}
