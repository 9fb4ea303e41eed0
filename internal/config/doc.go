// SPDX-License-Identifier: MPL-2.0

// Package config loads rc settings with Viper. Files are written in CUE and
// validated against the embedded config_schema.cue.
//
// Sources, lowest precedence first: built-in defaults, the user file
// (rc/rc.config.cue below the platform config directory), the "rc" key of
// the project's package.json, the project's rc.config.cue and RC_*
// environment variables. Command-line flags are applied on top by the CLI.
package config
