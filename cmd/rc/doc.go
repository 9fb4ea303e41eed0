// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the rc command line.
//
// The root command runs a release; "config" inspects and creates
// configuration files. Commands are executed through fang, which adds
// styled help, version output and signal handling on top of Cobra.
package cmd
