// SPDX-License-Identifier: MPL-2.0

// Package workspace discovers the publishable packages of a project and reads
// and updates their package.json manifests.
//
// A project is either a single package (the root package.json) or a
// workspace whose members are listed by the "workspaces" field of the root
// manifest or by pnpm-workspace.yaml. Member patterns are expanded with
// doublestar globs.
package workspace
