// SPDX-License-Identifier: MPL-2.0

// Package git is the version-control collaborator of a release run.
//
// Repository state is read with go-git. History ranges with path filters and
// every mutation go through the git executable, so that hooks, signing and
// credential helpers configured by the user keep working.
package git
