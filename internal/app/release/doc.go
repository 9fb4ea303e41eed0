// SPDX-License-Identifier: MPL-2.0

// Package release composes one release run: it validates the request and the
// repository, discovers and selects packages, resolves versions and tags,
// writes changelogs and drives the publish orchestrator, rolling back when a
// step fails after the repository was changed.
package release
