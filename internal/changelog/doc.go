// SPDX-License-Identifier: MPL-2.0

// Package changelog turns git history into Markdown release notes.
//
// History is cut into windows bounded by consecutive release tags of one
// package, newest first. The first window always ends at a synthetic boundary
// for the release being prepared. Each window is rendered as a "## version"
// section and sections are prepended to the package's CHANGELOG.md.
package changelog
