// SPDX-License-Identifier: MPL-2.0

// Package publish performs the mutating half of a release: it bumps
// manifests, commits and tags, publishes to the registry with one-time
// password retries, pushes, opens release drafts and, when something goes
// wrong after the first mutation, rolls the repository back.
package publish
