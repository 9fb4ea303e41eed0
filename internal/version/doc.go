// SPDX-License-Identifier: MPL-2.0

// Package version implements the semantic-version arithmetic used to pick
// release versions: increments by release type and pre-release identifier,
// pre-release identifier extraction, diff classification and display
// highlighting. Ordering and validation are delegated to golang.org/x/mod/semver.
package version
