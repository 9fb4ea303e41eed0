// SPDX-License-Identifier: MPL-2.0

// Package registry talks to npm-compatible package registries: metadata over
// HTTP, and publishing through the project's package manager.
package registry
