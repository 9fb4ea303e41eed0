// SPDX-License-Identifier: MPL-2.0

// Package issue provides the error taxonomy of a release run and actionable,
// user-facing error messages.
//
// Every failure surfaced by rc carries a Kind (see KindOf) that decides how the
// CLI reports it: cancellations are warnings, everything else is an error.
// ActionableError adds the operation, resource and remediation hints, and the
// Issue catalog holds longer Markdown guidance rendered with glamour.
package issue
