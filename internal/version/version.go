// SPDX-License-Identifier: MPL-2.0

package version

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	// Patch bumps the patch component.
	Patch ReleaseType = "patch"
	// Minor bumps the minor component and resets patch.
	Minor ReleaseType = "minor"
	// Major bumps the major component and resets minor and patch.
	Major ReleaseType = "major"
	// PrePatch bumps patch and starts a new pre-release line.
	PrePatch ReleaseType = "prepatch"
	// PreMinor bumps minor and starts a new pre-release line.
	PreMinor ReleaseType = "preminor"
	// PreMajor bumps major and starts a new pre-release line.
	PreMajor ReleaseType = "premajor"
	// PreRelease continues the current pre-release line, or starts one from the next patch.
	PreRelease ReleaseType = "prerelease"
)

var (
	// ErrInvalidReleaseType is the sentinel error wrapped by InvalidReleaseTypeError.
	ErrInvalidReleaseType = errors.New("invalid release type")
	// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
	ErrInvalidVersion = errors.New("invalid version")

	// ReleaseTypes lists the stable release types in menu order.
	ReleaseTypes = []ReleaseType{Patch, Minor, Major}
	// PreReleaseTypes lists the pre-release types in menu order.
	PreReleaseTypes = []ReleaseType{PrePatch, PreMinor, PreMajor, PreRelease}
	// AllReleaseTypes is ReleaseTypes followed by PreReleaseTypes.
	AllReleaseTypes = slices.Concat(ReleaseTypes, PreReleaseTypes)

	// PreReleaseIDs are the accepted pre-release identifiers, ordered from the
	// least to the most mature. The empty identifier produces "1.0.0-0" style versions.
	PreReleaseIDs = []string{"", "alpha", "beta", "rc"}
)

type (
	// ReleaseType names one semantic-version increment.
	ReleaseType string

	// InvalidReleaseTypeError is returned when a ReleaseType is not recognized.
	InvalidReleaseTypeError struct {
		Value ReleaseType
	}

	// InvalidVersionError is returned when a string is not a full semantic version.
	InvalidVersionError struct {
		Value string
	}

	// Version is a parsed semantic version. Pre-release and build identifiers
	// are kept as their dot-separated tokens.
	Version struct {
		Major      uint64
		Minor      uint64
		Patch      uint64
		PreRelease []string
		Build      []string
	}
)

// Error implements the error interface.
func (e *InvalidReleaseTypeError) Error() string {
	names := make([]string, len(AllReleaseTypes))
	for i, t := range AllReleaseTypes {
		names[i] = string(t)
	}
	return fmt.Sprintf("invalid release type %q (valid types: %s)", e.Value, strings.Join(names, ", "))
}

// Unwrap returns ErrInvalidReleaseType for errors.Is compatibility.
func (e *InvalidReleaseTypeError) Unwrap() error { return ErrInvalidReleaseType }

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Value)
}

// Unwrap returns ErrInvalidVersion for errors.Is compatibility.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// Validate returns an error if the release type is not recognized.
func (t ReleaseType) Validate() error {
	if !slices.Contains(AllReleaseTypes, t) {
		return &InvalidReleaseTypeError{Value: t}
	}
	return nil
}

// IsPre reports whether the release type produces a pre-release version.
func (t ReleaseType) IsPre() bool {
	return slices.Contains(PreReleaseTypes, t)
}

// String returns the release type name.
func (t ReleaseType) String() string { return string(t) }

// Parse parses a full "major.minor.patch[-pre][+build]" version.
// A leading "v" is tolerated; shorthand forms such as "1.2" are rejected.
func Parse(s string) (Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if !semver.IsValid("v" + raw) {
		return Version{}, &InvalidVersionError{Value: s}
	}

	core := raw
	var v Version
	if i := strings.IndexByte(core, '+'); i >= 0 {
		v.Build = strings.Split(core[i+1:], ".")
		core = core[:i]
	}
	if i := strings.IndexByte(core, '-'); i >= 0 {
		v.PreRelease = strings.Split(core[i+1:], ".")
		core = core[:i]
	}

	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version{}, &InvalidVersionError{Value: s}
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, &InvalidVersionError{Value: s}
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// Valid reports whether s is a full semantic version.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Compare returns -1, 0 or +1 comparing a and b by semantic-version precedence.
// Invalid versions sort before valid ones.
func Compare(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// IsPrerelease reports whether the version carries a pre-release component.
func IsPrerelease(s string) bool {
	v, err := Parse(s)
	return err == nil && len(v.PreRelease) > 0
}

// String formats the version without a leading "v".
func (v Version) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.PreRelease) > 0 {
		sb.WriteString("-")
		sb.WriteString(strings.Join(v.PreRelease, "."))
	}
	if len(v.Build) > 0 {
		sb.WriteString("+")
		sb.WriteString(strings.Join(v.Build, "."))
	}
	return sb.String()
}

// PreReleaseString returns "-<pre>" or "" when the version is stable.
func (v Version) PreReleaseString() string {
	if len(v.PreRelease) == 0 {
		return ""
	}
	return "-" + strings.Join(v.PreRelease, ".")
}

// PreReleaseID extracts the pre-release identifier of a version.
// ok is false when the version is stable or unparsable. A purely numeric
// pre-release ("1.0.0-3") yields the anonymous identifier "".
func PreReleaseID(s string) (id string, ok bool) {
	v, err := Parse(s)
	if err != nil || len(v.PreRelease) == 0 {
		return "", false
	}
	if _, numeric := numericIdentifier(v.PreRelease[0]); numeric {
		return "", true
	}
	return v.PreRelease[0], true
}

func canonical(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return s
}

func numericIdentifier(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}
