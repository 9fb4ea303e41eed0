// SPDX-License-Identifier: MPL-2.0

package version

import (
	"slices"
	"strconv"
)

// Increment returns version bumped by releaseType. For pre-release types,
// preid labels the pre-release line ("1.2.4-beta.0"); an empty preid starts an
// anonymous numeric line ("1.2.4-0"). Build metadata is dropped.
//
// The arithmetic matches the npm semver package so that versions written to
// package manifests agree with what the registry tooling expects.
func Increment(version string, releaseType ReleaseType, preid string) (string, error) {
	if err := releaseType.Validate(); err != nil {
		return "", err
	}
	v, err := Parse(version)
	if err != nil {
		return "", err
	}
	v.Build = nil
	v.inc(releaseType, preid)
	return v.String(), nil
}

// MustIncrement is Increment for inputs already validated by the caller.
func MustIncrement(version string, releaseType ReleaseType, preid string) string {
	s, err := Increment(version, releaseType, preid)
	if err != nil {
		panic(err)
	}
	return s
}

func (v *Version) inc(t ReleaseType, preid string) {
	switch t {
	case PreMajor:
		v.PreRelease = nil
		v.Patch = 0
		v.Minor = 0
		v.Major++
		v.incPre(preid)
	case PreMinor:
		v.PreRelease = nil
		v.Patch = 0
		v.Minor++
		v.incPre(preid)
	case PrePatch:
		v.PreRelease = nil
		v.inc(Patch, "")
		v.incPre(preid)
	case PreRelease:
		if len(v.PreRelease) == 0 {
			v.inc(Patch, "")
		}
		v.incPre(preid)
	case Major:
		// 1.0.0-rc.1 releases as 1.0.0, 1.2.0-rc.1 as 2.0.0.
		if v.Minor != 0 || v.Patch != 0 || len(v.PreRelease) == 0 {
			v.Major++
		}
		v.Minor = 0
		v.Patch = 0
		v.PreRelease = nil
	case Minor:
		if v.Patch != 0 || len(v.PreRelease) == 0 {
			v.Minor++
		}
		v.Patch = 0
		v.PreRelease = nil
	case Patch:
		if len(v.PreRelease) == 0 {
			v.Patch++
		}
		v.PreRelease = nil
	}
}

// incPre bumps the right-most numeric pre-release identifier, appending one
// when none exists, then switches to preid when it names a different line.
func (v *Version) incPre(preid string) {
	if len(v.PreRelease) == 0 {
		v.PreRelease = []string{"0"}
	} else {
		bumped := false
		for i := len(v.PreRelease) - 1; i >= 0; i-- {
			if n, ok := numericIdentifier(v.PreRelease[i]); ok {
				v.PreRelease[i] = strconv.FormatUint(n+1, 10)
				bumped = true
				break
			}
		}
		if !bumped {
			v.PreRelease = append(v.PreRelease, "0")
		}
	}

	if preid == "" {
		return
	}
	fresh := []string{preid, "0"}
	if v.PreRelease[0] != preid {
		v.PreRelease = fresh
		return
	}
	if len(v.PreRelease) < 2 {
		v.PreRelease = fresh
		return
	}
	if _, ok := numericIdentifier(v.PreRelease[1]); !ok {
		v.PreRelease = fresh
	}
}

// Diff classifies the change between two versions the way npm's semver.diff
// does: major, minor, patch, their pre* variants, prerelease, or "" when equal.
func Diff(a, b string) (string, error) {
	va, err := Parse(a)
	if err != nil {
		return "", err
	}
	vb, err := Parse(b)
	if err != nil {
		return "", err
	}

	cmp := Compare(a, b)
	if cmp == 0 {
		return "", nil
	}
	high, low := vb, va
	if cmp > 0 {
		high, low = va, vb
	}
	highHasPre := len(high.PreRelease) > 0
	lowHasPre := len(low.PreRelease) > 0

	if lowHasPre && !highHasPre {
		if low.Patch == 0 && low.Minor == 0 {
			return string(Major), nil
		}
		if low.Major == high.Major && low.Minor == high.Minor && low.Patch == high.Patch {
			if low.Minor != 0 && low.Patch == 0 {
				return string(Minor), nil
			}
			return string(Patch), nil
		}
	}

	prefix := ""
	if highHasPre {
		prefix = "pre"
	}
	switch {
	case va.Major != vb.Major:
		return prefix + string(Major), nil
	case va.Minor != vb.Minor:
		return prefix + string(Minor), nil
	case va.Patch != vb.Patch:
		return prefix + string(Patch), nil
	}
	return string(PreRelease), nil
}

// isOneOf is a small helper for diff-type membership checks.
func isOneOf(s string, set ...ReleaseType) bool {
	return slices.Contains(set, ReleaseType(s))
}
