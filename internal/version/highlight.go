// SPDX-License-Identifier: MPL-2.0

package version

import (
	"strconv"
	"strings"
)

// Marker decorates a changed fragment of a version for display.
type Marker func(string) string

// Highlight renders newVersion with the parts that changed relative to
// oldVersion passed through mark. The numeric components are marked according
// to the diff type; the pre-release suffix is compared character by character.
func Highlight(oldVersion, newVersion string, mark Marker) (string, error) {
	v1, err := Parse(oldVersion)
	if err != nil {
		return "", err
	}
	v2, err := Parse(newVersion)
	if err != nil {
		return "", err
	}
	kind, err := Diff(oldVersion, newVersion)
	if err != nil {
		return "", err
	}
	if mark == nil {
		mark = func(s string) string { return s }
	}

	format := func(n uint64, changed bool) string {
		s := strconv.FormatUint(n, 10)
		if changed {
			return mark(s)
		}
		return s
	}

	out := strings.Join([]string{
		format(v2.Major, isOneOf(kind, Major, PreMajor)),
		format(v2.Minor, isOneOf(kind, Minor, PreMinor)),
		format(v2.Patch, isOneOf(kind, Patch, PrePatch)),
	}, ".")

	if len(v2.PreRelease) > 0 {
		out += diffChars(v1.PreReleaseString(), v2.PreReleaseString(), mark)
	}
	return out, nil
}

// diffChars marks every character of second that differs from the character
// at the same position in first.
func diffChars(first, second string, mark Marker) string {
	var sb strings.Builder
	for i := 0; i < len(second); i++ {
		ch := second[i : i+1]
		if i >= len(first) || first[i] != second[i] {
			sb.WriteString(mark(ch))
			continue
		}
		sb.WriteString(ch)
	}
	return sb.String()
}
