// SPDX-License-Identifier: MPL-2.0

package changelog

import (
	"fmt"
	"net/url"
	"strings"
)

// NoChange is rendered for windows without any commit.
const NoChange = "- No Change"

// Links holds the URL templates used when rendering. Empty templates disable
// the corresponding links. CommitURL substitutes {sha}; CompareURL substitutes
// {diff} with "<older>...<newer>".
type Links struct {
	CommitURL  string
	CompareURL string
}

// Notes renders the commit bullets of a window. An empty window renders as "".
func Notes(w Window, l Links) string {
	lines := make([]string, 0, len(w.Commits))
	for _, c := range w.Commits {
		line := "- " + c.Message
		if l.CommitURL != "" && len(c.Hashes) > 0 {
			refs := make([]string, len(c.Hashes))
			for i, h := range c.Hashes {
				refs[i] = fmt.Sprintf("  [%s](%s)", h, strings.ReplaceAll(l.CommitURL, "{sha}", h))
			}
			line += strings.Join(refs, "  ")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// CompareURL returns the compare link for a window bounded by two tags, or ""
// when links are disabled or the window starts at the root commit.
func CompareURL(w Window, l Links) string {
	if l.CompareURL == "" || w.From == nil {
		return ""
	}
	diff := encodeComponent(w.From.Name) + "..." + encodeComponent(w.To.Name)
	return strings.ReplaceAll(l.CompareURL, "{diff}", diff)
}

// Section renders one "## <version> (<date>)" block followed by a blank line.
func Section(w Window, l Links) string {
	title := w.To.Version
	if u := CompareURL(w, l); u != "" {
		title = fmt.Sprintf("[%s](%s)", title, u)
	}
	if w.To.Date != "" {
		title += " (" + w.To.Date + ")"
	}

	notes := Notes(w, l)
	if notes == "" {
		notes = NoChange
	}
	return "## " + title + "\n\n" + notes + "\n\n"
}

// ReleaseBody renders the hosted-release description for a window: its notes
// followed by the compare link.
func ReleaseBody(w Window, l Links) string {
	body := Notes(w, l)
	if body == "" {
		body = NoChange
	}
	if u := CompareURL(w, l); u != "" {
		body += "\n\n" + u
	}
	return body
}

// Splice prepends the sections for windows (newest first) to existing. In
// full mode the existing document is discarded and rebuilt from windows.
func Splice(existing string, windows []Window, l Links, full bool) string {
	content := existing
	if full {
		content = ""
	}
	for i := len(windows) - 1; i >= 0; i-- {
		content = Section(windows[i], l) + content
	}
	return content
}

// encodeComponent escapes s like JavaScript's encodeURIComponent, which is
// what hosting providers expect inside compare paths.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
