// SPDX-License-Identifier: MPL-2.0

package changelog

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/invowk/rc/internal/tagname"
	"github.com/invowk/rc/internal/version"
)

const (
	// ReleaseCommitPrefix starts the commit messages this tool writes.
	ReleaseCommitPrefix = "chore: release"
	// mergeURLPrefix starts merge commits created from hosted merge requests.
	mergeURLPrefix = "Merge http"
	// HeadRef is the git ref the pending release window ends at.
	HeadRef = "HEAD"
)

type (
	// Tag is one release boundary.
	Tag struct {
		// Name is the tag as stored in git, or the tag about to be created.
		Name string
		// Ref is what git log should use for this boundary; empty means Name.
		Ref string
		// Version is the semantic version the tag records.
		Version string
		// Date is the tag creation date (YYYY-MM-DD).
		Date string
	}

	// Commit groups every commit sharing one message.
	Commit struct {
		Message string
		Hashes  []string
	}

	// Window is the history between two boundaries. From is nil for the oldest
	// window, which reaches back to the root commit.
	Window struct {
		From    *Tag
		To      Tag
		Commits []Commit
	}

	// LogSource lists commits as "<short hash> <subject>" lines, newest first.
	// An empty from lists the full history reachable from to.
	LogSource interface {
		Log(ctx context.Context, from, to, path string) ([]string, error)
	}

	// WindowOptions controls BuildWindows.
	WindowOptions struct {
		// Path limits history to one package directory ("" for the whole repository).
		Path string
		// Full produces one window per consecutive boundary pair, plus the
		// oldest tag against the root commit, instead of only the pending
		// release window.
		Full bool
		// Extra entries are appended to the pending release window.
		Extra []Commit
	}
)

// LogRef returns the ref used when listing history for the boundary.
func (t Tag) LogRef() string {
	if t.Ref != "" {
		return t.Ref
	}
	return t.Name
}

// ParseLog converts "<hash> <subject>" lines into commits. Release commits and
// merge-by-URL commits are dropped. Lines sharing a subject are merged into
// one Commit that accumulates their hashes; first-seen order is kept.
func ParseLog(lines []string) []Commit {
	var commits []Commit
	index := make(map[string]int)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		hash, msg, _ := strings.Cut(line, " ")
		msg = strings.TrimSpace(msg)
		if strings.HasPrefix(msg, mergeURLPrefix) || strings.HasPrefix(msg, ReleaseCommitPrefix) {
			continue
		}
		if i, seen := index[msg]; seen {
			commits[i].Hashes = append(commits[i].Hashes, hash)
			continue
		}
		index[msg] = len(commits)
		commits = append(commits, Commit{Message: msg, Hashes: []string{hash}})
	}
	return commits
}

// BuildWindows cuts the history of one package into windows. head is the
// pending release boundary and tags are the package's existing tags sorted
// newest first. Log failures are logged and yield an empty window: release
// notes are best effort and never abort a release.
func BuildWindows(ctx context.Context, src LogSource, head Tag, tags []Tag, opts WindowOptions) []Window {
	if head.Ref == "" {
		head.Ref = HeadRef
	}
	bounds := make([]Tag, 0, len(tags)+1)
	bounds = append(bounds, head)
	bounds = append(bounds, tags...)

	var windows []Window
	for i := range bounds {
		// the oldest boundary opens a window reaching back to the root commit
		w := Window{To: bounds[i]}
		from := ""
		if i+1 < len(bounds) {
			older := bounds[i+1]
			w.From = &older
			from = older.LogRef()
		}

		lines, err := src.Log(ctx, from, w.To.LogRef(), opts.Path)
		if err != nil {
			slog.Warn("failed to read commit history", "from", from, "to", w.To.LogRef(), "error", err)
			lines = nil
		}
		w.Commits = ParseLog(lines)
		if i == 0 {
			w.Commits = append(w.Commits, opts.Extra...)
		}
		windows = append(windows, w)

		if !opts.Full {
			break
		}
	}
	return windows
}

// GroupTags assigns tags to their owning packages and sorts every group by
// semantic version, newest first. Tags no package owns are ignored.
func GroupTags(tags []Tag, r *tagname.Resolver) map[string][]Tag {
	groups := make(map[string][]Tag)
	for _, t := range tags {
		owner, ver, ok := r.Owner(t.Name)
		if !ok {
			continue
		}
		t.Version = ver
		groups[owner] = append(groups[owner], t)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			return version.Compare(g[i].Version, g[j].Version) > 0
		})
	}
	return groups
}

// HasChanges reports whether the pending release window has any entry.
func HasChanges(windows []Window) bool {
	return len(windows) > 0 && len(windows[0].Commits) > 0
}
