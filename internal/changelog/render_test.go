// SPDX-License-Identifier: MPL-2.0

package changelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSection(t *testing.T) {
	t.Parallel()

	links := Links{
		CommitURL:  "https://github.com/org/repo/commit/{sha}",
		CompareURL: "https://github.com/org/repo/compare/{diff}",
	}
	w := Window{
		From: &Tag{Name: "@s/a@1.0.0", Version: "1.0.0"},
		To:   Tag{Name: "@s/a@1.1.0", Version: "1.1.0", Date: "2026-10-18"},
		Commits: []Commit{
			{Message: "fix: bug", Hashes: []string{"aaaaaaa", "bbbbbbb"}},
		},
	}

	got := Section(w, links)
	want := "## [1.1.0](https://github.com/org/repo/compare/%40s%2Fa%401.0.0...%40s%2Fa%401.1.0) (2026-10-18)\n\n" +
		"- fix: bug  [aaaaaaa](https://github.com/org/repo/commit/aaaaaaa)    [bbbbbbb](https://github.com/org/repo/commit/bbbbbbb)\n\n"
	if got != want {
		t.Errorf("Section() =\n%q\nwant\n%q", got, want)
	}
}

func TestSection_NoChange(t *testing.T) {
	t.Parallel()

	w := Window{To: Tag{Name: "v1.0.1", Version: "1.0.1", Date: "2026-10-18"}}
	got := Section(w, Links{CompareURL: "https://x/compare/{diff}"})
	want := "## 1.0.1 (2026-10-18)\n\n- No Change\n\n"
	if got != want {
		t.Errorf("Section() = %q, want %q", got, want)
	}
}

func TestReleaseBody(t *testing.T) {
	t.Parallel()

	w := Window{
		From:    &Tag{Name: "v1.0.0"},
		To:      Tag{Name: "v1.1.0", Version: "1.1.0"},
		Commits: []Commit{{Message: "feat: x", Hashes: []string{"abc1234"}}},
	}
	got := ReleaseBody(w, Links{CompareURL: "https://h/compare/{diff}"})
	want := "- feat: x\n\nhttps://h/compare/v1.0.0...v1.1.0"
	if got != want {
		t.Errorf("ReleaseBody() = %q, want %q", got, want)
	}
}

func TestSplice(t *testing.T) {
	t.Parallel()

	windows := []Window{
		{To: Tag{Version: "1.2.0", Date: "2026-10-18"}, Commits: []Commit{{Message: "new"}}},
		{To: Tag{Version: "1.1.0", Date: "2026-09-01"}, Commits: []Commit{{Message: "old"}}},
	}
	existing := "## 1.0.0 (2026-01-01)\n\n- first\n\n"

	got := Splice(existing, windows, Links{}, false)
	want := "## 1.2.0 (2026-10-18)\n\n- new\n\n## 1.1.0 (2026-09-01)\n\n- old\n\n" + existing
	if got != want {
		t.Errorf("Splice() = %q, want %q", got, want)
	}

	if full := Splice(existing, windows, Links{}, true); strings.Contains(full, "first") {
		t.Error("full mode must discard the existing document")
	}
}

func TestDocumentUpdate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("## 1.0.0 (2026-01-01)\n\n- first\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	windows := []Window{{To: Tag{Version: "1.0.1", Date: "2026-10-18"}, Commits: []Commit{{Message: "fix: bug"}}}}

	dry := Document{Dir: dir, DryRun: true}
	if _, err := dry.Update(windows, Links{}); err != nil {
		t.Fatalf("dry-run Update() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "1.0.1") {
		t.Fatal("dry-run must not write the changelog")
	}

	doc := Document{Dir: dir}
	if _, err := doc.Update(windows, Links{}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if !strings.HasPrefix(string(data), "## 1.0.1 (2026-10-18)\n\n- fix: bug\n\n## 1.0.0") {
		t.Errorf("unexpected changelog:\n%s", data)
	}
}
