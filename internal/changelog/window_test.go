// SPDX-License-Identifier: MPL-2.0

package changelog

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/invowk/rc/internal/tagname"
)

type fakeLog struct {
	logs  map[string][]string
	err   error
	calls []string
}

func (f *fakeLog) Log(_ context.Context, from, to, path string) ([]string, error) {
	key := from + "..." + to
	f.calls = append(f.calls, key+" -- "+path)
	if f.err != nil {
		return nil, f.err
	}
	return f.logs[key], nil
}

func TestParseLog(t *testing.T) {
	t.Parallel()

	lines := []string{
		"a1b2c3d fix: bug",
		"",
		"b2c3d4e feat: add flag",
		"c3d4e5f chore: release v1.0.0",
		"d4e5f6a Merge https://github.com/org/repo/pull/1",
		"e5f6a7b fix: bug",
		"f6a7b8c docs: readme",
	}

	got := ParseLog(lines)
	want := []Commit{
		{Message: "fix: bug", Hashes: []string{"a1b2c3d", "e5f6a7b"}},
		{Message: "feat: add flag", Hashes: []string{"b2c3d4e"}},
		{Message: "docs: readme", Hashes: []string{"f6a7b8c"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseLog() = %#v, want %#v", got, want)
	}
}

func TestBuildWindows_NoTags(t *testing.T) {
	t.Parallel()

	src := &fakeLog{logs: map[string][]string{"...HEAD": {"a1b2c3d fix: bug"}}}
	head := Tag{Name: "v1.0.1", Version: "1.0.1", Date: "2026-10-18"}

	for _, full := range []bool{false, true} {
		windows := BuildWindows(context.Background(), src, head, nil, WindowOptions{Full: full})
		if len(windows) != 1 {
			t.Fatalf("full=%v: got %d windows, want 1", full, len(windows))
		}
		if windows[0].From != nil {
			t.Errorf("full=%v: window must reach back to the root commit", full)
		}
		if len(windows[0].Commits) != 1 || windows[0].Commits[0].Message != "fix: bug" {
			t.Errorf("full=%v: unexpected commits %#v", full, windows[0].Commits)
		}
	}
}

func TestBuildWindows_WithTags(t *testing.T) {
	t.Parallel()

	src := &fakeLog{logs: map[string][]string{
		"v1.1.0...HEAD":   {"aaaaaaa feat: three"},
		"v1.0.0...v1.1.0": {"bbbbbbb feat: two"},
		"v0.9.0...v1.0.0": {"ccccccc feat: one"},
		"...v0.9.0":       {"ddddddd feat: initial"},
	}}
	head := Tag{Name: "v1.2.0", Version: "1.2.0", Date: "2026-10-18"}
	tags := []Tag{
		{Name: "v1.1.0", Version: "1.1.0", Date: "2026-09-01"},
		{Name: "v1.0.0", Version: "1.0.0", Date: "2026-08-01"},
		{Name: "v0.9.0", Version: "0.9.0", Date: "2026-07-01"},
	}

	partial := BuildWindows(context.Background(), src, head, tags, WindowOptions{Path: "packages/a"})
	if len(partial) != 1 {
		t.Fatalf("got %d windows, want 1", len(partial))
	}
	if partial[0].From == nil || partial[0].From.Name != "v1.1.0" || partial[0].To.LogRef() != HeadRef {
		t.Errorf("unexpected bounds: %+v", partial[0])
	}
	if src.calls[0] != "v1.1.0...HEAD -- packages/a" {
		t.Errorf("unexpected log call %q", src.calls[0])
	}

	full := BuildWindows(context.Background(), src, head, tags, WindowOptions{Full: true})
	if len(full) != len(tags)+1 {
		t.Fatalf("got %d windows, want %d", len(full), len(tags)+1)
	}
	wantFirst := []string{"feat: three", "feat: two", "feat: one", "feat: initial"}
	for i, w := range full {
		if len(w.Commits) != 1 || w.Commits[0].Message != wantFirst[i] {
			t.Errorf("window %d commits = %#v", i, w.Commits)
		}
	}
	if last := full[len(full)-1]; last.From != nil || last.To.Name != "v0.9.0" {
		t.Errorf("oldest window = %+v, want root..v0.9.0", last)
	}
}

func TestBuildWindows_FullKeepsFirstRelease(t *testing.T) {
	t.Parallel()

	src := &fakeLog{logs: map[string][]string{
		"v1.1.0...HEAD":   {"aaaaaaa fix: three"},
		"v1.0.0...v1.1.0": {"bbbbbbb feat: two"},
		"...v1.0.0":       {"ccccccc feat: one"},
	}}
	head := Tag{Name: "v1.2.0", Version: "1.2.0", Date: "2026-10-18"}
	tags := []Tag{
		{Name: "v1.1.0", Version: "1.1.0", Date: "2026-09-01"},
		{Name: "v1.0.0", Version: "1.0.0", Date: "2026-08-01"},
	}

	windows := BuildWindows(context.Background(), src, head, tags, WindowOptions{Full: true})
	wantCalls := []string{"v1.1.0...HEAD -- ", "v1.0.0...v1.1.0 -- ", "...v1.0.0 -- "}
	if !reflect.DeepEqual(src.calls, wantCalls) {
		t.Errorf("log calls = %q, want %q", src.calls, wantCalls)
	}

	links := Links{CompareURL: "https://example.com/compare/{diff}"}
	doc := Splice("## 0.1.0 (2020-01-01)\n\n- stale\n\n", windows, links, true)
	want := "## [1.2.0](https://example.com/compare/v1.1.0...v1.2.0) (2026-10-18)\n\n- fix: three\n\n" +
		"## [1.1.0](https://example.com/compare/v1.0.0...v1.1.0) (2026-09-01)\n\n- feat: two\n\n" +
		"## 1.0.0 (2026-08-01)\n\n- feat: one\n\n"
	if doc != want {
		t.Errorf("Splice() = %q, want %q", doc, want)
	}
}

func TestBuildWindows_LogErrorIsEmpty(t *testing.T) {
	t.Parallel()

	src := &fakeLog{err: errors.New("fatal: bad revision")}
	extra := []Commit{{Message: "chore: update dep@1.0.0"}}
	windows := BuildWindows(context.Background(), src, Tag{Name: "v1.0.0", Version: "1.0.0"}, nil,
		WindowOptions{Extra: extra})
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(windows))
	}
	if !reflect.DeepEqual(windows[0].Commits, extra) {
		t.Errorf("commits = %#v, want only the extra entry", windows[0].Commits)
	}
}

func TestGroupTags(t *testing.T) {
	t.Parallel()

	r := tagname.NewResolver(tagname.Scheme{Monorepo: true, Scoped: true},
		tagname.Entry{Name: "@s/a"}, tagname.Entry{Name: "@s/b"})
	tags := []Tag{
		{Name: "@s/a@1.0.0", Date: "2026-01-01"},
		{Name: "@s/a@1.10.0", Date: "2026-01-03"},
		{Name: "a@1.2.0", Date: "2026-01-02"},
		{Name: "s-b-v2.0.0-rc.1", Date: "2026-01-04"},
		{Name: "@s/b@2.0.0", Date: "2026-01-05"},
		{Name: "unrelated", Date: "2026-01-06"},
	}

	groups := GroupTags(tags, r)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	var gotA []string
	for _, tag := range groups["@s/a"] {
		gotA = append(gotA, tag.Version)
	}
	if want := []string{"1.10.0", "1.2.0", "1.0.0"}; !reflect.DeepEqual(gotA, want) {
		t.Errorf("@s/a versions = %v, want %v", gotA, want)
	}
	if b := groups["@s/b"]; len(b) != 2 || b[0].Version != "2.0.0" {
		t.Errorf("@s/b = %#v", b)
	}
}
