// SPDX-License-Identifier: MPL-2.0

package release

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"

	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/prompt/prompttest"
	"github.com/invowk/rc/internal/registry"
	"github.com/invowk/rc/internal/shell"
	"github.com/invowk/rc/internal/tagname"
	"github.com/invowk/rc/internal/testutil"
	"github.com/invowk/rc/internal/workspace"
)

var releaseDay = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type (
	fakeMetadata struct {
		mu     sync.Mutex
		latest map[string]string
		asked  map[string]string
	}

	fakePublisher struct {
		mu        sync.Mutex
		published []string
		err       error
	}

	fixture struct {
		repo      *testutil.Repo
		script    *prompttest.Script
		publisher *fakePublisher
		metadata  *fakeMetadata
		opened    []string
		out       bytes.Buffer
	}
)

func (f *fakeMetadata) Metadata(_ context.Context, name, registryURL string) (registry.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.asked == nil {
		f.asked = make(map[string]string)
	}
	f.asked[name] = registryURL
	latest, ok := f.latest[name]
	if !ok {
		return registry.Metadata{}, errors.New("not found")
	}
	return registry.Metadata{Name: name, DistTags: map[string]string{"latest": latest}, Published: true}, nil
}

func (p *fakePublisher) Publish(_ context.Context, req registry.PublishRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, filepath.Base(req.Dir))
	return nil
}

func (p *fakePublisher) TwoFactorRequired(context.Context, string) bool { return false }

// fakeTools answers the package-manager queries of a run: the CLI version
// and the configured registry.
func fakeTools(t *testing.T) *shell.Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("echo is not an executable on windows")
	}
	return shell.New(".", shell.WithExecCommand(func(ctx context.Context, name string, args ...string) *exec.Cmd {
		out := registry.NPM
		if slices.Contains(args, "--version") {
			out = "10.2.0"
		}
		return exec.CommandContext(ctx, "echo", out)
	}))
}

func newFixture(t *testing.T, answers ...prompttest.Answer) *fixture {
	t.Helper()
	testutil.RequireGit(t)
	return &fixture{
		repo:      testutil.NewRepo(t),
		script:    prompttest.New(answers...),
		publisher: &fakePublisher{},
		metadata:  &fakeMetadata{latest: map[string]string{}},
	}
}

func (f *fixture) run(t *testing.T, opts Options) error {
	t.Helper()
	r := New(Deps{
		Prompt:    f.script,
		Metadata:  f.metadata,
		Publisher: f.publisher,
		Opener: func(_ context.Context, url string) error {
			f.opened = append(f.opened, url)
			return nil
		},
		Tools: fakeTools(t),
		Env:   testutil.GitEnv(),
		Out:   &f.out,
		Now:   func() time.Time { return releaseDay },
	})
	opts.Cwd = f.repo.Dir
	return r.Run(context.Background(), opts)
}

func (f *fixture) head(t *testing.T) string {
	t.Helper()
	repo, err := gogit.PlainOpen(f.repo.Dir)
	if err != nil {
		t.Fatal(err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	return head.Hash().String()
}

func (f *fixture) hasTag(t *testing.T, name string) bool {
	t.Helper()
	repo, err := gogit.PlainOpen(f.repo.Dir)
	if err != nil {
		t.Fatal(err)
	}
	_, err = repo.Tag(name)
	return err == nil
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.repo.Dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func (f *fixture) singlePackage() {
	f.repo.CommitFile("package.json", `{"name": "pkg", "version": "1.0.0"}`+"\n", "chore: init")
	f.repo.Tag("v1.0.0")
	f.repo.CommitFile("src/index.js", "export default 1\n", "fix: bug")
}

func patchOptions() Options {
	opts := DefaultOptions()
	opts.ReleaseType = "patch"
	return opts
}

func TestRun_SinglePackagePatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, prompttest.Yes())
	f.singlePackage()

	if err := f.run(t, patchOptions()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !f.hasTag(t, "v1.0.1") {
		t.Error("tag v1.0.1 was not created")
	}
	if m := f.read(t, "package.json"); !strings.Contains(m, `"version": "1.0.1"`) {
		t.Errorf("manifest = %s", m)
	}
	log := f.read(t, "CHANGELOG.md")
	if !strings.HasPrefix(log, "## 1.0.1 (2026-02-01)\n\n- fix: bug\n") {
		t.Errorf("changelog = %q", log)
	}
	if strings.Contains(log, "chore: init") {
		t.Error("commits before the previous tag must not be listed")
	}
	if want := []string{filepath.Base(f.repo.Dir)}; !reflect.DeepEqual(f.publisher.published, want) {
		t.Errorf("published = %v, want %v", f.publisher.published, want)
	}
	if len(f.opened) != 0 {
		t.Errorf("no release draft expected without a repository url, opened %v", f.opened)
	}
}

func TestRun_MonorepoMergedRelease(t *testing.T) {
	t.Parallel()

	f := newFixture(t, prompttest.ChooseMany("@scope/a", "@scope/b"), prompttest.Yes())
	f.repo.CommitFile("package.json", `{"name": "root", "private": true, "workspaces": ["packages/*"]}`+"\n", "chore: init")
	f.repo.CommitFile("packages/a/package.json", `{"name": "@scope/a", "version": "1.0.0"}`+"\n", "feat: add a")
	f.repo.CommitFile("packages/b/package.json",
		`{"name": "@scope/b", "version": "2.0.0", "dependencies": {"@scope/a": "^1.0.0"}}`+"\n", "feat: add b")

	opts := DefaultOptions()
	opts.ReleaseType = "minor"
	opts.ScopedTag = true
	if err := f.run(t, opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, tag := range []string{"@scope/a@1.1.0", "@scope/b@2.1.0"} {
		if !f.hasTag(t, tag) {
			t.Errorf("tag %s was not created", tag)
		}
	}
	repo, err := gogit.PlainOpen(f.repo.Dir)
	if err != nil {
		t.Fatal(err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	c, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(c.Message); got != "chore: release @scope/a@1.1.0, @scope/b@2.1.0" {
		t.Errorf("release commit = %q", got)
	}
	if log := f.read(t, "packages/b/CHANGELOG.md"); !strings.Contains(log, "- chore: update @scope/a@1.1.0") {
		t.Errorf("b changelog = %q", log)
	}
	if log := f.read(t, "packages/a/CHANGELOG.md"); !strings.Contains(log, "- feat: add a") || strings.Contains(log, "add b") {
		t.Errorf("a changelog = %q", log)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(f.publisher.published, want) {
		t.Errorf("published = %v, want %v", f.publisher.published, want)
	}
}

func TestRun_DependencyNoteUsesDependencyRegistry(t *testing.T) {
	t.Parallel()

	const github = "https://npm.pkg.github.com"
	f := newFixture(t, prompttest.ChooseMany("@scope/b"), prompttest.Yes())
	f.repo.CommitFile("package.json", `{"name": "root", "private": true, "workspaces": ["packages/*"]}`+"\n", "chore: init")
	f.repo.CommitFile("packages/a/package.json",
		`{"name": "@scope/a", "version": "1.0.0", "publishConfig": {"registry": "`+github+`/", "access": "restricted"}}`+"\n",
		"feat: add a")
	f.repo.CommitFile("packages/b/package.json",
		`{"name": "@scope/b", "version": "2.0.0", "dependencies": {"@scope/a": "^1.0.0"}}`+"\n", "feat: add b")
	f.metadata.latest["@scope/a"] = "1.0.0"

	opts := DefaultOptions()
	opts.ReleaseType = "minor"
	opts.ScopedTag = true
	opts.Publish = false
	if err := f.run(t, opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := f.metadata.asked["@scope/a"]; got != github {
		t.Errorf("@scope/a metadata fetched from %q, want %q", got, github)
	}
	if got := f.metadata.asked["@scope/b"]; got != registry.NPM {
		t.Errorf("@scope/b metadata fetched from %q, want %q", got, registry.NPM)
	}
	if log := f.read(t, "packages/b/CHANGELOG.md"); strings.Contains(log, "chore: update") {
		t.Errorf("a dependency already latest on its registry must not be noted, changelog = %q", log)
	}
}

type distTagsOnly struct{ fakeMetadata }

func (*distTagsOnly) DistTags(_ context.Context, name, _ string) (map[string]string, error) {
	if name == "offline" {
		return nil, errors.New("connection refused")
	}
	return map[string]string{"latest": "1.0.0", "next": "1.1.0-rc.0"}, nil
}

func TestFetchMetadata_FallsBackToDistTags(t *testing.T) {
	t.Parallel()

	pkg := &workspace.Package{Name: "pkg", Registry: registry.NPM}
	offline := &workspace.Package{Name: "offline", Registry: registry.NPM}
	s := &state{deps: Deps{Metadata: &distTagsOnly{}}, selected: []*workspace.Package{pkg, offline}}
	s.fetchMetadata(context.Background())

	if want := map[string]string{"latest": "1.0.0", "next": "1.1.0-rc.0"}; !reflect.DeepEqual(pkg.Metadata.DistTags, want) {
		t.Errorf("DistTags = %v, want %v", pkg.Metadata.DistTags, want)
	}
	if offline.Metadata.DistTags == nil || len(offline.Metadata.DistTags) != 0 {
		t.Errorf("offline DistTags = %v, want an empty map", offline.Metadata.DistTags)
	}
}

func TestRun_PublishFailureRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, prompttest.Yes())
	f.singlePackage()
	f.publisher.err = errors.New("E403 forbidden")
	before := f.head(t)

	err := f.run(t, patchOptions())
	if issue.KindOf(err) != issue.KindPublishRejected {
		t.Fatalf("Run() error = %v, want publish rejected", err)
	}
	if f.hasTag(t, "v1.0.1") {
		t.Error("tag v1.0.1 survived the rollback")
	}
	if got := f.head(t); got != before {
		t.Errorf("HEAD = %s, want %s", got, before)
	}
	if m := f.read(t, "package.json"); !strings.Contains(m, `"version": "1.0.0"`) {
		t.Errorf("manifest = %s", m)
	}
	if _, err := os.Stat(filepath.Join(f.repo.Dir, "CHANGELOG.md")); !os.IsNotExist(err) {
		t.Errorf("CHANGELOG.md should be gone, stat error = %v", err)
	}
}

func TestRun_CommitFailureRestoresWorkTree(t *testing.T) {
	t.Parallel()

	f := newFixture(t, prompttest.Yes())
	f.repo.CommitFile("package.json", `{"name": "pkg", "version": "1.0.0"}`+"\n", "chore: init")
	f.repo.CommitFile("CHANGELOG.md", "## 1.0.0 (2026-01-01)\n\n- first\n\n", "docs: changelog")
	f.repo.Tag("v1.0.0")
	f.repo.CommitFile("src/index.js", "export default 1\n", "fix: bug")
	testutil.MustWriteFile(t, filepath.Join(f.repo.Dir, ".git", "hooks", "pre-commit"), "#!/bin/sh\nexit 1\n")
	if err := os.Chmod(filepath.Join(f.repo.Dir, ".git", "hooks", "pre-commit"), 0o755); err != nil {
		t.Fatal(err)
	}
	before := f.head(t)

	if err := f.run(t, patchOptions()); err == nil {
		t.Fatal("Run() succeeded although the release commit was rejected")
	}
	if got := f.head(t); got != before {
		t.Errorf("HEAD = %s, want %s", got, before)
	}
	if log := f.read(t, "CHANGELOG.md"); log != "## 1.0.0 (2026-01-01)\n\n- first\n\n" {
		t.Errorf("CHANGELOG.md was not restored: %q", log)
	}
	if m := f.read(t, "package.json"); !strings.Contains(m, `"version": "1.0.0"`) {
		t.Errorf("manifest = %s", m)
	}
	wt, err := f.repo.Repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if status, err := wt.Status(); err != nil || !status.IsClean() {
		t.Errorf("work tree is not clean after the rollback: %v %v", status, err)
	}
}

func TestRun_NoChangesDeclined(t *testing.T) {
	t.Parallel()

	f := newFixture(t, prompttest.Yes(), prompttest.No())
	f.repo.CommitFile("package.json", `{"name": "pkg", "version": "1.0.0"}`+"\n", "chore: init")
	f.repo.Tag("v1.0.0")
	before := f.head(t)

	err := f.run(t, patchOptions())
	if !issue.IsCancelled(err) {
		t.Fatalf("Run() error = %v, want cancellation", err)
	}
	if asked := f.script.Asked(); asked[len(asked)-1] != "No changes found for pkg, Do you want to continue?" {
		t.Errorf("asked = %q", asked)
	}
	if f.hasTag(t, "v1.0.1") || f.head(t) != before {
		t.Error("a cancelled release must not touch the repository")
	}
}

func TestRun_Preconditions(t *testing.T) {
	t.Parallel()

	t.Run("invalid release type", func(t *testing.T) {
		t.Parallel()
		opts := DefaultOptions()
		opts.ReleaseType = "bogus"
		err := New(Deps{Prompt: prompttest.New()}).Run(context.Background(), opts)
		if issue.KindOf(err) != issue.KindValidation {
			t.Errorf("error = %v, want validation", err)
		}
	})

	t.Run("build command with operators", func(t *testing.T) {
		t.Parallel()
		opts := DefaultOptions()
		opts.BuildCommand = "npm run build && npm test"
		err := New(Deps{Prompt: prompttest.New()}).Run(context.Background(), opts)
		if issue.KindOf(err) != issue.KindValidation || !strings.Contains(err.Error(), "build_command") {
			t.Errorf("error = %v, want a build_command validation error", err)
		}
	})

	t.Run("unclean work tree", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.singlePackage()
		testutil.MustWriteFile(t, filepath.Join(f.repo.Dir, "dirty.txt"), "x")
		err := f.run(t, patchOptions())
		if issue.KindOf(err) != issue.KindVCSPrecondition || !errors.Is(err, ErrUncleanTree) {
			t.Errorf("error = %v, want an unclean tree precondition", err)
		}
	})

	t.Run("branch not allowed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.singlePackage()
		opts := patchOptions()
		opts.Branch = "release"
		err := f.run(t, opts)
		if !errors.Is(err, ErrBranchNotAllowed) || !strings.Contains(err.Error(), "main") {
			t.Errorf("error = %v, want vcs precondition naming the branch", err)
		}
	})

	t.Run("packages sharing a tag prefix", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, prompttest.ChooseMany("@one/util", "@two/util"))
		f.repo.CommitFile("package.json", `{"name": "root", "private": true, "workspaces": ["packages/*"]}`+"\n", "chore: init")
		f.repo.CommitFile("packages/one/package.json", `{"name": "@one/util", "version": "1.0.0"}`+"\n", "feat: one")
		f.repo.CommitFile("packages/two/package.json", `{"name": "@two/util", "version": "1.0.0"}`+"\n", "feat: two")
		before := f.head(t)

		opts := patchOptions()
		opts.ScopedTag = false
		err := f.run(t, opts)
		if issue.KindOf(err) != issue.KindValidation || !errors.Is(err, tagname.ErrPrefixCollision) {
			t.Fatalf("error = %v, want a tag prefix collision", err)
		}
		if f.hasTag(t, "util@1.0.1") || f.head(t) != before {
			t.Error("a rejected selection must not touch the repository")
		}
	})

	t.Run("any branch skips the check", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, prompttest.Yes())
		f.singlePackage()
		opts := patchOptions()
		opts.Branch = "release"
		opts.AnyBranch = true
		opts.Publish = false
		if err := f.run(t, opts); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(f.publisher.published) != 0 {
			t.Errorf("published = %v with publishing disabled", f.publisher.published)
		}
	})
}

func TestRun_DryRunLeavesRepositoryUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t, prompttest.Yes())
	f.singlePackage()
	before := f.head(t)

	opts := patchOptions()
	opts.DryRun = true
	if err := f.run(t, opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.hasTag(t, "v1.0.1") || f.head(t) != before {
		t.Error("dry run changed the repository")
	}
	if m := f.read(t, "package.json"); !strings.Contains(m, `"version": "1.0.0"`) {
		t.Errorf("manifest = %s", m)
	}
	if !strings.Contains(f.out.String(), "git tag") {
		t.Errorf("dry run should echo the git commands, output:\n%s", f.out.String())
	}
}
