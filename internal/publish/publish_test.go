// SPDX-License-Identifier: MPL-2.0

package publish

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/invowk/rc/internal/changelog"
	"github.com/invowk/rc/internal/git"
	"github.com/invowk/rc/internal/hosting"
	"github.com/invowk/rc/internal/issue"
	"github.com/invowk/rc/internal/prompt/prompttest"
	"github.com/invowk/rc/internal/registry"
	"github.com/invowk/rc/internal/shell"
	"github.com/invowk/rc/internal/tagname"
	"github.com/invowk/rc/internal/testutil"
	"github.com/invowk/rc/internal/workspace"
)

type fakeRepo struct {
	calls        []string
	tags         map[string]bool
	commits      []string
	pushErr      error
	plainPushErr error
	resetErr     error
}

func newFakeRepo(commits ...string) *fakeRepo {
	return &fakeRepo{tags: map[string]bool{}, commits: commits}
}

func (f *fakeRepo) Add(_ context.Context, paths ...string) error {
	f.calls = append(f.calls, strings.TrimSpace("add "+strings.Join(paths, " ")))
	return nil
}

func (f *fakeRepo) Commit(_ context.Context, message string) error {
	f.calls = append(f.calls, "commit "+message)
	return nil
}

func (f *fakeRepo) CreateTag(_ context.Context, name string) error {
	f.calls = append(f.calls, "tag "+name)
	f.tags[name] = true
	return nil
}

func (f *fakeRepo) DeleteTag(_ context.Context, name string) error {
	f.calls = append(f.calls, "delete-tag "+name)
	delete(f.tags, name)
	return nil
}

func (f *fakeRepo) TagExists(_ context.Context, name string) (bool, error) {
	return f.tags[name], nil
}

func (f *fakeRepo) Push(_ context.Context, followTags bool) error {
	if followTags {
		f.calls = append(f.calls, "push --follow-tags")
		return f.pushErr
	}
	f.calls = append(f.calls, "push")
	return f.plainPushErr
}

func (f *fakeRepo) PushTags(_ context.Context) error {
	f.calls = append(f.calls, "push --tags")
	return nil
}

func (f *fakeRepo) RecentCommits(_ context.Context, n int) ([]string, error) {
	return f.commits[:min(n, len(f.commits))], nil
}

func (f *fakeRepo) ResetHard(_ context.Context, commit string) error {
	f.calls = append(f.calls, "reset "+commit)
	return f.resetErr
}

func (f *fakeRepo) Restore(_ context.Context, paths ...string) error {
	f.calls = append(f.calls, "restore "+strings.Join(paths, " "))
	return nil
}

type fakeRegistry struct {
	requests []registry.PublishRequest
	twoFA    bool
	// results are returned in order; missing entries succeed
	results []error
	onCall  func(n int)
}

func (f *fakeRegistry) Publish(_ context.Context, req registry.PublishRequest) error {
	f.requests = append(f.requests, req)
	n := len(f.requests)
	if f.onCall != nil {
		f.onCall(n)
	}
	if n <= len(f.results) {
		return f.results[n-1]
	}
	return nil
}

func (f *fakeRegistry) TwoFactorRequired(context.Context, string) bool { return f.twoFA }

func otpError() error {
	return &shell.RunError{Command: "npm publish", Output: "npm ERR! code EOTP\nnpm ERR! This operation requires a one-time password.", Err: errors.New("exit status 1")}
}

func npmManager() registry.Manager {
	return registry.Manager{CLI: "npm", ID: registry.NPMID}
}

func newPackage(t *testing.T, name, ver, newVer string) *workspace.Package {
	t.Helper()
	dir := filepath.Join(t.TempDir(), filepath.Base(name))
	testutil.MustWriteManifest(t, dir, map[string]any{"name": name, "version": ver})
	return &workspace.Package{
		Name:       name,
		Version:    ver,
		NewVersion: newVer,
		DistTag:    "latest",
		Access:     workspace.AccessPublic,
		Registry:   registry.NPM,
		Dir:        dir,
	}
}

func newOrchestrator(cfg Config, repo Repository, reg Registry, script *prompttest.Script, opts ...Option) *Orchestrator {
	if cfg.Manager.CLI == "" {
		cfg.Manager = npmManager()
	}
	return New(cfg, repo, reg, shell.New("."), script, opts...)
}

func TestBumpAndTag_MergedCommit(t *testing.T) {
	t.Parallel()

	a := newPackage(t, "@scope/a", "1.0.0", "1.1.0")
	b := newPackage(t, "@scope/b", "2.0.0", "2.1.0")
	repo := newFakeRepo()
	o := newOrchestrator(Config{Scheme: tagname.Scheme{Monorepo: true, Scoped: true}}, repo, &fakeRegistry{}, prompttest.New())

	if err := o.BumpAndTag(context.Background(), []*workspace.Package{a, b}); err != nil {
		t.Fatalf("BumpAndTag() error = %v", err)
	}
	want := []string{
		"add",
		"commit chore: release @scope/a@1.1.0, @scope/b@2.1.0",
		"tag @scope/a@1.1.0",
		"tag @scope/b@2.1.0",
	}
	if !reflect.DeepEqual(repo.calls, want) {
		t.Errorf("calls = %q, want %q", repo.calls, want)
	}
	if o.State() != Tagged {
		t.Errorf("State() = %v, want tagged", o.State())
	}
	for _, p := range []*workspace.Package{a, b} {
		m, err := workspace.ReadManifest(p.Dir)
		if err != nil {
			t.Fatal(err)
		}
		if m.Version != p.NewVersion {
			t.Errorf("%s manifest version = %q, want %q", p.Name, m.Version, p.NewVersion)
		}
	}
}

func TestBumpAndTagOne(t *testing.T) {
	t.Parallel()

	pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
	repo := newFakeRepo()
	o := newOrchestrator(Config{DryRun: true}, repo, &fakeRegistry{}, prompttest.New())

	if err := o.BumpAndTagOne(context.Background(), pkg); err != nil {
		t.Fatalf("BumpAndTagOne() error = %v", err)
	}
	want := []string{"add " + pkg.Dir, "commit chore: release v1.0.1", "tag v1.0.1"}
	if !reflect.DeepEqual(repo.calls, want) {
		t.Errorf("calls = %q, want %q", repo.calls, want)
	}
	m, err := workspace.ReadManifest(pkg.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != "1.0.0" {
		t.Errorf("dry-run rewrote the manifest: version = %q", m.Version)
	}
}

func TestPublishArgs(t *testing.T) {
	t.Parallel()

	pkg := &workspace.Package{Name: "pkg", NewVersion: "1.1.0-beta.0", DistTag: "beta", Access: workspace.AccessRestricted}
	tests := []struct {
		name     string
		manager  registry.Manager
		dryRun   bool
		wantName string
		wantArgs []string
	}{
		{"npm", registry.Manager{CLI: "npm", ID: registry.NPMID}, false, "npm",
			[]string{"publish", "--access", "restricted", "--tag", "beta"}},
		{"npm dry-run", registry.Manager{CLI: "npm", ID: registry.NPMID}, true, "npm",
			[]string{"publish", "--access", "restricted", "--tag", "beta", "--dry-run"}},
		{"pnpm", registry.Manager{CLI: "pnpm", ID: registry.PNPMID}, true, "pnpm",
			[]string{"publish", "--access", "restricted", "--tag", "beta", "--no-git-checks", "--dry-run"}},
		{"yarn classic", registry.Manager{CLI: "yarn", ID: registry.YarnID}, true, "yarn",
			[]string{"publish", "--access", "restricted", "--tag", "beta", "--new-version", "1.1.0-beta.0"}},
		{"yarn berry", registry.Manager{CLI: "yarn", ID: registry.BerryID}, false, "yarn",
			[]string{"npm", "publish", "--access", "restricted", "--tag", "beta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := newOrchestrator(Config{Manager: tt.manager, DryRun: tt.dryRun}, newFakeRepo(), &fakeRegistry{}, prompttest.New())
			name, args := o.PublishArgs(pkg)
			if name != tt.wantName || !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("PublishArgs() = %s %q, want %s %q", name, args, tt.wantName, tt.wantArgs)
			}
		})
	}
}

func TestPublishOne_OTPRetry(t *testing.T) {
	t.Parallel()

	pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
	reg := &fakeRegistry{results: []error{otpError()}}
	script := prompttest.New(prompttest.Choose("123456"))
	o := newOrchestrator(Config{}, newFakeRepo(), reg, script)

	var tryAgainOnRetry bool
	reg.onCall = func(n int) {
		if n == 2 {
			tryAgainOnRetry = o.TwoFactor().TryAgain
		}
	}

	if err := o.PublishOne(context.Background(), pkg); err != nil {
		t.Fatalf("PublishOne() error = %v", err)
	}
	if len(reg.requests) != 2 {
		t.Fatalf("publish attempts = %d, want 2", len(reg.requests))
	}
	if slices.Contains(reg.requests[0].Args, "--otp") {
		t.Errorf("first attempt has an OTP: %q", reg.requests[0].Args)
	}
	if args := reg.requests[1].Args; !reflect.DeepEqual(args[len(args)-2:], []string{"--otp", "123456"}) {
		t.Errorf("retry args = %q", args)
	}
	if !tryAgainOnRetry {
		t.Error("TryAgain was not set between attempts")
	}
	if o.TwoFactor().TryAgain {
		t.Error("TryAgain still set after success")
	}
	if script.Remaining() != 0 {
		t.Errorf("unused answers: %d", script.Remaining())
	}
}

func TestPublishOne_InvalidCachedOTP(t *testing.T) {
	t.Parallel()

	pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
	reg := &fakeRegistry{results: []error{otpError()}}
	script := prompttest.New(prompttest.Choose("654321"))
	o := newOrchestrator(Config{OTP: "111111"}, newFakeRepo(), reg, script)

	if err := o.PublishOne(context.Background(), pkg); err != nil {
		t.Fatalf("PublishOne() error = %v", err)
	}
	first, second := reg.requests[0].Args, reg.requests[1].Args
	if first[len(first)-1] != "111111" || second[len(second)-1] != "654321" {
		t.Errorf("otp args = %q then %q", first, second)
	}
	if got := script.Asked(); len(got) != 1 || !strings.Contains(got[0], "incorrect or expired") {
		t.Errorf("asked = %q", got)
	}
}

func TestPublishOne_TwoFactorRequiredAsksFirst(t *testing.T) {
	t.Parallel()

	pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
	reg := &fakeRegistry{twoFA: true}
	script := prompttest.New(prompttest.Choose("000111"))
	o := newOrchestrator(Config{}, newFakeRepo(), reg, script)

	if err := o.PublishOne(context.Background(), pkg); err != nil {
		t.Fatalf("PublishOne() error = %v", err)
	}
	if len(reg.requests) != 1 || !slices.Contains(reg.requests[0].Args, "000111") {
		t.Errorf("requests = %+v", reg.requests)
	}
	if !o.TwoFactor().Required {
		t.Error("Required = false")
	}
}

func TestPublishOne_Failures(t *testing.T) {
	t.Parallel()

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()
		pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
		reg := &fakeRegistry{results: []error{errors.New("403 Forbidden")}}
		err := newOrchestrator(Config{}, newFakeRepo(), reg, prompttest.New()).PublishOne(context.Background(), pkg)
		if issue.KindOf(err) != issue.KindPublishRejected {
			t.Errorf("error = %v, kind %v, want publish rejected", err, issue.KindOf(err))
		}
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		t.Parallel()
		pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
		results := make([]error, MaxOTPAttempts)
		answers := make([]prompttest.Answer, MaxOTPAttempts-1)
		for i := range results {
			results[i] = otpError()
		}
		for i := range answers {
			answers[i] = prompttest.Choose("123456")
		}
		reg := &fakeRegistry{results: results}
		err := newOrchestrator(Config{}, newFakeRepo(), reg, prompttest.New(answers...)).PublishOne(context.Background(), pkg)
		if issue.KindOf(err) != issue.KindOTPRequired {
			t.Errorf("error = %v, want otp required", err)
		}
		if len(reg.requests) != MaxOTPAttempts {
			t.Errorf("attempts = %d, want %d", len(reg.requests), MaxOTPAttempts)
		}
	})

	t.Run("prompt cancelled", func(t *testing.T) {
		t.Parallel()
		pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
		reg := &fakeRegistry{results: []error{otpError()}}
		err := newOrchestrator(Config{}, newFakeRepo(), reg, prompttest.New(prompttest.Cancel())).PublishOne(context.Background(), pkg)
		if !issue.IsCancelled(err) {
			t.Errorf("error = %v, want cancellation", err)
		}
	})
}

func TestPublishOne_YarnClassicDryRunSkipped(t *testing.T) {
	t.Parallel()

	pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
	reg := &fakeRegistry{}
	cfg := Config{Manager: registry.Manager{CLI: "yarn", ID: registry.YarnID}, DryRun: true}
	if err := newOrchestrator(cfg, newFakeRepo(), reg, prompttest.New()).PublishOne(context.Background(), pkg); err != nil {
		t.Fatal(err)
	}
	if len(reg.requests) != 0 {
		t.Errorf("publish ran in dry-run: %+v", reg.requests)
	}
}

func TestPublishAll_BuildsFirst(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX true executable")
	}

	pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
	pkg.Manifest.Scripts = map[string]string{"build": "tsc"}
	var ran []string
	run := shell.New(".", shell.WithExecCommand(func(ctx context.Context, name string, args ...string) *exec.Cmd {
		ran = append(ran, shell.Quote(name, args...))
		return exec.CommandContext(ctx, "true")
	}))
	reg := &fakeRegistry{onCall: func(int) { ran = append(ran, "publish") }}
	o := New(Config{Manager: npmManager(), Build: true, Publish: true}, newFakeRepo(), reg, run, prompttest.New())

	if err := o.PublishAll(context.Background(), []*workspace.Package{pkg}); err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	if want := []string{"npm run build", "publish"}; !reflect.DeepEqual(ran, want) {
		t.Errorf("ran = %q, want %q", ran, want)
	}
	if o.State() != Published {
		t.Errorf("State() = %v", o.State())
	}
}

func TestPublishAll_CustomBuildCommand(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX true executable")
	}

	pkg := newPackage(t, "pkg", "1.0.0", "1.0.1")
	var ran []string
	run := shell.New(".", shell.WithExecCommand(func(ctx context.Context, name string, args ...string) *exec.Cmd {
		ran = append(ran, shell.Quote(name, args...))
		return exec.CommandContext(ctx, "true")
	}))
	reg := &fakeRegistry{onCall: func(int) { ran = append(ran, "publish") }}
	cfg := Config{Manager: npmManager(), Build: true, BuildCommand: []string{"pnpm", "run", "build:prod"}, Publish: true}
	o := New(cfg, newFakeRepo(), reg, run, prompttest.New())

	if err := o.PublishAll(context.Background(), []*workspace.Package{pkg}); err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	if want := []string{"pnpm run build:prod", "publish"}; !reflect.DeepEqual(ran, want) {
		t.Errorf("ran = %q, want %q", ran, want)
	}
}

func TestPublishAll_Disabled(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	o := newOrchestrator(Config{Publish: false}, newFakeRepo(), reg, prompttest.New())
	if err := o.PublishAll(context.Background(), []*workspace.Package{newPackage(t, "pkg", "1.0.0", "1.0.1")}); err != nil {
		t.Fatal(err)
	}
	if len(reg.requests) != 0 || o.State() != Published {
		t.Errorf("requests = %d, state = %v", len(reg.requests), o.State())
	}
}

func TestPushAll(t *testing.T) {
	t.Parallel()

	t.Run("follow tags", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo()
		if err := newOrchestrator(Config{HasRemote: true}, repo, &fakeRegistry{}, prompttest.New()).PushAll(context.Background()); err != nil {
			t.Fatal(err)
		}
		if want := []string{"push --follow-tags"}; !reflect.DeepEqual(repo.calls, want) {
			t.Errorf("calls = %q", repo.calls)
		}
	})

	t.Run("fallback", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo()
		repo.pushErr = errors.New("rejected")
		if err := newOrchestrator(Config{HasRemote: true}, repo, &fakeRegistry{}, prompttest.New()).PushAll(context.Background()); err != nil {
			t.Fatal(err)
		}
		if want := []string{"push --follow-tags", "push", "push --tags"}; !reflect.DeepEqual(repo.calls, want) {
			t.Errorf("calls = %q, want %q", repo.calls, want)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo()
		repo.pushErr = errors.New("rejected")
		repo.plainPushErr = errors.New("non-fast-forward")
		o := newOrchestrator(Config{HasRemote: true}, repo, &fakeRegistry{}, prompttest.New())
		err := o.PushAll(context.Background())
		var ae *issue.ActionableError
		if !errors.As(err, &ae) || ae.Operation != "push release" || len(ae.Suggestions) == 0 {
			t.Fatalf("PushAll() error = %v, want actionable push error", err)
		}
		if o.State() == Pushed {
			t.Error("state must not advance after a failed push")
		}
	})

	t.Run("no remote", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo()
		if err := newOrchestrator(Config{}, repo, &fakeRegistry{}, prompttest.New()).PushAll(context.Background()); err != nil {
			t.Fatal(err)
		}
		if len(repo.calls) != 0 {
			t.Errorf("calls = %q", repo.calls)
		}
	})
}

func TestDraftRelease(t *testing.T) {
	t.Parallel()

	gh, err := hosting.Parse("https://github.com/acme/pkg.git")
	if err != nil {
		t.Fatal(err)
	}
	pkg := &workspace.Package{
		Name:       "pkg",
		NewVersion: "1.1.0-beta.0",
		Changelogs: []changelog.Window{{
			To:      changelog.Tag{Name: "v1.1.0-beta.0", Version: "1.1.0-beta.0"},
			Commits: []changelog.Commit{{Message: "feat: x"}},
		}},
	}

	var opened []string
	opener := WithOpener(func(_ context.Context, u string) error {
		opened = append(opened, u)
		return nil
	})
	o := newOrchestrator(Config{Hosting: &gh, ReleaseDraft: true}, newFakeRepo(), &fakeRegistry{}, prompttest.New(), opener)
	if err := o.DraftRelease(context.Background(), []*workspace.Package{pkg}); err != nil {
		t.Fatal(err)
	}
	if len(opened) != 1 {
		t.Fatalf("opened = %q", opened)
	}
	for _, part := range []string{"https://github.com/acme/pkg/releases/new?", "tag=v1.1.0-beta.0", "prerelease=true", "body=-+feat%3A+x"} {
		if !strings.Contains(opened[0], part) {
			t.Errorf("url %q lacks %q", opened[0], part)
		}
	}

	opened = nil
	dry := newOrchestrator(Config{Hosting: &gh, ReleaseDraft: true, DryRun: true}, newFakeRepo(), &fakeRegistry{}, prompttest.New(), opener)
	if err := dry.DraftRelease(context.Background(), []*workspace.Package{pkg}); err != nil {
		t.Fatal(err)
	}
	if len(opened) != 0 {
		t.Errorf("dry-run opened %q", opened)
	}

	gitee, _ := hosting.Parse("https://gitee.com/acme/pkg")
	other := newOrchestrator(Config{Hosting: &gitee, ReleaseDraft: true}, newFakeRepo(), &fakeRegistry{}, prompttest.New())
	if u := other.DraftURL(pkg); u != "" {
		t.Errorf("DraftURL() for gitee = %q, want empty", u)
	}
}

func TestRollback(t *testing.T) {
	t.Parallel()

	t.Run("stops at the pre-run commit", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo("c3", "c2", "c1", "c0")
		repo.tags["a@1.1.0"] = true
		if err := Rollback(context.Background(), repo, []string{"a@1.1.0", "b@2.1.0"}, 2, "c1"); err != nil {
			t.Fatal(err)
		}
		want := []string{"delete-tag a@1.1.0", "reset c2", "reset c1"}
		if !reflect.DeepEqual(repo.calls, want) {
			t.Errorf("calls = %q, want %q", repo.calls, want)
		}
	})

	t.Run("never past the pre-run commit", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo("c3", "c2abcdef", "c1")
		if err := Rollback(context.Background(), repo, nil, 5, "c2abcde"); err != nil {
			t.Fatal(err)
		}
		if want := []string{"reset c2abcdef"}; !reflect.DeepEqual(repo.calls, want) {
			t.Errorf("calls = %q, want %q", repo.calls, want)
		}
	})

	t.Run("restores written files", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo("c1", "c0")
		if err := Rollback(context.Background(), repo, []string{"v1.0.1"}, 1, "c1", "CHANGELOG.md"); err != nil {
			t.Fatal(err)
		}
		if want := []string{"restore CHANGELOG.md"}; !reflect.DeepEqual(repo.calls, want) {
			t.Errorf("calls = %q, want %q", repo.calls, want)
		}
	})

	t.Run("no-op", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo("c1")
		repo.tags["v1.0.0"] = true
		_ = Rollback(context.Background(), repo, []string{"v1.0.0"}, 0, "c0")
		_ = Rollback(context.Background(), repo, []string{"v1.0.0"}, 1, "")
		if len(repo.calls) != 0 {
			t.Errorf("calls = %q", repo.calls)
		}
	})
}

func TestRelease_PublishFailureRollsBack(t *testing.T) {
	t.Parallel()
	testutil.RequireGit(t)

	fx := testutil.NewRepo(t)
	testutil.MustWriteManifest(t, fx.Dir, map[string]any{"name": "pkg", "version": "1.0.0"})
	fx.CommitFile("package.json", testutil.MustReadFile(t, filepath.Join(fx.Dir, "package.json")), "init")
	fx.CommitFile("index.js", "fix", "fix: bug")

	ctx := context.Background()
	repo, err := git.Open(fx.Dir, shell.New(fx.Dir, shell.WithEnv(testutil.GitEnv())))
	if err != nil {
		t.Fatal(err)
	}
	preRun, err := repo.HeadID(ctx)
	if err != nil {
		t.Fatal(err)
	}

	pkg := &workspace.Package{Name: "pkg", Version: "1.0.0", NewVersion: "1.0.1", DistTag: "latest", Access: workspace.AccessPublic, Dir: fx.Dir}
	reg := &fakeRegistry{results: []error{errors.New("E500 internal error")}}
	o := New(Config{Manager: npmManager(), Publish: true}, repo, reg, shell.New(fx.Dir), prompttest.New())

	if err := o.BumpAndTag(ctx, []*workspace.Package{pkg}); err != nil {
		t.Fatalf("BumpAndTag() error = %v", err)
	}
	if ok, _ := repo.TagExists(ctx, "v1.0.1"); !ok {
		t.Fatal("tag v1.0.1 not created")
	}
	err = o.PublishAll(ctx, []*workspace.Package{pkg})
	if issue.KindOf(err) != issue.KindPublishRejected {
		t.Fatalf("PublishAll() error = %v, want publish rejected", err)
	}
	o.Fail()
	if o.State() != Failed {
		t.Errorf("State() = %v, want failed", o.State())
	}

	if err := o.Rollback(ctx, []*workspace.Package{pkg}, preRun); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if ok, _ := repo.TagExists(ctx, "v1.0.1"); ok {
		t.Error("tag v1.0.1 survived the rollback")
	}
	if head, _ := repo.HeadID(ctx); head != preRun {
		t.Errorf("HEAD = %s, want %s", head, preRun)
	}
	m, err := workspace.ReadManifest(fx.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != "1.0.0" {
		t.Errorf("manifest version after rollback = %q", m.Version)
	}
}

func TestOrchestrator_RollbackWrittenFiles(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("c1", "c0")
	o := newOrchestrator(Config{}, repo, &fakeRegistry{}, prompttest.New())
	if o.NeedsRollback() {
		t.Fatal("a fresh release has nothing to undo")
	}
	o.Wrote("packages/a/CHANGELOG.md")
	if !o.NeedsRollback() || o.State() != Idle {
		t.Fatalf("NeedsRollback() = %v, State() = %v", o.NeedsRollback(), o.State())
	}
	pkg := newPackage(t, "a", "1.0.0", "1.0.1")
	if err := o.Rollback(context.Background(), []*workspace.Package{pkg}, "c1"); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if want := []string{"restore packages/a/CHANGELOG.md"}; !reflect.DeepEqual(repo.calls, want) {
		t.Errorf("calls = %q, want %q", repo.calls, want)
	}

	repo = newFakeRepo("c2", "c1")
	repo.resetErr = errors.New("index.lock exists")
	o = newOrchestrator(Config{}, repo, &fakeRegistry{}, prompttest.New())
	err := o.Rollback(context.Background(), []*workspace.Package{pkg}, "c1")
	if !errors.Is(err, ErrRollbackFailed) {
		t.Errorf("Rollback() error = %v, want ErrRollbackFailed", err)
	}
}

func TestValidateOTP(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"123456", " 000000 "} {
		if err := ValidateOTP(code); err != nil {
			t.Errorf("ValidateOTP(%q) = %v", code, err)
		}
	}
	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		if ValidateOTP(code) == nil {
			t.Errorf("ValidateOTP(%q) = nil, want error", code)
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	if Idle.Mutated() || !VersionBumped.Mutated() {
		t.Error("Mutated() boundary is wrong")
	}
	if Failed.String() != "failed" || State(99).String() != "unknown" {
		t.Errorf("String() = %q, %q", Failed.String(), State(99).String())
	}
}
