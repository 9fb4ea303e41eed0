// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a throwaway repository in a temporary directory.
type Repo struct {
	t    testing.TB
	Dir  string
	Repo *gogit.Repository
	// When is the timestamp of the next commit or tag; every use advances it
	// by one hour.
	When time.Time
}

// NewRepo initialises an empty repository on branch main.
func NewRepo(t testing.TB) *Repo {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		t.Fatalf("failed to init repository: %v", err)
	}
	return &Repo{t: t, Dir: dir, Repo: repo, When: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// CommitFile writes content to the relative path and commits it.
func (r *Repo) CommitFile(path, content, message string) plumbing.Hash {
	r.t.Helper()
	MustWriteFile(r.t, filepath.Join(r.Dir, filepath.FromSlash(path)), content)
	wt, err := r.Repo.Worktree()
	if err != nil {
		r.t.Fatalf("failed to open worktree: %v", err)
	}
	if _, err := wt.Add(path); err != nil {
		r.t.Fatalf("failed to add %s: %v", path, err)
	}
	h, err := wt.Commit(message, &gogit.CommitOptions{Author: r.signature()})
	if err != nil {
		r.t.Fatalf("failed to commit: %v", err)
	}
	return h
}

// Tag creates an annotated tag on HEAD.
func (r *Repo) Tag(name string) {
	r.t.Helper()
	head, err := r.Repo.Head()
	if err != nil {
		r.t.Fatalf("failed to resolve HEAD: %v", err)
	}
	_, err = r.Repo.CreateTag(name, head.Hash(), &gogit.CreateTagOptions{Tagger: r.signature(), Message: name})
	if err != nil {
		r.t.Fatalf("failed to tag %s: %v", name, err)
	}
}

// LightweightTag creates a tag reference on HEAD without a tag object.
func (r *Repo) LightweightTag(name string) {
	r.t.Helper()
	head, err := r.Repo.Head()
	if err != nil {
		r.t.Fatalf("failed to resolve HEAD: %v", err)
	}
	if _, err := r.Repo.CreateTag(name, head.Hash(), nil); err != nil {
		r.t.Fatalf("failed to tag %s: %v", name, err)
	}
}

func (r *Repo) signature() *object.Signature {
	sig := &object.Signature{Name: "Release Bot", Email: "bot@example.com", When: r.When}
	r.When = r.When.Add(time.Hour)
	return sig
}

// RequireGit skips the test when the git executable is missing.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git executable not available")
	}
}

// GitEnv returns the process environment plus a committer identity, so
// that git commands work on machines without a global git config.
func GitEnv() []string {
	return append(os.Environ(),
		"GIT_AUTHOR_NAME=Release Bot", "GIT_AUTHOR_EMAIL=bot@example.com",
		"GIT_COMMITTER_NAME=Release Bot", "GIT_COMMITTER_EMAIL=bot@example.com")
}
