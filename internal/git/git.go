// SPDX-License-Identifier: MPL-2.0

package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/invowk/rc/internal/shell"
)

// ShortHashLen is the length of abbreviated commit hashes.
const ShortHashLen = 7

// ErrNotRepository is returned when the directory is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

type (
	// TagInfo is a tag and its creation date.
	TagInfo struct {
		Name    string
		Created time.Time
	}

	// Repository is everything a release needs from version control.
	Repository interface {
		Root() string
		CurrentBranch(ctx context.Context) (string, error)
		IsClean(ctx context.Context) (bool, error)
		HeadID(ctx context.Context) (string, error)
		MergeBase(ctx context.Context, ref string) (string, error)
		ChangedFiles(ctx context.Context, sinceRef string) ([]string, error)
		Tags(ctx context.Context) ([]TagInfo, error)
		TagExists(ctx context.Context, name string) (bool, error)
		Log(ctx context.Context, from, to, path string) ([]string, error)
		RecentCommits(ctx context.Context, n int) ([]string, error)
		RemoteURL(ctx context.Context) (string, error)

		Add(ctx context.Context, paths ...string) error
		Commit(ctx context.Context, message string) error
		CreateTag(ctx context.Context, name string) error
		DeleteTag(ctx context.Context, name string) error
		Push(ctx context.Context, followTags bool) error
		PushTags(ctx context.Context) error
		ResetHard(ctx context.Context, commit string) error
		Restore(ctx context.Context, paths ...string) error
	}

	// Repo implements Repository for a work tree on disk.
	Repo struct {
		root string
		repo *gogit.Repository
		run  *shell.Runner
	}
)

// Open opens the repository containing dir. run executes git commands; its
// dry-run setting governs every mutation.
func Open(dir string, run *shell.Runner) (*Repo, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotRepository, dir, err)
	}
	root := wt.Filesystem.Root()
	return &Repo{root: root, repo: repo, run: run.With(root)}, nil
}

// Root returns the work tree root.
func (r *Repo) Root() string { return r.root }

// CurrentBranch returns the checked out branch, or "HEAD" when detached.
func (r *Repo) CurrentBranch(_ context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "HEAD", nil
	}
	return head.Name().Short(), nil
}

// IsClean reports whether the work tree has neither staged, modified nor
// untracked files.
func (r *Repo) IsClean(_ context.Context) (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return status.IsClean(), nil
}

// HeadID returns the abbreviated hash of HEAD.
func (r *Repo) HeadID(_ context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return short(head.Hash()), nil
}

// MergeBase returns the best common ancestor of ref and HEAD.
func (r *Repo) MergeBase(_ context.Context, ref string) (string, error) {
	other, err := r.commit(ref)
	if err != nil {
		return "", err
	}
	head, err := r.commit("HEAD")
	if err != nil {
		return "", err
	}
	bases, err := head.MergeBase(other)
	if err != nil {
		return "", fmt.Errorf("merge-base %s HEAD: %w", ref, err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("merge-base %s HEAD: no common ancestor", ref)
	}
	return bases[0].Hash.String(), nil
}

// ChangedFiles lists absolute paths of files that differ between the work
// tree and the point where HEAD diverged from sinceRef.
func (r *Repo) ChangedFiles(ctx context.Context, sinceRef string) ([]string, error) {
	base, err := r.MergeBase(ctx, sinceRef)
	if err != nil {
		return nil, err
	}
	out, err := r.run.Output(ctx, "git", "diff", "--name-only", base)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range lines(out) {
		files = append(files, filepath.Join(r.root, filepath.FromSlash(line)))
	}
	return files, nil
}

// Tags lists every tag with its creation date: the tagger date for annotated
// tags and the committer date for lightweight ones.
func (r *Repo) Tags(_ context.Context) ([]TagInfo, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer iter.Close()

	var tags []TagInfo
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		info := TagInfo{Name: ref.Name().Short()}
		if tag, err := r.repo.TagObject(ref.Hash()); err == nil {
			info.Created = tag.Tagger.When
		} else if c, err := r.repo.CommitObject(ref.Hash()); err == nil {
			info.Created = c.Committer.When
		}
		tags = append(tags, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	slices.SortFunc(tags, func(a, b TagInfo) int { return strings.Compare(a.Name, b.Name) })
	return tags, nil
}

// TagExists reports whether the tag exists locally.
func (r *Repo) TagExists(_ context.Context, name string) (bool, error) {
	_, err := r.repo.Tag(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gogit.ErrTagNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup tag %s: %w", name, err)
	}
}

// Log lists "<short hash> <subject>" lines, newest first, for the commits in
// from...to touching path. An empty from lists the whole history of to.
func (r *Repo) Log(ctx context.Context, from, to, path string) ([]string, error) {
	rng := to
	if from != "" {
		rng = from + "..." + to
	}
	args := []string{"--no-pager", "log", rng, "--pretty=format:%h %s"}
	if path != "" {
		args = append(args, "--", path)
	}
	out, err := r.run.Output(ctx, "git", args...)
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// RecentCommits returns the abbreviated hashes of the last n commits from HEAD.
func (r *Repo) RecentCommits(ctx context.Context, n int) ([]string, error) {
	out, err := r.run.Output(ctx, "git", "--no-pager", "log", "-n", strconv.Itoa(n), "--pretty=format:%h")
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// RemoteURL returns the fetch URL of origin, or of the first remote by name.
// It returns "" when the repository has no remote.
func (r *Repo) RemoteURL(_ context.Context) (string, error) {
	remotes, err := r.repo.Remotes()
	if err != nil {
		return "", fmt.Errorf("list remotes: %w", err)
	}
	if len(remotes) == 0 {
		return "", nil
	}
	slices.SortFunc(remotes, func(a, b *gogit.Remote) int {
		an, bn := a.Config().Name, b.Config().Name
		switch {
		case an == gogit.DefaultRemoteName:
			return -1
		case bn == gogit.DefaultRemoteName:
			return 1
		}
		return strings.Compare(an, bn)
	})
	urls := remotes[0].Config().URLs
	if len(urls) == 0 {
		return "", nil
	}
	return urls[0], nil
}

// Add stages paths, or everything when none are given.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return r.run.Mutate(ctx, "git", "add", "-A")
	}
	return r.run.Mutate(ctx, "git", append([]string{"add", "--"}, paths...)...)
}

// Commit records the staged changes.
func (r *Repo) Commit(ctx context.Context, message string) error {
	return r.run.Mutate(ctx, "git", "commit", "-m", message)
}

// CreateTag creates an annotated tag on HEAD. Annotated tags are what
// "git push --follow-tags" transfers.
func (r *Repo) CreateTag(ctx context.Context, name string) error {
	return r.run.Mutate(ctx, "git", "tag", "-a", name, "-m", name)
}

// DeleteTag removes a local tag.
func (r *Repo) DeleteTag(ctx context.Context, name string) error {
	return r.run.Mutate(ctx, "git", "tag", "-d", name)
}

// Push pushes the current branch, together with the annotated tags it reaches
// when followTags is set.
func (r *Repo) Push(ctx context.Context, followTags bool) error {
	if followTags {
		return r.run.Mutate(ctx, "git", "push", "--follow-tags")
	}
	return r.run.Mutate(ctx, "git", "push")
}

// PushTags pushes every local tag.
func (r *Repo) PushTags(ctx context.Context) error {
	return r.run.Mutate(ctx, "git", "push", "--tags")
}

// ResetHard moves HEAD and the work tree to commit.
func (r *Repo) ResetHard(ctx context.Context, commit string) error {
	return r.run.Mutate(ctx, "git", "reset", "--hard", commit)
}

// Restore returns paths, absolute or relative to the root, to their content
// at HEAD in both the index and the work tree. Paths HEAD does not contain
// are unstaged and deleted.
func (r *Repo) Restore(ctx context.Context, paths ...string) error {
	head, err := r.commit("HEAD")
	if err != nil {
		return err
	}
	var tracked, added []string
	for _, p := range paths {
		rel, err := r.rel(p)
		if err != nil {
			return err
		}
		if _, err := head.File(rel); err == nil {
			tracked = append(tracked, rel)
		} else {
			added = append(added, rel)
		}
	}

	var errs []error
	if len(tracked) > 0 {
		errs = append(errs, r.run.Mutate(ctx, "git", append([]string{"checkout", "HEAD", "--"}, tracked...)...))
	}
	if len(added) > 0 {
		errs = append(errs, r.run.Mutate(ctx, "git", append([]string{"rm", "-q", "-f", "--ignore-unmatch", "--"}, added...)...))
		if !r.run.DryRun() {
			for _, rel := range added {
				if err := os.Remove(filepath.Join(r.root, filepath.FromSlash(rel))); err != nil && !errors.Is(err, fs.ErrNotExist) {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// rel converts p to a slash-separated path relative to the work tree root.
func (r *Repo) rel(p string) (string, error) {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	rel, err := filepath.Rel(r.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the work tree %s", p, r.root)
	}
	return filepath.ToSlash(rel), nil
}

func (r *Repo) commit(rev string) (*object.Commit, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rev, err)
	}
	c, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rev, err)
	}
	return c, nil
}

func short(h plumbing.Hash) string {
	return h.String()[:ShortHashLen]
}

func lines(out string) []string {
	var res []string
	for l := range strings.SplitSeq(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			res = append(res, l)
		}
	}
	return res
}
