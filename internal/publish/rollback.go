// SPDX-License-Identifier: MPL-2.0

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrRollbackFailed marks a release whose rollback left the repository
// partially restored.
var ErrRollbackFailed = errors.New("rollback failed")

// Rollback undoes a failed release: it deletes the release tags that exist,
// hard-resets HEAD one commit at a time, never past preRunSHA, and finally
// restores files to their content at the resulting HEAD. touched is the
// number of released packages and bounds the commits walked. Rollback is best
// effort; every failure is reported and the walk continues where it can.
func Rollback(ctx context.Context, repo Repository, tags []string, touched int, preRunSHA string, files ...string) error {
	if touched == 0 || preRunSHA == "" {
		return restore(ctx, repo, files)
	}
	slog.Warn("Rolling back the release")

	errs := resetRelease(ctx, repo, tags, touched, preRunSHA)
	if err := restore(ctx, repo, files); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func resetRelease(ctx context.Context, repo Repository, tags []string, touched int, preRunSHA string) []error {
	var errs []error
	for _, tag := range tags {
		exists, err := repo.TagExists(ctx, tag)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !exists {
			continue
		}
		if err := repo.DeleteTag(ctx, tag); err != nil {
			errs = append(errs, fmt.Errorf("delete tag %s: %w", tag, err))
		}
	}

	// HEAD plus one parent per possible release commit
	hashes, err := repo.RecentCommits(ctx, touched+1)
	if err != nil {
		return append(errs, fmt.Errorf("list commits: %w", err))
	}
	if len(hashes) > 0 {
		current := hashes[0]
		for _, h := range hashes[1:] {
			if sameCommit(current, preRunSHA) {
				break
			}
			if err := repo.ResetHard(ctx, h); err != nil {
				errs = append(errs, fmt.Errorf("reset to %s: %w", h, err))
				break
			}
			current = h
		}
	}
	return errs
}

func restore(ctx context.Context, repo Repository, files []string) error {
	if len(files) == 0 {
		return nil
	}
	if err := repo.Restore(ctx, files...); err != nil {
		return fmt.Errorf("restore %s: %w", strings.Join(files, ", "), err)
	}
	return nil
}

// sameCommit compares commit IDs that may be abbreviated to different lengths.
func sameCommit(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}
