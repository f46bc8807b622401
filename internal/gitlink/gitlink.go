// Package gitlink provides best-effort verification that a commit SHA
// named by a Memory Link actually exists in a project's repository, per
// §3's "best-effort, non-authoritative" contract for commit links. It never
// writes to the repository.
package gitlink

import (
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Resolver checks commit SHAs against an on-disk git repository.
type Resolver struct {
	repo *git.Repository
}

// Open opens the repository rooted at path. A path that is not a git
// repository (or has no .git directory) is not an error here: callers
// treat a nil Resolver as "skip verification", matching the
// non-authoritative nature of Memory Links.
func Open(path string) (*Resolver, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return nil, nil
		}
		return nil, err
	}
	return &Resolver{repo: repo}, nil
}

// CommitExists reports whether sha names a commit reachable in the
// repository. A malformed or absent SHA reports false, never an error —
// Manager.LinkMemoryToCommit still records the link and only logs a
// warning.
func (r *Resolver) CommitExists(sha string) bool {
	if r == nil || !plumbing.IsHash(sha) {
		return false
	}
	_, err := r.repo.CommitObject(plumbing.NewHash(sha))
	return err == nil
}

// CurrentBranch returns the short name of the repository's current branch,
// or "" if detached or undetectable.
func (r *Resolver) CurrentBranch() string {
	if r == nil {
		return ""
	}
	head, err := r.repo.Head()
	if err != nil {
		return ""
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	return ""
}
