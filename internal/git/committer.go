package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"tabmirror/internal/common"
	"tabmirror/pkg/errors"
	"tabmirror/pkg/models"
)

// Committer wraps the mirror directory's Git repository. The repository
// is always derived from the mirror directory's filesystem state, never
// treated as an independent data source.
type Committer struct {
	path      string
	remoteURL string
	branch    string
	author    models.GitAuthor
}

// CommitResult describes what the staging phase actually did
type CommitResult struct {
	Committed bool
	Pushed    bool
	Hash      string
	Added     int
	Modified  int
	Deleted   int
}

// NewCommitter creates a committer for the mirror directory
func NewCommitter(path, remoteURL, branch string, author models.GitAuthor) *Committer {
	return &Committer{path: path, remoteURL: remoteURL, branch: branch, author: author}
}

// EnsureRepo opens the mirror repository, cloning it from the remote when
// the directory is not yet a repository. An empty remote is initialized
// locally with origin configured, so the first run of a brand-new mirror
// still works.
func (c *Committer) EnsureRepo(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(c.path, ".git")); err == nil {
		if _, err := git.PlainOpen(c.path); err != nil {
			return errors.Wrap(err, errors.ErrCodeGitIO, "failed to open mirror repository").
				WithSeverity(errors.SeverityCritical)
		}
		return c.ensureLockIgnored()
	}

	_, err := git.PlainCloneContext(ctx, c.path, false, &git.CloneOptions{
		URL:           c.remoteURL,
		Auth:          authMethod(c.remoteURL),
		ReferenceName: plumbing.NewBranchReferenceName(c.branch),
		SingleBranch:  true,
	})
	if err == nil {
		return c.ensureLockIgnored()
	}
	if stderrors.Is(err, transport.ErrEmptyRemoteRepository) {
		return c.initEmpty()
	}
	if isAuthError(err) {
		return errors.Wrap(err, errors.ErrCodeGitAuth, "authentication to the Git remote failed").
			WithSeverity(errors.SeverityCritical).
			WithSuggestions(
				"Set GIT_USERNAME and GIT_PASSWORD, or GITHUB_TOKEN",
				"Verify you have access to the repository",
			)
	}
	return errors.Wrap(err, errors.ErrCodeGitIO,
		fmt.Sprintf("failed to clone %s", c.remoteURL)).WithSeverity(errors.SeverityCritical)
}

// initEmpty finishes the bootstrap an empty-remote clone could not. The
// failed clone may already have created the repository with origin
// configured, so open it first and fill in only what is missing.
func (c *Committer) initEmpty() error {
	repo, err := git.PlainOpen(c.path)
	if stderrors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(c.path, false)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeGitIO, "failed to initialize mirror repository").
			WithSeverity(errors.SeverityCritical)
	}

	if _, err := repo.Remote("origin"); stderrors.Is(err, git.ErrRemoteNotFound) {
		remote := &gitconfig.RemoteConfig{Name: "origin", URLs: []string{c.remoteURL}}
		if _, err := repo.CreateRemote(remote); err != nil {
			return errors.Wrap(err, errors.ErrCodeGitIO, "failed to configure origin remote").
				WithSeverity(errors.SeverityCritical)
		}
	} else if err != nil {
		return errors.Wrap(err, errors.ErrCodeGitIO, "failed to inspect origin remote").
			WithSeverity(errors.SeverityCritical)
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(c.branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return errors.Wrap(err, errors.ErrCodeGitIO, "failed to set initial branch").
			WithSeverity(errors.SeverityCritical)
	}
	return c.ensureLockIgnored()
}

// ensureLockIgnored keeps the run lock file out of commits
func (c *Committer) ensureLockIgnored() error {
	const entry = ".tabmirror.lock"
	path := filepath.Join(c.path, ".gitignore")

	data, err := os.ReadFile(path) // #nosec G304 - path is under the mirror root
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeGitIO, "failed to read .gitignore")
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += entry + "\n"
	if err := os.WriteFile(path, []byte(content), common.FilePermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeGitIO, "failed to update .gitignore")
	}
	return nil
}

// CommitAndPush stages everything under the mirror directory, commits if
// any tracked path actually changed, and pushes. A clean worktree is a
// successful no-op, not an error.
func (c *Committer) CommitAndPush(ctx context.Context) (*CommitResult, error) {
	repo, err := git.PlainOpen(c.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitIO, "failed to open mirror repository")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitIO, "failed to open worktree")
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitIO, "failed to stage mirror changes")
	}

	status, err := wt.Status()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitIO, "failed to compute worktree status")
	}

	result := &CommitResult{}
	countChanges(status, result)
	if result.Added+result.Modified+result.Deleted == 0 {
		return result, nil
	}

	sig := &object.Signature{Name: c.author.Name, Email: c.author.Email, When: time.Now()}
	hash, err := wt.Commit(c.commitMessage(result), &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return result, errors.Wrap(err, errors.ErrCodeGitIO, "failed to create commit")
	}
	result.Committed = true
	result.Hash = hash.String()

	if err := c.push(ctx, repo); err != nil {
		return result, err
	}
	result.Pushed = true
	return result, nil
}

func (c *Committer) push(ctx context.Context, repo *git.Repository) error {
	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", c.branch, c.branch))
	err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       authMethod(c.remoteURL),
	})
	if err == nil || stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if isAuthError(err) {
		return errors.Wrap(err, errors.ErrCodeGitAuth, "authentication to the Git remote failed")
	}
	if isNonFastForward(err) {
		return errors.Wrap(err, errors.ErrCodeGitConflict,
			"push rejected: the remote branch has diverged").
			WithSuggestions(
				"Fetch and reconcile the mirror repository manually",
				"Re-run once the remote branch is fast-forwardable",
			)
	}
	return errors.Wrap(err, errors.ErrCodeGitIO, "failed to push mirror changes")
}

func (c *Committer) commitMessage(r *CommitResult) string {
	return fmt.Sprintf("Tableau mirror %s: %d added, %d modified, %d deleted",
		time.Now().Format("2006-01-02 15:04:05"), r.Added, r.Modified, r.Deleted)
}

func countChanges(status git.Status, result *CommitResult) {
	for _, fs := range status {
		switch fs.Staging {
		case git.Added, git.Copied:
			result.Added++
		case git.Modified, git.Renamed:
			result.Modified++
		case git.Deleted:
			result.Deleted++
		}
	}
}

func isAuthError(err error) bool {
	if stderrors.Is(err, transport.ErrAuthenticationRequired) ||
		stderrors.Is(err, transport.ErrAuthorizationFailed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "authentication") || strings.Contains(msg, "authorization")
}

func isNonFastForward(err error) bool {
	return strings.Contains(err.Error(), "non-fast-forward")
}
