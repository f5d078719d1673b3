package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabmirror/pkg/models"
)

func testAuthor() models.GitAuthor {
	return models.GitAuthor{Name: "tabmirror", Email: "tabmirror@localhost"}
}

// newBareRemote creates a local bare repository usable as a push target
func newBareRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := gogit.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func TestEnsureRepoInitializesAgainstEmptyRemote(t *testing.T) {
	remote := newBareRemote(t)
	mirrorDir := filepath.Join(t.TempDir(), "mirror")

	c := NewCommitter(mirrorDir, remote, "main", testAuthor())
	require.NoError(t, c.EnsureRepo(context.Background()))

	repo, err := gogit.PlainOpen(mirrorDir)
	require.NoError(t, err)

	head, err := repo.Reference(plumbing.HEAD, false)
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main", head.Target().String())

	// the lock file must never be committed
	data, err := os.ReadFile(filepath.Join(mirrorDir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ".tabmirror.lock")
}

func TestInitEmptyReusesRepositoryLeftByFailedClone(t *testing.T) {
	remote := newBareRemote(t)
	mirrorDir := filepath.Join(t.TempDir(), "mirror")

	// a clone that aborts on an empty remote can leave the repository
	// behind with origin already configured
	repo, err := gogit.PlainInit(mirrorDir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remote}})
	require.NoError(t, err)

	c := NewCommitter(mirrorDir, remote, "main", testAuthor())
	require.NoError(t, c.initEmpty())

	reopened, err := gogit.PlainOpen(mirrorDir)
	require.NoError(t, err)

	origin, err := reopened.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, []string{remote}, origin.Config().URLs)

	head, err := reopened.Reference(plumbing.HEAD, false)
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main", head.Target().String())

	// the bootstrapped repository must be commit- and push-ready
	require.NoError(t, os.WriteFile(filepath.Join(mirrorDir, "a.twbx"), []byte("a"), 0o644))
	result, err := c.CommitAndPush(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.True(t, result.Pushed)
}

func TestCommitAndPush(t *testing.T) {
	remote := newBareRemote(t)
	mirrorDir := filepath.Join(t.TempDir(), "mirror")

	c := NewCommitter(mirrorDir, remote, "main", testAuthor())
	require.NoError(t, c.EnsureRepo(context.Background()))

	require.NoError(t, os.MkdirAll(filepath.Join(mirrorDir, "Finance", "Q1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(mirrorDir, "Finance", "Sales.twbx"), []byte("wb"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(mirrorDir, "Finance", "Q1", "Orders.tdsx"), []byte("ds"), 0644))

	result, err := c.CommitAndPush(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Committed)
	assert.True(t, result.Pushed)
	assert.NotEmpty(t, result.Hash)
	// .gitignore plus the two mirrored files
	assert.Equal(t, 3, result.Added)

	// the commit landed on the remote
	bare, err := gogit.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := bare.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	assert.Equal(t, result.Hash, ref.Hash().String())

	commit, err := bare.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "tabmirror", commit.Author.Name)
	assert.Contains(t, commit.Message, "added")
}

func TestCommitAndPushNoChangesIsNoOp(t *testing.T) {
	remote := newBareRemote(t)
	mirrorDir := filepath.Join(t.TempDir(), "mirror")

	c := NewCommitter(mirrorDir, remote, "main", testAuthor())
	require.NoError(t, c.EnsureRepo(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(mirrorDir, "a.twbx"), []byte("x"), 0644))
	first, err := c.CommitAndPush(context.Background())
	require.NoError(t, err)
	require.True(t, first.Committed)

	second, err := c.CommitAndPush(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Committed, "nothing changed: commit must be a no-op")
	assert.False(t, second.Pushed)
	assert.Zero(t, second.Added+second.Modified+second.Deleted)
}

func TestCommitCountsModificationsAndDeletions(t *testing.T) {
	remote := newBareRemote(t)
	mirrorDir := filepath.Join(t.TempDir(), "mirror")

	c := NewCommitter(mirrorDir, remote, "main", testAuthor())
	require.NoError(t, c.EnsureRepo(context.Background()))

	keep := filepath.Join(mirrorDir, "keep.twbx")
	gone := filepath.Join(mirrorDir, "gone.tdsx")
	require.NoError(t, os.WriteFile(keep, []byte("v1"), 0644))
	require.NoError(t, os.WriteFile(gone, []byte("v1"), 0644))
	_, err := c.CommitAndPush(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(keep, []byte("v2"), 0644))
	require.NoError(t, os.Remove(gone))

	result, err := c.CommitAndPush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 1, result.Deleted)
}

func TestEnsureRepoReopensExistingRepository(t *testing.T) {
	remote := newBareRemote(t)
	mirrorDir := filepath.Join(t.TempDir(), "mirror")

	c := NewCommitter(mirrorDir, remote, "main", testAuthor())
	require.NoError(t, c.EnsureRepo(context.Background()))
	require.NoError(t, c.EnsureRepo(context.Background()))
}
