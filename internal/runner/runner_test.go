package runner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabmirror/internal/catalog"
	"tabmirror/internal/config"
	"tabmirror/internal/mirror"
	"tabmirror/internal/tableau"
	"tabmirror/internal/testutil"
	"tabmirror/pkg/errors"
	"tabmirror/pkg/models"
)

func testConfig(t *testing.T) *models.Config {
	t.Helper()

	remote := filepath.Join(t.TempDir(), "remote.git")
	_, err := gogit.PlainInit(remote, true)
	require.NoError(t, err)

	return &models.Config{
		Git: models.Git{
			RepoURL: remote,
			Branch:  "main",
			Author:  models.GitAuthor{Name: "tabmirror", Email: "tabmirror@localhost"},
		},
		Mirror: models.Mirror{
			BaseDir: filepath.Join(t.TempDir(), "mirror"),
		},
		Sync: models.Sync{
			MaxWorkers:      2,
			DownloadRetries: 1,
			ItemTimeout:     "30s",
		},
	}
}

func testClient() *testutil.FakeTableauClient {
	client := testutil.NewFakeTableauClient()
	client.Projects = []tableau.Project{
		{ID: "p-fin", Name: "Finance"},
		{ID: "p-q1", Name: "Q1", ParentID: "p-fin"},
	}
	client.AddWorkbook("Finance", tableau.Content{
		ID: "w-sales", Name: "Sales", ProjectID: "p-fin",
		UpdatedAt: "2026-02-01T10:00:00Z", Size: 11,
	}, []byte("sales-bytes"))
	client.AddDatasource("Q1", tableau.Content{
		ID: "d-orders", Name: "Orders", ProjectID: "p-q1",
		UpdatedAt: "2026-02-02T10:00:00Z", Size: 12,
	}, []byte("orders-bytes"))
	return client
}

func TestRunFullPipeline(t *testing.T) {
	cfg := testConfig(t)
	client := testClient()

	var phases []State
	r := New(cfg, config.TableauCredentials{}, client, Options{
		OnPhase: func(s State) { phases = append(phases, s) },
	})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalRemote)
	assert.Equal(t, 2, report.Downloaded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, models.SuccessExitCode, report.ExitCode())
	assert.Equal(t, StateDone, r.State())
	assert.Contains(t, phases, StateCataloging)
	assert.Contains(t, phases, StateDownloading)
	assert.Contains(t, phases, StateCommitting)

	sales, err := os.ReadFile(filepath.Join(cfg.Mirror.BaseDir, "Finance", "Sales.twbx"))
	require.NoError(t, err)
	assert.Equal(t, "sales-bytes", string(sales))
	orders, err := os.ReadFile(filepath.Join(cfg.Mirror.BaseDir, "Finance", "Q1", "Orders.tdsx"))
	require.NoError(t, err)
	assert.Equal(t, "orders-bytes", string(orders))

	index, err := mirror.LoadIndex(cfg.Mirror.BaseDir)
	require.NoError(t, err)
	assert.Equal(t, 2, index.Len())
	assert.False(t, index.LastSync().IsZero())

	assert.True(t, report.Git.Committed)
	assert.True(t, report.Git.Pushed)
	assert.NotEmpty(t, report.Git.CommitHash)
	// two content files, .gitignore and the index
	assert.Equal(t, 4, report.Git.Added)

	// lock released after the run
	_, err = os.Stat(filepath.Join(cfg.Mirror.BaseDir, ".tabmirror.lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunSecondRunIsNoOp(t *testing.T) {
	cfg := testConfig(t)
	client := testClient()

	_, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err)

	report, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Downloaded)
	assert.Equal(t, 2, report.UpToDate)
	assert.False(t, report.Git.Committed, "unchanged mirror must not produce a commit")
	assert.Equal(t, models.SuccessExitCode, report.ExitCode())
}

func TestRunChangedItemIsRedownloaded(t *testing.T) {
	cfg := testConfig(t)
	client := testClient()

	_, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err)

	// bump one item's revision on the server
	client.Workbooks["Finance"][0].UpdatedAt = "2026-02-05T09:00:00Z"
	client.ContentData["w-sales"] = []byte("sales-v2")

	report, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 1, report.UpToDate)
	assert.True(t, report.Git.Committed)
	// the workbook plus the index
	assert.Equal(t, 2, report.Git.Modified)

	sales, err := os.ReadFile(filepath.Join(cfg.Mirror.BaseDir, "Finance", "Sales.twbx"))
	require.NoError(t, err)
	assert.Equal(t, "sales-v2", string(sales))
}

func TestRunRestoresLocallyDeletedFile(t *testing.T) {
	cfg := testConfig(t)
	client := testClient()

	_, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err)

	// someone removes a mirrored file out of band
	target := filepath.Join(cfg.Mirror.BaseDir, "Finance", "Sales.twbx")
	require.NoError(t, os.Remove(target))

	report, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded, "a tracked file missing on disk is re-downloaded")
	assert.Zero(t, report.Git.Deleted, "the deletion must not be staged and pushed")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "sales-bytes", string(data))
}

func TestRunItemFailureIsIsolated(t *testing.T) {
	cfg := testConfig(t)
	client := testClient()
	client.FailDownloads["d-orders"] = errors.New(errors.ErrCodeDownloadFailed, "download failed")

	report, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err, "a single item failure must not abort the run")

	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "Finance/Q1/Orders.tdsx", report.Failures[0].Path)
	assert.Equal(t, models.PartialExitCode, report.ExitCode())

	// the successful item is still committed
	assert.True(t, report.Git.Committed)
	_, err = os.Stat(filepath.Join(cfg.Mirror.BaseDir, "Finance", "Sales.twbx"))
	assert.NoError(t, err)
}

func TestRunSkippedProjectYieldsPartialExit(t *testing.T) {
	cfg := testConfig(t)
	client := testClient()
	client.DeniedProjects["Q1"] = true

	report, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded)
	require.Len(t, report.SkippedProjects, 1)
	assert.Equal(t, "Finance/Q1", report.SkippedProjects[0].Path)
	assert.Equal(t, models.PartialExitCode, report.ExitCode())
}

func TestRunAuthFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	client := testClient()
	client.SignInErr = errors.AuthenticationError("invalid credentials", nil)

	r := New(cfg, config.TableauCredentials{}, client, Options{})
	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthenticationFailed, errors.GetErrorCode(err))
	assert.Equal(t, StateFailed, r.State())

	// rejected credentials abort before the repository is touched
	_, err = os.Stat(filepath.Join(cfg.Mirror.BaseDir, ".git"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunRefusesLockedMirror(t *testing.T) {
	cfg := testConfig(t)
	client := testClient()

	require.NoError(t, os.MkdirAll(cfg.Mirror.BaseDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Mirror.BaseDir, ".tabmirror.lock"), []byte("123"), 0o600))

	_, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMirrorLocked, errors.GetErrorCode(err))
}

func TestRunDeletesOrphansWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mirror.DeleteOrphans = true
	client := testClient()

	_, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err)

	// the datasource disappears from the server
	client.Datasources["Q1"] = nil

	report, err := New(cfg, config.TableauCredentials{}, client, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Orphaned)
	assert.Equal(t, 1, report.OrphansDeleted)
	assert.Equal(t, 1, report.Git.Deleted)

	_, err = os.Stat(filepath.Join(cfg.Mirror.BaseDir, "Finance", "Q1", "Orders.tdsx"))
	assert.True(t, os.IsNotExist(err))

	index, err := mirror.LoadIndex(cfg.Mirror.BaseDir)
	require.NoError(t, err)
	assert.Equal(t, 1, index.Len())
}

func TestRunProgressObservesEveryItem(t *testing.T) {
	cfg := testConfig(t)
	client := testClient()

	var mu sync.Mutex
	var completions []int
	r := New(cfg, config.TableauCredentials{}, client, Options{
		OnProgress: func(completed, total int, _ catalog.Item, _ models.Outcome) {
			mu.Lock()
			completions = append(completions, completed)
			mu.Unlock()
		},
	})

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, completions, 2)
}
