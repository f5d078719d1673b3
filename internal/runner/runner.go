package runner

import (
	"context"
	"strings"
	"time"

	"tabmirror/internal/catalog"
	"tabmirror/internal/config"
	"tabmirror/internal/git"
	"tabmirror/internal/mirror"
	"tabmirror/internal/plan"
	"tabmirror/internal/scheduler"
	"tabmirror/internal/tableau"
	"tabmirror/pkg/errors"
	"tabmirror/pkg/models"
)

// State is the coordinator's position in the run
type State string

const (
	StateInit        State = "init"
	StateCataloging  State = "cataloging"
	StatePlanning    State = "planning"
	StateDownloading State = "downloading"
	StateCommitting  State = "committing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Options carries the run's external collaborators. Progress rendering
// subscribes here; the engine itself never prints.
type Options struct {
	OnProgress scheduler.ProgressFunc
	OnPhase    func(State)
}

// Runner sequences catalog, planning, download, mirror write-back and Git
// staging for one invocation
type Runner struct {
	cfg    *models.Config
	creds  config.TableauCredentials
	client tableau.Client
	opts   Options
	state  State
}

// New creates a run coordinator
func New(cfg *models.Config, creds config.TableauCredentials, client tableau.Client, opts Options) *Runner {
	return &Runner{cfg: cfg, creds: creds, client: client, opts: opts, state: StateInit}
}

// State returns the coordinator's current state
func (r *Runner) State() State {
	return r.state
}

// Run executes the full pipeline. Per-item failures and skipped subtrees
// accumulate in the report and the run still reaches Done; a returned
// error means the run failed fatally. A Git-phase failure is fatal but
// leaves the mirror directory in its new state, recorded in the report so
// the commit step alone can be retried.
func (r *Runner) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{StartedAt: time.Now()}

	r.setState(StateInit)

	lock, err := mirror.AcquireLock(r.cfg.Mirror.BaseDir)
	if err != nil {
		return r.fail(report, err)
	}
	defer func() { _ = lock.Release() }()

	// authenticate before any repository mutation so bad credentials
	// abort without cloning or initializing anything
	if err := r.client.SignIn(ctx, r.creds); err != nil {
		return r.fail(report, err)
	}
	defer func() {
		// best effort; the session expires server-side anyway
		_ = r.client.SignOut(context.Background())
	}()

	committer := git.NewCommitter(r.cfg.Mirror.BaseDir, r.cfg.Git.RepoURL, r.cfg.Git.Branch, r.cfg.Git.Author)
	if err := committer.EnsureRepo(ctx); err != nil {
		return r.fail(report, err)
	}

	r.setState(StateCataloging)
	inv, err := catalog.NewBuilder(r.client).Build(ctx)
	if err != nil {
		return r.fail(report, err)
	}
	report.TotalRemote = len(inv.Items)
	report.SkippedProjects = inv.Skipped

	r.setState(StatePlanning)
	index, err := mirror.LoadIndex(r.cfg.Mirror.BaseDir)
	if err != nil {
		return r.fail(report, errors.Wrap(err, errors.ErrCodeFileOperation,
			"failed to load mirror index").WithSeverity(errors.SeverityCritical))
	}
	syncPlan := plan.Build(r.cfg.Mirror.BaseDir, inv, index)
	report.UpToDate = len(syncPlan.UpToDate)
	report.Orphaned = len(syncPlan.Orphaned)

	r.setState(StateDownloading)
	r.download(ctx, syncPlan, index, report)

	r.handleOrphans(syncPlan, index, report)

	// only rewrite the index when the mirror actually changed, so an
	// unchanged run leaves a clean worktree and the commit step no-ops
	if report.Downloaded > 0 || report.OrphansDeleted > 0 {
		index.MarkSynced(time.Now())
		if err := index.Save(r.cfg.Mirror.BaseDir); err != nil {
			return r.fail(report, errors.Wrap(err, errors.ErrCodeFileOperation,
				"failed to persist mirror index").WithSeverity(errors.SeverityCritical))
		}
	}

	r.setState(StateCommitting)
	commit, err := committer.CommitAndPush(ctx)
	if commit != nil {
		report.Git.Committed = commit.Committed
		report.Git.Pushed = commit.Pushed
		report.Git.CommitHash = commit.Hash
		report.Git.Added = commit.Added
		report.Git.Modified = commit.Modified
		report.Git.Deleted = commit.Deleted
	}
	if err != nil {
		// downloads stay on disk; only the commit step needs retrying
		report.Git.Error = err.Error()
		return r.fail(report, err)
	}

	r.setState(StateDone)
	report.FinishedAt = time.Now()
	return report, nil
}

func (r *Runner) download(ctx context.Context, syncPlan plan.Plan, index *mirror.Index, report *models.RunReport) {
	if len(syncPlan.ToDownload) == 0 {
		return
	}

	writer := mirror.NewWriter(r.cfg.Mirror.BaseDir, index, r.cfg.Mirror.OverwriteExisting)

	retry := errors.DefaultRetryConfig()
	retry.MaxRetries = r.cfg.Sync.DownloadRetries

	sched := scheduler.New(r.client, writer, scheduler.Config{
		Workers:     r.cfg.Sync.MaxWorkers,
		ItemTimeout: parseDuration(r.cfg.Sync.ItemTimeout, 5*time.Minute),
		Retry:       retry,
		OnProgress:  r.opts.OnProgress,
	})

	for _, res := range sched.Run(ctx, syncPlan.ToDownload) {
		switch res.Outcome {
		case models.OutcomeSuccess:
			report.Downloaded++
		case models.OutcomeSkipped:
			report.Skipped++
		case models.OutcomeFailed:
			report.Failed++
			report.Failures = append(report.Failures, models.ItemFailure{
				Path:   mirror.ItemPath(res.Item),
				Kind:   string(res.Item.Kind),
				Code:   string(errors.GetErrorCode(res.Err)),
				Reason: failureReason(res.Err),
			})
		}
	}
}

func (r *Runner) handleOrphans(syncPlan plan.Plan, index *mirror.Index, report *models.RunReport) {
	if !r.cfg.Mirror.DeleteOrphans || len(syncPlan.Orphaned) == 0 {
		return
	}

	writer := mirror.NewWriter(r.cfg.Mirror.BaseDir, index, r.cfg.Mirror.OverwriteExisting)
	deleted, err := writer.DeleteOrphans(syncPlan.Orphaned)
	report.OrphansDeleted = deleted
	if err != nil {
		report.Failures = append(report.Failures, models.ItemFailure{
			Path:   "(orphan cleanup)",
			Code:   string(errors.GetErrorCode(err)),
			Reason: failureReason(err),
		})
		report.Failed++
	}
}

func (r *Runner) setState(s State) {
	r.state = s
	if r.opts.OnPhase != nil {
		r.opts.OnPhase(s)
	}
}

func (r *Runner) fail(report *models.RunReport, err error) (*models.RunReport, error) {
	r.state = StateFailed
	report.FinishedAt = time.Now()
	return report, err
}

// failureReason keeps report rows to one line; the full error with its
// suggestions still reaches the log via the returned error chain
func failureReason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Describe renders a short human-readable phase name for logs
func Describe(s State) string {
	switch s {
	case StateCataloging:
		return "Enumerating site content"
	case StatePlanning:
		return "Computing sync plan"
	case StateDownloading:
		return "Downloading changed items"
	case StateCommitting:
		return "Committing mirror changes"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return string(s)
	}
}
