package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tabmirror/internal/catalog"
	"tabmirror/internal/config"
	"tabmirror/internal/mirror"
	"tabmirror/internal/plan"
	"tabmirror/internal/runner"
	"tabmirror/internal/tableau"
	"tabmirror/internal/ui"
	"tabmirror/pkg/models"
)

var syncDryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the site and commit the changes",
	Long: "Enumerates the site's projects, downloads new and changed workbooks and\n" +
		"data sources into the mirror directory, then commits and pushes the result.",
	Run: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "enumerate and plan without downloading or committing")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath())
	if err != nil {
		ui.ShowError(err)
		os.Exit(models.FatalExitCode)
	}

	creds, err := config.ResolveTableauCredentials()
	if err != nil {
		ui.ShowError(err)
		os.Exit(models.FatalExitCode)
	}

	requestTimeout := 2 * time.Minute
	if d, err := time.ParseDuration(cfg.Tableau.Timeout); err == nil && d > 0 {
		requestTimeout = d
	}
	client := tableau.NewRESTClient(cfg.Tableau.ServerURL, cfg.Tableau.Site, cfg.Tableau.APIVersion, requestTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ui.ShowHeader("tabmirror sync")
	ui.ShowInfo(fmt.Sprintf("Server: %s", cfg.Tableau.ServerURL))
	ui.ShowInfo(fmt.Sprintf("Mirror: %s", cfg.Mirror.BaseDir))

	if syncDryRun {
		runDryRun(ctx, cfg, creds, client)
		return
	}

	var (
		barMu sync.Mutex
		bar   *ui.ProgressBar
	)
	r := runner.New(cfg, creds, client, runner.Options{
		OnPhase: func(s runner.State) {
			switch s {
			case runner.StateCataloging, runner.StatePlanning, runner.StateCommitting:
				fmt.Printf("%s %s...\n", ui.ColorProgress(">"), runner.Describe(s))
			case runner.StateDownloading:
				// the bar is created lazily on first progress callback
			}
		},
		OnProgress: func(completed, total int, item catalog.Item, outcome models.Outcome) {
			barMu.Lock()
			if bar == nil {
				bar = ui.NewProgressBar(total)
			}
			b := bar
			barMu.Unlock()
			b.Update(completed, mirror.ItemPath(item), outcome)
		},
	})

	report, err := r.Run(ctx)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		ui.ShowError(err)
	}

	fmt.Println()
	ui.RenderSummary(os.Stdout, report)

	if err != nil {
		os.Exit(models.FatalExitCode)
	}
	os.Exit(report.ExitCode())
}

// runDryRun enumerates and plans but touches neither the mirror nor Git
func runDryRun(ctx context.Context, cfg *models.Config, creds config.TableauCredentials, client tableau.Client) {
	if err := client.SignIn(ctx, creds); err != nil {
		ui.ShowError(err)
		os.Exit(models.FatalExitCode)
	}
	defer func() { _ = client.SignOut(context.Background()) }()

	spinner := ui.NewSpinner("Enumerating site content")
	spinner.Start()
	inv, err := catalog.NewBuilder(client).Build(ctx)
	if err != nil {
		spinner.Stop(false, "enumeration failed")
		ui.ShowError(err)
		os.Exit(models.FatalExitCode)
	}
	spinner.Stop(true, fmt.Sprintf("Found %d items", len(inv.Items)))

	index, err := mirror.LoadIndex(cfg.Mirror.BaseDir)
	if err != nil {
		ui.ShowError(err)
		os.Exit(models.FatalExitCode)
	}

	syncPlan := plan.Build(cfg.Mirror.BaseDir, inv, index)
	for _, item := range syncPlan.ToDownload {
		fmt.Printf("  would download %s\n", mirror.ItemPath(item))
	}
	for _, entry := range syncPlan.Orphaned {
		fmt.Printf("  orphaned locally: %s\n", entry.Path)
	}

	fmt.Printf("\n%d to download, %d up to date, %d orphaned, %d project(s) skipped\n",
		len(syncPlan.ToDownload), len(syncPlan.UpToDate), len(syncPlan.Orphaned), len(inv.Skipped))
	for _, sp := range inv.Skipped {
		ui.ShowWarning(fmt.Sprintf("skipped %s: %s", sp.Path, sp.Reason))
	}

	if len(inv.Skipped) > 0 {
		os.Exit(models.PartialExitCode)
	}
}
