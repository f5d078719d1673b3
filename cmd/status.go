package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tabmirror/internal/config"
	"tabmirror/internal/mirror"
	"tabmirror/internal/ui"
	"tabmirror/pkg/models"
)

var statusVerbose bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the local mirror",
	Long:  "Lists what the mirror index knows about the local tree without contacting the server.",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "list every tracked file")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath())
	if err != nil {
		ui.ShowError(err)
		os.Exit(models.FatalExitCode)
	}

	index, err := mirror.LoadIndex(cfg.Mirror.BaseDir)
	if err != nil {
		ui.ShowError(err)
		os.Exit(models.FatalExitCode)
	}

	fmt.Printf("Mirror directory: %s\n", cfg.Mirror.BaseDir)
	if index.Len() == 0 {
		fmt.Println("No items tracked yet. Run 'tabmirror sync' first.")
		return
	}

	if last := index.LastSync(); !last.IsZero() {
		fmt.Printf("Last sync: %s\n", last.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Tracked items: %d\n", index.Len())

	entries := index.Entries()
	kinds := map[string]int{}
	for _, e := range entries {
		kinds[e.Kind]++
	}
	for _, kind := range []string{"workbook", "datasource"} {
		if kinds[kind] > 0 {
			fmt.Printf("  %-12s %d\n", kind+"s:", kinds[kind])
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	modified, missing := 0, 0
	for _, e := range entries {
		state, stateColor := localState(cfg.Mirror.BaseDir, e)
		switch state {
		case "modified":
			modified++
		case "missing":
			missing++
		}
		if statusVerbose || state != "clean" {
			fmt.Printf("  %s  %s\n", stateColor(fmt.Sprintf("%-8s", state)), e.Path)
		}
	}

	fmt.Println()
	if modified == 0 && missing == 0 {
		color.Green("Mirror matches the index.")
		return
	}
	if modified > 0 {
		color.Yellow("%d file(s) modified locally; sync will refuse to overwrite them unless overwrite_existing is set.", modified)
	}
	if missing > 0 {
		color.Red("%d tracked file(s) missing from disk; sync will re-download them.", missing)
	}
}

// localState compares one index entry against the file on disk
func localState(baseDir string, e mirror.Entry) (string, func(format string, a ...interface{}) string) {
	hash, err := mirror.HashFile(filepath.Join(baseDir, e.Path))
	switch {
	case err != nil:
		return "missing", color.RedString
	case hash != e.ContentHash:
		return "modified", color.YellowString
	default:
		return "clean", color.GreenString
	}
}
