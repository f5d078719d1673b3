package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"tabmirror/pkg/models"
)

// RenderSummary writes the end-of-run report as a table plus any failure
// and skipped-project detail
func RenderSummary(w io.Writer, report *models.RunReport) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Count"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.Append([]string{"Remote items", strconv.Itoa(report.TotalRemote)})
	table.Append([]string{"Up to date", strconv.Itoa(report.UpToDate)})
	table.Append([]string{"Downloaded", strconv.Itoa(report.Downloaded)})
	table.Append([]string{"Failed", strconv.Itoa(report.Failed)})
	table.Append([]string{"Skipped", strconv.Itoa(report.Skipped)})
	table.Append([]string{"Orphaned", strconv.Itoa(report.Orphaned)})
	if report.OrphansDeleted > 0 {
		table.Append([]string{"Orphans deleted", strconv.Itoa(report.OrphansDeleted)})
	}
	table.Render()

	fmt.Fprintln(w)
	renderGitStatus(w, report.Git)

	if len(report.SkippedProjects) > 0 {
		fmt.Fprintf(w, "\n%s %d project(s) could not be enumerated:\n",
			ColorWarning("WARNING:"), len(report.SkippedProjects))
		for _, sp := range report.SkippedProjects {
			fmt.Fprintf(w, "  %s: %s\n", sp.Path, ColorDim(sp.Reason))
		}
	}

	if len(report.Failures) > 0 {
		fmt.Fprintf(w, "\n%s %d item(s) failed:\n", ColorError("ERROR:"), len(report.Failures))
		failures := tablewriter.NewWriter(w)
		failures.SetHeader([]string{"Path", "Code", "Reason"})
		failures.SetBorder(false)
		failures.SetAutoWrapText(false)
		failures.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, f := range report.Failures {
			failures.Append([]string{f.Path, f.Code, f.Reason})
		}
		failures.Render()
	}

	fmt.Fprintf(w, "\nCompleted in %s\n", formatDuration(report.Duration()))
}

func renderGitStatus(w io.Writer, git models.GitStatus) {
	switch {
	case git.Error != "":
		fmt.Fprintf(w, "%s git: %s\n", color.RedString("x"), git.Error)
		fmt.Fprintf(w, "  %s\n", ColorDim("mirror files are updated; re-run to retry the commit"))
	case !git.Committed:
		fmt.Fprintf(w, "%s git: mirror unchanged, nothing to commit\n", color.GreenString("OK"))
	default:
		fmt.Fprintf(w, "%s git: committed %s (%s added, %s modified, %s deleted)",
			color.GreenString("OK"),
			shortHash(git.CommitHash),
			color.GreenString(strconv.Itoa(git.Added)),
			color.YellowString(strconv.Itoa(git.Modified)),
			color.RedString(strconv.Itoa(git.Deleted)),
		)
		if git.Pushed {
			fmt.Fprint(w, ", pushed")
		}
		fmt.Fprintln(w)
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
