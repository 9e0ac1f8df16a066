package display

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"compose-backup/internal/backup"
)

// Reporter prints the human-facing run summary
type Reporter struct {
	out            io.Writer
	colorSupported bool

	success *color.Color
	warning *color.Color
	failure *color.Color
	muted   *color.Color
	header  *color.Color
}

// NewReporter creates a reporter writing to stdout with automatic color
// detection. Pass noColor to force plain output.
func NewReporter(noColor bool) *Reporter {
	return newReporter(os.Stdout, !noColor && detectColorSupport())
}

// newReporter is the test seam
func newReporter(out io.Writer, colorSupported bool) *Reporter {
	if !colorSupported {
		color.NoColor = true
	}
	return &Reporter{
		out:            out,
		colorSupported: colorSupported,
		success:        color.New(color.FgGreen),
		warning:        color.New(color.FgYellow),
		failure:        color.New(color.FgRed, color.Bold),
		muted:          color.New(color.FgHiBlack),
		header:         color.New(color.FgCyan, color.Bold),
	}
}

// detectColorSupport checks whether stdout can render colors
func detectColorSupport() bool {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return termenv.ColorProfile() != termenv.Ascii
}

// PrintRunSummary renders the per-folder results, the script/config archive
// line and the rotation summary. Failed folders are listed first, worst
// outcome on top, so a project left down is the first thing the reader sees.
func (r *Reporter) PrintRunSummary(run *backup.BackupRun) {
	r.header.Fprintf(r.out, "Backup run %s (%s)\n", run.DateStamp, run.ID)
	fmt.Fprintf(r.out, "  destination: %s\n", run.BackupDir)
	fmt.Fprintf(r.out, "  duration:    %s\n\n", run.Duration.Round(10*time.Millisecond))

	results := make([]backup.FolderBackupResult, len(run.Results))
	copy(results, run.Results)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Outcome != results[j].Outcome {
			return results[i].Outcome > results[j].Outcome
		}
		return results[i].Entry.Name < results[j].Entry.Name
	})

	for i := range results {
		r.printFolderResult(&results[i])
	}

	fmt.Fprintln(r.out)
	r.printScriptConfig(run)
	r.PrintRotation(run.Rotation)

	failed := 0
	for i := range run.Results {
		if run.Results[i].Failed() {
			failed++
		}
	}
	if failed == 0 {
		r.success.Fprintf(r.out, "\nAll %d folders backed up successfully\n", len(run.Results))
	} else {
		r.failure.Fprintf(r.out, "\n%d of %d folders had failures\n", failed, len(run.Results))
	}
}

func (r *Reporter) printFolderResult(result *backup.FolderBackupResult) {
	kind := "folder"
	if result.Entry.HasComposeManifest {
		kind = "compose"
	}

	switch result.Outcome {
	case backup.OutcomeSuccess:
		r.success.Fprintf(r.out, "  ✓ %-20s", result.Entry.Name)
		r.muted.Fprintf(r.out, " [%s] %s\n", kind, result.ArchivePath)
	case backup.OutcomeContainerStopFailed:
		r.warning.Fprintf(r.out, "  ! %-20s", result.Entry.Name)
		fmt.Fprintf(r.out, " [%s] stop failed, archived while running\n", kind)
	case backup.OutcomeArchiveFailed:
		r.failure.Fprintf(r.out, "  ✗ %-20s", result.Entry.Name)
		fmt.Fprintf(r.out, " [%s] archive failed\n", kind)
	case backup.OutcomeContainerStartFailed:
		r.failure.Fprintf(r.out, "  ✗ %-20s", result.Entry.Name)
		fmt.Fprintf(r.out, " [%s] RESTART FAILED, project may be down\n", kind)
	}

	for _, err := range result.Errors {
		r.muted.Fprintf(r.out, "      %v\n", err)
	}
}

func (r *Reporter) printScriptConfig(run *backup.BackupRun) {
	if run.ScriptConfigErr != nil {
		r.warning.Fprintf(r.out, "  ! script and config archive failed: %v\n", run.ScriptConfigErr)
		return
	}
	if run.ScriptConfigArchive != "" {
		r.muted.Fprintf(r.out, "  script and config archived to %s\n", run.ScriptConfigArchive)
	}
}

// PrintRotation renders one retention pass; also used standalone by the
// rotate subcommand.
func (r *Reporter) PrintRotation(rotation *backup.RotationResult) {
	if rotation == nil {
		return
	}
	if len(rotation.Removed) == 0 && len(rotation.Errors) == 0 {
		r.muted.Fprintf(r.out, "  retention: %d dated directories kept, nothing removed\n", len(rotation.Kept))
		return
	}

	verb := "removed"
	if rotation.DryRun {
		verb = "would remove"
	}
	fmt.Fprintf(r.out, "  retention: kept %d, %s %d\n", len(rotation.Kept), verb, len(rotation.Removed))
	for _, name := range rotation.Removed {
		r.muted.Fprintf(r.out, "      %s %s\n", verb, name)
	}
	for _, err := range rotation.Errors {
		r.warning.Fprintf(r.out, "      ! %v\n", err)
	}
}
