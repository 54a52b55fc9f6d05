package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofmeright/imageforge/src/generate"
	"github.com/sofmeright/imageforge/src/output"
	"github.com/sofmeright/imageforge/src/tree"
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// Exit codes for update.
const (
	exitOK         = 0
	exitUpdateFail = 2
)

var (
	updateSkipFetch  bool
	updateJobs       int
	updateNoManifest bool
	updateForce      bool
)

var updateCmd = &cobra.Command{
	Use:   "update [VERSION_LIST] [VARIANT_LIST]",
	Short: "Regenerate Dockerfiles and the CI manifest",
	Long: `Regenerate Dockerfiles from templates and rebuild the CI manifest.

VERSION_LIST and VARIANT_LIST are comma-separated exact-match filters
gating which Dockerfiles are stamped; absent, empty, or "." selects all.
The manifest always covers every discovered target, filtered or not.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolVarP(&updateSkipFetch, "skip-fetch", "s", false,
		"reuse package-manager and distro versions from existing Dockerfiles")
	updateCmd.Flags().IntVar(&updateJobs, "jobs", 0, "max concurrent stamping tasks (0 = NumCPU)")
	updateCmd.Flags().BoolVar(&updateNoManifest, "no-manifest", false, "do not rewrite the CI manifest")
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "stamp even with uncommitted changes in the tree")

	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	opts := generate.Options{
		Config:     cfg,
		Versions:   filterArg(args, 0),
		Variants:   filterArg(args, 1),
		SkipFetch:  updateSkipFetch,
		NoManifest: updateNoManifest,
		Force:      updateForce,
	}
	if updateJobs > 0 {
		opts.Config.Jobs = updateJobs
	}

	color := output.UseColor()
	w := os.Stdout
	start := time.Now()

	res, err := generate.Run(context.Background(), opts)
	if err != nil {
		return &ExitError{Code: exitUpdateFail, Err: err}
	}

	sec := output.NewSection(w, "Update", time.Since(start), color)

	selected := 0
	for _, tr := range res.Targets {
		if tr.Selected {
			selected++
		}
	}
	sec.Row("%-12s%s", "arch", res.Arch)
	sec.Row("%-12s%d targets, %d selected", "discovered", len(res.Targets), selected)
	sec.Separator()

	for _, tr := range res.Targets {
		switch {
		case tr.Err != nil:
			sec.Row("%-14s %s  %v", tr.Target, output.StatusIcon("failed", color), tr.Err)
		case !tr.Selected:
			if verbose {
				sec.Row("%-14s %s", tr.Target, output.StatusIcon("skipped", color))
			}
		default:
			sec.Row("%-14s %s  %s", tr.Target, output.StatusIcon("success", color), tr.Version)
		}
	}

	if res.ManifestPath != "" {
		sec.Separator()
		sec.Row("%-12s%s (%d stages)", "manifest", res.ManifestPath, res.StageCount)
	}
	sec.Close()

	for _, warn := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warn)
	}
	if res.Failed > 0 {
		// Per-target failures keep the exit status zero.
		fmt.Fprintf(os.Stderr, "warning: %d of %d targets failed\n", res.Failed, selected)
	}

	return nil
}

// filterArg parses the i-th positional argument into a selection filter.
// A missing argument selects everything.
func filterArg(args []string, i int) tree.Filter {
	if i >= len(args) {
		return tree.Filter{}
	}
	return tree.ParseFilter(args[i])
}
