package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofmeright/imageforge/src/output"
	"github.com/sofmeright/imageforge/src/tree"
)

var targetsCmd = &cobra.Command{
	Use:   "targets [VERSION_LIST] [VARIANT_LIST]",
	Short: "List discovered (version, variant) targets",
	Long: `List every (version, variant) pair discovered in the image tree and
whether the given filters would select it for stamping. No side effects.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runTargets,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	versions := filterArg(args, 0)
	variants := filterArg(args, 1)

	t, err := tree.Discover(cfg.Root)
	if err != nil {
		return err
	}

	color := output.UseColor()
	sec := output.NewSection(os.Stdout, "Targets", time.Duration(0), color)

	for _, target := range t.Targets {
		status := "skipped"
		if versions.Match(target.Version.Major) && variants.Match(target.Variant) {
			status = "success"
		}
		sec.Row("%-14s %s", target, output.StatusIcon(status, color))
	}
	sec.Separator()
	sec.Row("%-12s%d", "versions", len(t.Versions))
	sec.Row("%-12s%d", "targets", len(t.Targets))
	sec.Close()

	return nil
}
