package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/core"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report workspace attachment and staged entries",
	Long: `Check the workspace against its recorded materialization:
externally edited files, pruned source history and a mode or scope that
no longer resolves all detach the workspace.`,
	Run: func(cmd *cobra.Command, args []string) {
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}
		ctx := context.Background()

		result, err := core.Validate(ctx, stores,
			strataFlags.context.project, strataFlags.context.mode, strataFlags.context.scope)
		if err != nil {
			wrapFatalln("validate workspace", err)
			return
		}
		if result.Attached {
			color.New(color.FgGreen).Println("workspace attached")
		} else {
			color.New(color.FgRed).Println("workspace detached")
			for _, d := range result.Drifts {
				cmd.Printf("  %s: %s (%s)\n", d.Cause, d.Subject, d.Detail)
			}
			cmd.Println(result.RecoveryHint)
		}

		idx, err := core.LoadStagingIndex(stores.Workspace())
		if err != nil {
			wrapFatalln("load staging index", err)
			return
		}
		if idx.Len() > 0 {
			cmd.Printf("%d entr(ies) staged, run strata stage list for details\n", idx.Len())
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
