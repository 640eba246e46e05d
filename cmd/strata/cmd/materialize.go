package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/core"
)

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Write the merged configuration into the workspace",
	Long: `Merge every layer active for the current context, fold the
machine-local overlay on top and write the result into the workspace.

A workspace that drifted from its last materialization is refused unless
--force is set.`,
	Example: `% strata materialize --project api --mode dark
% strata materialize --project api --force`,
	Run: func(cmd *cobra.Command, args []string) {
		project, err := contextProject()
		if err != nil {
			wrapFatalln("materialize", err)
			return
		}
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}

		result, err := core.Materialize(context.Background(), stores,
			project, strataFlags.context.mode, strataFlags.context.scope,
			strataFlags.root.force)
		if err != nil {
			wrapFatalln("materialize workspace", err)
			return
		}
		for _, pth := range result.Paths {
			cmd.Println("wrote", pth)
		}
		color.New(color.FgGreen).Printf("materialized %d file(s) from %d layer(s)\n",
			len(result.Paths), len(result.Sources))
	},
}

func init() {
	rootCmd.AddCommand(materializeCmd)
}
