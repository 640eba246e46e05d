package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/core"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit every staged entry atomically",
	Long: `Commit every staged entry across its destination layers in one
transaction: either every layer head moves or none does. A lost race
against another committer aborts cleanly, leaving the staging index
intact for a retry.`,
	Example: `% strata commit --message "switch api to the dark palette"`,
	Run: func(cmd *cobra.Command, args []string) {
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}
		ctx := context.Background()
		idx, err := core.LoadStagingIndex(stores.Workspace())
		if err != nil {
			wrapFatalln("load staging index", err)
			return
		}

		result, err := core.CommitStaged(ctx, stores, idx,
			core.Message(strataFlags.commit.message),
			core.Author(strataFlags.commit.author))
		if err != nil {
			wrapFatalln("commit", err)
			return
		}

		for _, lc := range result.Layers {
			cmd.Printf("%s -> %s\n", lc.Layer, lc.Commit)
		}
		color.New(color.FgGreen).Printf("committed %d path(s) across %d layer(s) [transaction %s]\n",
			len(result.Paths), len(result.Layers), result.TransactionID)
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().StringVarP(&strataFlags.commit.message, "message", "m", "", "Commit message")
	commitCmd.Flags().StringVar(&strataFlags.commit.author, "author", "", "Commit author")
}
