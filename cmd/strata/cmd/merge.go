package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/core"
	"github.com/strataconf/strata/pkg/value/codec"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the active layers and print the result",
	Long: `Merge every layer active for the current context, ascending
precedence, and print each resulting document. The workspace is not
touched: use materialize to write the result.`,
	Example: `% strata merge --project api --mode dark`,
	Run: func(cmd *cobra.Command, args []string) {
		project, err := contextProject()
		if err != nil {
			wrapFatalln("merge", err)
			return
		}
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}

		result, err := core.MergeAll(context.Background(), stores,
			project, strataFlags.context.mode, strataFlags.context.scope)
		if err != nil {
			wrapFatalln("merge layers", err)
			return
		}

		heading := color.New(color.FgCyan, color.Bold)
		for _, pth := range result.Paths() {
			doc, _ := result.Get(pth)
			data, err := codec.ForPath(pth).Encode(doc.Value)
			if err != nil {
				wrapFatalln("encode "+pth, err)
				return
			}
			heading.Printf("--- %s\n", pth)
			cmd.Print(string(data))
			if len(data) > 0 && data[len(data)-1] != '\n' {
				cmd.Println()
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
