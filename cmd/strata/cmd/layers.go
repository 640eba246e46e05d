package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/model"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Show the layers active for the current context",
	Long: `List the layers the current (project, mode, scope) context
merges, ascending precedence, with the head commit of each stored layer.`,
	Example: `% strata layers --project api --mode dark --scope eu`,
	Run: func(cmd *cobra.Command, args []string) {
		project, err := contextProject()
		if err != nil {
			wrapFatalln("layers", err)
			return
		}
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}

		layers, err := model.ActiveLayers(project,
			strataFlags.context.mode, strataFlags.context.scope)
		if err != nil {
			wrapFatalln("resolve layers", err)
			return
		}

		ctx := context.Background()
		stored := color.New(color.FgGreen)
		absent := color.New(color.Faint)
		for _, layer := range layers {
			refPath, err := model.GetRefPathToLayer(layer)
			if err != nil {
				wrapFatalln("ref for layer", err)
				return
			}
			head, found, err := stores.Objects().ResolveRef(ctx, refPath)
			if err != nil {
				wrapFatalln("resolve "+refPath, err)
				return
			}
			if found {
				stored.Printf("%-40s %s\n", layer, head)
			} else {
				absent.Printf("%-40s (no snapshot)\n", layer)
			}
		}
	},
}

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "List stored layer refs",
	Example: `% strata refs
% strata refs --match 'refs/modes/*/base'`,
	Run: func(cmd *cobra.Command, args []string) {
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}
		refs, err := stores.Objects().ListRefs(context.Background(), strataFlags.refs.pattern)
		if err != nil {
			wrapFatalln("list refs", err)
			return
		}
		for _, ref := range refs {
			cmd.Println(ref)
		}
	},
}

func init() {
	rootCmd.AddCommand(layersCmd)
	rootCmd.AddCommand(refsCmd)
	refsCmd.Flags().StringVar(&strataFlags.refs.pattern, "match", "", "Glob pattern filtering ref paths")
}
