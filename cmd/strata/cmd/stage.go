package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/core"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Manage the staging index",
	Long: `Stage pending changes against destination layers. Staged content
is uploaded to the store immediately but stays unpublished until commit.`,
}

var stageAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Stage a workspace file against a destination layer",
	Example: `% strata stage add app.yaml --layer project-base --project api
% strata stage add app.yaml --layer mode-base --mode dark`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pth := args[0]
		layer, err := layerFromFlags()
		if err != nil {
			wrapFatalln("stage add", err)
			return
		}
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}
		content, err := stores.Workspace().ReadFile(pth)
		if err != nil {
			wrapFatalln("read "+pth, err)
			return
		}
		idx, err := core.LoadStagingIndex(stores.Workspace())
		if err != nil {
			wrapFatalln("load staging index", err)
			return
		}
		if err := core.StageContent(context.Background(), stores, idx, pth, layer, content); err != nil {
			wrapFatalln("stage "+pth, err)
			return
		}
		if err := idx.Save(stores.Workspace()); err != nil {
			wrapFatalln("save staging index", err)
			return
		}
		entry, _ := idx.Get(pth)
		cmd.Printf("staged %s (%s) -> %s\n", pth, entry.Op, layer)
	},
}

var stageRmCmd = &cobra.Command{
	Use:     "rm <path>",
	Short:   "Stage the removal of a path from a destination layer",
	Example: `% strata stage rm legacy.ini --layer global-base`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pth := args[0]
		layer, err := layerFromFlags()
		if err != nil {
			wrapFatalln("stage rm", err)
			return
		}
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}
		idx, err := core.LoadStagingIndex(stores.Workspace())
		if err != nil {
			wrapFatalln("load staging index", err)
			return
		}
		if err := core.StageRemoval(idx, pth, layer); err != nil {
			wrapFatalln("stage removal of "+pth, err)
			return
		}
		if err := idx.Save(stores.Workspace()); err != nil {
			wrapFatalln("save staging index", err)
			return
		}
		cmd.Printf("staged removal of %s from %s\n", pth, layer)
	},
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staged entries",
	Run: func(cmd *cobra.Command, args []string) {
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}
		idx, err := core.LoadStagingIndex(stores.Workspace())
		if err != nil {
			wrapFatalln("load staging index", err)
			return
		}
		if idx.Len() == 0 {
			cmd.Println("nothing staged")
			return
		}
		opColor := map[string]*color.Color{
			"add":    color.New(color.FgGreen),
			"modify": color.New(color.FgYellow),
			"remove": color.New(color.FgRed),
		}
		for _, e := range idx.Entries() {
			c, ok := opColor[string(e.Op)]
			if !ok {
				c = color.New()
			}
			c.Println(fmt.Sprintf("%-8s %s -> %s", e.Op, e.Path, e.Layer))
		}
	},
}

var stageResetCmd = &cobra.Command{
	Use:     "reset <path>",
	Short:   "Drop a staged entry",
	Example: `% strata stage reset app.yaml`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}
		idx, err := core.LoadStagingIndex(stores.Workspace())
		if err != nil {
			wrapFatalln("load staging index", err)
			return
		}
		idx.Unstage(args[0])
		if err := idx.Save(stores.Workspace()); err != nil {
			wrapFatalln("save staging index", err)
			return
		}
		cmd.Println("unstaged", args[0])
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.AddCommand(stageAddCmd)
	stageCmd.AddCommand(stageRmCmd)
	stageCmd.AddCommand(stageListCmd)
	stageCmd.AddCommand(stageResetCmd)
	stageAddCmd.Flags().StringVar(&strataFlags.layer.kind, "layer", "project-base", "Destination layer kind")
	stageRmCmd.Flags().StringVar(&strataFlags.layer.kind, "layer", "project-base", "Destination layer kind")
}
