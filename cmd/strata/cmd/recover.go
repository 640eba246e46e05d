package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/core"
	"github.com/strataconf/strata/pkg/model"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Replay journaled transactions left by a crash",
	Long: `Scan the transaction journal and drive every live entry to a
terminal state: transactions whose refs still match their plan are rolled
forward, transactions that lost a ref to another writer are unwound.`,
	Run: func(cmd *cobra.Command, args []string) {
		stores, err := mkStores()
		if err != nil {
			wrapFatalln("create stores", err)
			return
		}

		outcomes, err := core.Recover(context.Background(), stores)
		if err != nil {
			wrapFatalln("recover", err)
			return
		}
		if len(outcomes) == 0 {
			cmd.Println("journal clean, nothing to recover")
			return
		}
		statusColor := map[model.TransactionStatus]*color.Color{
			model.TxCommitted:  color.New(color.FgGreen),
			model.TxAborted:    color.New(color.FgYellow),
			model.TxCommitting: color.New(color.FgRed),
		}
		for _, o := range outcomes {
			c, ok := statusColor[o.Status]
			if !ok {
				c = color.New()
			}
			c.Printf("%s %s: %s\n", o.TransactionID, o.Status, o.Detail)
		}
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
