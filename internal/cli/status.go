package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statusBatch  string
	statusForget bool
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id...]",
	Short: "Show the current state of runs",
	Long: `Status reads the scheduler's view of the given run ids. With --batch it
instead lists every run recorded in the journal under that batch name,
which works across processes when a state store is configured. Add
--forget to drop the batch's journal records afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sdk, log, err := newSDK(cmd)
		if err != nil {
			return err
		}

		if statusBatch != "" {
			journal, err := sdk.Journal()
			if err != nil {
				return err
			}
			if journal == nil {
				return fmt.Errorf("--batch requires a state store (set %s)", "CONVEYOR_STATE_ADDR or stateAddr")
			}
			defer journal.Close()

			entries, err := journal.LoadBatch(cmd.Context(), statusBatch)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				log.Warn("no runs recorded for batch", "batch", statusBatch)
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-10s  %s\n", e.ID, e.State, e.Target)
			}
			if statusForget {
				if err := journal.Forget(cmd.Context(), statusBatch); err != nil {
					return err
				}
				fmt.Printf("Forgot journal records for batch %s\n", statusBatch)
			}
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("provide run ids or --batch <name>")
		}

		states, err := sdk.Client.GetStatuses(cmd.Context(), args)
		if err != nil {
			return err
		}
		for _, id := range args {
			fmt.Printf("%s  %s\n", id, states[id])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusBatch, "batch", "", "List runs recorded for a batch name")
	statusCmd.Flags().BoolVar(&statusForget, "forget", false, "Remove the batch's journal records after listing")
}
