package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>...",
	Short: "Request cancellation of running jobs",
	Long: `Cancel asks the scheduler to stop the given runs. Cancellation is best
effort: a job that already reached a terminal state is reported as not
cancelled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sdk, _, err := newSDK(cmd)
		if err != nil {
			return err
		}

		failed := 0
		for _, id := range args {
			ok, err := sdk.Client.CancelJob(cmd.Context(), id)
			switch {
			case err != nil:
				fmt.Printf("%s  error: %v\n", id, err)
				failed++
			case ok:
				fmt.Printf("%s  cancellation requested\n", id)
			default:
				fmt.Printf("%s  not cancelled (already terminal or unknown)\n", id)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d cancellations failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
