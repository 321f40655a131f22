package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Administer server-side tag concurrency limits",
	Long: `Limits manages the scheduler's tag-scoped concurrency limits. Jobs
carrying a limited tag queue server-side once the limit is reached; the
client additionally paces its own submissions against the same limits.`,
}

var limitsSetCmd = &cobra.Command{
	Use:   "set <tag> <limit>",
	Short: "Create or update a concurrency limit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sdk, _, err := newSDK(cmd)
		if err != nil {
			return err
		}

		limit, err := strconv.Atoi(args[1])
		if err != nil || limit < 0 {
			return fmt.Errorf("limit must be a non-negative integer, got %q", args[1])
		}

		if err := sdk.Client.SetConcurrencyLimit(cmd.Context(), args[0], limit); err != nil {
			return err
		}
		fmt.Printf("Set concurrency limit %s=%d\n", args[0], limit)
		return nil
	},
}

var limitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured concurrency limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		sdk, _, err := newSDK(cmd)
		if err != nil {
			return err
		}

		limits, err := sdk.Client.ListConcurrencyLimits(cmd.Context())
		if err != nil {
			return err
		}
		if len(limits) == 0 {
			fmt.Println("No concurrency limits configured")
			return nil
		}
		for _, l := range limits {
			fmt.Printf("%-20s %d\n", l.Tag, l.Limit)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	limitsCmd.AddCommand(limitsSetCmd)
	limitsCmd.AddCommand(limitsListCmd)
}
