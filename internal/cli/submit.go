package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conveyordev/conveyor/pkg/orchestrate"
)

var (
	submitParams []string
	submitTags   []string
	submitName   string
	submitCount  int
	submitWait   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <target>",
	Short: "Submit jobs against a deployment target",
	Long: `Submit queues one or more jobs against a deployment target and prints
their run ids. With --wait it polls until every job reaches a terminal
state and reports the summary.

Examples:
  conveyorctl submit etl-job/etl-deployment -p table=customers
  conveyorctl submit etl-job/etl-deployment --count 20 --tag database --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sdk, log, err := newSDK(cmd)
		if err != nil {
			return err
		}

		params, err := parseParams(submitParams)
		if err != nil {
			return err
		}

		journal, err := sdk.Journal()
		if err != nil {
			log.Warn("state store unavailable, continuing without journal", "error", err)
		}
		if journal != nil {
			defer journal.Close()
		}

		opts := []orchestrate.BatchOption{
			orchestrate.WithBatchLogger(log),
			orchestrate.WithWorkPool(sdk.Config.WorkPool),
		}
		if submitName != "" {
			opts = append(opts, orchestrate.WithName(submitName))
		}
		if len(submitTags) > 0 {
			opts = append(opts, orchestrate.WithTags(submitTags...))
		}
		if journal != nil {
			opts = append(opts, orchestrate.WithJournal(journal))
		}

		batch := orchestrate.NewBatch(sdk.Client, args[0], opts...)
		for i := 0; i < submitCount; i++ {
			if _, err := batch.Submit(cmd.Context(), params); err != nil {
				return err
			}
		}

		fmt.Printf("Submitted %d jobs (batch %s)\n", len(batch.Handles()), batch.Name())
		for _, h := range batch.Handles() {
			fmt.Printf("  %s\n", h.ID)
		}

		if !submitWait {
			fmt.Println("Track them with: conveyorctl status --batch", batch.Name())
			return nil
		}

		summary, err := batch.Wait(cmd.Context(), orchestrate.WaitOptions{Interval: sdk.PollInterval()})
		if err != nil {
			return err
		}
		fmt.Printf("%d/%d completed, %d failed\n", summary.Completed, summary.Total, summary.Failures())
		if summary.Failures() > 0 {
			return fmt.Errorf("%d jobs did not complete", summary.Failures())
		}
		return nil
	},
}

// parseParams turns repeated key=value flags into a parameter map.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", pair)
		}
		params[key] = value
	}
	return params, nil
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringArrayVarP(&submitParams, "param", "p", nil, "Job parameter as key=value (repeatable)")
	submitCmd.Flags().StringArrayVar(&submitTags, "tag", nil, "Admission-control tag (repeatable)")
	submitCmd.Flags().StringVar(&submitName, "name", "", "Batch name (default: generated)")
	submitCmd.Flags().IntVar(&submitCount, "count", 1, "Number of jobs to submit")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Wait for all jobs to finish")
}
