package cli

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/conveyordev/conveyor/internal/statusapi"
	"github.com/conveyordev/conveyor/pkg/orchestrate"
	"github.com/conveyordev/conveyor/pkg/pipeline"
)

var (
	runListen  string
	runPolicy  string
	runMaxWait time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml>",
	Short: "Run a multi-phase pipeline against the scheduler",
	Long: `Run submits and tracks every phase of a pipeline file. Batches within a
phase run concurrently; phases run strictly in order, and the next phase
starts only after every job in the current one reached a terminal state.

Example pipeline:

  name: nightly-etl
  policy: failfast
  phases:
    - name: prepare
      jobs:
        - target: pre-etl-job/pre-etl-deployment
        - target: process-table-etl/process-table-etl-deployment
          tags: [database]
          count: 20
          countParameter: table
    - name: finalize
      jobs:
        - target: final-etl-job/final-etl-deployment`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sdk, log, err := newSDK(cmd)
		if err != nil {
			return err
		}

		p, err := pipeline.Load(args[0])
		if err != nil {
			return err
		}

		policy := p.FailurePolicy()
		switch runPolicy {
		case "":
		case "failfast":
			policy = orchestrate.FailFast
		case "besteffort":
			policy = orchestrate.BestEffort
		default:
			return fmt.Errorf("unknown policy %q (want failfast or besteffort)", runPolicy)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		journal, err := sdk.Journal()
		if err != nil {
			log.Warn("state store unavailable, continuing without journal", "error", err)
		}
		if journal != nil {
			defer journal.Close()
		}

		// Mirror the server's configured tag limits locally so submission
		// pacing matches what the scheduler would admit.
		admission := orchestrate.NewAdmissionController(nil)
		if limits, err := sdk.Client.ListConcurrencyLimits(ctx); err != nil {
			log.Warn("could not read concurrency limits, pacing disabled", "error", err)
		} else {
			m := make(map[string]int, len(limits))
			for _, l := range limits {
				m[l.Tag] = l.Limit
			}
			admission.Reload(m)
		}

		buildOpts := []pipeline.BuildOption{
			pipeline.WithAdmission(admission),
			pipeline.WithLogger(log),
			pipeline.WithWorkPool(sdk.Config.WorkPool),
		}
		if journal != nil {
			buildOpts = append(buildOpts, pipeline.WithJournal(journal))
		}
		phases, batches := p.Build(sdk.Client, buildOpts...)

		runner := orchestrate.NewPhaseRunner(policy,
			orchestrate.WithRunnerLogger(log),
			orchestrate.WithWaitOptions(orchestrate.WaitOptions{
				Interval: sdk.PollInterval(),
				MaxWait:  runMaxWait,
			}),
		).AddPhases(phases...)

		if runListen != "" {
			srv := statusapi.New(runner, batches, log)
			go func() {
				if err := srv.Serve(ctx, runListen); err != nil {
					log.Warn("status endpoint failed", "error", err)
				}
			}()
		}

		report, err := runner.Run(ctx)
		printReport(report)
		if err != nil {
			return err
		}
		if report.Status == orchestrate.RunAborted {
			return fmt.Errorf("run aborted at phase %d", report.AbortedPhase)
		}
		if n := report.Failures(); n > 0 {
			return fmt.Errorf("run finished with %d failed jobs", n)
		}
		return nil
	},
}

func printReport(report *orchestrate.RunReport) {
	fmt.Printf("Run %s\n", report.Status)
	for _, phase := range report.Phases {
		fmt.Printf("  phase %s\n", phase.Name)
		for _, s := range phase.Summaries {
			if s == nil {
				continue
			}
			fmt.Printf("    %-40s %d/%d completed", s.Target, s.Completed, s.Total)
			if n := s.Failures(); n > 0 {
				fmt.Printf(", %d failed", n)
			}
			fmt.Println()
		}
		for _, err := range phase.SubmissionErrors {
			fmt.Printf("    submission error: %v\n", err)
		}
		for _, err := range phase.WaitErrors {
			fmt.Printf("    wait error: %v\n", err)
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runListen, "listen", "", "Serve live run progress on this address (e.g. :8199)")
	runCmd.Flags().StringVar(&runPolicy, "policy", "", "Override the pipeline's failure policy (failfast or besteffort)")
	runCmd.Flags().DurationVar(&runMaxWait, "max-wait", 0, "Abort waits that exceed this duration (default: no limit)")
}
