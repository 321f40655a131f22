package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conveyordev/conveyor/pkg/cvlog"
	"github.com/conveyordev/conveyor/pkg/cvsdk"
)

type contextKey string

const configContextKey contextKey = "conveyorconfig"

var (
	cfgFile string
	verbose bool
	quiet   bool

	rootCmd = &cobra.Command{
		Use:   "conveyorctl",
		Short: "CLI for submitting and tracking jobs on a conveyor scheduler",
		Long: `conveyorctl submits jobs to a remote conveyor scheduler and tracks them
to completion. Use run to execute a multi-phase pipeline file, submit to
queue ad-hoc jobs against a deployment target, status and cancel to
inspect or stop runs, limits to administer tag concurrency limits, and
auth to manage the stored API key.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cvsdk.LoadConfig(cfgFile)
			if err != nil {
				return err
			}

			if err := cfg.Viper().BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
				cfg.BaseURL = baseURL
			}

			ctx := context.WithValue(cmd.Context(), configContextKey, cfg)
			cmd.SetContext(ctx)
			return nil
		},
	}
)

// GetConfig retrieves the Config from the command context
func GetConfig(cmd *cobra.Command) (*cvsdk.Config, error) {
	cfg, ok := cmd.Context().Value(configContextKey).(*cvsdk.Config)
	if !ok {
		return nil, errors.New("no config in context")
	}
	return cfg, nil
}

// newLogger builds the logger implied by the verbosity flags.
func newLogger() *cvlog.Logger {
	switch {
	case verbose:
		return cvlog.NewVerbose()
	case quiet:
		return cvlog.NewQuiet()
	default:
		return cvlog.NewDefault()
	}
}

// newSDK loads config from the command context and dials the backend.
func newSDK(cmd *cobra.Command) (*cvsdk.SDK, *cvlog.Logger, error) {
	cfg, err := GetConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log := newLogger()
	if verbose {
		cfg.Print(func(format string, args ...interface{}) {
			log.Debug(sprintf(format, args...))
		})
	}
	sdk, err := cvsdk.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return sdk, log, nil
}

// sprintf formats for the config printer, stripping the trailing newline
// the printf-style callback convention carries.
func sprintf(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML). Searches: conveyor.yaml, .conveyor/config.yaml")
	rootCmd.PersistentFlags().String("base-url", "", "Base URL for the conveyor scheduler (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print warnings and errors")
}
