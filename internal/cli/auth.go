package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conveyordev/conveyor/pkg/cvsdk"
)

var loginAPIKey string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored API key",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API key for the configured scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig(cmd)
		if err != nil {
			return err
		}

		key := loginAPIKey
		if key == "" {
			fmt.Printf("API key for %s: ", cfg.BaseURL)
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading API key: %w", err)
			}
			key = strings.TrimSpace(line)
		}
		if key == "" {
			return fmt.Errorf("no API key provided")
		}

		if cvsdk.IsJWT(key) {
			if expired, err := cvsdk.IsTokenExpired(key, 0); err == nil && expired {
				return fmt.Errorf("that token is already expired")
			}
		}

		if err := cvsdk.SaveAPIKey(cfg.BaseURL, key); err != nil {
			return fmt.Errorf("storing API key: %w", err)
		}
		fmt.Printf("Stored API key for %s (%s)\n", cfg.BaseURL, cvsdk.MaskSecret(key))
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig(cmd)
		if err != nil {
			return err
		}
		if err := cvsdk.DeleteAPIKey(cfg.BaseURL); err != nil {
			return fmt.Errorf("removing API key: %w", err)
		}
		fmt.Printf("Removed API key for %s\n", cfg.BaseURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authLoginCmd.Flags().StringVar(&loginAPIKey, "api-key", "", "API key (prompted when omitted)")
}
