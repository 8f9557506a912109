// Command socialcart runs the SocialCart pair-shopping backend and its
// maintenance tasks.
//
//	@title			SocialCart API
//	@version		1.0
//	@description	Pair-shopping backend: contexts, carts, shared sessions, checkout and AI shopping flows.
//	@BasePath		/api/v1
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-socialcart-backend/internal/config"
	"github.com/tbourn/go-socialcart-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	envFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "socialcart",
	Short: "SocialCart pair-shopping backend",
	Long: `socialcart serves the SocialCart HTTP API: execution contexts, personal and
shared carts, pair-shopping sessions, checkout and AI shopping flows.

Configuration is read from the environment (optionally from a .env file).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(leaderboardCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
