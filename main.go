package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"wellnessgo/internal/config"
)

var (
	configFlag string
	rootCmd    = &cobra.Command{
		Use:           "wellnessgo",
		Short:         "Health assistant chat gateway with conversation and health-profile memory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// a missing .env is normal outside development
			_ = godotenv.Load()
			return nil
		},
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", os.Getenv("WELLNESS_CONFIG"), "Path to config.json (env WELLNESS_CONFIG)")
	rootCmd.AddCommand(serveCmd(), profileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
