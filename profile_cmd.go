package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wellnessgo/internal/healthmem"
	"wellnessgo/internal/logger"
)

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Health profile operations"}

	var outPath string
	exportCmd := &cobra.Command{
		Use:   "export USER_ID",
		Short: "Write a user's health profile as flat JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(cmd.Context(), args[0], func(ctx context.Context, mem *healthmem.Memory) error {
				data, err := mem.Export()
				if err != nil {
					return fmt.Errorf("export profile: %w", err)
				}
				if outPath == "" || outPath == "-" {
					_, err = fmt.Fprintln(os.Stdout, string(data))
					return err
				}
				return os.WriteFile(outPath, data, 0o600)
			})
		},
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	cmd.AddCommand(exportCmd)

	clearCmd := &cobra.Command{
		Use:   "clear USER_ID",
		Short: "Erase a user's health profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(cmd.Context(), args[0], func(ctx context.Context, mem *healthmem.Memory) error {
				mem.Clear(ctx)
				_, err := fmt.Fprintf(os.Stdout, "health profile of %s cleared\n", args[0])
				return err
			})
		},
	}
	cmd.AddCommand(clearCmd)
	return cmd
}

func withMemory(ctx context.Context, userID string, fn func(context.Context, *healthmem.Memory) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("wellnessgo").Level(zerolog.WarnLevel)
	st, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer st.close()
	return fn(ctx, healthmem.New(ctx, st.profiles, userID, healthmem.DefaultPatterns(), log))
}
