package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/mapping"
	"github.com/henriksa/boss-launcher-webhook/internal/storage"
	"github.com/henriksa/boss-launcher-webhook/internal/wire"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Import build services, projects, users, mappings and queue periods from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		seed, err := config.LoadSeedFile(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()
		defer func() { _ = app.Stop() }()

		res, err := app.Store.Import(ctx, seed, storage.ImportOptions{
			Rules: mapping.Rules{
				ServiceWhitelist: app.Cfg.Mapping.ServiceWhitelist,
				StrictMappings:   app.Cfg.Mapping.StrictMappings,
			},
			DefaultProject: app.Cfg.Mapping.DefaultProject,
		})
		if err != nil {
			errorColor.Printf("import failed, nothing was written: %v\n", err)
			return err
		}

		successColor.Printf("imported %s\n", args[0])
		fmt.Printf("  build services: %d\n  vcs services:   %d\n  users:          %d\n  projects:       %d\n  mappings:       %d\n  relay targets:  %d\n  queue periods:  %d\n",
			res.BuildServices, res.VCSServices, res.Users, res.Projects, res.Mappings, res.RelayTargets, res.QueuePeriods)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	rootCmd.AddCommand(seedCmd)
}
