package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/wire"
)

var windowAt string

var windowCmd = &cobra.Command{
	Use:   "window [project]",
	Short: "Show which queue periods would delay builds of a project",
	Long: `Window evaluates every queue period bound to the project at the given
time (default now) in the configured timezone. Without a project all periods
are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()
		defer func() { _ = app.Stop() }()

		at := time.Now()
		if windowAt != "" {
			if at, err = time.ParseInLocation("2006-01-02T15:04", windowAt, app.Window.Location()); err != nil {
				return fmt.Errorf("invalid --at %q, expected YYYY-MM-DDTHH:MM: %w", windowAt, err)
			}
		}

		periods, err := app.Store.ListPeriods(ctx)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			periods = forProject(periods, args[0])
		}

		titleColor.Printf("Queue periods at %s\n", at.In(app.Window.Location()).Format(time.RFC1123))
		if len(periods) == 0 {
			dimColor.Println("no queue periods")
			return nil
		}
		for _, p := range periods {
			if app.Window.Delay(p, at) {
				warnColor.Printf("  delaying  %s\n", p)
			} else {
				successColor.Printf("  inactive  %s\n", p)
			}
			if p.Comment != "" {
				dimColor.Printf("            %s\n", p.Comment)
			}
		}

		first, err := app.Window.FirstDelaying(ctx, periods, at, nil)
		if err != nil {
			return err
		}
		if first != nil {
			warnColor.Printf("builds would be delayed by period %d\n", first.ID)
		}
		return nil
	},
}

func forProject(periods []*core.QueuePeriod, project string) []*core.QueuePeriod {
	var out []*core.QueuePeriod
	for _, p := range periods {
		for _, proj := range p.Projects {
			if proj.Name == project {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	windowCmd.Flags().StringVar(&windowAt, "at", "", "evaluate at YYYY-MM-DDTHH:MM instead of now")
	rootCmd.AddCommand(windowCmd)
}
