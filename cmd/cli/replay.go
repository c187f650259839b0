package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/wire"
)

var (
	replayTag      string
	replayRevision string
)

var replayCmd = &cobra.Command{
	Use:   "replay [mapping-id]",
	Short: "Force a build trigger for a mapping as a privileged operator",
	Long: `Replay re-submits the last seen event of a mapping as a forced event.
Forced events ignore the already-handled check, and queue periods are bypassed
when the operator may override them. The tag and revision default to the last
seen ones.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid mapping id %q: %w", args[0], err)
		}
		username := viper.GetString("USER")
		if username == "" {
			return fmt.Errorf("an operator is required: pass --user or set BLW_USER")
		}

		ctx := context.Background()
		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()
		// Stop drains the launcher so queued launches are delivered before exit.
		defer func() { _ = app.Stop() }()

		actor, err := app.Store.GetActor(ctx, username)
		if err != nil {
			return fmt.Errorf("unknown operator: %w", err)
		}
		mapping, err := app.Store.GetMapping(ctx, id)
		if err != nil {
			return err
		}
		state, err := app.Store.GetOrCreate(ctx, mapping.ID)
		if err != nil {
			return err
		}

		event := &core.Event{
			Tag:      firstNonEmpty(replayTag, state.Tag),
			Revision: firstNonEmpty(replayRevision, state.Revision),
			Actor:    actor.Username,
			Payload:  state.Payload,
			ForcedBy: actor,
		}

		res, err := app.Engine.Handle(ctx, mapping, event, time.Now())
		if res != nil {
			titleColor.Printf("%s\n", res.Outcome)
			fmt.Println(res.Message)
		}
		if err != nil {
			errorColor.Printf("replay finished with errors: %v\n", err)
			return err
		}
		successColor.Println("replay submitted")
		return nil
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	replayCmd.Flags().StringVar(&replayTag, "tag", "", "tag to build instead of the last seen one")
	replayCmd.Flags().StringVar(&replayRevision, "revision", "", "revision to build instead of the last seen one")
	rootCmd.AddCommand(replayCmd)
}
