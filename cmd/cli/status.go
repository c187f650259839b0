package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/wire"
)

var outputJSON bool

type mappingStatus struct {
	ID        int64     `json:"id"`
	Mapping   string    `json:"mapping"`
	Mapped    bool      `json:"mapped"`
	Build     bool      `json:"build"`
	Revision  string    `json:"revision,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Handled   bool      `json:"handled"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows every mapping with its last seen revision",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()
		defer func() { _ = app.Stop() }()

		mappings, err := app.Store.ListMappings(ctx)
		if err != nil {
			return fmt.Errorf("failed to retrieve mappings: %w", err)
		}

		statuses := make([]mappingStatus, 0, len(mappings))
		for _, m := range mappings {
			st := mappingStatus{ID: m.ID, Mapping: m.String(), Mapped: m.Mapped(), Build: m.Build}
			state, err := app.Store.LastSeen(ctx, m.ID)
			switch {
			case errors.Is(err, core.ErrNotFound):
				// never seen
			case err != nil:
				return err
			default:
				st.Revision = state.Revision
				st.Tag = state.Tag
				st.Handled = state.Handled
				st.UpdatedAt = state.Timestamp
			}
			statuses = append(statuses, st)
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(statuses)
		}

		if len(statuses) == 0 {
			warnColor.Println("No webhook mappings are configured.")
			return nil
		}

		titleColor.Printf("%d webhook mappings\n", len(statuses))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tMAPPING\tREVISION\tTAG\tLAST SEEN\tSTATE")
		for _, st := range statuses {
			lastSeen := "-"
			if !st.UpdatedAt.IsZero() {
				lastSeen = st.UpdatedAt.Format(time.RFC822)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				st.ID, st.Mapping, shortSHA(st.Revision), st.Tag, lastSeen, stateLabel(st))
		}
		return w.Flush()
	},
}

func stateLabel(st mappingStatus) string {
	switch {
	case !st.Mapped:
		return dimColor.Sprint("unmapped")
	case !st.Build:
		return dimColor.Sprint("notify only")
	case st.Handled:
		return successColor.Sprint("handled")
	case st.Tag != "":
		return warnColor.Sprint("pending")
	default:
		return "idle"
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}
