package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/store/memstore"
)

// scanCmd evaluates every thesis once
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Evaluate every thesis and print the outcomes",
	Long: `Run one signal scan over all non-archived theses.

With --demo the scan runs against the in-memory store, seeded with a
handful of sample theses, and the static oracle fixture, so it needs
neither Postgres nor the oracle sidecar.

Example:
  go run ./cmd/moves scan --demo
  go run ./cmd/moves scan --demo --fixture config/demo_book.yaml`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if a.mem != nil {
		if err := seedDemoTheses(ctx, a.mem, time.Now()); err != nil {
			return err
		}
	}

	start := time.Now()
	outcomes, scanErr := a.generator.Scan(ctx)

	PrintHeader("Signal scan")
	PrintOutcomes(outcomes)
	PrintSeparator()
	fmt.Printf("  %d outcomes in %.2fs\n", len(outcomes), time.Since(start).Seconds())

	if scanErr != nil {
		PrintWarning("Some theses failed: " + scanErr.Error())
		return scanErr
	}

	pending, err := a.lifecycle.Pending(ctx)
	if err != nil {
		return err
	}
	PrintInfo(fmt.Sprintf("%d signal(s) pending review", len(pending)))
	return nil
}

// seedDemoTheses fills an empty in-memory store with theses that exercise
// the main paths against config/demo_book.yaml: an entry, an exit, a cover,
// a held position and a weak thesis stopped at the gate.
func seedDemoTheses(ctx context.Context, store *memstore.Store, now time.Time) error {
	seasoned := now.Add(-14 * 24 * time.Hour)
	demo := []*contracts.Thesis{
		{
			Title:            "AI accelerator demand outruns supply",
			Strategy:         contracts.StrategyLong,
			Status:           contracts.ThesisStrengthening,
			Symbols:          []string{"NVDA", "AMD"},
			Conviction:       0.82,
			ResearchSessions: 3,
			Domain:           "semiconductors",
		},
		{
			Title:            "Cloud margins peak as capex bites",
			Strategy:         contracts.StrategyLong,
			Status:           contracts.ThesisInvalidated,
			Symbols:          []string{"MSFT"},
			Conviction:       0.40,
			ResearchSessions: 4,
		},
		{
			Title:            "EV price war compresses margins",
			Strategy:         contracts.StrategyShort,
			Status:           contracts.ThesisWeakening,
			Symbols:          []string{"TSLA"},
			Conviction:       0.55,
			ResearchSessions: 2,
		},
		{
			Title:            "Foundry turnaround",
			Strategy:         contracts.StrategyLong,
			Status:           contracts.ThesisActive,
			Symbols:          []string{"INTC"},
			Conviction:       0.75,
			ResearchSessions: 2,
		},
		{
			Title:            "Memory upcycle",
			Strategy:         contracts.StrategyLong,
			Status:           contracts.ThesisActive,
			Symbols:          []string{"MU"},
			Conviction:       0.60,
			ResearchSessions: 1,
		},
	}

	for _, t := range demo {
		t.CreatedAt, t.UpdatedAt = seasoned, seasoned
		if err := store.Theses().Create(ctx, t); err != nil {
			return fmt.Errorf("seed demo thesis: %w", err)
		}
	}
	return nil
}
