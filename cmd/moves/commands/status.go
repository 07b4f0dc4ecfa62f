package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/moves/backend/internal/contracts"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status",
	Long: `Show the kill switch, the signal queue and backing-store health.

With --watch the view refreshes until Ctrl+C.

Example:
  go run ./cmd/moves status
  go run ./cmd/moves status --watch --refresh 5s`,
	RunE: runStatus,
}

var (
	statusWatch   bool
	statusRefresh time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "refresh until interrupted")
	statusCmd.Flags().DurationVar(&statusRefresh, "refresh", 3*time.Second, "refresh interval")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if !statusWatch {
		return displayStatus(ctx, a)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	if err := displayStatus(ctx, a); err != nil {
		return err
	}
	for {
		select {
		case <-sigChan:
			fmt.Println("\n✅ Status monitor stopped")
			return nil
		case <-ticker.C:
			fmt.Print("\033[H\033[2J")
			if err := displayStatus(ctx, a); err != nil {
				return err
			}
		}
	}
}

var queueStatuses = []contracts.SignalStatus{
	contracts.SignalPending,
	contracts.SignalApproved,
	contracts.SignalExecuted,
}

func displayStatus(ctx context.Context, a *app) error {
	PrintHeader("moves status  " + time.Now().Format("15:04:05"))

	ks, err := a.risk.KillSwitch(ctx)
	if err != nil {
		return err
	}
	if ks.Active {
		fmt.Printf("%-18s ON (%s)\n", "Kill switch:", ks.Reason)
	} else {
		fmt.Printf("%-18s off\n", "Kill switch:")
	}

	for _, st := range queueStatuses {
		list, err := a.lifecycle.ByStatus(ctx, st)
		if err != nil {
			return err
		}
		fmt.Printf("%-18s %d\n", "Signals "+string(st)+":", len(list))
	}

	active := contracts.ThesisActive
	theses, err := a.theses.List(ctx, &active)
	if err != nil {
		return err
	}
	fmt.Printf("%-18s %d\n", "Active theses:", len(theses))
	PrintSeparator()

	if a.db != nil {
		health, err := a.db.HealthCheck(ctx)
		if err != nil {
			fmt.Printf("%-18s DOWN (%s)\n", "Postgres:", health.Error)
		} else {
			fmt.Printf("%-18s ok in %s, %d/%d conns\n", "Postgres:",
				health.ResponseTime.Round(time.Millisecond), health.Stats.AcquiredConns, health.Stats.MaxConns)
		}
	} else {
		fmt.Printf("%-18s in-memory (demo)\n", "Store:")
	}
	fmt.Printf("%-18s %v\n", "Redis:", a.redis.Enabled())
	return nil
}
