package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/moves/backend/internal/contracts"
)

// signalsCmd groups the review queue operations
var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Review and decide signals",
	Long: `Review pending signals and record decisions.

Subcommands:
  list      - list signals by --status (default pending)
  decide    - apply approve / reject / ignore / cancel / execute
  outcome   - record the realized return of an executed signal
  resize    - override the size of a pending signal (risk re-checked)
  expire    - sweep stale pending signals now
  whatif    - passed signals and what they would have done

Example:
  go run ./cmd/moves signals list
  go run ./cmd/moves signals decide 12 approve --note "half size"
  go run ./cmd/moves signals outcome 12 0.034
  go run ./cmd/moves signals resize 12 0.02
  go run ./cmd/moves signals whatif --refresh`,
}

var (
	signalStatusFilter string
	signalNote         string

	signalsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List signals",
		RunE:  listSignals,
	}

	signalsDecideCmd = &cobra.Command{
		Use:   "decide [id] [decision]",
		Short: "Decide a signal",
		Args:  cobra.ExactArgs(2),
		RunE:  decideSignal,
	}

	signalsOutcomeCmd = &cobra.Command{
		Use:   "outcome [id] [return]",
		Short: "Record a realized return (fraction, e.g. 0.05)",
		Args:  cobra.ExactArgs(2),
		RunE:  recordSignalOutcome,
	}

	signalsExpireCmd = &cobra.Command{
		Use:   "expire",
		Short: "Expire stale pending signals",
		RunE:  expireSignals,
	}

	signalsResizeCmd = &cobra.Command{
		Use:   "resize [id] [size_pct]",
		Short: "Override a pending signal's size (fraction of NAV)",
		Args:  cobra.ExactArgs(2),
		RunE:  resizeSignal,
	}

	whatIfRefresh bool

	signalsWhatIfCmd = &cobra.Command{
		Use:   "whatif",
		Short: "Show passed signals and how passing graded",
		RunE:  showWhatIf,
	}
)

func init() {
	rootCmd.AddCommand(signalsCmd)
	signalsCmd.AddCommand(signalsListCmd, signalsDecideCmd, signalsOutcomeCmd, signalsExpireCmd,
		signalsResizeCmd, signalsWhatIfCmd)

	signalsListCmd.Flags().StringVar(&signalStatusFilter, "status", string(contracts.SignalPending), "signal status")
	signalsDecideCmd.Flags().StringVar(&signalNote, "note", "", "note stored in the audit log")
	signalsResizeCmd.Flags().StringVar(&signalNote, "note", "", "note stored in the audit log")
	signalsWhatIfCmd.Flags().BoolVar(&whatIfRefresh, "refresh", false, "re-price every record first")
}

func listSignals(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.lifecycle.ByStatus(cmd.Context(), contracts.SignalStatus(signalStatusFilter))
	if err != nil {
		return err
	}
	PrintSignals(list)
	return nil
}

func decideSignal(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sig, err := a.lifecycle.Decide(cmd.Context(), id, contracts.Decision(args[1]), signalNote)
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Signal #%d %s %s is now %s", sig.ID, sig.Action, sig.Symbol, sig.Status))
	return nil
}

func recordSignalOutcome(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	ret, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid return %q", args[1])
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.lifecycle.RecordOutcome(cmd.Context(), id, ret)
	if err != nil {
		return err
	}

	verdict := "loss"
	if report.Win {
		verdict = "win"
	}
	PrintSuccess(fmt.Sprintf("Signal #%d recorded as %s (%.2f%%)", id, verdict, ret*100))
	if report.Source != nil {
		fmt.Printf("  Source %s: %d/%d wins, avg %.2f%%\n",
			report.Source.Source, report.Source.Wins, report.Source.Total, report.Source.AvgReturn*100)
	}
	if report.Strategy != nil {
		fmt.Printf("  Strategy %s: %d/%d wins, avg %.2f%%\n",
			report.Strategy.Strategy, report.Strategy.Wins, report.Strategy.Total, report.Strategy.AvgReturn*100)
	}
	for _, p := range report.Principles {
		fmt.Printf("  Principle #%d validated=%v deactivated=%v\n", p.PrincipleID, p.Validated, p.Deactivated)
	}
	return nil
}

func expireSignals(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.lifecycle.ExpireStale(cmd.Context(), time.Now())
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("%d signal(s) expired", len(ids)))
	return nil
}

func resizeSignal(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	size, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid size %q", args[1])
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sig, decision, err := a.generator.ModifySize(cmd.Context(), id, size, signalNote)
	if err != nil {
		return err
	}
	if !decision.Approved {
		PrintError(fmt.Sprintf("Signal #%d keeps size %.2f%%: %s failed (%s)",
			sig.ID, sig.SizePct*100, decision.Failure.Check, decision.Failure.Message))
		return fmt.Errorf("risk check failed")
	}
	PrintSuccess(fmt.Sprintf("Signal #%d %s %s resized to %.2f%%", sig.ID, sig.Action, sig.Symbol, sig.SizePct*100))
	return nil
}

func showWhatIf(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if whatIfRefresh {
		n, err := a.whatIf.Refresh(ctx)
		if err != nil {
			return err
		}
		PrintInfo(fmt.Sprintf("%d record(s) re-priced", n))
	}

	list, err := a.whatIf.List(ctx, nil)
	if err != nil {
		return err
	}
	PrintWhatIfs(list)

	summary, err := a.whatIf.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nTracked: %d  pass accuracy: %.0f%%  reject accuracy: %.0f%%  ignore cost: %.2f%%\n",
		summary.TotalTracked, summary.PassAccuracy*100, summary.RejectAccuracy*100, summary.IgnoreCost*100)
	return nil
}
