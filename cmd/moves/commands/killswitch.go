package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/moves/backend/internal/contracts"
)

// killswitchCmd shows or flips the kill switch
var killswitchCmd = &cobra.Command{
	Use:   "killswitch",
	Short: "Show or flip the kill switch",
	Long: `While the kill switch is active no BUY or SHORT signal is produced;
SELL and COVER still are. Activation cancels every pending opening signal.

Example:
  go run ./cmd/moves killswitch
  go run ./cmd/moves killswitch on --reason "drawdown breach"
  go run ./cmd/moves killswitch off`,
	RunE: showKillSwitch,
}

var (
	killswitchReason string

	killswitchOnCmd = &cobra.Command{
		Use:   "on",
		Short: "Activate the kill switch",
		RunE:  activateKillSwitch,
	}

	killswitchOffCmd = &cobra.Command{
		Use:   "off",
		Short: "Deactivate the kill switch",
		RunE:  deactivateKillSwitch,
	}
)

func init() {
	rootCmd.AddCommand(killswitchCmd)
	killswitchCmd.AddCommand(killswitchOnCmd, killswitchOffCmd)
	killswitchOnCmd.Flags().StringVar(&killswitchReason, "reason", "", "why trading is halted (required)")
}

func printKillSwitch(ks *contracts.KillSwitch) {
	if !ks.Active {
		PrintInfo("Kill switch is off")
		return
	}
	PrintWarning(fmt.Sprintf("Kill switch is ON: %s (by %s)", ks.Reason, ks.ActivatedBy))
	if ks.ActivatedAt != nil {
		fmt.Printf("  since %s\n", ks.ActivatedAt.Format("2006-01-02 15:04:05"))
	}
}

func showKillSwitch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ks, err := a.risk.KillSwitch(cmd.Context())
	if err != nil {
		return err
	}
	printKillSwitch(ks)
	return nil
}

func activateKillSwitch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ks, cancelled, err := a.risk.ActivateKillSwitch(cmd.Context(), killswitchReason, contracts.ActorUser)
	if err != nil {
		return err
	}
	printKillSwitch(ks)
	PrintInfo(fmt.Sprintf("%d pending opening signal(s) cancelled", len(cancelled)))
	return nil
}

func deactivateKillSwitch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ks, err := a.risk.DeactivateKillSwitch(cmd.Context(), contracts.ActorUser)
	if err != nil {
		return err
	}
	printKillSwitch(ks)
	return nil
}
