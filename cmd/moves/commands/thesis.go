package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/moves/backend/internal/contracts"
)

// thesisCmd groups thesis operations
var thesisCmd = &cobra.Command{
	Use:   "thesis",
	Short: "Manage investment theses",
	Long: `Inspect theses and move them through their lifecycle.

Subcommands:
  list     - list theses (optionally by --status)
  show     - one thesis with its status history
  status   - change status, then re-evaluate its symbols

Example:
  go run ./cmd/moves thesis list --status active
  go run ./cmd/moves thesis status 3 invalidated --reason "guidance cut"`,
}

var (
	thesisStatusFilter string
	thesisReason       string
	thesisEvidence     string

	thesisListCmd = &cobra.Command{
		Use:   "list",
		Short: "List theses",
		RunE:  listTheses,
	}

	thesisShowCmd = &cobra.Command{
		Use:   "show [id]",
		Short: "Show a thesis and its history",
		Args:  cobra.ExactArgs(1),
		RunE:  showThesis,
	}

	thesisStatusCmd = &cobra.Command{
		Use:   "status [id] [status]",
		Short: "Change thesis status and re-evaluate",
		Args:  cobra.ExactArgs(2),
		RunE:  changeThesisStatus,
	}
)

func init() {
	rootCmd.AddCommand(thesisCmd)
	thesisCmd.AddCommand(thesisListCmd, thesisShowCmd, thesisStatusCmd)

	thesisListCmd.Flags().StringVar(&thesisStatusFilter, "status", "", "filter by status")
	thesisStatusCmd.Flags().StringVar(&thesisReason, "reason", "", "why the status changed")
	thesisStatusCmd.Flags().StringVar(&thesisEvidence, "evidence", "", "supporting evidence")
}

func parseIDArg(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func listTheses(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var filter *contracts.ThesisStatus
	if thesisStatusFilter != "" {
		st, err := contracts.ParseThesisStatus(thesisStatusFilter)
		if err != nil {
			return err
		}
		filter = &st
	}

	list, err := a.theses.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	widths := []int{6, 14, 6, 5, 20, 30}
	PrintTableHeader([]string{"ID", "STATUS", "CONV", "RES", "SYMBOLS", "TITLE"}, widths)
	for _, t := range list {
		printRow([]string{
			fmt.Sprintf("#%d", t.ID),
			string(t.Status),
			fmt.Sprintf("%.2f", t.Conviction),
			strconv.Itoa(t.ResearchSessions),
			truncate(strings.Join(t.Symbols, ","), 20),
			truncate(t.Title, 40),
		}, widths)
	}
	return nil
}

func showThesis(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	t, err := a.theses.Get(ctx, id)
	if err != nil {
		return err
	}
	versions, err := a.theses.Versions(ctx, id)
	if err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("Thesis #%d: %s", t.ID, t.Title))
	fmt.Printf("  Status     : %s\n", t.Status)
	fmt.Printf("  Strategy   : %s\n", t.Strategy)
	fmt.Printf("  Symbols    : %s\n", strings.Join(t.Symbols, ", "))
	fmt.Printf("  Conviction : %.2f\n", t.Conviction)
	fmt.Printf("  Research   : %d session(s)\n", t.ResearchSessions)
	fmt.Printf("  Created    : %s\n", t.CreatedAt.Format("2006-01-02 15:04"))
	PrintSeparator()
	for _, v := range versions {
		from := "-"
		if v.OldStatus != nil {
			from = string(*v.OldStatus)
		}
		fmt.Printf("  %s  %s → %s  %s\n", v.CreatedAt.Format("2006-01-02 15:04"), from, v.NewStatus, v.Reason)
	}
	return nil
}

func changeThesisStatus(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	to, err := contracts.ParseThesisStatus(args[1])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	t, err := a.theses.UpdateStatus(ctx, id, to, thesisReason, thesisEvidence)
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Thesis #%d is now %s", t.ID, t.Status))

	outcomes, err := a.generator.Evaluate(ctx, id)
	PrintOutcomes(outcomes)
	return err
}
