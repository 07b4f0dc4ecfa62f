package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/moves/backend/internal/contracts"
)

// auditCmd reads the decision log
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the decision log",
	Long: `Print audit entries, newest last.

Example:
  go run ./cmd/moves audit --limit 50
  go run ./cmd/moves audit --entity signal --id 12`,
	RunE: showAudit,
}

var (
	auditLimit    int
	auditEntity   string
	auditEntityID int64
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "number of recent entries")
	auditCmd.Flags().StringVar(&auditEntity, "entity", "", "entity type (thesis, signal, principle, ...)")
	auditCmd.Flags().Int64Var(&auditEntityID, "id", 0, "entity id (with --entity)")
}

func showAudit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var entries []*contracts.AuditEntry
	if auditEntity != "" {
		if auditEntityID <= 0 {
			return fmt.Errorf("--id is required with --entity")
		}
		entries, err = a.audit.ByEntity(cmd.Context(), auditEntity, auditEntityID)
	} else {
		entries, err = a.audit.Recent(cmd.Context(), auditLimit)
	}
	if err != nil {
		return err
	}

	widths := []int{7, 19, 9, 24, 14, 40}
	PrintTableHeader([]string{"ID", "AT", "ACTOR", "ACTION", "ENTITY", "DETAILS"}, widths)
	for _, e := range entries {
		entity := e.EntityType
		if e.EntityID != nil {
			entity = fmt.Sprintf("%s#%d", e.EntityType, *e.EntityID)
		}
		printRow([]string{
			fmt.Sprintf("#%d", e.ID),
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			string(e.Actor),
			e.Action,
			entity,
			truncate(string(e.Details), 80),
		}, widths)
	}
	return nil
}
