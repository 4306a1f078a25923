package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"inflow/internal/audit"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the stage-transition audit ledger",
	}

	auditCmd.AddCommand(newAuditShowCommand(ctx))

	return auditCmd
}

func newAuditShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show every recorded audit event for one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Audit.Enabled {
				return errors.New("audit ledger is disabled (set audit.enabled in config)")
			}

			ledger, err := audit.Open(cfg.Audit.Database.Path)
			if err != nil {
				return fmt.Errorf("open audit ledger: %w", err)
			}
			defer ledger.Close()

			events, err := ledger.ForTask(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("read audit ledger: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintf(out, "No audit events recorded for task %s\n", args[0])
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					relativeAge(time.Unix(e.Timestamp, 0)),
					e.Stage,
					e.Outcome,
					e.Detail,
				})
			}
			table := renderTable(
				[]string{"When", "Stage", "Outcome", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprint(out, table)
			return nil
		},
	}
}
