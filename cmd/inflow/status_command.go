package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"inflow/internal/audit"
	"inflow/internal/intervention"
)

// recentAuditEvents is how many ledger rows the status command shows.
const recentAuditEvents = 10

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline configuration and daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			running, err := daemonRunning(cfg.Daemon.Lock.Path)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Lock file", statusWarn, err.Error(), colorize))
			} else if running {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "running", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "not running", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Lock path", statusInfo, cfg.Daemon.Lock.Path, colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Directories", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Scanner", statusInfo, cfg.Scanner.Directory, colorize))
			fmt.Fprintln(out, renderStatusLine("Registration working dir", statusInfo, cfg.Registration.WorkingDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Processing working dir", statusInfo, cfg.Processing.WorkingDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Evaluation working dir", statusInfo, cfg.Evaluation.WorkingDir, colorize))
			for i, target := range cfg.Evaluation.TargetDirs {
				fmt.Fprintln(out, renderStatusLine(fmt.Sprintf("Downstream inbox %d", i+1), statusInfo, target, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Audit", colorize) {
				fmt.Fprintln(out, line)
			}
			if cfg.Audit.Enabled {
				fmt.Fprintln(out, renderStatusLine("Audit ledger", statusOK, cfg.Audit.Database.Path, colorize))
				if err := printRecentAuditEvents(out, cfg.Audit.Database.Path, colorize); err != nil {
					fmt.Fprintln(out, renderStatusLine("Recent activity", statusWarn, err.Error(), colorize))
				}
			} else {
				fmt.Fprintln(out, renderStatusLine("Audit ledger", statusInfo, "disabled", colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Interventions", colorize) {
				fmt.Fprintln(out, line)
			}
			entries, err := intervention.List(cfg)
			if err != nil {
				return fmt.Errorf("list interventions: %w", err)
			}
			counts := map[intervention.Stage]int{}
			for _, entry := range entries {
				counts[entry.Stage]++
			}
			for _, stage := range []intervention.Stage{intervention.StageRegistration, intervention.StageProcessing, intervention.StageEvaluation} {
				kind := statusInfo
				if counts[stage] > 0 {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(string(stage), kind, fmt.Sprintf("%d parked", counts[stage]), colorize))
			}

			return nil
		},
	}
}

// daemonRunning reports whether another process currently holds the
// daemon lock, by attempting (and immediately releasing) our own lock on
// the same file.
func daemonRunning(lockPath string) (bool, error) {
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("check daemon lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	defer lock.Unlock() //nolint:errcheck
	return false, nil
}

// printRecentAuditEvents opens the audit ledger read-alongside the running
// daemon (SQLite's WAL mode allows a concurrent reader) and renders its
// most recent rows as a table.
func printRecentAuditEvents(out io.Writer, dbPath string, colorize bool) error {
	ledger, err := audit.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open audit ledger: %w", err)
	}
	defer ledger.Close()

	events, err := ledger.Recent(context.Background(), recentAuditEvents)
	if err != nil {
		return fmt.Errorf("read audit ledger: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, renderStatusLine("Recent activity", statusInfo, "no events recorded yet", colorize))
		return nil
	}

	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			relativeAge(time.Unix(e.Timestamp, 0)),
			e.Stage,
			e.Outcome,
			e.TaskID,
		})
	}
	table := renderTable(
		[]string{"When", "Stage", "Outcome", "Task"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
	)
	fmt.Fprint(out, table)
	fmt.Fprintln(out)
	return nil
}
