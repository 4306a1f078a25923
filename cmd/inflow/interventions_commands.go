package main

import (
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"inflow/internal/intervention"
)

func newInterventionsCommand(ctx *commandContext) *cobra.Command {
	interventionsCmd := &cobra.Command{
		Use:   "interventions",
		Short: "Inspect and requeue parked task directories",
	}

	interventionsCmd.AddCommand(newInterventionsListCommand(ctx))
	interventionsCmd.AddCommand(newInterventionsRequeueCommand(ctx))

	return interventionsCmd
}

func newInterventionsListCommand(ctx *commandContext) *cobra.Command {
	var stageFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parked task directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := intervention.List(cfg)
			if err != nil {
				return err
			}
			if stageFilter != "" {
				filtered := entries[:0]
				for _, entry := range entries {
					if string(entry.Stage) == stageFilter {
						filtered = append(filtered, entry)
					}
				}
				entries = filtered
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No parked task directories")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					string(entry.Stage),
					entry.TaskID,
					relativeAge(entry.ModTime),
					entry.Reason,
				})
			}
			table := renderTable(
				[]string{"Stage", "Task", "Parked", "Reason"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprint(out, table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&stageFilter, "stage", "s", "", "Filter by stage (registration, processing, evaluation)")
	return cmd
}

func newInterventionsRequeueCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var all bool

	cmd := &cobra.Command{
		Use:   "requeue [task-id]",
		Short: "Requeue one or all parked task directories for a stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if stageFlag == "" {
				return errors.New("--stage is required")
			}
			stage := intervention.Stage(stageFlag)
			out := cmd.OutOrStdout()

			if all {
				entries, err := intervention.List(cfg)
				if err != nil {
					return err
				}
				var total int
				for _, entry := range entries {
					if entry.Stage == stage {
						total++
					}
				}
				if total == 0 {
					fmt.Fprintf(out, "No parked task directories for stage %q\n", stage)
					return nil
				}

				var bar *progressbar.ProgressBar
				if shouldColorize(out) {
					bar = progressbar.Default(int64(total), fmt.Sprintf("requeuing %s", stage))
				}
				succeeded, errs := intervention.RequeueAllWithProgress(cfg, stage, func() {
					if bar != nil {
						bar.Add(1) //nolint:errcheck
					}
				})
				fmt.Fprintf(out, "Requeued %d of %d %s task(s)\n", succeeded, total, stage)
				for _, requeueErr := range errs {
					fmt.Fprintf(out, "  error: %v\n", requeueErr)
				}
				if len(errs) > 0 {
					return fmt.Errorf("%d task(s) could not be requeued", len(errs))
				}
				return nil
			}

			if len(args) != 1 {
				return errors.New("requeue requires a task id, or pass --all")
			}
			entry, err := intervention.Find(cfg, stage, args[0])
			if err != nil {
				return err
			}
			if err := intervention.Requeue(cfg, entry); err != nil {
				return err
			}
			fmt.Fprintf(out, "Requeued %s task %s\n", stage, entry.TaskID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&stageFlag, "stage", "s", "", "Stage to requeue from (registration, processing, evaluation)")
	cmd.Flags().BoolVar(&all, "all", false, "Requeue every parked task directory for the stage")
	return cmd
}
