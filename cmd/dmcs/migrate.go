package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dmcs/internal/domain"
	"dmcs/internal/usecase"
)

// migrateCmd は未適用のマイグレーションを適用するコマンド。
func (c *cli) migrateCmd() *cobra.Command {
	var project, env string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations to an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := c.selectTarget(ctx, project, env, "Which environment would you like to migrate?")
			if err != nil {
				return err
			}

			if dryRun {
				c.report.info(fmt.Sprintf("Dry run plan for migrating %s environment", target.Environment))
			} else {
				c.report.info(fmt.Sprintf("Migrating %s environment", target.Environment))
			}

			result, err := c.migrations.Migrate(ctx, target, dryRun)
			c.printRun(result)
			return err
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "Environment to migrate")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "See the plan for migrations before applying")
	return cmd
}

// rollbackCmd は直近に適用したマイグレーションを取り消すコマンド。
func (c *cli) rollbackCmd() *cobra.Command {
	var project, env string
	var steps int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recently applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := c.selectTarget(ctx, project, env, "Which environment would you like to rollback?")
			if err != nil {
				return err
			}

			if dryRun {
				c.report.info(fmt.Sprintf("Dry run plan for rolling back %s environment", target.Environment))
			} else {
				c.report.info(fmt.Sprintf("Rolling back %s environment", target.Environment))
			}

			result, err := c.migrations.Rollback(ctx, target, steps, dryRun)
			c.printRun(result)
			return err
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "Environment to roll back")
	cmd.Flags().IntVarP(&steps, "num", "n", 1, "Number of migrations to roll back")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "See the plan for rollback before reverting")
	return cmd
}

func (c *cli) printRun(result *usecase.RunResult) {
	if result == nil {
		return
	}
	if len(result.Planned) == 0 {
		if result.Entrypoint == domain.Down {
			c.report.info("No migrations to roll back")
		} else {
			c.report.info("No migrations to apply")
		}
		return
	}
	if result.DryRun {
		for _, file := range result.Planned {
			c.report.pending(file)
		}
		return
	}
	for _, file := range result.Completed {
		if result.Entrypoint == domain.Down {
			c.report.reverted(file)
		} else {
			c.report.applied(file)
		}
	}
}

// statusCmd はファイルごとの適用状態を表示する。
func (c *cli) statusCmd() *cobra.Command {
	var project, env string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status of an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := c.selectTarget(ctx, project, env, "Which environment would you like to inspect?")
			if err != nil {
				return err
			}

			migrations, err := c.migrations.Status(ctx, target)
			if err != nil {
				return err
			}

			// テーブル形式で出力
			w := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			fmt.Fprintln(w, "-------\t----\t------\t----------")
			for _, m := range migrations {
				appliedAt := "-"
				if m.AppliedAt != nil {
					appliedAt = m.AppliedAt.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", dash(m.Version), m.Name, m.Status, appliedAt)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "Environment to inspect")
	return cmd
}

// historyCmd は実行履歴を表示する。DMCS_HISTORY_DSN が必要。
func (c *cli) historyCmd() *cobra.Command {
	var project, env string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the run history of an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := c.selectTarget(ctx, project, env, "Which environment would you like to inspect?")
			if err != nil {
				return err
			}

			records, err := c.migrations.History(ctx, target, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				c.report.info("No runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TIME\tRUN\tFILE\tENTRY\tSTATUS\tDURATION\tERROR")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					shortID(r.RunID),
					r.File,
					r.Entrypoint,
					r.Status,
					r.Duration.Round(time.Millisecond),
					dash(firstLine(r.Error)),
				)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "Environment to inspect")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 for all)")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
