package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dmcs/internal/domain"
	"dmcs/internal/usecase"
)

// initCmd は状態ドキュメントとマイグレーションフォルダを作成する。
func (c *cli) initCmd() *cobra.Command {
	var project, env string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the state document and the first migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// 既存の単一プロジェクト形式ではプロジェクト名を尋ねない
			kind, err := c.projects.DocumentKind(ctx)
			if err != nil && !errors.Is(err, domain.ErrConfigNotFound) {
				return err
			}
			if err != nil || kind == domain.KindMultiProject {
				if project, err = c.askName(project, "Enter the initial project name", ""); err != nil {
					return err
				}
			}
			if env, err = c.askName(env, "Enter the initial environment name", "development"); err != nil {
				return err
			}

			result, err := c.projects.Init(ctx, usecase.InitOptions{
				Project:     project,
				Environment: env,
				Force:       force,
			})
			if err != nil {
				return err
			}

			c.report.created(result.ConfigPath)
			c.report.created(result.MigrationsDir)
			if result.FirstMigration != "" {
				c.report.created(result.FirstMigration)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Initial project name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "Initial environment name")
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize an existing state document")
	return cmd
}

// createCmd は空のマイグレーションファイルを作成する。
func (c *cli) createCmd() *cobra.Command {
	var project, name string
	var typescript bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new empty migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			project, err := c.selectProject(ctx, project)
			if err != nil {
				return err
			}
			if name, err = c.askName(name, "Name of the migration (e.g. add_updated_at_data_to_role)?", ""); err != nil {
				return err
			}

			path, err := c.projects.CreateMigration(ctx, project, name, typescript)
			if err != nil {
				return err
			}
			c.report.created(path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Migration name")
	cmd.Flags().BoolVar(&typescript, "ts", false, "Create a TypeScript migration")
	return cmd
}

// envAddCmd はプロジェクトに環境を追加する。
func (c *cli) envAddCmd() *cobra.Command {
	var project, env string
	cmd := &cobra.Command{
		Use:   "env-add",
		Short: "Add an environment to a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			project, err := c.selectProject(ctx, project)
			if err != nil {
				return err
			}
			if env, err = c.askName(env, "What is the name of the new environment?", ""); err != nil {
				return err
			}

			if err := c.projects.AddEnvironment(ctx, project, env); err != nil {
				return err
			}
			c.report.info(fmt.Sprintf("Added environment %s", env))
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "Environment name")
	return cmd
}

// envListCmd はプロジェクトの環境を一覧表示する。
func (c *cli) envListCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "env-list",
		Short: "List environments of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			project, err := c.selectProject(ctx, project)
			if err != nil {
				return err
			}
			envs, err := c.projects.ListEnvironments(ctx, project)
			if err != nil {
				return err
			}
			for _, env := range envs {
				fmt.Fprintln(c.out, env)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	return cmd
}

// projectAddCmd はプロジェクトを追加する。
func (c *cli) projectAddCmd() *cobra.Command {
	var project, env string
	cmd := &cobra.Command{
		Use:   "project-add",
		Short: "Add a project with its own migrations folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			project, err := c.askName(project, "What is the name of the new project?", "")
			if err != nil {
				return err
			}
			if env, err = c.askName(env, "Enter the initial environment name", "development"); err != nil {
				return err
			}

			dir, err := c.projects.AddProject(ctx, project, env)
			if err != nil {
				return err
			}
			c.report.created(dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "Initial environment name")
	return cmd
}

// projectListCmd はプロジェクトを一覧表示する。
func (c *cli) projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "project-list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := c.projects.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(c.out, name)
			}
			return nil
		},
	}
}
