package main

import (
	"context"
	"fmt"

	"dmcs/internal/domain"
	"dmcs/internal/usecase"
)

// selectProject は -p が省略された場合にプロジェクトを選ばせる。
// 単一プロジェクト形式のドキュメントでは選択は不要。
func (c *cli) selectProject(ctx context.Context, project string) (string, error) {
	if project != "" {
		return project, nil
	}
	kind, err := c.projects.DocumentKind(ctx)
	if err != nil {
		return "", err
	}
	if kind == domain.KindSingleProject {
		return "", nil
	}

	names, err := c.projects.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	project, err = c.prompt.choose("Which project would you like to use?", names)
	if err != nil {
		return "", err
	}
	if project == "" {
		return "", fmt.Errorf("%w: no project selected", domain.ErrNothingSelected)
	}
	return project, nil
}

// selectEnv は -e が省略された場合に環境を選ばせる。
func (c *cli) selectEnv(ctx context.Context, project, env, message string) (string, error) {
	if env != "" {
		return env, nil
	}
	names, err := c.projects.ListEnvironments(ctx, project)
	if err != nil {
		return "", err
	}
	env, err = c.prompt.choose(message, names)
	if err != nil {
		return "", err
	}
	if env == "" {
		return "", fmt.Errorf("%w: no environment selected", domain.ErrNothingSelected)
	}
	return env, nil
}

// selectTarget はプロジェクトと環境を順に決める。
func (c *cli) selectTarget(ctx context.Context, project, env, message string) (usecase.Target, error) {
	project, err := c.selectProject(ctx, project)
	if err != nil {
		return usecase.Target{}, err
	}
	env, err = c.selectEnv(ctx, project, env, message)
	if err != nil {
		return usecase.Target{}, err
	}
	return usecase.Target{Project: project, Environment: env}, nil
}

// askName は名前を尋ね、空であれば ErrInvalidName を返す。
func (c *cli) askName(value, message, initial string) (string, error) {
	if value != "" {
		return value, nil
	}
	value, err := c.prompt.ask(message, initial)
	if err != nil {
		return "", err
	}
	if err := domain.ValidateName(value); err != nil {
		return "", err
	}
	return value, nil
}
