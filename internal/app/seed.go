package app

import (
	"context"
	"fmt"
	"log/slog"

	"tasksms/internal/engine"
)

// DemoActor owns the rows written by SeedDemo.
const DemoActor = "demo"

var demoTasks = []engine.TaskCreateOptions{
	{Name: "Task1", Description: "DESC"},
	{Name: "Task2", Tags: []string{"A"}},
	{Name: "Task3", Tags: []string{"A", "B"}, Groups: []string{"1"}},
}

// SeedDemo creates the demo tasks when the task table is empty and returns
// how many were created.
func SeedDemo(ctx context.Context, eng engine.Engine, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n, err := eng.Repo.CountTasks(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("demo seed skipped", slog.Int("existing_tasks", n))
		return 0, nil
	}
	for i, opts := range demoTasks {
		opts.ActorID = DemoActor
		res, err := eng.CreateTask(ctx, opts)
		if err != nil {
			return i, fmt.Errorf("seed %s: %w", opts.Name, err)
		}
		logger.Info("demo task created", slog.String("guid", res.GUID), slog.String("name", res.Name))
	}
	return len(demoTasks), nil
}
