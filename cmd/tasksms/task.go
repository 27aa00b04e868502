package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasksms/internal/domain"
	"tasksms/internal/engine"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskGetCmd())
	cmd.AddCommand(taskUpdateCmd())
	cmd.AddCommand(taskDeleteCmd())
	cmd.AddCommand(taskHistoryCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "task name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringArrayVar(&opts.Tags, "tag", []string{}, "tag value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Groups, "group", []string{}, "group value (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"GUID", "Name"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.GUID, t.Name})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskGetCmd() *cobra.Command {
	var projection string
	cmd := &cobra.Command{
		Use:   "get <guid>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParseProjection(projection)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0], p)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&projection, "projection", "DETAILS", "SUMMARY, DETAILS or DEEP")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var patch, patchFile, name, description string
	cmd := &cobra.Command{
		Use:   "update <guid>",
		Short: "Apply a JSON Patch to a task",
		Long: `Apply an RFC 6902 patch given with --patch or --patch-file.
--name and --description are shorthands for replace operations.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := buildPatch(cmd, patch, patchFile, name, description)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
					GUID:    args[0],
					Patch:   doc,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&patch, "patch", "", "JSON Patch document")
	cmd.Flags().StringVar(&patchFile, "patch-file", "", "file holding a JSON Patch document")
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func buildPatch(cmd *cobra.Command, patch, patchFile, name, description string) ([]byte, error) {
	switch {
	case patch != "":
		return []byte(patch), nil
	case patchFile != "":
		return os.ReadFile(patchFile)
	}
	var ops []map[string]any
	if cmd.Flags().Changed("name") {
		ops = append(ops, map[string]any{"op": "replace", "path": "/name", "value": name})
	}
	if cmd.Flags().Changed("description") {
		ops = append(ops, map[string]any{"op": "replace", "path": "/description", "value": description})
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("one of --patch, --patch-file, --name or --description is required")
	}
	return json.Marshal(ops)
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <guid>",
		Short: "Delete a task (history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"deleted": args[0]})
			})
		},
	}
}

func taskHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <guid>",
		Short: "Show the audit trail of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.ListHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				printHistory(rows)
				return nil
			})
		},
	}
}

func printTask(t domain.TaskResource) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRow(table.Row{"GUID", t.GUID})
	tw.AppendRow(table.Row{"Name", t.Name})
	if t.CreatedOn != "" {
		tw.AppendRow(table.Row{"Description", t.Description})
		tw.AppendRow(table.Row{"Created", t.CreatedBy + " @ " + t.CreatedOn})
		tw.AppendRow(table.Row{"Modified", t.ModifiedBy + " @ " + t.ModifiedOn})
	}
	if len(t.Groups) > 0 {
		tw.AppendRow(table.Row{"Groups", strings.Join(t.Groups, ", ")})
	}
	if len(t.Tags) > 0 {
		tw.AppendRow(table.Row{"Tags", strings.Join(t.Tags, ", ")})
	}
	tw.Render()
	if len(t.History) > 0 {
		printHistory(t.History)
	}
	return nil
}

func printHistory(rows []domain.History) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Event", "By", "On"})
	for _, h := range rows {
		tw.AppendRow(table.Row{h.ID, h.EventType, h.CreatedBy, h.CreatedOn})
	}
	tw.Render()
}
