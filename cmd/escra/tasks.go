package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"escra/internal/app"
	"escra/internal/domain"
	"escra/internal/engine"
)

// --- contract tasks ---

func contractTaskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage the tasks of a contract"}
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskAddCmd())
	cmd.AddCommand(taskUpdateCmd())
	cmd.AddCommand(taskDeleteCmd())
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <contract-id>",
		Short: "List tasks in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				tasks, err := rt.Engine.ListTasks(ctx, args[0], caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"tasks": tasks})
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Assignee", "Due", "Progress"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Type, t.Status, t.Assignee, t.DueDate, t.Progress})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "add <contract-id>",
		Short: "Add a task to a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ContractID = args[0]
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				opts.Actor = caller
				t, err := rt.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Type, "type", "", "task type (default Task)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status (default To Do)")
	cmd.Flags().StringVar(&opts.Assignee, "assignee", "", "assignee (default Unassigned)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&opts.Subtasks, "subtask", nil, "subtask title (repeatable)")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var p engine.TaskPatch
	var title, description, typ, status, assignee, due string
	cmd := &cobra.Command{
		Use:   "update <contract-id> <task-id>",
		Short: "Change a task",
		Long:  "Changes only the fields whose flags are given. --check flips a subtask between open and done.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			for name, field := range map[string]struct {
				dst **string
				val *string
			}{
				"title":       {&p.Title, &title},
				"description": {&p.Description, &description},
				"type":        {&p.Type, &typ},
				"status":      {&p.Status, &status},
				"assignee":    {&p.Assignee, &assignee},
				"due":         {&p.DueDate, &due},
			} {
				if flags.Changed(name) {
					*field.dst = field.val
				}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				t, err := rt.Engine.UpdateTask(ctx, args[0], args[1], p, caller)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&typ, "type", "", "task type")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&p.AddSubtasks, "subtask", nil, "append a subtask (repeatable)")
	cmd.Flags().StringArrayVar(&p.Toggle, "check", nil, "subtask id to flip (repeatable)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <contract-id> <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				if err := rt.Engine.DeleteTask(ctx, args[0], args[1], caller); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Deleted task %s\n", args[1])
				return nil
			})
		},
	}
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	fmt.Fprintf(stdout, "%s %s [%s] %s, due %s, %s\n", t.ID, t.Title, t.Status, t.Assignee, orDash(t.DueDate), t.Progress)
	for _, st := range t.Subtasks {
		mark := " "
		if st.Completed {
			mark = "x"
		}
		fmt.Fprintf(stdout, "  [%s] %s %s\n", mark, st.ID, st.Title)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// --- comments and activity ---

func contractCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <contract-id> <text>...",
		Short: "Comment on a contract",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				c, err := rt.Engine.AddComment(ctx, args[0], strings.Join(args[1:], " "), caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Fprintf(stdout, "Commented on contract %s\n", args[0])
				return nil
			})
		},
	}
}

func contractCommentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comments <contract-id>",
		Short: "List the comments on a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				comments, err := rt.Engine.ListComments(ctx, args[0], caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"comments": comments})
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Time", "Author", "Comment"})
				for _, c := range comments {
					tw.AppendRow(table.Row{c.CreatedAt, c.Author, c.Content})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func contractActivityCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "activity <contract-id>",
		Short: "Show recent changes to a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				items, err := rt.Engine.ContractActivity(ctx, args[0], n, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Time", "Type", "Actor", "Payload"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.TS, e.Type, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- roles ---

func roleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage stored roles",
		Long: `Roles are admin, creator, editor and viewer. Callers without a stored role get access.default_role.
Assigning roles takes an admin; set user.role: admin in escra.yml to grant the first one.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				list, err := rt.Engine.RoleAssignments(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"roles": list})
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Actor", "Role", "Assigned By", "Assigned"})
				for _, a := range list {
					tw.AppendRow(table.Row{a.ActorID, a.Role, a.AssignedBy, a.AssignedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "assign <actor> <role>",
		Short: "Assign a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				a, err := rt.Engine.AssignRole(ctx, args[0], args[1], caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Fprintf(stdout, "%s is now %s\n", a.ActorID, a.Role)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <actor>",
		Short: "Drop a stored role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				if err := rt.Engine.RevokeRole(ctx, args[0], caller); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Revoked the role of %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}
