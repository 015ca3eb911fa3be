package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
)

var (
	flagTaskStatus string
	flagTaskPhase  int64
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List and update tasks",
	RunE:  runTasksList,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by status or phase",
	RunE:  runTasksList,
}

var tasksStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Set a task's status (PENDING, IN_PROGRESS, COMPLETED, BLOCKED)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTasksStatus,
}

var tasksUpdateCmd = &cobra.Command{
	Use:   "update <id> key=value...",
	Short: "Patch task fields, e.g. `priority=HIGH due_date=2024-07-01`",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTasksUpdate,
}

func init() {
	tasksCmd.PersistentFlags().StringVarP(&flagTaskStatus, "status", "s", "", "Filter by status")
	tasksCmd.PersistentFlags().Int64Var(&flagTaskPhase, "phase", 0, "Filter by phase id")

	tasksCmd.AddCommand(tasksListCmd, tasksStatusCmd, tasksUpdateCmd)
	rootCmd.AddCommand(tasksCmd)
}

func runTasksList(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{Progress: true}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		status := strings.ToUpper(strings.TrimSpace(flagTaskStatus))
		tasks := pipeline.FilterTasks(st.Snapshot.Tasks, status, flagTaskPhase)
		printTasks(tasks, st.Snapshot.Phases)
		return nil
	})
}

func printTasks(tasks []model.Task, phases []model.Phase) {
	fmt.Println()
	if len(tasks) == 0 {
		fmt.Println("  No tasks match.")
		fmt.Println()
		return
	}

	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		rows[i] = []string{
			fmt.Sprintf("%d", t.ID),
			cli.Truncate(t.Title, 40),
			cli.Truncate(pipeline.PhaseName(phases, t.Phase), 20),
			cli.RenderStatus(t.Status),
			cli.FormatStatus(t.Priority),
			cli.FormatDate(t.DueDate),
			cli.FormatMoney(t.EstimatedCost.Float()),
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("Tasks (%d)", len(tasks)),
		Headers: []string{"ID", "Title", "Phase", "Status", "Priority", "Due", "Estimate"},
		Rows:    rows,
		Numeric: []bool{true, false, false, false, false, false, true},
	}))
	fmt.Println()
}

func findTask(tasks []model.Task, id int64) (model.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

func runTasksStatus(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		before, _ := findTask(st.Snapshot.Tasks, id)

		if err := s.mutations.UpdateTaskStatus(ctx, id, args[1]); err != nil {
			return explain(err)
		}

		after, ok := findTask(s.provider.Snapshot().Tasks, id)
		if !ok {
			fmt.Printf("  Task %d updated.\n", id)
			return nil
		}
		fmt.Printf("  %s: %s -> %s\n", after.Title, cli.RenderStatus(before.Status), cli.RenderStatus(after.Status))
		return nil
	})
}

func runTasksUpdate(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	patch, err := parseFieldsFor(model.Task{}, args[1:])
	if err != nil {
		return err
	}
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if _, err := s.loadDashboard(ctx); err != nil {
			return explain(err)
		}
		if err := s.mutations.UpdateTask(ctx, id, patch); err != nil {
			return explain(err)
		}
		if t, ok := findTask(s.provider.Snapshot().Tasks, id); ok {
			printTasks([]model.Task{t}, s.provider.Snapshot().Phases)
		} else {
			fmt.Printf("  Task %d updated.\n", id)
		}
		return nil
	})
}
