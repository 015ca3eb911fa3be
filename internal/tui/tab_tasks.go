package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

// visibleTasks returns the tasks shown under the current status filter.
func (a App) visibleTasks() []model.Task {
	return pipeline.FilterTasks(a.st.Snapshot.Tasks, a.taskFilter, 0)
}

func statusCell(status string) string {
	return lipgloss.NewStyle().Foreground(theme.Active.ForStatus(status)).Render(cli.FormatStatus(status))
}

func (a App) renderTasksTab(cw, h int) string {
	tasks := a.visibleTasks()
	phases := a.st.Snapshot.Phases

	cols := []column{
		{title: "Task"},
		{title: "Phase", width: 16},
		{title: "Status", width: 12},
		{title: "Priority", width: 8},
		{title: "Due", width: 11},
		{title: "Estimate", width: 16, right: true},
	}
	if a.isCompactLayout() {
		cols = []column{
			{title: "Task"},
			{title: "Status", width: 12},
			{title: "Due", width: 11},
		}
	}

	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		if a.isCompactLayout() {
			rows[i] = []string{t.Title, statusCell(t.Status), cli.FormatDate(t.DueDate)}
			continue
		}
		rows[i] = []string{
			t.Title,
			pipeline.PhaseName(phases, t.Phase),
			statusCell(t.Status),
			cli.FormatStatus(t.Priority),
			cli.FormatDate(t.DueDate),
			cli.FormatMoney(t.EstimatedCost.Float()),
		}
	}

	filter := "all"
	if a.taskFilter != "" {
		filter = cli.FormatStatus(a.taskFilter)
	}
	title := fmt.Sprintf("Tasks (%d, %s)", len(tasks), filter)
	footer := "  [enter] next status  [f] filter  [j/k] move"
	return renderList(title, cols, rows, a.cursors[tabTasks], cw, h, footer)
}
