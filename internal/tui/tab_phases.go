package tui

import (
	"fmt"
	"strconv"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
)

func (a App) renderPhasesTab(cw, h int) string {
	snap := a.st.Snapshot
	phases := pipeline.SortPhases(snap.Phases)

	spent := make(map[int64]float64)
	for _, e := range snap.Expenses {
		spent[e.Phase] += e.Amount.Float()
	}
	open := make(map[int64]int)
	for _, t := range snap.Tasks {
		if t.Status != model.StatusCompleted {
			open[t.Phase]++
		}
	}

	cols := []column{
		{title: "#", width: 3, right: true},
		{title: "Phase"},
		{title: "Status", width: 12},
		{title: "Open tasks", width: 10, right: true},
		{title: "Estimate", width: 16, right: true},
		{title: "Spent", width: 16, right: true},
		{title: "Dates", width: 25},
	}
	if a.isCompactLayout() {
		cols = cols[:5]
	}

	rows := make([][]string, len(phases))
	for i, p := range phases {
		rows[i] = []string{
			strconv.Itoa(p.Order),
			p.Name,
			statusCell(p.Status),
			strconv.Itoa(open[p.ID]),
			cli.FormatMoney(p.EstimatedBudget.Float()),
			cli.FormatMoney(spent[p.ID]),
			cli.FormatDate(p.StartDate) + " → " + cli.FormatDate(p.EndDate),
		}
	}

	stats := a.derived.Stats
	title := fmt.Sprintf("Phases (%d of %d complete)", stats.CompletedPhases, stats.TotalPhases)
	return renderList(title, cols, rows, a.cursors[tabPhases], cw, h, "  [enter] next status  [j/k] move")
}
