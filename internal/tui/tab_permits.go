package tui

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
)

// sortedPermits returns a copy ordered by step order, then id.
func sortedPermits(steps []model.PermitStep) []model.PermitStep {
	out := make([]model.PermitStep, len(steps))
	copy(out, steps)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (a App) renderPermitsTab(cw, h int) string {
	steps := sortedPermits(a.st.Snapshot.PermitSteps)

	approved := 0
	rows := make([][]string, len(steps))
	for i, s := range steps {
		if s.Status == model.StatusApproved {
			approved++
		}
		rows[i] = []string{
			strconv.Itoa(s.Order),
			s.Title,
			statusCell(s.Status),
			cli.FormatDate(s.DateIssued),
		}
	}

	cols := []column{
		{title: "#", width: 3, right: true},
		{title: "Step"},
		{title: "Status", width: 12},
		{title: "Issued", width: 11},
	}
	title := fmt.Sprintf("Building Permit (%d of %d approved)", approved, len(steps))
	return renderList(title, cols, rows, a.cursors[tabPermits], cw, h, "  [enter] next status  [j/k] move")
}
