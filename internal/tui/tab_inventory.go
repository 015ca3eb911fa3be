package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

func (a App) renderInventoryTab(cw, h int) string {
	t := theme.Active
	snap := a.st.Snapshot

	pending := make(map[int64]bool)
	for _, it := range a.derived.Budget.LowStockItems {
		pending[it.ID] = it.PendingTransaction != nil
	}
	suppliers := make(map[int64]string, len(snap.Suppliers))
	for _, s := range snap.Suppliers {
		suppliers[s.ID] = s.Name
	}

	lowStyle := lipgloss.NewStyle().Foreground(t.Orange)
	okStyle := lipgloss.NewStyle().Foreground(t.Green)
	cyan := lipgloss.NewStyle().Foreground(t.Cyan)

	cols := []column{
		{title: "Material"},
		{title: "Stock", width: 14, right: true},
		{title: "Minimum", width: 14, right: true},
		{title: "Avg cost", width: 14, right: true},
		{title: "Value", width: 16, right: true},
		{title: "Supplier", width: 16},
		{title: "State", width: 16},
	}
	if a.isCompactLayout() {
		cols = []column{cols[0], cols[1], cols[2], cols[6]}
	}

	rows := make([][]string, len(snap.Materials))
	for i, m := range snap.Materials {
		state := okStyle.Render("OK")
		if isPending, low := pending[m.ID]; low {
			state = lowStyle.Render("Low")
			if isPending {
				state = cyan.Render("Restock pending")
			}
		}
		value := m.CurrentStock.Float() * m.AvgCostPerUnit.Float()
		full := []string{
			m.Name,
			cli.FormatQuantity(m.CurrentStock, m.Unit),
			cli.FormatQuantity(m.MinStockLevel, m.Unit),
			cli.FormatMoney(m.AvgCostPerUnit.Float()),
			cli.FormatMoney(value),
			suppliers[m.Supplier],
			state,
		}
		if a.isCompactLayout() {
			rows[i] = []string{full[0], full[1], full[2], full[6]}
		} else {
			rows[i] = full
		}
	}

	title := fmt.Sprintf("Inventory (%d items, %d low, %s)",
		len(snap.Materials), len(a.derived.Budget.LowStockItems), cli.FormatMoney(a.derived.Budget.InventoryValue))
	return renderList(title, cols, rows, a.cursors[tabInventory], cw, h, "  [j/k] move")
}

