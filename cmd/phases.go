package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
)

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "List, update and reorder construction phases",
	RunE:  runPhasesList,
}

var phasesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List phases in order with their spend",
	RunE:  runPhasesList,
}

var phasesStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Set a phase's status (PENDING, IN_PROGRESS, COMPLETED, HALTED)",
	Args:  cobra.ExactArgs(2),
	RunE:  runPhasesStatus,
}

var phasesReorderCmd = &cobra.Command{
	Use:   "reorder <id>...",
	Short: "Set the phase order to the given ids, first to last",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPhasesReorder,
}

func init() {
	phasesCmd.AddCommand(phasesListCmd, phasesStatusCmd, phasesReorderCmd)
	rootCmd.AddCommand(phasesCmd)
}

func runPhasesList(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{Progress: true}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		printPhases(st.Snapshot)
		return nil
	})
}

func printPhases(snap model.Snapshot) {
	phases := pipeline.SortPhases(snap.Phases)
	fmt.Println()
	if len(phases) == 0 {
		fmt.Println("  No phases yet.")
		fmt.Println()
		return
	}

	spent := make(map[int64]float64)
	for _, e := range snap.Expenses {
		spent[e.Phase] += e.Amount.Float()
	}

	completed := 0
	rows := make([][]string, len(phases))
	for i, p := range phases {
		if p.Status == model.StatusCompleted {
			completed++
		}
		rows[i] = []string{
			fmt.Sprintf("%d", p.Order),
			fmt.Sprintf("%d", p.ID),
			cli.Truncate(p.Name, 30),
			cli.RenderStatus(p.Status),
			cli.FormatMoney(p.EstimatedBudget.Float()),
			cli.FormatMoney(spent[p.ID]),
			cli.FormatDate(p.StartDate),
			cli.FormatDate(p.EndDate),
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("Phases (%d of %d complete)", completed, len(phases)),
		Headers: []string{"#", "ID", "Phase", "Status", "Estimate", "Spent", "Start", "End"},
		Rows:    rows,
		Numeric: []bool{true, true, false, false, true, true, false, false},
	}))
	fmt.Println()
}

func findPhase(phases []model.Phase, id int64) (model.Phase, bool) {
	for _, p := range phases {
		if p.ID == id {
			return p, true
		}
	}
	return model.Phase{}, false
}

func runPhasesStatus(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		before, _ := findPhase(st.Snapshot.Phases, id)

		if err := s.mutations.UpdatePhaseStatus(ctx, id, args[1]); err != nil {
			return explain(err)
		}

		after, ok := findPhase(s.provider.Snapshot().Phases, id)
		if !ok {
			fmt.Printf("  Phase %d updated.\n", id)
			return nil
		}
		fmt.Printf("  %s: %s -> %s\n", after.Name, cli.RenderStatus(before.Status), cli.RenderStatus(after.Status))
		return nil
	})
}

func runPhasesReorder(_ *cobra.Command, args []string) error {
	order := make([]api.PhaseOrder, len(args))
	for i, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		order[i] = api.PhaseOrder{ID: id, Order: i + 1}
	}
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		if err := s.client.ReorderPhases(ctx, order); err != nil {
			return explain(err)
		}
		if err := s.provider.RefreshData(ctx, true); err != nil {
			fmt.Println("  " + cli.RenderWarning("Reordered, but reloading failed: "+err.Error()))
			return nil
		}
		printPhases(s.provider.Snapshot())
		return nil
	})
}
