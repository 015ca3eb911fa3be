package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
)

var permitsCmd = &cobra.Command{
	Use:   "permits",
	Short: "Track the building permit steps",
	RunE:  runPermitsList,
}

var permitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List permit steps in order",
	RunE:  runPermitsList,
}

var permitsStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Set a permit step's status (PENDING, IN_PROGRESS, APPROVED, REJECTED)",
	Args:  cobra.ExactArgs(2),
	RunE:  runPermitsStatus,
}

var permitsAttachCmd = &cobra.Command{
	Use:   "attach <step-id> <document-id>",
	Short: "Link an uploaded document to a permit step",
	Args:  cobra.ExactArgs(2),
	RunE:  func(_ *cobra.Command, args []string) error { return runPermitDocument(args, true) },
}

var permitsDetachCmd = &cobra.Command{
	Use:   "detach <step-id> <document-id>",
	Short: "Unlink a document from a permit step",
	Args:  cobra.ExactArgs(2),
	RunE:  func(_ *cobra.Command, args []string) error { return runPermitDocument(args, false) },
}

func init() {
	permitsCmd.AddCommand(permitsListCmd, permitsStatusCmd, permitsAttachCmd, permitsDetachCmd)
	rootCmd.AddCommand(permitsCmd)
}

func runPermitsList(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{Progress: true}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		printPermits(st.Snapshot.PermitSteps)
		return nil
	})
}

func printPermits(steps []model.PermitStep) {
	sorted := make([]model.PermitStep, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].ID < sorted[j].ID
	})

	fmt.Println()
	if len(sorted) == 0 {
		fmt.Println("  No permit steps yet.")
		fmt.Println()
		return
	}

	approved := 0
	rows := make([][]string, len(sorted))
	for i, p := range sorted {
		if p.Status == model.StatusApproved {
			approved++
		}
		rows[i] = []string{
			fmt.Sprintf("%d", p.Order),
			fmt.Sprintf("%d", p.ID),
			cli.Truncate(p.Title, 40),
			cli.RenderStatus(p.Status),
			cli.FormatDate(p.DateIssued),
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("Building Permit (%d of %d approved)", approved, len(sorted)),
		Headers: []string{"#", "ID", "Step", "Status", "Issued"},
		Rows:    rows,
		Numeric: []bool{true, true, false, false, false},
	}))
	fmt.Println()
}

func runPermitsStatus(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if _, err := s.loadDashboard(ctx); err != nil {
			return explain(err)
		}
		if err := s.mutations.UpdatePermitStatus(ctx, id, args[1]); err != nil {
			return explain(err)
		}
		for _, p := range s.provider.Snapshot().PermitSteps {
			if p.ID == id {
				fmt.Printf("  %s: %s\n", p.Title, cli.RenderStatus(p.Status))
				return nil
			}
		}
		fmt.Printf("  Permit step %d updated.\n", id)
		return nil
	})
}

func runPermitDocument(args []string, attach bool) error {
	stepID, err := parseID(args[0])
	if err != nil {
		return err
	}
	docID, err := parseID(args[1])
	if err != nil {
		return err
	}
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		if attach {
			err = s.client.AttachPermitDocument(ctx, stepID, docID)
		} else {
			err = s.client.DetachPermitDocument(ctx, stepID, docID)
		}
		if err != nil {
			return explain(err)
		}
		verb := "Detached"
		if attach {
			verb = "Attached"
		}
		fmt.Printf("  %s document %d on permit step %d.\n", verb, docID, stepID)
		return nil
	})
}
