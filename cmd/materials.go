package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
	"github.com/theirongolddev/sitebook/internal/pipeline"
)

var (
	flagEmailQuantity float64
	flagEmailSupplier int64
	flagEmailSubject  string
	flagEmailBody     string
)

var materialsCmd = &cobra.Command{
	Use:     "materials",
	Aliases: []string{"inventory"},
	Short:   "Inventory on site",
	RunE:    runMaterialsList,
}

var materialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List materials with stock and value",
	RunE:  runMaterialsList,
}

var materialsLowCmd = &cobra.Command{
	Use:   "low",
	Short: "List materials at or below their minimum stock",
	RunE:  runMaterialsLow,
}

var materialsRecalcCmd = &cobra.Command{
	Use:   "recalc [id]",
	Short: "Recompute stock from transactions (all materials without an id)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMaterialsRecalc,
}

var materialsEmailCmd = &cobra.Command{
	Use:   "email-supplier <id>",
	Short: "Ask the supplier to restock a material",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaterialsEmail,
}

func init() {
	materialsEmailCmd.Flags().Float64Var(&flagEmailQuantity, "quantity", 0, "Quantity to order (defaults to the shortfall)")
	materialsEmailCmd.Flags().Int64Var(&flagEmailSupplier, "supplier", 0, "Supplier id (defaults to the material's supplier)")
	materialsEmailCmd.Flags().StringVar(&flagEmailSubject, "subject", "", "Email subject")
	materialsEmailCmd.Flags().StringVar(&flagEmailBody, "body", "", "Email body")

	materialsCmd.AddCommand(materialsListCmd, materialsLowCmd, materialsRecalcCmd, materialsEmailCmd)
	rootCmd.AddCommand(materialsCmd)
}

func runMaterialsList(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{Progress: true}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		printMaterials(st.Snapshot)
		return nil
	})
}

func printMaterials(snap model.Snapshot) {
	fmt.Println()
	if len(snap.Materials) == 0 {
		fmt.Println("  No materials tracked yet.")
		fmt.Println()
		return
	}

	low := make(map[int64]bool)
	for _, it := range pipeline.LowStock(snap.Materials, snap.Transactions) {
		low[it.ID] = true
	}

	var total float64
	rows := make([][]string, len(snap.Materials))
	for i, m := range snap.Materials {
		value := m.CurrentStock.Float() * m.AvgCostPerUnit.Float()
		total += value
		stock := cli.FormatQuantity(m.CurrentStock, m.Unit)
		if low[m.ID] {
			stock = cli.RenderWarning(stock)
		}
		rows[i] = []string{
			fmt.Sprintf("%d", m.ID),
			cli.Truncate(m.Name, 30),
			stock,
			cli.FormatQuantity(m.MinStockLevel, m.Unit),
			cli.FormatMoney(m.AvgCostPerUnit.Float()),
			cli.FormatMoney(value),
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("Inventory (%d items, %s)", len(snap.Materials), cli.FormatMoney(total)),
		Headers: []string{"ID", "Material", "Stock", "Minimum", "Avg cost", "Value"},
		Rows:    rows,
		Numeric: []bool{true, false, true, true, true, true},
	}))
	fmt.Println()
}

func runMaterialsLow(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{Progress: true}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		printLowStock(st.Snapshot)
		return nil
	})
}

func printLowStock(snap model.Snapshot) {
	items := pipeline.LowStock(snap.Materials, snap.Transactions)
	fmt.Println()
	if len(items) == 0 {
		fmt.Println("  Every material is above its minimum level.")
		fmt.Println()
		return
	}

	rows := make([][]string, len(items))
	for i, it := range items {
		pending := "-"
		if tx := it.PendingTransaction; tx != nil {
			pending = fmt.Sprintf("%s on %s", cli.FormatQuantity(tx.Quantity, it.Unit), cli.FormatDate(tx.Date))
		}
		rows[i] = []string{
			fmt.Sprintf("%d", it.ID),
			cli.Truncate(it.Name, 30),
			cli.RenderWarning(cli.FormatQuantity(it.CurrentStock, it.Unit)),
			cli.FormatQuantity(it.MinStockLevel, it.Unit),
			pending,
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("Low Stock (%d)", len(items)),
		Headers: []string{"ID", "Material", "Stock", "Minimum", "Pending restock"},
		Rows:    rows,
		Numeric: []bool{true, false, true, true, false},
	}))
	fmt.Println()
}

func runMaterialsRecalc(_ *cobra.Command, args []string) error {
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		if len(args) == 0 {
			raw, err := s.client.RecalculateAllStock(ctx)
			if err != nil {
				return explain(err)
			}
			var res struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(raw, &res) == nil && res.Message != "" {
				fmt.Printf("  %s\n", res.Message)
			} else {
				fmt.Println("  Recalculated stock for every material.")
			}
			return nil
		}

		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		m, err := s.client.RecalculateStock(ctx, id)
		if err != nil {
			return explain(err)
		}
		fmt.Printf("  %s: %s in stock\n", m.Name, cli.FormatQuantity(m.CurrentStock, m.Unit))
		return nil
	})
}

func runMaterialsEmail(_ *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		st, err := s.loadDashboard(ctx)
		if err != nil {
			return explain(err)
		}
		var mat *model.Material
		for i := range st.Snapshot.Materials {
			if st.Snapshot.Materials[i].ID == id {
				mat = &st.Snapshot.Materials[i]
				break
			}
		}
		if mat == nil {
			return fmt.Errorf("material %d not found", id)
		}

		email := restockEmail(*mat, st.Snapshot.Project)
		if flagEmailQuantity > 0 {
			email.Quantity = flagEmailQuantity
		}
		if flagEmailSupplier > 0 {
			email.SupplierID = flagEmailSupplier
		}
		if flagEmailSubject != "" {
			email.Subject = flagEmailSubject
		}
		if flagEmailBody != "" {
			email.Body = flagEmailBody
		}

		if err := s.client.EmailSupplier(ctx, id, email); err != nil {
			return explain(err)
		}
		fmt.Printf("  Restock request for %s sent.\n", cli.FormatQuantity(model.Amount(email.Quantity), mat.Unit)+" "+mat.Name)
		return nil
	})
}

// restockEmail drafts a request for the shortfall below the minimum level,
// or the minimum level itself when the shortfall is zero.
func restockEmail(m model.Material, project *model.Project) api.SupplierEmail {
	qty := m.MinStockLevel.Float() - m.CurrentStock.Float()
	if qty <= 0 {
		qty = m.MinStockLevel.Float()
	}
	site := "our site"
	if project != nil && project.Name != "" {
		site = project.Name
	}
	return api.SupplierEmail{
		Quantity:   qty,
		SupplierID: m.Supplier,
		Subject:    "Restock request: " + m.Name,
		Body: fmt.Sprintf("Please arrange delivery of %s of %s to %s.",
			cli.FormatQuantity(model.Amount(qty), m.Unit), m.Name, site),
	}
}
