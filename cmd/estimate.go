package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/cli"
)

var flagGalleryGroupBy string

var estimateCmd = &cobra.Command{
	Use:   "estimate <wall|concrete|plaster|flooring|budget> key=value...",
	Short: "Run a quantity or cost calculator, e.g. `estimate wall length=20 height=10`",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEstimate,
}

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "List the estimator's unit rates",
	RunE:  runRates,
}

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "List site photos grouped by category or timeline",
	RunE:  runGallery,
}

func init() {
	galleryCmd.Flags().StringVar(&flagGalleryGroupBy, "group-by", "category", "category or timeline")
	estimateCmd.AddCommand(ratesCmd)
	rootCmd.AddCommand(estimateCmd, galleryCmd)
}

func runEstimate(_ *cobra.Command, args []string) error {
	kind := strings.ToLower(args[0])
	input, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		raw, err := s.client.Estimate(ctx, kind, input)
		if err != nil {
			return explain(err)
		}
		fmt.Println()
		fmt.Println(cli.RenderTitle("ESTIMATE  " + strings.ToUpper(kind)))
		fmt.Println()
		return printJSON(raw)
	})
}

type estimatorRate struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit"`
	Rate     any    `json:"rate"`
}

func runRates(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		var rates []estimatorRate
		if err := s.client.List(ctx, api.EstimatorRates, nil, &rates); err != nil {
			return explain(err)
		}
		rows := make([][]string, len(rates))
		for i, r := range rates {
			rows[i] = []string{fmt.Sprintf("%d", r.ID), r.Name, cli.FormatStatus(r.Category), fmt.Sprint(r.Rate), r.Unit}
		}
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   fmt.Sprintf("Estimator rates (%d)", len(rates)),
			Headers: []string{"ID", "Item", "Category", "Rate", "Unit"},
			Rows:    rows,
			Numeric: []bool{true, false, false, true, false},
		}))
		fmt.Println()
		return nil
	})
}

func runGallery(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		raw, err := s.client.Gallery(ctx, flagGalleryGroupBy)
		if err != nil {
			return explain(err)
		}
		return printJSON(raw)
	})
}
