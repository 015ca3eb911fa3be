package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/cli"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload documents and site photos",
}

var uploadDocumentCmd = &cobra.Command{
	Use:   "document <file> [key=value...]",
	Short: "Upload a document, e.g. `title=\"Site plan\" document_type=PERMIT`",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUploadDocument,
}

var uploadTaskMediaCmd = &cobra.Command{
	Use:   "task-media <task-id> <file> [key=value...]",
	Short: "Attach a photo or video to a task",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runUploadTaskMedia,
}

var importCmd = &cobra.Command{
	Use:   "import <file.sql>",
	Short: "Import project data from an SQL file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	uploadCmd.AddCommand(uploadDocumentCmd, uploadTaskMediaCmd)
	rootCmd.AddCommand(uploadCmd, importCmd)
}

func runUploadDocument(_ *cobra.Command, args []string) error {
	fields, err := stringFields(args[1:])
	if err != nil {
		return err
	}
	return upload(api.Documents, args[0], fields)
}

func runUploadTaskMedia(_ *cobra.Command, args []string) error {
	taskID, err := parseID(args[0])
	if err != nil {
		return err
	}
	fields, err := stringFields(args[2:])
	if err != nil {
		return err
	}
	fields["task"] = strconv.FormatInt(taskID, 10)
	return upload(api.TaskMedia, args[1], fields)
}

func upload(res api.Resource, path string, fields map[string]string) error {
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		var created struct {
			ID int64 `json:"id"`
		}
		if err := s.client.UploadPath(ctx, res, path, fields, &created); err != nil {
			return explain(err)
		}
		fmt.Printf("  Uploaded %s (id %d).\n", path, created.ID)
		return nil
	})
}

func runImport(_ *cobra.Command, args []string) error {
	path := args[0]
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		f, err := os.Open(path) //nolint:gosec // user supplied path
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		res, err := s.client.ImportSQL(ctx, path, f)
		if err != nil {
			return explain(err)
		}
		printImport(res)
		if !res.Success {
			return fmt.Errorf("import failed: %d of %d statements executed", res.StatementsExecuted, res.TotalStatements)
		}
		return nil
	})
}

func printImport(res *api.ImportResult) {
	fmt.Println()
	if res.Message != "" {
		fmt.Printf("  %s\n", res.Message)
	}
	fmt.Printf("  Executed %d of %d statements\n", res.StatementsExecuted, res.TotalStatements)
	if len(res.Errors) > 0 {
		rows := make([][]string, len(res.Errors))
		for i, e := range res.Errors {
			rows[i] = []string{strconv.Itoa(e.Index), cli.Truncate(e.Error, 50), cli.Truncate(e.Statement, 40)}
		}
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Failed statements",
			Headers: []string{"#", "Error", "Statement"},
			Rows:    rows,
			Numeric: []bool{true, false, false},
		}))
	}
	if len(res.Preview) > 0 && flagVerbose {
		fmt.Println()
		fmt.Println("  Preview:")
		for _, p := range res.Preview {
			var v any
			if json.Unmarshal(p, &v) == nil {
				b, _ := json.Marshal(v)
				fmt.Printf("    %s\n", b)
			}
		}
	}
	fmt.Println()
}
