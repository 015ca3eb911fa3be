package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Upload is a multipart request: plain form fields plus one file part.
type Upload struct {
	Fields map[string]string
	// FileField defaults to "file".
	FileField string
	FileName  string
	Content   io.Reader
}

// UploadFile posts a multipart form to the collection and decodes the created
// element into out. Used for documents, task media and permit documents.
func (c *Client) UploadFile(ctx context.Context, res Resource, up Upload, out any) error {
	switch res {
	case Documents, TaskMedia, PermitDocuments:
	default:
		return invalid("resource", "%s does not accept uploads", res)
	}
	r, err := multipartRequest(res.Path(), up)
	if err != nil {
		return err
	}
	return c.do(ctx, r, out)
}

// UploadPath opens path and uploads it with the given fields.
func (c *Client) UploadPath(ctx context.Context, res Resource, path string, fields map[string]string, out any) error {
	f, err := os.Open(path) //nolint:gosec // user supplied path
	if err != nil {
		return fmt.Errorf("api: opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return c.UploadFile(ctx, res, Upload{
		Fields:   fields,
		FileName: filepath.Base(path),
		Content:  f,
	}, out)
}

func multipartRequest(path string, up Upload) (request, error) {
	if up.Content == nil || up.FileName == "" {
		return request{}, invalid("file", "a file is required")
	}
	field := up.FileField
	if field == "" {
		field = "file"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(up.Fields))
	for k := range up.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, up.Fields[k]); err != nil {
			return request{}, fmt.Errorf("api: writing field %s: %w", k, err)
		}
	}

	part, err := w.CreateFormFile(field, up.FileName)
	if err != nil {
		return request{}, fmt.Errorf("api: creating file part: %w", err)
	}
	if _, err := io.Copy(part, io.LimitReader(up.Content, maxBodySize*4)); err != nil {
		return request{}, fmt.Errorf("api: reading %s: %w", up.FileName, err)
	}
	if err := w.Close(); err != nil {
		return request{}, fmt.Errorf("api: closing form: %w", err)
	}

	return request{
		method:      http.MethodPost,
		path:        path,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
		auth:        true,
	}, nil
}

// ImportError describes one failed statement of an SQL import.
type ImportError struct {
	Index     int    `json:"index"`
	Error     string `json:"error"`
	Statement string `json:"statement"`
}

// ImportResult is the backend's report on an SQL import.
type ImportResult struct {
	Success            bool              `json:"success"`
	StatementsExecuted int               `json:"statements_executed"`
	TotalStatements    int               `json:"total_statements"`
	Errors             []ImportError     `json:"errors"`
	Preview            []json.RawMessage `json:"preview"`
	Message            string            `json:"message"`
}

// ImportSQL uploads a .sql file for the backend to execute. A rejected import
// (HTTP 400 with a report) is returned as a result with Success=false, not as
// an error.
func (c *Client) ImportSQL(ctx context.Context, fileName string, content io.Reader) (*ImportResult, error) {
	if !strings.EqualFold(filepath.Ext(fileName), ".sql") {
		return nil, invalid("sql_file", "%s is not a .sql file", filepath.Base(fileName))
	}
	r, err := multipartRequest("/import/sql/", Upload{
		FileField: "sql_file",
		FileName:  filepath.Base(fileName),
		Content:   content,
	})
	if err != nil {
		return nil, err
	}

	var result ImportResult
	err = c.do(ctx, r, &result)
	if err == nil {
		return &result, nil
	}

	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadRequest {
		var rejected ImportResult
		if json.Unmarshal([]byte(se.Body), &rejected) == nil &&
			(rejected.TotalStatements > 0 || len(rejected.Errors) > 0 || rejected.Message != "") {
			rejected.Success = false
			return &rejected, nil
		}
	}
	return nil, err
}
