package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/theirongolddev/sitebook/internal/model"
)

// Resource is a REST collection under the API root.
type Resource string

// Collections exposed by the backend.
const (
	Phases               Resource = "phases"
	Tasks                Resource = "tasks"
	Expenses             Resource = "expenses"
	Payments             Resource = "payments"
	Contractors          Resource = "contractors"
	Suppliers            Resource = "suppliers"
	Materials            Resource = "materials"
	FundingSources       Resource = "funding-sources"
	FundingTransactions  Resource = "funding-transactions"
	PermitSteps          Resource = "permits/steps"
	PermitDocuments      Resource = "permits/documents"
	EstimatorRates       Resource = "estimator/rates"
	Documents            Resource = "documents"
	TaskMedia            Resource = "task-media"
	BudgetCategories     Resource = "budget-categories"
	Floors               Resource = "floors"
	Rooms                Resource = "rooms"
	MaterialTransactions Resource = "material-transactions"
	Projects             Resource = "projects"
	Updates              Resource = "updates"
)

// Resources lists every collection, in display order.
var Resources = []Resource{
	Projects, Phases, Tasks, Expenses, Payments, BudgetCategories,
	FundingSources, FundingTransactions, Materials, MaterialTransactions,
	Suppliers, Contractors, Floors, Rooms, PermitSteps, PermitDocuments,
	Documents, TaskMedia, EstimatorRates, Updates,
}

// ParseResource returns the resource named s.
func ParseResource(s string) (Resource, error) {
	for _, r := range Resources {
		if string(r) == s {
			return r, nil
		}
	}
	return "", invalid("resource", "unknown resource %q", s)
}

// Path returns the collection path, e.g. "/tasks/".
func (r Resource) Path() string {
	return "/" + string(r) + "/"
}

// ItemPath returns the path of one element, e.g. "/tasks/12/".
func (r Resource) ItemPath(id int64) string {
	return r.Path() + strconv.FormatInt(id, 10) + "/"
}

// List decodes the collection into out. Paginated responses
// ({"results": [...]}) are unwrapped.
func (c *Client) List(ctx context.Context, res Resource, query url.Values, out any) error {
	body, err := c.send(ctx, request{method: http.MethodGet, path: res.Path(), query: query, auth: true})
	if err != nil {
		return err
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var page struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(body, &page); err == nil && page.Results != nil {
			body = page.Results
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("api: decoding %s: %w", res, err)
	}
	return nil
}

// Get decodes one element into out.
func (c *Client) Get(ctx context.Context, res Resource, id int64, out any) error {
	return c.do(ctx, request{method: http.MethodGet, path: res.ItemPath(id), auth: true}, out)
}

// Create posts payload and decodes the created element into out.
func (c *Client) Create(ctx context.Context, res Resource, payload, out any) error {
	return c.sendJSON(ctx, http.MethodPost, res.Path(), payload, out)
}

// Update partially updates an element (PATCH).
func (c *Client) Update(ctx context.Context, res Resource, id int64, patch, out any) error {
	return c.sendJSON(ctx, http.MethodPatch, res.ItemPath(id), patch, out)
}

// Replace fully updates an element (PUT).
func (c *Client) Replace(ctx context.Context, res Resource, id int64, payload, out any) error {
	return c.sendJSON(ctx, http.MethodPut, res.ItemPath(id), payload, out)
}

// Delete removes an element.
func (c *Client) Delete(ctx context.Context, res Resource, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: res.ItemPath(id), auth: true}, nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload, out any) error {
	r, err := jsonRequest(method, path, payload)
	if err != nil {
		return err
	}
	return c.do(ctx, r, out)
}

// Dashboard fetches the combined dashboard snapshot.
func (c *Client) Dashboard(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := c.do(ctx, request{method: http.MethodGet, path: "/dashboard/combined/", auth: true}, &snap)
	return snap, err
}

// PhaseOrder is one entry of a reorder request.
type PhaseOrder struct {
	ID    int64 `json:"id"`
	Order int   `json:"order"`
}

// ReorderPhases sets the display order of phases.
func (c *Client) ReorderPhases(ctx context.Context, order []PhaseOrder) error {
	if len(order) == 0 {
		return invalid("order", "at least one phase is required")
	}
	return c.sendJSON(ctx, http.MethodPost, "/phases/reorder/", map[string]any{"order": order}, nil)
}

// RecalculateStock recomputes a material's stock from its transactions.
func (c *Client) RecalculateStock(ctx context.Context, materialID int64) (model.Material, error) {
	var m model.Material
	err := c.sendJSON(ctx, http.MethodPost, Materials.ItemPath(materialID)+"recalculate_stock/", nil, &m)
	return m, err
}

// RecalculateAllStock recomputes every material's stock.
func (c *Client) RecalculateAllStock(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.sendJSON(ctx, http.MethodPost, Materials.Path()+"recalculate_all/", nil, &raw)
	return raw, err
}

// SupplierEmail asks the backend to email a supplier for a restock.
type SupplierEmail struct {
	Quantity   float64 `json:"quantity"`
	SupplierID int64   `json:"supplier_id"`
	Subject    string  `json:"subject"`
	Body       string  `json:"body"`
}

// EmailSupplier sends a restock email for a material.
func (c *Client) EmailSupplier(ctx context.Context, materialID int64, email SupplierEmail) error {
	if email.SupplierID == 0 {
		return invalid("supplier_id", "a supplier is required")
	}
	if email.Quantity <= 0 {
		return invalid("quantity", "must be positive")
	}
	return c.sendJSON(ctx, http.MethodPost, Materials.ItemPath(materialID)+"email_supplier/", email, nil)
}

// AttachPermitDocument links a document to a permit step.
func (c *Client) AttachPermitDocument(ctx context.Context, stepID, documentID int64) error {
	return c.sendJSON(ctx, http.MethodPost, PermitSteps.ItemPath(stepID)+"attach_document/",
		map[string]int64{"document_id": documentID}, nil)
}

// DetachPermitDocument unlinks a document from a permit step.
func (c *Client) DetachPermitDocument(ctx context.Context, stepID, documentID int64) error {
	return c.sendJSON(ctx, http.MethodPost, PermitSteps.ItemPath(stepID)+"detach_document/",
		map[string]int64{"document_id": documentID}, nil)
}

// Gallery returns site photos grouped by groupBy ("category", "timeline"...).
func (c *Client) Gallery(ctx context.Context, groupBy string) (json.RawMessage, error) {
	if groupBy == "" {
		groupBy = "category"
	}
	var raw json.RawMessage
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/gallery/",
		query:  url.Values{"group_by": {groupBy}},
		auth:   true,
	}, &raw)
	return raw, err
}

// ExpenseOverview returns the backend's budget overview.
func (c *Client) ExpenseOverview(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{method: http.MethodGet, path: Expenses.Path() + "overview/", auth: true}, &raw)
	return raw, err
}

// Estimator calculators.
const (
	EstimateWall     = "wall"
	EstimateConcrete = "concrete"
	EstimatePlaster  = "plaster"
	EstimateFlooring = "flooring"
	EstimateBudget   = "budget"
)

// Estimate runs one of the backend's quantity/cost calculators.
func (c *Client) Estimate(ctx context.Context, kind string, input map[string]any) (json.RawMessage, error) {
	switch kind {
	case EstimateWall, EstimateConcrete, EstimatePlaster, EstimateFlooring, EstimateBudget:
	default:
		return nil, invalid("estimator", "unknown calculator %q", kind)
	}
	var raw json.RawMessage
	err := c.sendJSON(ctx, http.MethodPost, "/estimator/"+kind+"/", input, &raw)
	return raw, err
}
