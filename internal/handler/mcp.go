// MCP transport for the stock service using the official MCP Go SDK.
// Exposes catalog, edit, apply and session operations as MCP tools.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"gizmo-stock/internal/extract"
	"gizmo-stock/internal/inventory"
	"gizmo-stock/internal/model"
	"gizmo-stock/internal/operator"
	"gizmo-stock/internal/session"
)

// === MCP Tool Input/Output Types ===
// The operator rides in the request's _meta, not in the arguments:
// {"_meta": {"operator": {"name": "alice", "station": "till-2"}}}

// ListProductsInput is the input schema for list_products.
type ListProductsInput struct {
	GroupIDs       []string `json:"groupIds,omitempty" jsonschema:"only products in these groups"`
	IncludeDeleted bool     `json:"includeDeleted,omitempty" jsonschema:"include deleted products"`
	Refresh        bool     `json:"refresh,omitempty" jsonschema:"bypass the product cache"`
}

// ListProductsOutput is the output of list_products.
type ListProductsOutput struct {
	Products []model.Product `json:"products"`
	Count    int             `json:"count"`
}

// SetEditInput is the input schema for set_edit. Values may be numbers or
// numeric strings; a blank string withdraws that field.
type SetEditInput struct {
	ProductID      string `json:"productId" jsonschema:"product ID,required"`
	CountedValue   any    `json:"countedValue,omitempty" jsonschema:"absolute counted stock"`
	AddedValue     any    `json:"addedValue,omitempty" jsonschema:"stock delta, may be negative"`
	WasteValue     any    `json:"wasteValue,omitempty" jsonschema:"units written off"`
	PendingPrice   any    `json:"pendingPrice,omitempty" jsonschema:"new price"`
	PendingCost    any    `json:"pendingCost,omitempty" jsonschema:"new cost"`
	PendingBarcode any    `json:"pendingBarcode,omitempty" jsonschema:"new barcode"`
	PendingName    any    `json:"pendingName,omitempty" jsonschema:"new product name"`
}

// ApplyEditsInput is the input schema for apply_edits.
type ApplyEditsInput struct {
	ProductID string `json:"productId,omitempty" jsonschema:"apply only this product's edit; omit to apply all"`
}

// ApplyEditsOutput is the output of apply_edits.
type ApplyEditsOutput struct {
	Message        string                      `json:"message"`
	Succeeded      int                         `json:"succeeded"`
	Failed         int                         `json:"failed"`
	Unchanged      int                         `json:"unchanged"`
	Partial        bool                        `json:"partial"`
	AllFailed      bool                        `json:"allFailed"`
	FailedProducts []string                    `json:"failedProducts"`
	Categories     []inventory.CategorySummary `json:"categories"`
}

// SessionInput is the (empty) input of the session tools.
type SessionInput struct{}

// SessionOutput describes the counting session.
type SessionOutput struct {
	Status            session.Status `json:"status"`
	ID                string         `json:"id,omitempty"`
	StartedAt         string         `json:"startedAt,omitempty"`
	EndedAt           string         `json:"endedAt,omitempty"`
	TotalChanges      int            `json:"totalChanges"`
	TotalProducts     int            `json:"totalProducts"`
	CountedProductIDs []string       `json:"countedProductIds"`
}

// NewMCPServer creates an MCP server with the stock tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "gizmo-stock",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Gizmo stock counting. List products, record counts and price " +
				"changes with set_edit, then push them to the POS with apply_edits.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List POS products with their current stock, price and cost.",
	}, h.mcpListProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_edit",
		Description: "Record a pending edit for a product. Fields merge into any existing pending edit.",
	}, h.mcpSetEdit)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_edits",
		Description: "Push pending edits to the POS and report per-category results.",
	}, h.mcpApplyEdits)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_session",
		Description: "Start a counting session. Fails if a session already exists.",
	}, h.mcpStartSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "end_session",
		Description: "End the active counting session.",
	}, h.mcpEndSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_status",
		Description: "Describe the counting session and the products counted in it.",
	}, h.mcpSessionStatus)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListProductsInput,
) (*mcp.CallToolResult, ListProductsOutput, error) {
	q := model.ProductQuery{GroupIDs: input.GroupIDs, IncludeDeleted: input.IncludeDeleted}

	list := h.inv.Products
	if input.Refresh {
		list = h.inv.RefreshProducts
	}
	products, err := list(ctx, q)
	if err != nil {
		return nil, ListProductsOutput{}, h.mcpError(err)
	}
	if products == nil {
		products = []model.Product{}
	}
	return nil, ListProductsOutput{Products: products, Count: len(products)}, nil
}

func (h *Handler) mcpSetEdit(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetEditInput,
) (*mcp.CallToolResult, EditView, error) {
	if input.ProductID == "" {
		return nil, EditView{}, fmt.Errorf("productId is required")
	}

	in := extract.EditInput{
		CountedValue:   input.CountedValue,
		AddedValue:     input.AddedValue,
		WasteValue:     input.WasteValue,
		PendingPrice:   input.PendingPrice,
		PendingCost:    input.PendingCost,
		PendingBarcode: input.PendingBarcode,
		PendingName:    input.PendingName,
	}
	merged, err := h.inv.SetEdit(input.ProductID, extract.Edit(in), extract.Cleared(in)...)
	if err != nil {
		return nil, EditView{}, h.mcpError(err)
	}
	return nil, editView(input.ProductID, merged), nil
}

func (h *Handler) mcpApplyEdits(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ApplyEditsInput,
) (*mcp.CallToolResult, ApplyEditsOutput, error) {
	ctx = mcpOperator(ctx, req)

	var summary inventory.Summary
	if input.ProductID != "" {
		var err error
		if summary, err = h.inv.ApplyOne(ctx, input.ProductID); err != nil {
			return nil, ApplyEditsOutput{}, h.mcpError(err)
		}
	} else {
		summary = h.inv.ApplyAll(ctx, nil)
	}

	out := ApplyEditsOutput{
		Message:        summary.Message,
		Succeeded:      summary.Succeeded,
		Failed:         summary.Failed,
		Unchanged:      summary.Unchanged,
		Partial:        summary.Partial,
		AllFailed:      summary.AllFailed,
		FailedProducts: summary.FailedProducts,
		Categories:     summary.Categories,
	}
	if out.FailedProducts == nil {
		out.FailedProducts = []string{}
	}
	if out.Categories == nil {
		out.Categories = []inventory.CategorySummary{}
	}
	return nil, out, nil
}

func (h *Handler) mcpStartSession(
	ctx context.Context,
	req *mcp.CallToolRequest,
	_ SessionInput,
) (*mcp.CallToolResult, SessionOutput, error) {
	sess, err := h.inv.StartSession(ctx)
	if err != nil {
		return nil, SessionOutput{}, h.mcpError(err)
	}
	return nil, h.sessionOutput(sess, true), nil
}

func (h *Handler) mcpEndSession(
	ctx context.Context,
	req *mcp.CallToolRequest,
	_ SessionInput,
) (*mcp.CallToolResult, SessionOutput, error) {
	sess, err := h.inv.EndSession(ctx)
	if err != nil {
		return nil, SessionOutput{}, h.mcpError(err)
	}
	return nil, h.sessionOutput(sess, true), nil
}

func (h *Handler) mcpSessionStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	_ SessionInput,
) (*mcp.CallToolResult, SessionOutput, error) {
	sess, ok := h.inv.Session()
	return nil, h.sessionOutput(sess, ok), nil
}

func (h *Handler) sessionOutput(s session.Session, ok bool) SessionOutput {
	out := SessionOutput{Status: session.StatusNone, CountedProductIDs: h.inv.CountedIDs()}
	if out.CountedProductIDs == nil {
		out.CountedProductIDs = []string{}
	}
	if !ok {
		return out
	}
	out.Status = s.Status
	out.ID = s.ID
	out.StartedAt = s.StartedAt.Format(time.RFC3339)
	if s.EndedAt != nil {
		out.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	out.TotalChanges = s.TotalChanges
	out.TotalProducts = s.TotalProducts
	return out
}

// mcpOperator moves the caller named in _meta.operator into ctx. Without
// one, ctx keeps whatever operator the HTTP middleware attached.
func mcpOperator(ctx context.Context, req *mcp.CallToolRequest) context.Context {
	if req == nil || req.Params == nil {
		return ctx
	}
	op := operator.FromMCPMeta(req.Params.GetMeta())
	if op.IsZero() {
		return ctx
	}
	if op.Station == "" {
		op.Station = operator.FromContext(ctx).Station
	}
	return operator.WithOperator(ctx, op)
}

// mcpError converts service errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	apiErr := model.ToAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError && apiErr.Code == "INTERNAL_ERROR" {
		// Don't leak internal error details
		h.logger.Error("mcp internal error", "error", err.Error())
		return fmt.Errorf("internal error")
	}
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}
