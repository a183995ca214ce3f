package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"gizmo-stock/internal/adapter"
	"gizmo-stock/internal/operator"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Meta      map[string]any  `json:"_meta,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	env := newTestEnv(t, &adapter.Mock{})
	h := New(Config{Inventory: env.svc})

	if server := h.NewMCPServer(); server == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if handler := h.NewMCPHandler(); handler == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	env := newTestEnv(t, &adapter.Mock{})

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test-client", "version": "1.0.0"},
			"capabilities":    map[string]any{},
		},
	}

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	env.mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}
	if resp.Result == nil {
		t.Error("Expected result in response")
	}
}

func TestMCPToolsList(t *testing.T) {
	env := newTestEnv(t, &adapter.Mock{})
	sessionID := initMCPSession(t, env.mux)

	resp := mcpCall(t, env.mux, sessionID, jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	var toolsResult struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expected := map[string]bool{
		"list_products":  false,
		"set_edit":       false,
		"apply_edits":    false,
		"start_session":  false,
		"end_session":    false,
		"session_status": false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expected[tool.Name]; ok {
			expected[tool.Name] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPListProducts(t *testing.T) {
	env := newTestEnv(t, &adapter.Mock{})
	sessionID := initMCPSession(t, env.mux)

	result := callTool(t, env.mux, sessionID, "list_products", map[string]any{}, nil)

	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}
	var out ListProductsOutput
	if err := json.Unmarshal(toolJSON(t, result), &out); err != nil {
		t.Fatalf("Failed to parse output: %v", err)
	}
	if out.Count != 2 || out.Products[1].Name != "Chips" {
		t.Errorf("output = %+v", out)
	}
}

func TestMCPSetEditAndApply(t *testing.T) {
	env := newTestEnv(t, &adapter.Mock{})
	sessionID := initMCPSession(t, env.mux)

	result := callTool(t, env.mux, sessionID, "set_edit", map[string]any{
		"productId":    "1",
		"countedValue": "9",
		"pendingPrice": 2.75,
	}, nil)
	if result.IsError {
		t.Fatalf("set_edit failed: %+v", result.Content)
	}
	var view EditView
	json.Unmarshal(toolJSON(t, result), &view)
	if view.CountedValue == nil || *view.CountedValue != 9 {
		t.Errorf("CountedValue = %v, want 9", view.CountedValue)
	}

	meta := map[string]any{"operator": map[string]any{"name": "bob", "station": "bar"}}
	result = callTool(t, env.mux, sessionID, "apply_edits", map[string]any{}, meta)
	if result.IsError {
		t.Fatalf("apply_edits failed: %+v", result.Content)
	}
	var out ApplyEditsOutput
	json.Unmarshal(toolJSON(t, result), &out)
	if out.Succeeded != 1 || out.Failed != 0 {
		t.Errorf("output = %+v, want 1 succeeded", out)
	}

	entries, err := env.store.Audit(context.Background(), "1", 10)
	if err != nil {
		t.Fatalf("Audit() error: %v", err)
	}
	if len(entries) != 1 || entries[0].ChangedBy != "bob@bar" {
		t.Errorf("audit = %+v, want one price entry by bob@bar", entries)
	}
}

func TestMCPSetEditUnknownProduct(t *testing.T) {
	env := newTestEnv(t, &adapter.Mock{})
	sessionID := initMCPSession(t, env.mux)

	result := callTool(t, env.mux, sessionID, "set_edit", map[string]any{
		"productId":    "nope",
		"countedValue": 1,
	}, nil)

	if !result.IsError {
		t.Fatal("Expected error result for unknown product")
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "NOT_FOUND") {
		t.Errorf("content = %+v, want NOT_FOUND", result.Content)
	}
}

func TestMCPSessionTools(t *testing.T) {
	env := newTestEnv(t, &adapter.Mock{})
	sessionID := initMCPSession(t, env.mux)

	var out SessionOutput
	json.Unmarshal(toolJSON(t, callTool(t, env.mux, sessionID, "session_status", map[string]any{}, nil)), &out)
	if out.Status != "none" {
		t.Errorf("initial status = %s, want none", out.Status)
	}

	result := callTool(t, env.mux, sessionID, "start_session", map[string]any{}, nil)
	json.Unmarshal(toolJSON(t, result), &out)
	if out.Status != "active" || out.ID == "" || out.StartedAt == "" {
		t.Errorf("start = %+v", out)
	}

	if result := callTool(t, env.mux, sessionID, "start_session", map[string]any{}, nil); !result.IsError {
		t.Error("second start_session should fail")
	}

	result = callTool(t, env.mux, sessionID, "end_session", map[string]any{}, nil)
	json.Unmarshal(toolJSON(t, result), &out)
	if out.Status != "completed" || out.EndedAt == "" {
		t.Errorf("end = %+v", out)
	}
}

func TestMCPOperator(t *testing.T) {
	base := operator.WithOperator(context.Background(), operator.Operator{Station: "till-9"})

	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{
		Meta: mcp.Meta{"operator": map[string]any{"name": "carol"}},
	}}
	got := operator.FromContext(mcpOperator(base, req))
	if got.Name != "carol" || got.Station != "till-9" {
		t.Errorf("operator = %+v, want carol@till-9", got)
	}

	if got := operator.FromContext(mcpOperator(base, nil)); got.Station != "till-9" || got.Name != "" {
		t.Errorf("nil request changed operator: %+v", got)
	}
}

// === helpers ===

func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]any{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	sessionID := w.Header().Get("Mcp-Session-Id")

	// Complete the handshake.
	note, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": "notifications/initialized"})
	noteReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(note))
	setMCPHeaders(noteReq, sessionID)
	mux.ServeHTTP(httptest.NewRecorder(), noteReq)

	return sessionID
}

func mcpCall(t *testing.T, mux *http.ServeMux, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args, meta map[string]any) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "tools/call",
		Params:  toolCallParams{Meta: meta, Name: name, Arguments: raw},
	})
	if resp.Error != nil {
		t.Fatalf("%s: unexpected protocol error: %+v", name, resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	return result
}

// toolJSON returns the tool's JSON output, preferring structured content.
func toolJSON(t *testing.T, result callToolResult) []byte {
	t.Helper()
	if len(result.StructuredContent) > 0 {
		return result.StructuredContent
	}
	if len(result.Content) > 0 && result.Content[0].Type == "text" {
		return []byte(result.Content[0].Text)
	}
	t.Fatal("tool result has no content")
	return nil
}
