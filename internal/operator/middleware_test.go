package operator

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func captureOperator(t *testing.T, header string) (*httptest.ResponseRecorder, Operator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var got Operator
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/products", nil)
	if header != "" {
		req.Header.Set(Header, header)
	}
	w := httptest.NewRecorder()
	Middleware("front-desk", logger)(handler).ServeHTTP(w, req)
	return w, got
}

func TestMiddleware_NoHeaderUsesStation(t *testing.T) {
	w, got := captureOperator(t, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got != (Operator{Station: "front-desk"}) {
		t.Errorf("operator = %+v, want station front-desk", got)
	}
}

func TestMiddleware_HeaderFillsStation(t *testing.T) {
	_, got := captureOperator(t, `name="alice"`)
	if got != (Operator{Name: "alice", Station: "front-desk"}) {
		t.Errorf("operator = %+v", got)
	}

	_, got = captureOperator(t, `name="alice", station="bar"`)
	if got.Station != "bar" {
		t.Errorf("station = %q, want bar", got.Station)
	}
}

func TestMiddleware_InvalidHeader(t *testing.T) {
	w, _ := captureOperator(t, `name=`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "INVALID_OPERATOR" {
		t.Errorf("code = %q, want INVALID_OPERATOR", resp.Error.Code)
	}
}
