package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"gizmo-stock/internal/operator"
)

func textLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestLoggingStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    []string
	}{
		{
			name: "explicit status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"id":"s1"}`))
			},
			want: []string{"level=INFO", "method=POST", "path=/session", "status=201"},
		},
		{
			name: "implicit 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("ok"))
			},
			want: []string{"status=200"},
		},
		{
			name: "upstream failure logs at warn",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: []string{"level=WARN", "status=502"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := Logging(textLogger(&buf))(tt.handler)

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/session", nil))

			logged := buf.String()
			for _, check := range tt.want {
				if !strings.Contains(logged, check) {
					t.Errorf("log missing %q: %s", check, logged)
				}
			}
		})
	}
}

func TestLoggingIncludesOperatorAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := textLogger(&buf)

	handler := Chain(
		RequestID,
		operator.Middleware("till-1", logger),
		Logging(logger),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("DELETE", "/edits/42", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	req.Header.Set(operator.Header, `name="alice"`)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	logged := buf.String()
	for _, check := range []string{"request_id=req-123", "operator=alice@till-1", "status=204"} {
		if !strings.Contains(logged, check) {
			t.Errorf("log missing %q: %s", check, logged)
		}
	}
	if got := w.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("%s = %q, want req-123", RequestIDHeader, got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", seen, err)
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
}

func TestRecoveryWritesErrorEnvelope(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(textLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("ledger exploded")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/apply", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.Contains(w.Body.String(), `"code":"INTERNAL_ERROR"`) {
		t.Errorf("Body = %s, want INTERNAL_ERROR envelope", w.Body.String())
	}
	logged := buf.String()
	if !strings.Contains(logged, "panic recovered") || !strings.Contains(logged, "ledger exploded") {
		t.Errorf("log missing panic details: %s", logged)
	}
}

func TestRecoveryAfterHeadersSent(t *testing.T) {
	handler := Recovery(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("PK"))
		panic("export failed mid-stream")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/session/export", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "PK" {
		t.Errorf("Body = %q, want the partial body only", w.Body.String())
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+">")
				next.ServeHTTP(w, r)
				order = append(order, "<"+name)
			})
		}
	}

	Chain(tag("a"), tag("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "h")
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got, want := strings.Join(order, " "), "a> b> h <b <a"; got != want {
		t.Errorf("order = %q, want %q", got, want)
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusConflict)
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("x"))

	if rw.status != http.StatusConflict || rec.Code != http.StatusConflict {
		t.Errorf("status = %d/%d, want %d", rw.status, rec.Code, http.StatusConflict)
	}
	if wrapped(rw) != http.ResponseWriter(rw) {
		t.Error("wrapped() re-wrapped an existing responseWriter")
	}
}
