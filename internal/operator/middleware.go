package operator

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Middleware stores the request's operator in its context.
// The header is optional; when absent the operator is the configured
// station. A malformed header is rejected with 400 Bad Request.
func Middleware(defaultStation string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := Operator{Station: defaultStation}

			if header := r.Header.Get(Header); header != "" {
				parsed, err := ParseHeader(header)
				if err != nil {
					logger.Warn("invalid Stock-Operator header",
						slog.String("header", header),
						slog.String("error", err.Error()))
					writeHeaderError(w, "Invalid Stock-Operator header: "+err.Error())
					return
				}
				if parsed.Station == "" {
					parsed.Station = defaultStation
				}
				op = parsed
			}

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

// writeHeaderError writes the standard error envelope.
func writeHeaderError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = "INVALID_OPERATOR"
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}
