// Package operator identifies the staff member and till driving a request.
// REST callers send a Stock-Operator header; MCP callers send
// _meta.operator in the tool call.
package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// Header is the request header carrying operator identity.
const Header = "Stock-Operator"

// Operator is who made a change. Both fields are optional.
type Operator struct {
	Name    string `json:"name,omitempty"`
	Station string `json:"station,omitempty"`
}

// String formats the operator for audit records: "name@station", or
// whichever part is known.
func (o Operator) String() string {
	switch {
	case o.Name != "" && o.Station != "":
		return o.Name + "@" + o.Station
	case o.Name != "":
		return o.Name
	default:
		return o.Station
	}
}

// IsZero reports whether neither field is set.
func (o Operator) IsZero() bool {
	return o.Name == "" && o.Station == ""
}

// ParseHeader parses a Stock-Operator header value.
// Format: name="alice", station="till-2" (RFC 8941 Dictionary).
//
// Unknown keys and parameters are ignored. At least one of name or station
// must be present, and both must be strings or tokens.
func ParseHeader(header string) (Operator, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Operator{}, errors.New("empty Stock-Operator header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return Operator{}, fmt.Errorf("invalid Stock-Operator header: %w", err)
	}

	var op Operator
	if op.Name, err = textMember(dict, "name"); err != nil {
		return Operator{}, err
	}
	if op.Station, err = textMember(dict, "station"); err != nil {
		return Operator{}, err
	}
	if op.IsZero() {
		return Operator{}, errors.New("Stock-Operator header needs a name or station")
	}
	return op, nil
}

// Header formats o as a Stock-Operator header value.
func (o Operator) Header() (string, error) {
	dict := httpsfv.NewDictionary()
	if o.Name != "" {
		dict.Add("name", httpsfv.NewItem(o.Name))
	}
	if o.Station != "" {
		dict.Add("station", httpsfv.NewItem(o.Station))
	}
	return httpsfv.Marshal(dict)
}

func textMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", nil
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}

	switch v := item.Value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case httpsfv.Token:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s value must be a string", key)
	}
}

type contextKey string

const operatorKey contextKey = "gizmo.operator"

// WithOperator returns a context carrying op.
func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// FromContext returns the operator stored in ctx, or the zero Operator.
func FromContext(ctx context.Context) Operator {
	op, _ := ctx.Value(operatorKey).(Operator)
	return op
}

// FromMCPMeta extracts the operator from MCP request metadata.
// MCP format: {"operator": {"name": "alice", "station": "till-2"}}
func FromMCPMeta(meta map[string]any) Operator {
	raw, ok := meta["operator"].(map[string]any)
	if !ok {
		return Operator{}
	}
	var op Operator
	if v, ok := raw["name"].(string); ok {
		op.Name = strings.TrimSpace(v)
	}
	if v, ok := raw["station"].(string); ok {
		op.Station = strings.TrimSpace(v)
	}
	return op
}
