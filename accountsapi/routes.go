package accountsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"scspa/bridge"
)

// Route maps a (resource, method) capability onto an HTTP endpoint. Path
// placeholders such as {billableId} take positional arguments in order; when
// Body is set the next argument becomes the JSON request body.
type Route struct {
	Resource   string
	Method     string
	HTTPMethod string
	Path       string
	Body       bool
}

// Routes are the capabilities exposed to panels.
var Routes = []Route{
	{Resource: "user", Method: "get", HTTPMethod: http.MethodGet, Path: "/user"},
	{Resource: "user", Method: "update", HTTPMethod: http.MethodPatch, Path: "/user", Body: true},
	{Resource: "billableAccounts", Method: "list", HTTPMethod: http.MethodGet, Path: "/billable-accounts"},
	{Resource: "billableAccounts", Method: "get", HTTPMethod: http.MethodGet, Path: "/billable-accounts/{billableId}"},
	{Resource: "billableAccounts", Method: "update", HTTPMethod: http.MethodPatch, Path: "/billable-accounts/{billableId}", Body: true},
	{Resource: "subscriptions", Method: "list", HTTPMethod: http.MethodGet, Path: "/billable-accounts/{billableId}/subscriptions"},
	{Resource: "paymentMethods", Method: "list", HTTPMethod: http.MethodGet, Path: "/billable-accounts/{billableId}/payment-methods"},
	{Resource: "invoices", Method: "list", HTTPMethod: http.MethodGet, Path: "/billable-accounts/{billableId}/invoices"},
}

// Params lists the path placeholders of r in order.
func (r Route) Params() []string {
	var out []string
	rest := r.Path
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return out
		}
		out = append(out, rest[start+1:start+end])
		rest = rest[start+end+1:]
	}
}

// Invoke calls r with positional args and returns the raw JSON result.
func (c *Client) Invoke(ctx context.Context, r Route, args []json.RawMessage) (any, error) {
	path := r.Path
	next := 0
	for _, name := range r.Params() {
		if next >= len(args) {
			return nil, fmt.Errorf("%s.%s: missing argument %s", r.Resource, r.Method, name)
		}
		value, err := pathValue(args[next])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: argument %s: %w", r.Resource, r.Method, name, err)
		}
		path = strings.Replace(path, "{"+name+"}", url.PathEscape(value), 1)
		next++
	}

	var body any
	if r.Body && next < len(args) {
		body = args[next]
	}

	var out json.RawMessage
	if err := c.Do(ctx, r.HTTPMethod, path, body, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Register adds every route to caps, invoking through c.
func Register(caps *bridge.Capabilities, c *Client, routes []Route) error {
	for _, r := range routes {
		err := caps.Register(r.Resource, r.Method, func(ctx context.Context, args []json.RawMessage) (any, error) {
			return c.Invoke(ctx, r, args)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func pathValue(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("expected a string or number, got %s", raw)
}
