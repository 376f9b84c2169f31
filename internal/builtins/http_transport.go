package builtins

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pi-cli/pi/internal/hostcall"
)

// HTTPTransport backs the "http" host call method with go-resty/resty/v2,
// adopted from the sdk/go module's own HTTP client (a dependency carried
// in go.mod but never exercised from any in-repo caller once its SDK
// package was removed; this is its first live use).
type HTTPTransport struct {
	Client *resty.Client
}

// NewHTTPTransport builds an HTTPTransport with a sane default timeout.
func NewHTTPTransport() *HTTPTransport {
	client := resty.New().SetTimeout(30 * time.Second)
	return &HTTPTransport{Client: client}
}

type httpRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Execute implements hostcall.Backend.
func (h *HTTPTransport) Execute(ctx context.Context, req hostcall.Request) (json.RawMessage, error) {
	var r httpRequest
	if err := json.Unmarshal(req.Params, &r); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "malformed http request: "+err.Error())
	}
	if strings.TrimSpace(r.URL) == "" {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "http request requires a url")
	}
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		method = "GET"
	}

	call := h.Client.R().SetContext(ctx)
	for k, v := range r.Headers {
		call.SetHeader(k, v)
	}
	if len(r.Body) > 0 {
		call.SetBody([]byte(r.Body))
	}

	resp, err := call.Execute(method, r.URL)
	if err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}

	return json.Marshal(map[string]any{
		"status":  resp.StatusCode(),
		"headers": resp.Header(),
		"body":    string(resp.Body()),
	})
}
