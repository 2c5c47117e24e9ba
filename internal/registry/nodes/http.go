// Package nodes ships a reference node catalog: demonstration/test
// implementations of the registry.Executable contract, not a
// production catalog — callers supply their own for real deployments.
package nodes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// HTTPConfig holds the subset of HTTP request settings this reference
// node exercises.
type HTTPConfig struct {
	Method string `json:"method"`
	URL string `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout int `json:"timeout,omitempty"` // seconds
}

type httpNode struct {
	cfg HTTPConfig
	client *http.Client
}

// NewHTTPNode() builds the http action node's Constructor.
func NewHTTPNode() registry.Constructor {
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("http node: marshal config: %w", err)
		}
		var cfg HTTPConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("http node: parse config: %w", err)
		}
		if cfg.Method == "" {
			cfg.Method = http.MethodGet
		}
		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return &httpNode{cfg: cfg, client: &http.Client{Timeout: timeout}}, nil
	}
}

func (n *httpNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	url := n.cfg.URL
	if v, ok := nctx.Inputs.Get("url"); ok && v.Kind == value.TypeString {
		url = v.Str
	}
	if url == "" {
		return registry.Errored("http node: url is required", 0), nil
	}

	var body io.Reader
	if v, ok := nctx.Inputs.Get("body"); ok {
		raw, err := json.Marshal(renderValue(v))
		if err != nil {
			return registry.Errored(fmt.Sprintf("http node: encode body: %v", err), 0), nil
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(nctx.Context, n.cfg.Method, url, body)
	if err != nil {
		return registry.Errored(fmt.Sprintf("http node: build request: %v", err), 0), nil
	}
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return registry.Errored(fmt.Sprintf("http node: request failed: %v", err), 1), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return registry.Errored(fmt.Sprintf("http node: read response: %v", err), 1), nil
	}

	var parsed any
	if json.Unmarshal(respBody, &parsed) != nil {
		parsed = string(respBody)
	}

	return registry.Completed(value.NodeRuntimeValues{
			"statusCode": value.Number(float64(resp.StatusCode)),
			"body": value.JSON(parsed),
		}, 1), nil
}

func renderValue(v value.Value) any {
	switch v.Kind {
	case value.TypeString:
		return v.Str
	case value.TypeNumber:
		return v.Num
	case value.TypeBoolean:
		return v.Bool
	case value.TypeJSON, value.TypeGeoJSON:
		return v.Raw
	default:
		return nil
	}
}

// HTTPMeta() is the NodeTypeMeta for registration.
func HTTPMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:http",
		Tags: []string{"action", "network"},
		Inputs: []value.ParameterSpec{
			{Name: "url", Type: value.TypeString, Required: true},
			{Name: "body", Type: value.TypeJSON, Required: false},
		},
		Outputs: []value.ParameterSpec{
			{Name: "statusCode", Type: value.TypeNumber},
			{Name: "body", Type: value.TypeJSON},
		},
		Usage: 1,
		Documentation: "Performs an HTTP request and returns the status code and parsed body.",
	}
}
