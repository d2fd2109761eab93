package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

// HTTPRequestExecutor performs a single HTTP request per invocation. Retries
// and timeouts are the engine's concern, applied through the node execution
// policy and the invocation context.
type HTTPRequestExecutor struct {
	url     string
	method  string
	headers map[string]string
	body    string
	client  *http.Client
}

func NewHTTPRequestExecutor(config map[string]any) (*HTTPRequestExecutor, error) {
	e := &HTTPRequestExecutor{
		method:  http.MethodGet,
		headers: make(map[string]string),
		client:  http.DefaultClient,
	}

	url, ok := config["url"].(string)
	if !ok {
		return nil, errors.New("missing required field 'url'")
	}

	e.url = url

	if method, ok := config["method"].(string); ok {
		e.method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if strVal, ok := v.(string); ok {
				e.headers[k] = strVal
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		e.body = body
	}

	return e, nil
}

func (e *HTTPRequestExecutor) Execute(ctx context.Context, node *models.Node, state *models.ExecutionState, ectx *models.ExecutorContext) (*models.ExecutorResult, error) {
	renderedURL, err := template.RenderWithContext(e.url, ectx)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL template: %w", err)
	}

	urlStr, ok := renderedURL.(string)
	if !ok {
		return nil, errors.New("URL template must render to string")
	}

	var reqBody io.Reader

	if e.body != "" {
		rendered, err := template.RenderWithContext(e.body, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		switch v := rendered.(type) {
		case string:
			reqBody = strings.NewReader(v)
		default:
			serialized, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to serialize rendered body: %w", err)
			}

			reqBody = strings.NewReader(string(serialized))
		}
	}

	req, err := http.NewRequestWithContext(ctx, e.method, urlStr, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range e.headers {
		rendered, err := template.RenderWithContext(value, ectx)
		if strVal, ok := rendered.(string); err == nil && ok {
			req.Header.Set(key, strVal)
		} else {
			req.Header.Set(key, value)
		}
	}

	if e.body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		output["json"] = jsonBody
	}

	return &models.ExecutorResult{Output: output}, nil
}
