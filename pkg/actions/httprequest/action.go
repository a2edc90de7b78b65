// Package httprequest provides the HTTP request action for workflow steps.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/steplinehq/stepline/pkg/models"
	"github.com/steplinehq/stepline/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrHTTPRequestURLInvalid is returned when the URL is missing or not templatable.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request URL")
	// ErrHTTPRequestFailed is returned when the server answers with an error status.
	ErrHTTPRequestFailed = errors.New("HTTP request returned error status")
)

// Action performs an HTTP request to a templated URL with optional headers
// and body. Failed requests are not retried here: retrying is the engine's
// job, and stacking both would multiply attempts.
type Action struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

// NewAction creates an Action from step configuration.
func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in configuration: %w", ErrHTTPRequestURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	action := &Action{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
	}

	if err := action.validate(); err != nil {
		return nil, err
	}

	return action, nil
}

func (a *Action) validate() error {
	if _, err := template.Parse(a.URL); err != nil {
		return fmt.Errorf("invalid url template: %w", err)
	}

	if _, err := template.Parse(a.Body); err != nil {
		return fmt.Errorf("invalid body template: %w", err)
	}

	for key, value := range a.Headers {
		if _, err := template.Parse(value); err != nil {
			return fmt.Errorf("invalid header '%s' template: %w", key, err)
		}
	}

	return nil
}

// Execute performs the HTTP request and returns the response as step output.
func (a *Action) Execute(ctx context.Context, runCtx models.RunContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "http_request_action")
	logger.InfoContext(ctx, "Executing HTTP request action", "method", a.Method)

	req, err := a.buildRequest(ctx, runCtx, logger)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: a.Timeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	return a.processResponse(ctx, resp, logger)
}

func (a *Action) buildRequest(ctx context.Context, runCtx models.RunContext, logger *slog.Logger) (*http.Request, error) {
	bodyReader, err := a.buildRequestBody(runCtx)
	if err != nil {
		return nil, err
	}

	urlResult, err := template.RenderValue(a.URL, &runCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	url := fmt.Sprintf("%v", urlResult)

	logger.DebugContext(ctx, "Creating HTTP request", "method", a.Method, "url", url)

	req, err := http.NewRequestWithContext(ctx, a.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if err := a.setRequestHeaders(req, runCtx); err != nil {
		return nil, err
	}

	return req, nil
}

func (a *Action) buildRequestBody(runCtx models.RunContext) (io.Reader, error) {
	if a.Body == "" {
		return strings.NewReader(""), nil
	}

	body, err := template.RenderValue(a.Body, &runCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	var bodyBytes []byte
	if str, ok := body.(string); ok {
		bodyBytes = []byte(str)
	} else {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
	}

	return strings.NewReader(string(bodyBytes)), nil
}

func (a *Action) setRequestHeaders(req *http.Request, runCtx models.RunContext) error {
	for key, value := range a.Headers {
		headerResult, err := template.RenderValue(value, &runCtx)
		if err != nil {
			return fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, fmt.Sprintf("%v", headerResult))
	}

	return nil
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (map[string]any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)

		logger.WarnContext(ctx, "Failed to parse response as JSON, returning as string", "error", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %d", ErrHTTPRequestFailed, resp.StatusCode)
	}

	logger.InfoContext(ctx, fmt.Sprintf("HTTP request action completed with status %d, body length: %d",
		resp.StatusCode, len(bodyBytes)))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}, nil
}
