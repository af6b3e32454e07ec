package telecom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atworkflow/engine/internal/render"
	"github.com/atworkflow/engine/internal/runtime"
)

// httpRequestHandler executes the http_request action node: render the
// URL, headers, and body against the node's input, cap redirects, parse
// JSON responses, and refuse targets that resolve to private addresses.
func httpRequestHandler(sharedClient *http.Client) func(ctx context.Context, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
	return func(ctx context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		method, _ := in.Config["method"].(string)
		method = strings.ToUpper(method)
		if method == "" {
			method = http.MethodGet
		}

		rawURL, _ := in.Config["url"].(string)
		targetURL := render.Render(rawURL, in.Input)
		if targetURL == "" {
			return runtime.HandlerOutput{Err: runtime.NewError("missing_url", "url is required", runtime.ErrorTypeValidation)}
		}
		if err := guardAgainstSSRF(targetURL); err != nil {
			return runtime.HandlerOutput{Err: runtime.NewError("url_not_allowed", err.Error(), runtime.ErrorTypeValidation)}
		}

		var bodyReader io.Reader
		if body, ok := in.Config["body"].(map[string]interface{}); ok {
			rendered := render.RenderMap(body, in.Input)
			blob, err := json.Marshal(rendered)
			if err != nil {
				return runtime.HandlerOutput{Err: runtime.NewError("invalid_body", err.Error(), runtime.ErrorTypeValidation)}
			}
			bodyReader = bytes.NewReader(blob)
		}

		req, err := http.NewRequestWithContext(ctx, method, targetURL, bodyReader)
		if err != nil {
			return runtime.HandlerOutput{Err: runtime.NewError("invalid_request", err.Error(), runtime.ErrorTypeValidation)}
		}
		if bodyReader != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if headers, ok := in.Config["headers"].(map[string]interface{}); ok {
			for k, v := range headers {
				if s, ok := v.(string); ok {
					req.Header.Set(k, render.Render(s, in.Input))
				}
			}
		}

		resp, err := sharedClient.Do(req)
		if err != nil {
			return runtime.HandlerOutput{Err: runtime.NewError("network_error", err.Error(), runtime.ErrorTypeTransient)}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return runtime.HandlerOutput{Err: runtime.NewError("network_error", err.Error(), runtime.ErrorTypeTransient)}
		}

		var parsedBody interface{}
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			if err := json.Unmarshal(respBody, &parsedBody); err != nil {
				parsedBody = string(respBody)
			}
		} else {
			parsedBody = string(respBody)
		}

		output := map[string]interface{}{"status_code": resp.StatusCode, "body": parsedBody}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return runtime.HandlerOutput{Err: runtime.NewError("rate_limited", "upstream returned 429", runtime.ErrorTypeRateLimit)}
		case resp.StatusCode >= 500:
			return runtime.HandlerOutput{Err: runtime.NewError("upstream_error", fmt.Sprintf("upstream returned %d", resp.StatusCode), runtime.ErrorTypeTransient)}
		case resp.StatusCode >= 400:
			return runtime.HandlerOutput{Err: runtime.NewError("upstream_rejected", fmt.Sprintf("upstream returned %d", resp.StatusCode), runtime.ErrorTypePermanent)}
		default:
			return runtime.HandlerOutput{Handle: "success", Output: output}
		}
	}
}

func guardAgainstSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "localhost" {
		return fmt.Errorf("requests to localhost are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
		return fmt.Errorf("requests to private/loopback addresses are not allowed")
	}
	return nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}
