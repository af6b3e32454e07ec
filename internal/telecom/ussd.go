package telecom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPUSSDProvider posts a USSD menu response to a configured gateway
// endpoint. USSD gateways expose plain REST callbacks rather than an SDK,
// so this is built directly on net/http, like HTTPPaymentProvider.
type HTTPUSSDProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPUSSDProvider(baseURL, apiKey string) *HTTPUSSDProvider {
	return &HTTPUSSDProvider{baseURL: baseURL, apiKey: apiKey, client: &http.Client{Timeout: 30 * time.Second}}
}

type ussdResponseRequest struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	ExpectInput bool   `json:"expect_input"`
}

func (p *HTTPUSSDProvider) SendResponse(ctx context.Context, sessionID, message string, expectInput bool) error {
	body, err := json.Marshal(ussdResponseRequest{SessionID: sessionID, Message: message, ExpectInput: expectInput})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/ussd/response", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ussd gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ussd gateway returned status %d", resp.StatusCode)
	}
	return nil
}
