package telecom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPPaymentProvider posts mobile-money requests to a configured payment
// gateway endpoint. Mobile-money gateways expose plain REST endpoints
// rather than an SDK, so this is built directly on net/http.
type HTTPPaymentProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPPaymentProvider(baseURL, apiKey string) *HTTPPaymentProvider {
	return &HTTPPaymentProvider{baseURL: baseURL, apiKey: apiKey, client: &http.Client{Timeout: 30 * time.Second}}
}

type paymentCreateResponse struct {
	TransactionID string `json:"transaction_id"`
}

func (p *HTTPPaymentProvider) RequestPayment(ctx context.Context, req PaymentRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("payment gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var parsed paymentCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("payment gateway returned malformed response: %w", err)
	}
	return parsed.TransactionID, nil
}

func (p *HTTPPaymentProvider) RefundPayment(ctx context.Context, transactionID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transactions/"+transactionID+"/refund", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("payment gateway refund failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("payment gateway refund returned status %d", resp.StatusCode)
	}
	return nil
}
