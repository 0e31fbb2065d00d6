package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// ErrUnavailable covers every way the gateway call can fail: transport
// error, timeout, or a non-2xx response. Callers treat them identically.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Checkout statuses as reported by the gateway.
const (
	StatusSucceeded = "succeeded"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)

// Checkout is the gateway's view of an initiated payment.
type Checkout struct {
	GatewayTransactionID string `json:"gatewayTransactionId"`
	CheckoutURL          string `json:"checkoutUrl"`
	Status               string `json:"status"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
}

// Client is the narrow contract the wallet core has with the external
// payment processor.
type Client interface {
	CreateCheckout(ctx context.Context, accountID, tier string, amount int64, currency string) (*Checkout, error)
	GetCheckoutStatus(ctx context.Context, gatewayTransactionID string) (*Checkout, error)
}

// HTTPClient talks to the gateway's REST API. Timeouts are this client's
// responsibility; callers never wait longer than the configured budget.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient() *HTTPClient {
	viper.SetDefault("gateway.base_url", "https://api.paygate.example.com")
	viper.SetDefault("gateway.timeout", 10*time.Second)

	return &HTTPClient{
		baseURL: viper.GetString("gateway.base_url"),
		apiKey:  viper.GetString("gateway.api_key"),
		client:  &http.Client{Timeout: viper.GetDuration("gateway.timeout")},
	}
}

func (c *HTTPClient) CreateCheckout(ctx context.Context, accountID, tier string, amount int64, currency string) (*Checkout, error) {
	payload, err := json.Marshal(map[string]any{
		"accountId": accountID,
		"tier":      tier,
		"amount":    amount,
		"currency":  currency,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("[GATEWAY] Create checkout request failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("[GATEWAY] Create checkout returned status %d", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out Checkout
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &out, nil
}

func (c *HTTPClient) GetCheckoutStatus(ctx context.Context, gatewayTransactionID string) (*Checkout, error) {
	url := fmt.Sprintf("%s/v1/checkouts/%s", c.baseURL, gatewayTransactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("[GATEWAY] Status lookup failed for %s: %v", gatewayTransactionID, err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[GATEWAY] Status lookup returned status %d for %s", resp.StatusCode, gatewayTransactionID)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out Checkout
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &out, nil
}
