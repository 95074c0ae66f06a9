package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the external payment gateway. The gateway reserves a
// charge (a payment intent) and later reports its outcome through
// signed webhook events.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type IntentRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	CustomerID  string `json:"customer,omitempty"`
	Description string `json:"description,omitempty"`
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

func (c *Client) CreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("email required")
	}
	var out Customer
	err := c.do(ctx, http.MethodPost, "/v1/customers", map[string]string{"email": email, "name": name}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("gateway returned empty customer id")
	}
	return &out, nil
}

func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, fmt.Errorf("currency required")
	}
	var out Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.ClientSecret == "" {
		return nil, fmt.Errorf("gateway returned incomplete intent")
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}
