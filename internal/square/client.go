package square

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"farmstand/backend/internal/xid"
)

const apiVersion = "2024-12-18"

var ErrInvalidAmount = errors.New("invalid payment amount")

// Config carries the provider credentials, read once at process start and
// passed in explicitly at construction time.
type Config struct {
	Environment   string // "sandbox" or "production"
	AccessToken   string
	LocationID    string
	ApplicationID string
	MockMode      bool
}

type Payment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Location struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type CreatePaymentRequest struct {
	AmountCents int64
	Currency    string
	Note        string
}

// Client is the payment-provider capability surface the rest of the backend
// depends on. MockMode swaps in a deterministic stub behind this interface.
type Client interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)
	ListLocations(ctx context.Context) ([]Location, error)
}

func NewClient(cfg Config) Client {
	if cfg.MockMode {
		return newMockClient(cfg)
	}

	baseURL := "https://connect.squareup.com"
	if cfg.Environment != "production" {
		baseURL = "https://connect.squareupsandbox.com"
	}

	return &httpClient{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type httpClient struct {
	cfg     Config
	baseURL string
	client  *http.Client
}

func (c *httpClient) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if req.AmountCents < 1 {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	body := map[string]any{
		"source_id":       "cnon",
		"idempotency_key": xid.New("payment"),
		"amount_money": map[string]any{
			"amount":   req.AmountCents,
			"currency": currency,
		},
		"location_id": c.cfg.LocationID,
		"note":        req.Note,
	}

	var resp struct {
		Payment Payment `json:"payment"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/payments", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Payment, nil
}

func (c *httpClient) ListLocations(ctx context.Context) ([]Location, error) {
	var resp struct {
		Locations []Location `json:"locations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/locations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locations, nil
}

func (c *httpClient) do(ctx context.Context, method string, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Square-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var apiErr struct {
			Errors []struct {
				Code   string `json:"code"`
				Detail string `json:"detail"`
			} `json:"errors"`
		}
		if err := json.NewDecoder(res.Body).Decode(&apiErr); err == nil && len(apiErr.Errors) > 0 {
			return fmt.Errorf("square api %s: %s (%s)", res.Status, apiErr.Errors[0].Detail, apiErr.Errors[0].Code)
		}
		return fmt.Errorf("square api %s", res.Status)
	}

	return json.NewDecoder(res.Body).Decode(dest)
}
