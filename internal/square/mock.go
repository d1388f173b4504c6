package square

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// mockClient is a deterministic stand-in used when Config.MockMode is set.
// It lets the register run end to end without live provider credentials.
type mockClient struct {
	cfg Config
	seq atomic.Int64
}

func newMockClient(cfg Config) *mockClient {
	if cfg.LocationID == "" {
		cfg.LocationID = "mock-location"
	}
	return &mockClient{cfg: cfg}
}

func (m *mockClient) CreatePayment(_ context.Context, req CreatePaymentRequest) (*Payment, error) {
	if req.AmountCents < 1 {
		return nil, ErrInvalidAmount
	}
	if currency := strings.TrimSpace(req.Currency); currency != "" && len(currency) != 3 {
		return nil, ErrInvalidAmount
	}

	return &Payment{
		ID:     fmt.Sprintf("mock_payment_%d", m.seq.Add(1)),
		Status: "COMPLETED",
	}, nil
}

func (m *mockClient) ListLocations(_ context.Context) ([]Location, error) {
	return []Location{{
		ID:     m.cfg.LocationID,
		Name:   "Mock Location",
		Status: "ACTIVE",
	}}, nil
}
