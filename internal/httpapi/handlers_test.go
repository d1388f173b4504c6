package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"farmstand/backend/internal/cache"
	"farmstand/backend/internal/domain"
	"farmstand/backend/internal/handoff"
	"farmstand/backend/internal/service"
	"farmstand/backend/internal/square"
	"farmstand/backend/internal/store/memory"
)

const (
	testSecret   = "unit-test-secret-that-is-long-enough-0123456789"
	testPassword = "correct-horse-battery"
	androidUA    = "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile"
)

func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", testPassword)

	repo := memory.NewSeeded()
	payments := square.NewClient(square.Config{MockMode: true, ApplicationID: "sq0idp-test"})
	adapter := handoff.NewAdapter("sq0idp-test", "http://127.0.0.1:8080/api/square/pos-callback", nil)
	svc := service.New(repo, cache.NoopCatalogCache{}, 5*time.Second, payments, adapter, 0)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	return New(svc, auth, "http://127.0.0.1:3000"), repo
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func loginAdmin(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: testPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" || resp.Role != "admin" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	return resp.AccessToken
}

func seededItemID(t *testing.T, handler http.Handler, name string) int64 {
	t.Helper()
	rec := doJSON(t, handler, http.MethodGet, "/api/items", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list items failed: %d", rec.Code)
	}
	var items []domain.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	for _, item := range items {
		if item.Name == name {
			return item.ID
		}
	}
	t.Fatalf("item %q not in catalog", name)
	return 0
}

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListItemsReturnsSeededCatalog(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/items", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []domain.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) == 0 {
		t.Fatalf("expected seeded items")
	}

	// /api/inventory serves the same catalog.
	alias := doJSON(t, handler, http.MethodGet, "/api/inventory", "", nil)
	if alias.Code != http.StatusOK || alias.Body.String() != rec.Body.String() {
		t.Fatalf("inventory alias diverged: %d", alias.Code)
	}
}

func TestCreateSaleEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	itemID := seededItemID(t, handler, "Chocolate Chip Cookie")

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", "", domain.CreateSaleRequest{
		Items:           []domain.CartLine{{ItemID: itemID, Quantity: 2}},
		PaymentMethod:   domain.PaymentMethodSquarePOS,
		SquarePaymentID: "sq-pay-http",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.CreateSaleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.TotalCents != 700 || resp.SaleID == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	list := doJSON(t, handler, http.MethodGet, "/api/sales", "", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list sales failed: %d", list.Code)
	}
	var sales []domain.Sale
	if err := json.Unmarshal(list.Body.Bytes(), &sales); err != nil {
		t.Fatalf("decode sales: %v", err)
	}
	if len(sales) != 1 || sales[0].TotalCents != 700 {
		t.Fatalf("unexpected sales list: %+v", sales)
	}
}

func TestCreateSaleRejectsCashWith400(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	itemID := seededItemID(t, handler, "Lemonade")

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", "", domain.CreateSaleRequest{
		Items:           []domain.CartLine{{ItemID: itemID, Quantity: 1}},
		PaymentMethod:   "cash",
		SquarePaymentID: "sq-pay-http2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Square payments only") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateSaleInsufficientStockWith400(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	itemID := seededItemID(t, handler, "Wildflower Honey")

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", "", domain.CreateSaleRequest{
		Items:           []domain.CartLine{{ItemID: itemID, Quantity: 999}},
		PaymentMethod:   domain.PaymentMethodSquarePOS,
		SquarePaymentID: "sq-pay-http3",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Wildflower Honey") {
		t.Fatalf("expected item named in error, got: %s", rec.Body.String())
	}
}

func TestBulkUpsertRequiresBearerToken(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	body := domain.BulkUpsertRequest{Items: []domain.ItemUpsert{
		{Name: "Apple Cider", Category: "beverage", PriceCents: 450},
	}}

	rec := doJSON(t, handler, http.MethodPost, "/api/items/bulk", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token := loginAdmin(t, handler)
	rec = doJSON(t, handler, http.MethodPost, "/api/items/bulk", token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d: %s", rec.Code, rec.Body.String())
	}

	if id := seededItemID(t, handler, "Apple Cider"); id == 0 {
		t.Fatalf("expected upserted item in catalog")
	}
}

func TestUpdatePackagingStockEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAdmin(t, handler)

	stock := 99
	rec := doJSON(t, handler, http.MethodPut, "/api/packaging/1", token, domain.PackagingStockUpdateRequest{Stock: &stock})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated domain.PackagingMaterial
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode material: %v", err)
	}
	if updated.Stock != 99 {
		t.Fatalf("expected stock 99, got %d", updated.Stock)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/packaging/not-a-number", token, domain.PackagingStockUpdateRequest{Stock: &stock})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/packaging/9999", token, domain.PackagingStockUpdateRequest{Stock: &stock})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown material, got %d", rec.Code)
	}
}

func TestCreatePurchaseRequiresAdmin(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/purchases", "", domain.PurchaseCreateRequest{AmountCents: 1500})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token := loginAdmin(t, handler)
	rec = doJSON(t, handler, http.MethodPost, "/api/purchases", token, domain.PurchaseCreateRequest{AmountCents: 1500, Description: "flour"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	list := doJSON(t, handler, http.MethodGet, "/api/purchases", "", nil)
	if list.Code != http.StatusOK || !strings.Contains(list.Body.String(), "flour") {
		t.Fatalf("expected purchase in ledger: %d %s", list.Code, list.Body.String())
	}
}

func TestCreatePaymentIntentEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/square/create-payment-intent", "", domain.PaymentIntentRequest{AmountCents: 700})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.PaymentIntentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.PaymentID != "mock_payment_1" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/square/create-payment-intent", "", domain.PaymentIntentRequest{AmountCents: 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", rec.Code)
	}
}

func TestPaymentMethodsEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/square/payment-methods", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "CARD") {
		t.Fatalf("expected CARD method listed: %s", rec.Body.String())
	}
}

func TestHandoffEndpointPlatformBranching(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(domain.HandoffRequest{AmountCents: 1250})
	req := httptest.NewRequest(http.MethodPost, "/api/square/handoff", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUA)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.HandoffResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Platform != "android" || !strings.HasPrefix(resp.LaunchURL, "intent:#Intent;") {
		t.Fatalf("unexpected hand-off: %+v", resp)
	}

	// Desktop browsers cannot launch the external app.
	req = httptest.NewRequest(http.MethodPost, "/api/square/handoff", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on desktop, got %d", rec.Code)
	}
}

func TestPOSCallbackResolvesHandoff(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(domain.HandoffRequest{AmountCents: 900})
	req := httptest.NewRequest(http.MethodPost, "/api/square/handoff", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUA)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("hand-off failed: %d", rec.Code)
	}
	var built domain.HandoffResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &built); err != nil {
		t.Fatalf("decode hand-off: %v", err)
	}

	callback := fmt.Sprintf("/api/square/pos-callback?handoff_id=%s&%s=ctid-1&%s=stid-1",
		url.QueryEscape(built.HandoffID),
		url.QueryEscape("com.squareup.pos.CLIENT_TRANSACTION_ID"),
		url.QueryEscape("com.squareup.pos.SERVER_TRANSACTION_ID"))
	rec = doJSON(t, handler, http.MethodGet, callback, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp domain.POSCallbackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode callback: %v", err)
	}
	if !resp.Success || resp.AmountCents != 900 || resp.ServerTransactionID != "stid-1" {
		t.Fatalf("unexpected callback response: %+v", resp)
	}
}

func TestPOSCallbackUnknownFormat(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/square/pos-callback?unrelated=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp domain.POSCallbackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode callback: %v", err)
	}
	if resp.Success || resp.ErrorCode != "UNKNOWN_CALLBACK_FORMAT" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPOSCallbackAcceptsPostedForm(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	form := url.Values{
		"client_transaction_id": {"ctid-ios"},
		"transaction_id":        {"stid-ios"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/square/pos-callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.POSCallbackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode callback: %v", err)
	}
	if !resp.Success || resp.ServerTransactionID != "stid-ios" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandoffDiscardEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(domain.HandoffRequest{AmountCents: 450})
	req := httptest.NewRequest(http.MethodPost, "/api/square/handoff", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUA)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var built domain.HandoffResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &built)

	rec = doJSON(t, handler, http.MethodDelete, "/api/square/handoff/"+built.HandoffID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// The late callback still normalizes but carries no bound amount.
	callback := "/api/square/pos-callback?handoff_id=" + url.QueryEscape(built.HandoffID) +
		"&" + url.QueryEscape("com.squareup.pos.CLIENT_TRANSACTION_ID") + "=ctid-x"
	rec = doJSON(t, handler, http.MethodGet, callback, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp domain.POSCallbackResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.AmountCents != 0 {
		t.Fatalf("expected no bound amount after discard, got %d", resp.AmountCents)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader(`{"bogus":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}
