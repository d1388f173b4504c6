package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"farmstand/backend/internal/cache"
	"farmstand/backend/internal/domain"
	"farmstand/backend/internal/handoff"
	"farmstand/backend/internal/square"
	"farmstand/backend/internal/store"
)

// ErrSaleFailed marks a failure inside the atomic sale write. Validation
// errors are client mistakes; this one is a server-side condition (including
// a stock guard tripping under a concurrent sale) and maps to a 500.
var ErrSaleFailed = errors.New("sale transaction failed")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	catalogCache   cache.CatalogCache
	cacheTTL       time.Duration
	payments       square.Client
	adapter        *handoff.Adapter
	taxRatePercent float64
}

func New(repo store.Repository, catalogCache cache.CatalogCache, cacheTTL time.Duration, payments square.Client, adapter *handoff.Adapter, taxRatePercent float64) *Service {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	if taxRatePercent < 0 || taxRatePercent > 100 {
		taxRatePercent = 0
	}

	return &Service{
		repo:           repo,
		catalogCache:   catalogCache,
		cacheTTL:       cacheTTL,
		payments:       payments,
		adapter:        adapter,
		taxRatePercent: taxRatePercent,
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	if cached, ok, err := s.catalogCache.GetItems(ctx); err == nil && ok {
		return cached, nil
	}

	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalogCache.SetItems(ctx, items, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: failed to cache catalog: %v", err)
	}
	return items, nil
}

func (s *Service) BulkUpsertItems(ctx context.Context, req domain.BulkUpsertRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if req.Items == nil {
		return fmt.Errorf("%w: items must be an array", store.ErrInvalidInput)
	}

	if err := s.repo.BulkUpsertItems(ctx, req.Items); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	return nil
}

func (s *Service) ListPackaging(ctx context.Context) ([]domain.PackagingMaterial, error) {
	return s.repo.ListPackaging(ctx)
}

func (s *Service) UpdatePackagingStock(ctx context.Context, id int64, req domain.PackagingStockUpdateRequest) (domain.PackagingMaterial, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PackagingMaterial{}, fmt.Errorf("admin role required")
	}
	if req.Stock == nil || *req.Stock < 0 {
		return domain.PackagingMaterial{}, fmt.Errorf("%w: invalid stock value", store.ErrInvalidInput)
	}

	updated, err := s.repo.UpdatePackagingStock(ctx, id, *req.Stock)
	if err != nil {
		return domain.PackagingMaterial{}, err
	}
	return *updated, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

// CreateSale validates the cart in a fixed order (empty cart, payment method
// family, payment reference, unknown items, insufficient stock), then hands
// the draft to the repository for the atomic commit. Prices are snapshotted
// inside the transaction, so the pre-check here only produces early, named
// client errors; the transaction's guarded decrements remain the sole
// correctness mechanism.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.CreateSaleResponse, error) {
	if len(req.Items) == 0 {
		return domain.CreateSaleResponse{}, fmt.Errorf("%w: no items in sale", store.ErrInvalidSale)
	}
	if !strings.HasPrefix(req.PaymentMethod, domain.SquareMethodPrefix) {
		return domain.CreateSaleResponse{}, fmt.Errorf("%w: invalid payment method - Square payments only", store.ErrInvalidSale)
	}
	if strings.TrimSpace(req.SquarePaymentID) == "" {
		return domain.CreateSaleResponse{}, fmt.Errorf("%w: Square payment ID required", store.ErrInvalidSale)
	}

	ids := make([]int64, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return domain.CreateSaleResponse{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidSale)
		}
		ids = append(ids, line.ItemID)
	}

	items, err := s.repo.GetItemsByIDs(ctx, ids)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}
	needed := make(map[int64]int, len(req.Items))
	for _, line := range req.Items {
		item, exists := items[line.ItemID]
		if !exists {
			return domain.CreateSaleResponse{}, fmt.Errorf("%w: item not found: %d", store.ErrInvalidSale, line.ItemID)
		}
		needed[line.ItemID] += line.Quantity
		if item.Stock < needed[line.ItemID] {
			return domain.CreateSaleResponse{}, fmt.Errorf("%w for %s", store.ErrInsufficientStock, item.Name)
		}
	}

	sale, err := s.repo.CreateSale(ctx, domain.SaleDraft{
		Lines:           req.Items,
		PaymentMethod:   req.PaymentMethod,
		SquarePaymentID: strings.TrimSpace(req.SquarePaymentID),
		TaxRatePercent:  s.taxRatePercent,
	})
	if err != nil {
		// Deliberately flattened with %v: a guard trip at commit time is a
		// server-side outcome even though the same condition pre-checked is
		// a client error.
		return domain.CreateSaleResponse{}, fmt.Errorf("%w: %v", ErrSaleFailed, err)
	}

	s.invalidateCatalog(ctx)
	log.Printf("[service] sale %d committed: total=%d method=%s items=%d", sale.ID, sale.TotalCents, sale.PaymentMethod, len(sale.Items))

	return domain.CreateSaleResponse{OK: true, SaleID: sale.ID, TotalCents: sale.TotalCents}, nil
}

func (s *Service) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx)
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.PurchaseCreateResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PurchaseCreateResponse{}, fmt.Errorf("admin role required")
	}
	if req.AmountCents < 1 {
		return domain.PurchaseCreateResponse{}, fmt.Errorf("%w: invalid amount", store.ErrInvalidInput)
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Daily purchase"
	}

	purchase, err := s.repo.CreatePurchase(ctx, req.AmountCents, description)
	if err != nil {
		return domain.PurchaseCreateResponse{}, err
	}

	return domain.PurchaseCreateResponse{OK: true, PurchaseID: purchase.ID, AmountCents: purchase.AmountCents}, nil
}

func (s *Service) CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest) (domain.PaymentIntentResponse, error) {
	if req.AmountCents < 1 {
		return domain.PaymentIntentResponse{}, fmt.Errorf("%w: invalid amount", store.ErrInvalidInput)
	}

	payment, err := s.payments.CreatePayment(ctx, square.CreatePaymentRequest{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Note:        "POS Transaction",
	})
	if err != nil {
		return domain.PaymentIntentResponse{}, err
	}

	return domain.PaymentIntentResponse{OK: true, PaymentID: payment.ID, Status: payment.Status}, nil
}

func (s *Service) ListPaymentMethods(_ context.Context) []domain.PaymentMethodInfo {
	return square.PaymentMethodCatalog()
}

func (s *Service) ListLocations(ctx context.Context) ([]square.Location, error) {
	return s.payments.ListLocations(ctx)
}

// BuildPOSHandoff produces the activation payload that launches the external
// point of sale app for the given amount. The hand-off is registered before
// the payload is returned, so the later callback resolves against the total
// that was active now, not whatever cart exists when the result arrives.
func (s *Service) BuildPOSHandoff(_ context.Context, req domain.HandoffRequest, userAgent string) (domain.HandoffResponse, error) {
	charge, err := s.adapter.Build(req.AmountCents, req.Currency, userAgent)
	if err != nil {
		return domain.HandoffResponse{}, err
	}

	return domain.HandoffResponse{
		OK:        true,
		HandoffID: charge.HandoffID,
		Platform:  charge.Platform.String(),
		LaunchURL: charge.LaunchURL,
	}, nil
}

// ResolvePOSCallback normalizes the external app's result and binds it to the
// pending hand-off, if one is known. The normalized result is returned to the
// register either way; an unparseable payload is an error, never a success.
func (s *Service) ResolvePOSCallback(_ context.Context, handoffID string, params url.Values) (domain.POSCallbackResponse, error) {
	result, err := handoff.ParseResult(params)
	if err != nil {
		return domain.POSCallbackResponse{}, err
	}

	resp := domain.POSCallbackResponse{
		Success:             result.Success,
		ClientTransactionID: result.ClientTransactionID,
		ServerTransactionID: result.ServerTransactionID,
		ErrorCode:           result.ErrorCode,
	}

	if handoffID != "" {
		if pending, ok := s.adapter.Resolve(handoffID, result); ok {
			resp.AmountCents = pending.AmountCents
		} else {
			log.Printf("[service] WARN: callback for unknown or already-resolved hand-off %s", handoffID)
		}
	}

	if result.Success && result.ServerTransactionID == "" {
		// Completed without a card (offline or cash-alternative tender in
		// the external app); valid outcome, logged for the operator.
		log.Printf("[service] hand-off %s completed with no server transaction id", handoffID)
	}

	return resp, nil
}

// DiscardPOSHandoff is invoked when the operator clears the cart before the
// external app reports back. No sale exists for an abandoned hand-off.
func (s *Service) DiscardPOSHandoff(_ context.Context, handoffID string) {
	s.adapter.Discard(handoffID)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalogCache.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: failed to invalidate catalog cache: %v", err)
	}
}
