package store

import (
	"context"
	"errors"

	"farmstand/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrInvalidInput      = errors.New("invalid input")
)

// Repository is the storage surface consumed by the service layer. CreateSale
// is the one hard requirement: it must execute the whole sale write set
// (sale row, line items, guarded item and packaging decrements) atomically.
type Repository interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItemsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Item, error)
	BulkUpsertItems(ctx context.Context, items []domain.ItemUpsert) error
	ListPackaging(ctx context.Context) ([]domain.PackagingMaterial, error)
	UpdatePackagingStock(ctx context.Context, id int64, stock int) (*domain.PackagingMaterial, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	ListPurchases(ctx context.Context) ([]domain.Purchase, error)
	CreatePurchase(ctx context.Context, amountCents int64, description string) (*domain.Purchase, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
