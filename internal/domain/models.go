package domain

import "time"

// Item is a sellable catalog entry. Stock is mutated only by the sale commit
// (guarded decrement) or by an absolute set through the bulk upsert.
type Item struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"priceCents"`
	Stock      int    `json:"stock"`
	Packaging  string `json:"packaging,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

// PackagingMaterial is a consumable (bag, cup, carton) associated with zero
// or one per item and decremented alongside item stock during a sale.
type PackagingMaterial struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

// ItemUpsert is one row of a bulk catalog import, keyed by the unique item
// name. Nil pointer fields leave the existing value untouched on update.
type ItemUpsert struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	PriceCents int64   `json:"priceCents"`
	Stock      *int    `json:"stock,omitempty"`
	Packaging  *string `json:"packaging,omitempty"`
	ImageURL   *string `json:"imageUrl,omitempty"`
}

type BulkUpsertRequest struct {
	Items []ItemUpsert `json:"items"`
}

type PackagingStockUpdateRequest struct {
	Stock *int `json:"stock"`
}

// CartLine is a transient (itemId, quantity) pair built by the register UI
// and consumed by the sale commit. It is never persisted.
type CartLine struct {
	ItemID   int64 `json:"itemId"`
	Quantity int   `json:"quantity"`
}

// Sale is one completed, immutable checkout transaction.
// TotalCents == SubtotalCents + TaxCents always holds.
type Sale struct {
	ID                  int64      `json:"id"`
	CreatedAt           time.Time  `json:"createdAt"`
	PaymentMethod       string     `json:"paymentMethod"`
	SquarePaymentID     string     `json:"squarePaymentId,omitempty"`
	SubtotalCents       int64      `json:"subtotalCents"`
	TaxCents            int64      `json:"taxCents"`
	TotalCents          int64      `json:"totalCents"`
	AmountTenderedCents *int64     `json:"amountTenderedCents"`
	ChangeDueCents      *int64     `json:"changeDueCents"`
	Items               []SaleItem `json:"items"`
}

// SaleItem is a line of a sale. UnitPriceCents is a snapshot of the item
// price at commit time; later price edits never alter historical rows.
type SaleItem struct {
	ID             int64 `json:"id"`
	SaleID         int64 `json:"saleId"`
	ItemID         int64 `json:"itemId"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unitPriceCents"`
	LineTotalCents int64 `json:"lineTotalCents"`
	Item           *Item `json:"item,omitempty"`
}

// SaleDraft is the input to the atomic sale commit. Prices and totals are
// computed inside the transaction from the locked item rows, not trusted
// from the caller.
type SaleDraft struct {
	Lines           []CartLine
	PaymentMethod   string
	SquarePaymentID string
	TaxRatePercent  float64
}

type CreateSaleRequest struct {
	Items                     []CartLine `json:"items"`
	PaymentMethod             string     `json:"paymentMethod"`
	SquarePaymentID           string     `json:"squarePaymentId"`
	SquareClientTransactionID string     `json:"squareClientTransactionId,omitempty"`
}

type CreateSaleResponse struct {
	OK         bool  `json:"ok"`
	SaleID     int64 `json:"saleId"`
	TotalCents int64 `json:"totalCents"`
}

// Purchase is an expense-ledger entry (supplies bought for the stand).
type Purchase struct {
	ID          int64     `json:"id"`
	AmountCents int64     `json:"amountCents"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PurchaseCreateRequest struct {
	AmountCents int64  `json:"amountCents"`
	Description string `json:"description,omitempty"`
}

type PurchaseCreateResponse struct {
	OK          bool  `json:"ok"`
	PurchaseID  int64 `json:"purchaseId"`
	AmountCents int64 `json:"amountCents"`
}

type PaymentIntentRequest struct {
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency,omitempty"`
}

type PaymentIntentResponse struct {
	OK        bool   `json:"ok"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

type PaymentMethodInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type HandoffRequest struct {
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency,omitempty"`
}

type HandoffResponse struct {
	OK        bool   `json:"ok"`
	HandoffID string `json:"handoffId"`
	Platform  string `json:"platform"`
	LaunchURL string `json:"launchUrl"`
}

// POSCallbackResponse is the adapter-normalized result of a point-of-sale
// hand-off. Success with an empty ServerTransactionID means the external app
// completed the tender without a card; it is not a failure.
type POSCallbackResponse struct {
	Success             bool   `json:"success"`
	ClientTransactionID string `json:"clientTransactionId,omitempty"`
	ServerTransactionID string `json:"serverTransactionId,omitempty"`
	ErrorCode           string `json:"errorCode,omitempty"`
	AmountCents         int64  `json:"amountCents,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	// SquareMethodPrefix is the accepted payment-method tag family. The
	// register only records provider-backed tenders; plain cash is rejected
	// by the write path.
	SquareMethodPrefix = "square_"

	PaymentMethodSquarePOS = "square_pos"
)
