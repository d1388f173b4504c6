package memory

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"farmstand/backend/internal/domain"
	"farmstand/backend/internal/store"
)

// Store is a mutex-guarded in-memory repository used for dev mode (no
// DATABASE_URL) and for tests. CreateSale holds the write lock for the whole
// commit, which gives the same all-or-nothing visibility as the serializable
// database transaction.
type Store struct {
	mu              sync.RWMutex
	items           map[int64]domain.Item
	itemIDByName    map[string]int64
	packaging       map[int64]domain.PackagingMaterial
	sales           []domain.Sale
	purchases       []domain.Purchase
	users           map[string]domain.UserAccount
	nextItemID      int64
	nextPackagingID int64
	nextSaleID      int64
	nextSaleItemID  int64
	nextPurchaseID  int64
}

func New() *Store {
	return &Store{
		items:        make(map[int64]domain.Item),
		itemIDByName: make(map[string]int64),
		packaging:    make(map[int64]domain.PackagingMaterial),
		users:        make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial admin account for dev/demo mode. The password
// is read from SEED_ADMIN_PASSWORD; a hardcoded dev default is used with a
// warning when unset. Production deployments use PostgreSQL instead.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPwd == "" {
		adminPwd = "admin123"
		log.Println("[memory-store] WARNING: using default dev admin credentials. Set SEED_ADMIN_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}

	return map[string]domain.UserAccount{
		"admin": {
			Username:  "admin",
			Password:  string(hash),
			Role:      "admin",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func NewSeeded() *Store {
	s := New()
	s.users = seedUsers()

	for _, m := range []domain.PackagingMaterial{
		{Name: "paper bag", Stock: 200},
		{Name: "cup", Stock: 150},
		{Name: "egg carton", Stock: 60},
	} {
		s.nextPackagingID++
		m.ID = s.nextPackagingID
		s.packaging[m.ID] = m
	}

	for _, item := range []domain.Item{
		{Name: "Chocolate Chip Cookie", Category: "bakery", PriceCents: 350, Stock: 48, Packaging: "paper bag"},
		{Name: "Oatmeal Raisin Cookie", Category: "bakery", PriceCents: 350, Stock: 36, Packaging: "paper bag"},
		{Name: "Sourdough Loaf", Category: "bakery", PriceCents: 900, Stock: 12, Packaging: "paper bag"},
		{Name: "Lemonade", Category: "beverage", PriceCents: 300, Stock: 40, Packaging: "cup"},
		{Name: "Iced Tea", Category: "beverage", PriceCents: 300, Stock: 40, Packaging: "cup"},
		{Name: "Farm Eggs (dozen)", Category: "pantry", PriceCents: 600, Stock: 20, Packaging: "egg carton"},
		{Name: "Strawberry Jam", Category: "pantry", PriceCents: 750, Stock: 15},
		{Name: "Wildflower Honey", Category: "pantry", PriceCents: 1100, Stock: 10},
	} {
		s.nextItemID++
		item.ID = s.nextItemID
		s.items[item.ID] = item
		s.itemIDByName[item.Name] = item.ID
	}

	return s
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (s *Store) GetItemsByIDs(_ context.Context, ids []int64) (map[int64]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Item, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			result[id] = item
		}
	}
	return result, nil
}

func (s *Store) BulkUpsertItems(_ context.Context, items []domain.ItemUpsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before touching anything so a bad row cannot
	// leave a partial import behind.
	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" || strings.TrimSpace(item.Category) == "" || item.PriceCents < 0 {
			return store.ErrInvalidInput
		}
		if item.Stock != nil && *item.Stock < 0 {
			return store.ErrInvalidInput
		}
	}

	for _, upsert := range items {
		name := strings.TrimSpace(upsert.Name)
		if id, exists := s.itemIDByName[name]; exists {
			item := s.items[id]
			item.Category = strings.TrimSpace(upsert.Category)
			item.PriceCents = upsert.PriceCents
			if upsert.Stock != nil {
				item.Stock = *upsert.Stock
			}
			if upsert.Packaging != nil {
				item.Packaging = *upsert.Packaging
			}
			if upsert.ImageURL != nil {
				item.ImageURL = *upsert.ImageURL
			}
			s.items[id] = item
			continue
		}

		s.nextItemID++
		item := domain.Item{
			ID:         s.nextItemID,
			Name:       name,
			Category:   strings.TrimSpace(upsert.Category),
			PriceCents: upsert.PriceCents,
		}
		if upsert.Stock != nil {
			item.Stock = *upsert.Stock
		}
		if upsert.Packaging != nil {
			item.Packaging = *upsert.Packaging
		}
		if upsert.ImageURL != nil {
			item.ImageURL = *upsert.ImageURL
		}
		s.items[item.ID] = item
		s.itemIDByName[name] = item.ID
	}

	return nil
}

func (s *Store) ListPackaging(_ context.Context) ([]domain.PackagingMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	materials := make([]domain.PackagingMaterial, 0, len(s.packaging))
	for _, m := range s.packaging {
		materials = append(materials, m)
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].Name < materials[j].Name })
	return materials, nil
}

func (s *Store) UpdatePackagingStock(_ context.Context, id int64, stock int) (*domain.PackagingMaterial, error) {
	if stock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.packaging[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.Stock = stock
	s.packaging[id] = m
	return &m, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, len(s.sales))
	copy(sales, s.sales)
	sort.Slice(sales, func(i, j int) bool { return sales[i].ID > sales[j].ID })

	for i := range sales {
		lines := make([]domain.SaleItem, len(sales[i].Items))
		copy(lines, sales[i].Items)
		for j := range lines {
			if item, ok := s.items[lines[j].ItemID]; ok {
				detail := item
				lines[j].Item = &detail
			}
		}
		sales[i].Items = lines
	}
	return sales, nil
}

func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validation pass over current state; no mutation happens until every
	// line has cleared the stock guard.
	subtotalCents := int64(0)
	packagingUsage := make(map[string]int, len(draft.Lines))
	required := make(map[int64]int, len(draft.Lines))
	for _, line := range draft.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidSale
		}
		item, exists := s.items[line.ItemID]
		if !exists {
			return nil, fmt.Errorf("%w: item not found: %d", store.ErrInvalidSale, line.ItemID)
		}
		required[line.ItemID] += line.Quantity
		if item.Stock < required[line.ItemID] {
			return nil, fmt.Errorf("%w for %s", store.ErrInsufficientStock, item.Name)
		}
		subtotalCents += item.PriceCents * int64(line.Quantity)
		if item.Packaging != "" {
			packagingUsage[item.Packaging] += line.Quantity
		}
	}

	packagingIDByName := make(map[string]int64, len(packagingUsage))
	for _, m := range s.packaging {
		packagingIDByName[m.Name] = m.ID
	}
	for name, qty := range packagingUsage {
		id, exists := packagingIDByName[name]
		if !exists {
			continue
		}
		if s.packaging[id].Stock < qty {
			return nil, fmt.Errorf("%w for packaging %s", store.ErrInsufficientStock, name)
		}
	}

	taxCents := int64(math.Round(float64(subtotalCents) * draft.TaxRatePercent / 100))

	s.nextSaleID++
	sale := domain.Sale{
		ID:              s.nextSaleID,
		CreatedAt:       time.Now().UTC(),
		PaymentMethod:   draft.PaymentMethod,
		SquarePaymentID: draft.SquarePaymentID,
		SubtotalCents:   subtotalCents,
		TaxCents:        taxCents,
		TotalCents:      subtotalCents + taxCents,
	}

	for _, line := range draft.Lines {
		item := s.items[line.ItemID]
		s.nextSaleItemID++
		sale.Items = append(sale.Items, domain.SaleItem{
			ID:             s.nextSaleItemID,
			SaleID:         sale.ID,
			ItemID:         item.ID,
			Quantity:       line.Quantity,
			UnitPriceCents: item.PriceCents,
			LineTotalCents: item.PriceCents * int64(line.Quantity),
		})
		item.Stock -= line.Quantity
		s.items[item.ID] = item
	}

	for name, qty := range packagingUsage {
		id, exists := packagingIDByName[name]
		if !exists {
			continue
		}
		m := s.packaging[id]
		m.Stock -= qty
		s.packaging[id] = m
	}

	s.sales = append(s.sales, sale)
	return &sale, nil
}

func (s *Store) ListPurchases(_ context.Context) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]domain.Purchase, len(s.purchases))
	copy(purchases, s.purchases)
	sort.Slice(purchases, func(i, j int) bool { return purchases[i].ID > purchases[j].ID })
	return purchases, nil
}

func (s *Store) CreatePurchase(_ context.Context, amountCents int64, description string) (*domain.Purchase, error) {
	if amountCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPurchaseID++
	p := domain.Purchase{
		ID:          s.nextPurchaseID,
		AmountCents: amountCents,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	s.purchases = append(s.purchases, p)
	return &p, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

// AddPackagingMaterial registers a material directly; packaging rows are
// created out of band in production (no REST create endpoint).
func (s *Store) AddPackagingMaterial(name string, stock int) domain.PackagingMaterial {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPackagingID++
	m := domain.PackagingMaterial{ID: s.nextPackagingID, Name: name, Stock: stock}
	s.packaging[m.ID] = m
	return m
}
