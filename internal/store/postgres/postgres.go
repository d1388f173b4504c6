package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"farmstand/backend/internal/domain"
	"farmstand/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, stock, COALESCE(packaging, ''), COALESCE(image_url, '')
		FROM items
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.PriceCents, &item.Stock, &item.Packaging, &item.ImageURL); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) GetItemsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Item, error) {
	result := make(map[int64]domain.Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, stock, COALESCE(packaging, ''), COALESCE(image_url, '')
		FROM items
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.PriceCents, &item.Stock, &item.Packaging, &item.ImageURL); err != nil {
			return nil, err
		}
		result[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// BulkUpsertItems applies the whole import as one transaction, keyed by the
// unique item name. Absent stock keeps the current value; present stock is an
// absolute set (administrative override, not a decrement).
func (s *Store) BulkUpsertItems(ctx context.Context, items []domain.ItemUpsert) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" || strings.TrimSpace(item.Category) == "" || item.PriceCents < 0 {
			return store.ErrInvalidInput
		}
		if item.Stock != nil && *item.Stock < 0 {
			return store.ErrInvalidInput
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (name, category, price_cents, stock, packaging, image_url, created_at, updated_at)
			VALUES ($1, $2, $3, COALESCE($4, 0), $5, $6, now(), now())
			ON CONFLICT (name) DO UPDATE SET
				category = EXCLUDED.category,
				price_cents = EXCLUDED.price_cents,
				stock = COALESCE($4, items.stock),
				packaging = COALESCE($5, items.packaging),
				image_url = COALESCE($6, items.image_url),
				updated_at = now()
		`, name, strings.TrimSpace(item.Category), item.PriceCents, item.Stock, item.Packaging, item.ImageURL)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListPackaging(ctx context.Context) ([]domain.PackagingMaterial, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stock
		FROM packaging_materials
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	materials := make([]domain.PackagingMaterial, 0, 16)
	for rows.Next() {
		var m domain.PackagingMaterial
		if err := rows.Scan(&m.ID, &m.Name, &m.Stock); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return materials, nil
}

func (s *Store) UpdatePackagingStock(ctx context.Context, id int64, stock int) (*domain.PackagingMaterial, error) {
	if stock < 0 {
		return nil, store.ErrInvalidInput
	}

	var m domain.PackagingMaterial
	err := s.db.QueryRowContext(ctx, `
		UPDATE packaging_materials
		SET stock = $1, updated_at = now()
		WHERE id = $2
		RETURNING id, name, stock
	`, stock, id).Scan(&m.ID, &m.Name, &m.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return &m, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, payment_method, COALESCE(square_payment_id, ''),
		       subtotal_cents, tax_cents, total_cents, amount_tendered_cents, change_due_cents
		FROM sales
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	index := make(map[int64]int, 64)
	for rows.Next() {
		var sale domain.Sale
		var tendered, change sql.NullInt64
		if err := rows.Scan(&sale.ID, &sale.CreatedAt, &sale.PaymentMethod, &sale.SquarePaymentID,
			&sale.SubtotalCents, &sale.TaxCents, &sale.TotalCents, &tendered, &change); err != nil {
			return nil, err
		}
		if tendered.Valid {
			v := tendered.Int64
			sale.AmountTenderedCents = &v
		}
		if change.Valid {
			v := change.Int64
			sale.ChangeDueCents = &v
		}
		sale.Items = []domain.SaleItem{}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(sales) == 0 {
		return sales, nil
	}

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.item_id, si.quantity, si.unit_price_cents, si.line_total_cents,
		       i.id, i.name, i.category, i.price_cents, i.stock, COALESCE(i.packaging, ''), COALESCE(i.image_url, '')
		FROM sale_items si
		JOIN items i ON i.id = si.item_id
		ORDER BY si.sale_id DESC, si.id
	`)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line domain.SaleItem
		var item domain.Item
		if err := lineRows.Scan(&line.ID, &line.SaleID, &line.ItemID, &line.Quantity, &line.UnitPriceCents, &line.LineTotalCents,
			&item.ID, &item.Name, &item.Category, &item.PriceCents, &item.Stock, &item.Packaging, &item.ImageURL); err != nil {
			return nil, err
		}
		line.Item = &item
		if pos, ok := index[line.SaleID]; ok {
			sales[pos].Items = append(sales[pos].Items, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	return sales, nil
}

// CreateSale is the atomic sale commit. Inside one serializable transaction
// it locks the referenced item rows, snapshots prices, inserts the sale and
// its line items, and applies guarded decrements to item and packaging stock.
// Any guard trip rolls back the whole write set; stock can never go negative
// even when concurrent commits both passed their pre-checks.
func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := uniqueItemIDs(draft.Lines)
	itemRows, err := tx.QueryContext(ctx, `
		SELECT id, name, price_cents, stock, COALESCE(packaging, '')
		FROM items
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	itemMap := make(map[int64]domain.Item, len(ids))
	for itemRows.Next() {
		var item domain.Item
		if err := itemRows.Scan(&item.ID, &item.Name, &item.PriceCents, &item.Stock, &item.Packaging); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		itemMap[item.ID] = item
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	subtotalCents := int64(0)
	for _, line := range draft.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidSale
		}
		item, exists := itemMap[line.ItemID]
		if !exists {
			return nil, fmt.Errorf("%w: item not found: %d", store.ErrInvalidSale, line.ItemID)
		}
		if item.Stock < line.Quantity {
			return nil, fmt.Errorf("%w for %s", store.ErrInsufficientStock, item.Name)
		}
		subtotalCents += item.PriceCents * int64(line.Quantity)
	}

	taxCents := int64(math.Round(float64(subtotalCents) * draft.TaxRatePercent / 100))
	totalCents := subtotalCents + taxCents

	sale := domain.Sale{
		PaymentMethod:   draft.PaymentMethod,
		SquarePaymentID: draft.SquarePaymentID,
		SubtotalCents:   subtotalCents,
		TaxCents:        taxCents,
		TotalCents:      totalCents,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (payment_method, square_payment_id, subtotal_cents, tax_cents, total_cents,
		                   amount_tendered_cents, change_due_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, NULL, NULL, now())
		RETURNING id, created_at
	`, sale.PaymentMethod, nullIfEmpty(sale.SquarePaymentID), sale.SubtotalCents, sale.TaxCents, sale.TotalCents).
		Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	packagingUsage := make(map[string]int, len(draft.Lines))
	for _, line := range draft.Lines {
		item := itemMap[line.ItemID]
		lineTotal := item.PriceCents * int64(line.Quantity)

		var saleItem domain.SaleItem
		err = tx.QueryRowContext(ctx, `
			INSERT INTO sale_items (sale_id, item_id, quantity, unit_price_cents, line_total_cents)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, sale.ID, item.ID, line.Quantity, item.PriceCents, lineTotal).Scan(&saleItem.ID)
		if err != nil {
			return nil, err
		}
		saleItem.SaleID = sale.ID
		saleItem.ItemID = item.ID
		saleItem.Quantity = line.Quantity
		saleItem.UnitPriceCents = item.PriceCents
		saleItem.LineTotalCents = lineTotal
		sale.Items = append(sale.Items, saleItem)

		// Guarded decrement: the WHERE clause is the correctness mechanism,
		// not the pre-check above.
		res, err := tx.ExecContext(ctx, `
			UPDATE items
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1
		`, line.Quantity, item.ID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w for %s", store.ErrInsufficientStock, item.Name)
		}

		if item.Packaging != "" {
			packagingUsage[item.Packaging] += line.Quantity
		}
	}

	for _, name := range sortedKeys(packagingUsage) {
		qty := packagingUsage[name]

		var materialID int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM packaging_materials WHERE name = $1 FOR UPDATE
		`, name).Scan(&materialID)
		if errors.Is(err, sql.ErrNoRows) {
			// Item references a material with no inventory row; nothing to
			// decrement.
			continue
		}
		if err != nil {
			return nil, err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE packaging_materials
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1
		`, qty, materialID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w for packaging %s", store.ErrInsufficientStock, name)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, amount_cents, description, created_at
		FROM purchases
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 32)
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.AmountCents, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return purchases, nil
}

func (s *Store) CreatePurchase(ctx context.Context, amountCents int64, description string) (*domain.Purchase, error) {
	if amountCents < 1 {
		return nil, store.ErrInvalidInput
	}

	var p domain.Purchase
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO purchases (amount_cents, description, created_at)
		VALUES ($1, $2, now())
		RETURNING id, amount_cents, description, created_at
	`, amountCents, description).Scan(&p.ID, &p.AmountCents, &p.Description, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $1 WHERE username = $2
	`, password, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueItemIDs(lines []domain.CartLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ItemID]; ok {
			continue
		}
		seen[line.ItemID] = struct{}{}
		ids = append(ids, line.ItemID)
	}
	return ids
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
