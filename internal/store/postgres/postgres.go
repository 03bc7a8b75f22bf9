// Package postgres implements the repository on PostgreSQL via database/sql
// and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vendaflow/backend/internal/domain"
	"vendaflow/backend/internal/store"
	"vendaflow/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.Password == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	user.Email = email

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password, name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		user.ID, user.Email, user.Password, user.Name,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password, name, created_at
		FROM users
		WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&user.ID, &user.Email, &user.Password, &user.Name, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &user, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.OwnerID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, owner_id, name, price_cents, stock, category_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at`,
		product.ID, product.OwnerID, product.Name, product.PriceCents, product.Stock, product.CategoryID,
	).Scan(&product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return &product, nil
}

func (s *Store) GetProduct(ctx context.Context, ownerID string, id string) (*domain.Product, error) {
	var (
		product    domain.Product
		categoryID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, price_cents, stock, category_id, created_at
		FROM products
		WHERE owner_id = $1 AND id = $2`,
		ownerID, id,
	).Scan(&product.ID, &product.OwnerID, &product.Name, &product.PriceCents, &product.Stock, &categoryID, &product.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select product: %w", err)
	}
	product.CategoryID = categoryID.String
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ownerID string, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, owner_id, name, price_cents, stock, category_id, created_at
		FROM products
		WHERE owner_id = $1 AND id IN (%s)`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			product    domain.Product
			categoryID sql.NullString
		)
		if err := rows.Scan(&product.ID, &product.OwnerID, &product.Name, &product.PriceCents, &product.Stock, &categoryID, &product.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		product.CategoryID = categoryID.String
		result[product.ID] = product
	}
	return result, rows.Err()
}

func (s *Store) ListProductsByOwner(ctx context.Context, ownerID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, price_cents, stock, category_id, created_at
		FROM products
		WHERE owner_id = $1
		ORDER BY name`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var (
			product    domain.Product
			categoryID sql.NullString
		)
		if err := rows.Scan(&product.ID, &product.OwnerID, &product.Name, &product.PriceCents, &product.Stock, &categoryID, &product.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		product.CategoryID = categoryID.String
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $3, price_cents = $4, stock = $5, category_id = NULLIF($6, '')
		WHERE owner_id = $1 AND id = $2
		RETURNING created_at`,
		product.OwnerID, product.ID, product.Name, product.PriceCents, product.Stock, product.CategoryID,
	).Scan(&product.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, ownerID string, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM products WHERE owner_id = $1 AND id = $2`,
		ownerID, id,
	)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DecrementStock applies a guarded single-statement decrement. The WHERE
// clause carries the stock check so the read and the write are one atomic
// operation on the database side; two concurrent callers racing for the last
// units can never drive stock negative.
func (s *Store) DecrementStock(ctx context.Context, ownerID string, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $3
		WHERE owner_id = $1 AND id = $2 AND stock >= $3`,
		ownerID, productID, qty,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// No row updated: either the product is gone or the guard rejected it.
	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE owner_id = $1 AND id = $2)`,
		ownerID, productID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, ownerID string, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $3
		WHERE owner_id = $1 AND id = $2`,
		ownerID, productID, qty,
	)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	client.Name = strings.TrimSpace(client.Name)
	if client.OwnerID == "" || client.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if client.ID == "" {
		client.ID = xid.New("client")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO clients (id, owner_id, name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		client.ID, client.OwnerID, client.Name, client.Email, client.Phone, client.Address,
	).Scan(&client.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return &client, nil
}

func (s *Store) GetClient(ctx context.Context, ownerID string, id string) (*domain.Client, error) {
	var client domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, email, phone, address, created_at
		FROM clients
		WHERE owner_id = $1 AND id = $2`,
		ownerID, id,
	).Scan(&client.ID, &client.OwnerID, &client.Name, &client.Email, &client.Phone, &client.Address, &client.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select client: %w", err)
	}
	return &client, nil
}

func (s *Store) ListClientsByOwner(ctx context.Context, ownerID string) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, email, phone, address, created_at
		FROM clients
		WHERE owner_id = $1
		ORDER BY name`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select clients: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0)
	for rows.Next() {
		var client domain.Client
		if err := rows.Scan(&client.ID, &client.OwnerID, &client.Name, &client.Email, &client.Phone, &client.Address, &client.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (s *Store) UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	client.Name = strings.TrimSpace(client.Name)
	if client.ID == "" || client.Name == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE clients
		SET name = $3, email = $4, phone = $5, address = $6
		WHERE owner_id = $1 AND id = $2
		RETURNING created_at`,
		client.OwnerID, client.ID, client.Name, client.Email, client.Phone, client.Address,
	).Scan(&client.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	return &client, nil
}

func (s *Store) DeleteClient(ctx context.Context, ownerID string, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM clients WHERE owner_id = $1 AND id = $2`,
		ownerID, id,
	)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.OwnerID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, owner_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		category.ID, category.OwnerID, category.Name,
	).Scan(&category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return &category, nil
}

func (s *Store) ListCategoriesByOwner(ctx context.Context, ownerID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, created_at
		FROM categories
		WHERE owner_id = $1
		ORDER BY name`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.OwnerID, &category.Name, &category.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// CreateSale persists the sale header and its line items in one transaction.
// occurred_at is assigned by the database clock.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.OwnerID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sale tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (id, owner_id, client_id, total_cents)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING occurred_at`,
		sale.ID, sale.OwnerID, sale.ClientID, sale.TotalCents,
	).Scan(&sale.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("insert sale: %w", err)
	}

	for _, item := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4)`,
			sale.ID, item.ProductID, item.Quantity, item.UnitPriceCents,
		)
		if err != nil {
			return nil, fmt.Errorf("insert sale item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sale tx: %w", err)
	}
	sale.OccurredAt = sale.OccurredAt.UTC()
	return &sale, nil
}

func (s *Store) ListSalesByOwner(ctx context.Context, ownerID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	query := `
		SELECT id, owner_id, COALESCE(client_id, ''), total_cents, occurred_at
		FROM sales
		WHERE owner_id = $1`
	args := []any{ownerID}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND occurred_at < $%d", len(args))
	}
	query += " ORDER BY occurred_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	index := make(map[string]int)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.OwnerID, &sale.ClientID, &sale.TotalCents, &sale.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sale.OccurredAt = sale.OccurredAt.UTC()
		sale.Items = make([]domain.SaleLineItem, 0, 4)
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT si.sale_id, si.product_id, si.quantity, si.unit_price_cents
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.owner_id = $1
		ORDER BY si.sale_id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select sale items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			saleID string
			item   domain.SaleLineItem
		)
		if err := itemRows.Scan(&saleID, &item.ProductID, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		if i, ok := index[saleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	return sales, itemRows.Err()
}

func (s *Store) GetGoals(ctx context.Context, ownerID string) (map[domain.Period]domain.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, period, target_cents, updated_at
		FROM goals
		WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select goals: %w", err)
	}
	defer rows.Close()

	goals := make(map[domain.Period]domain.Goal, 4)
	for rows.Next() {
		var goal domain.Goal
		if err := rows.Scan(&goal.ID, &goal.OwnerID, &goal.Period, &goal.TargetCents, &goal.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals[goal.Period] = goal
	}
	return goals, rows.Err()
}

func (s *Store) UpsertGoal(ctx context.Context, ownerID string, period domain.Period, targetCents int64) (*domain.Goal, error) {
	if ownerID == "" || !period.Valid() || targetCents < 0 {
		return nil, store.ErrInvalidInput
	}

	goal := domain.Goal{OwnerID: ownerID, Period: period, TargetCents: targetCents}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO goals (id, owner_id, period, target_cents, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (owner_id, period)
		DO UPDATE SET target_cents = EXCLUDED.target_cents, updated_at = now()
		RETURNING id, updated_at`,
		xid.New("goal"), ownerID, string(period), targetCents,
	).Scan(&goal.ID, &goal.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert goal: %w", err)
	}
	return &goal, nil
}
