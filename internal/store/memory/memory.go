package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vendaflow/backend/internal/domain"
	"vendaflow/backend/internal/store"
	"vendaflow/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	usersByEmail   map[string]domain.UserAccount
	productsByID   map[string]domain.Product
	clientsByID    map[string]domain.Client
	categoriesByID map[string]domain.Category
	salesByID      map[string]domain.Sale
	goalsByOwner   map[string]map[domain.Period]domain.Goal
}

func New() *Store {
	return &Store{
		usersByEmail:   make(map[string]domain.UserAccount),
		productsByID:   make(map[string]domain.Product),
		clientsByID:    make(map[string]domain.Client),
		categoriesByID: make(map[string]domain.Category),
		salesByID:      make(map[string]domain.Sale),
		goalsByOwner:   make(map[string]map[domain.Period]domain.Goal),
	}
}

// NewSeeded builds a store pre-loaded with a demo owner, categories and
// products for dev/demo mode. The demo password is read from
// SEED_DEMO_PASSWORD; a hardcoded dev default is used with a warning when
// unset. The seeded data is never used when DATABASE_URL is configured.
func NewSeeded() *Store {
	s := New()

	password := os.Getenv("SEED_DEMO_PASSWORD")
	if password == "" {
		password = "demo1234"
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_DEMO_PASSWORD to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}

	now := time.Now().UTC()
	owner := domain.UserAccount{
		ID:        "owner-demo",
		Email:     "demo@vendaflow.local",
		Password:  string(hash),
		Name:      "Demo Owner",
		CreatedAt: now,
	}
	s.usersByEmail[owner.Email] = owner

	categories := []domain.Category{
		{ID: "cat-bebidas", OwnerID: owner.ID, Name: "Bebidas", CreatedAt: now},
		{ID: "cat-doces", OwnerID: owner.ID, Name: "Doces", CreatedAt: now},
		{ID: "cat-limpeza", OwnerID: owner.ID, Name: "Limpeza", CreatedAt: now},
	}
	for _, c := range categories {
		s.categoriesByID[c.ID] = c
	}

	products := []domain.Product{
		{ID: "prod-cafe", OwnerID: owner.ID, Name: "Café Torrado 500g", PriceCents: 1890, Stock: 40, CategoryID: "cat-bebidas", CreatedAt: now},
		{ID: "prod-suco", OwnerID: owner.ID, Name: "Suco de Laranja 1L", PriceCents: 990, Stock: 25, CategoryID: "cat-bebidas", CreatedAt: now},
		{ID: "prod-choc", OwnerID: owner.ID, Name: "Chocolate ao Leite", PriceCents: 750, Stock: 60, CategoryID: "cat-doces", CreatedAt: now},
		{ID: "prod-bala", OwnerID: owner.ID, Name: "Bala de Goma", PriceCents: 350, Stock: 100, CategoryID: "cat-doces", CreatedAt: now},
		{ID: "prod-sabao", OwnerID: owner.ID, Name: "Sabão em Pó 1kg", PriceCents: 1450, Stock: 30, CategoryID: "cat-limpeza", CreatedAt: now},
	}
	for _, p := range products {
		s.productsByID[p.ID] = p
	}

	clients := []domain.Client{
		{ID: "client-maria", OwnerID: owner.ID, Name: "Maria Souza", Email: "maria@example.com", Phone: "11 91234-5678", CreatedAt: now},
		{ID: "client-joao", OwnerID: owner.ID, Name: "João Lima", Phone: "11 99876-5432", CreatedAt: now},
	}
	for _, c := range clients {
		s.clientsByID[c.ID] = c
	}

	return s
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.Password == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[email]; exists {
		return nil, store.ErrDuplicateName
	}

	user.Email = email
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByEmail[email] = user

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.OwnerID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.productsByID {
		if existing.OwnerID == product.OwnerID && existing.Name == product.Name {
			return nil, store.ErrDuplicateName
		}
	}

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.productsByID[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, ownerID string, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productsByID[id]
	if !ok || product.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ownerID string, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		product, ok := s.productsByID[id]
		if !ok || product.OwnerID != ownerID {
			continue
		}
		result[id] = product
	}
	return result, nil
}

func (s *Store) ListProductsByOwner(_ context.Context, ownerID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, product := range s.productsByID {
		if product.OwnerID == ownerID {
			products = append(products, product)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.productsByID[product.ID]
	if !ok || existing.OwnerID != product.OwnerID {
		return nil, store.ErrNotFound
	}
	for id, other := range s.productsByID {
		if id != product.ID && other.OwnerID == product.OwnerID && other.Name == product.Name {
			return nil, store.ErrDuplicateName
		}
	}

	product.CreatedAt = existing.CreatedAt
	s.productsByID[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, ownerID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productsByID[id]
	if !ok || product.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(s.productsByID, id)
	return nil
}

// DecrementStock applies the conditional decrement under the store lock, so
// concurrent sales against the same product serialize here and stock can
// never go negative.
func (s *Store) DecrementStock(_ context.Context, ownerID string, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productsByID[productID]
	if !ok || product.OwnerID != ownerID {
		return store.ErrNotFound
	}
	if product.Stock < qty {
		return store.ErrInsufficientStock
	}
	product.Stock -= qty
	s.productsByID[productID] = product
	return nil
}

func (s *Store) IncrementStock(_ context.Context, ownerID string, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productsByID[productID]
	if !ok || product.OwnerID != ownerID {
		return store.ErrNotFound
	}
	product.Stock += qty
	s.productsByID[productID] = product
	return nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	client.Name = strings.TrimSpace(client.Name)
	if client.OwnerID == "" || client.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ID == "" {
		client.ID = xid.New("client")
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	s.clientsByID[client.ID] = client

	created := client
	return &created, nil
}

func (s *Store) GetClient(_ context.Context, ownerID string, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clientsByID[id]
	if !ok || client.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	found := client
	return &found, nil
}

func (s *Store) ListClientsByOwner(_ context.Context, ownerID string) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clientsByID))
	for _, client := range s.clientsByID {
		if client.OwnerID == ownerID {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].Name < clients[j].Name
	})
	return clients, nil
}

func (s *Store) UpdateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	client.Name = strings.TrimSpace(client.Name)
	if client.ID == "" || client.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.clientsByID[client.ID]
	if !ok || existing.OwnerID != client.OwnerID {
		return nil, store.ErrNotFound
	}
	client.CreatedAt = existing.CreatedAt
	s.clientsByID[client.ID] = client

	updated := client
	return &updated, nil
}

func (s *Store) DeleteClient(_ context.Context, ownerID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clientsByID[id]
	if !ok || client.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(s.clientsByID, id)
	return nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.OwnerID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}

	normalized := strings.ToLower(category.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categoriesByID {
		if existing.OwnerID == category.OwnerID && strings.ToLower(existing.Name) == normalized {
			return nil, store.ErrDuplicateName
		}
	}

	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categoriesByID[category.ID] = category

	created := category
	return &created, nil
}

func (s *Store) ListCategoriesByOwner(_ context.Context, ownerID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoriesByID))
	for _, category := range s.categoriesByID {
		if category.OwnerID == ownerID {
			categories = append(categories, category)
		}
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.OwnerID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	// The store assigns the commit timestamp; callers' clocks are ignored.
	sale.OccurredAt = time.Now().UTC()
	items := make([]domain.SaleLineItem, len(sale.Items))
	copy(items, sale.Items)
	sale.Items = items
	s.salesByID[sale.ID] = sale

	created := sale
	return &created, nil
}

func (s *Store) ListSalesByOwner(_ context.Context, ownerID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.OwnerID != ownerID {
			continue
		}
		if !from.IsZero() && sale.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.OccurredAt.Before(to) {
			continue
		}
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].OccurredAt.Before(sales[j].OccurredAt)
	})
	return sales, nil
}

func (s *Store) GetGoals(_ context.Context, ownerID string) (map[domain.Period]domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goals := make(map[domain.Period]domain.Goal, 4)
	for period, goal := range s.goalsByOwner[ownerID] {
		goals[period] = goal
	}
	return goals, nil
}

func (s *Store) UpsertGoal(_ context.Context, ownerID string, period domain.Period, targetCents int64) (*domain.Goal, error) {
	if ownerID == "" || !period.Valid() || targetCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byPeriod, ok := s.goalsByOwner[ownerID]
	if !ok {
		byPeriod = make(map[domain.Period]domain.Goal, 4)
		s.goalsByOwner[ownerID] = byPeriod
	}

	goal, exists := byPeriod[period]
	if !exists {
		goal = domain.Goal{
			ID:      xid.New("goal"),
			OwnerID: ownerID,
			Period:  period,
		}
	}
	goal.TargetCents = targetCents
	goal.UpdatedAt = time.Now().UTC()
	byPeriod[period] = goal

	saved := goal
	return &saved, nil
}
