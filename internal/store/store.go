package store

import (
	"context"
	"errors"
	"time"

	"vendaflow/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateName     = errors.New("duplicate name")
)

// Repository is the persistence contract consumed by the service layer.
// Every mutation of Product.Stock goes through DecrementStock/IncrementStock;
// DecrementStock must be atomic and conditional (apply only if the resulting
// stock stays non-negative), never a read-then-write pair.
type Repository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, ownerID string, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ownerID string, ids []string) (map[string]domain.Product, error)
	ListProductsByOwner(ctx context.Context, ownerID string) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, ownerID string, id string) error
	DecrementStock(ctx context.Context, ownerID string, productID string, qty int) error
	IncrementStock(ctx context.Context, ownerID string, productID string, qty int) error

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, ownerID string, id string) (*domain.Client, error)
	ListClientsByOwner(ctx context.Context, ownerID string) ([]domain.Client, error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	DeleteClient(ctx context.Context, ownerID string, id string) error

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategoriesByOwner(ctx context.Context, ownerID string) ([]domain.Category, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSalesByOwner(ctx context.Context, ownerID string, from time.Time, to time.Time) ([]domain.Sale, error)

	GetGoals(ctx context.Context, ownerID string) (map[domain.Period]domain.Goal, error)
	UpsertGoal(ctx context.Context, ownerID string, period domain.Period, targetCents int64) (*domain.Goal, error)
}
