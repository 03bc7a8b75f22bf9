package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"vendaflow/backend/internal/domain"
	"vendaflow/backend/internal/store"
)

func TestDuplicateProductNamePerOwner(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateProduct(ctx, domain.Product{OwnerID: "o1", Name: "Café", PriceCents: 100, Stock: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{OwnerID: "o1", Name: "Café", PriceCents: 200, Stock: 1}); !errors.Is(err, store.ErrDuplicateName) {
		t.Errorf("same owner duplicate: err = %v, want ErrDuplicateName", err)
	}
	// The same name under a different owner is fine.
	if _, err := s.CreateProduct(ctx, domain.Product{OwnerID: "o2", Name: "Café", PriceCents: 100, Stock: 1}); err != nil {
		t.Errorf("other owner: err = %v, want nil", err)
	}
}

func TestDuplicateCategoryNameCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateCategory(ctx, domain.Category{OwnerID: "o1", Name: "Bebidas"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateCategory(ctx, domain.Category{OwnerID: "o1", Name: "bebidas"}); !errors.Is(err, store.ErrDuplicateName) {
		t.Errorf("err = %v, want ErrDuplicateName", err)
	}
}

func TestDecrementStockConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{OwnerID: "o1", Name: "Last Unit", PriceCents: 100, Stock: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const callers = 10
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.DecrementStock(ctx, "o1", product.ID, 1)
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrInsufficientStock):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != callers-1 {
		t.Errorf("ok = %d, insufficient = %d, want 1 and %d", ok, insufficient, callers-1)
	}

	got, err := s.GetProduct(ctx, "o1", product.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stock != 0 {
		t.Errorf("stock = %d, want 0", got.Stock)
	}
}

func TestDecrementStockErrors(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.DecrementStock(ctx, "o1", "ghost", 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown product: err = %v, want ErrNotFound", err)
	}

	product, _ := s.CreateProduct(ctx, domain.Product{OwnerID: "o1", Name: "X", PriceCents: 100, Stock: 5})
	if err := s.DecrementStock(ctx, "o2", product.ID, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("wrong owner: err = %v, want ErrNotFound", err)
	}
	if err := s.DecrementStock(ctx, "o1", product.ID, 0); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("zero qty: err = %v, want ErrInvalidInput", err)
	}
}

func TestGoalUpsertKeepsOneRowPerPeriod(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.UpsertGoal(ctx, "o1", domain.PeriodWeekly, 5000)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := s.UpsertGoal(ctx, "o1", domain.PeriodWeekly, 6000)
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %s vs %s", first.ID, second.ID)
	}

	goals, _ := s.GetGoals(ctx, "o1")
	if len(goals) != 1 || goals[domain.PeriodWeekly].TargetCents != 6000 {
		t.Errorf("goals = %+v, want one weekly goal with target 6000", goals)
	}
}

func TestNewSeededHasDemoData(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	user, err := s.GetUserByEmail(ctx, "demo@vendaflow.local")
	if err != nil {
		t.Fatalf("demo user: %v", err)
	}
	products, err := s.ListProductsByOwner(ctx, user.ID)
	if err != nil || len(products) == 0 {
		t.Fatalf("demo products = %d (%v), want some", len(products), err)
	}
	categories, err := s.ListCategoriesByOwner(ctx, user.ID)
	if err != nil || len(categories) == 0 {
		t.Fatalf("demo categories = %d (%v), want some", len(categories), err)
	}
}
