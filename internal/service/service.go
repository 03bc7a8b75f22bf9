// Package service implements the business operations on top of the store:
// sale registration, catalog and client management, goal tracking and the
// dashboard reports.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"vendaflow/backend/internal/cache"
	"vendaflow/backend/internal/domain"
	"vendaflow/backend/internal/events"
	"vendaflow/backend/internal/report"
	"vendaflow/backend/internal/store"
)

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	publisher events.Publisher
	loc       *time.Location
}

func New(repo store.Repository, reports cache.ReportCache, publisher events.Publisher, loc *time.Location) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, reports: reports, publisher: publisher, loc: loc}
}

// RegisterSale validates the request against fresh stock reads, persists the
// sale, then applies the per-item stock decrements.
//
// The sale insert is the commit point. Decrements run after it and are
// independent of each other: a failed decrement does not roll the sale back
// and does not stop the remaining items. When any decrement fails the sale is
// returned together with a PartialCommitError listing the failed items, and a
// reconciliation event is published.
//
// The call is not idempotent. Submitting the same request twice registers two
// sales and decrements stock twice.
func (s *Service) RegisterSale(ctx context.Context, ownerID string, req domain.SaleRequest) (*domain.Sale, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: sale must have at least one item", store.ErrInvalidInput)
	}

	ids := make([]string, 0, len(req.Items))
	seen := make(map[string]bool, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" {
			return nil, fmt.Errorf("%w: item is missing a product id", store.ErrInvalidInput)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for product %q must be at least 1", store.ErrInvalidInput, item.ProductID)
		}
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	if req.ClientID != "" {
		if _, err := s.repo.GetClient(ctx, ownerID, req.ClientID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &NotFoundError{Entity: "client", ID: req.ClientID}
			}
			return nil, err
		}
	}

	products, err := s.repo.GetProductsByIDs(ctx, ownerID, ids)
	if err != nil {
		return nil, err
	}

	// Advisory pre-flight: walk the items in request order, accumulating the
	// quantity demanded per product, and reject on the first line the current
	// stock cannot cover. The conditional decrement below remains the
	// authority; this check only front-loads the common failure.
	demanded := make(map[string]int, len(ids))
	lines := make([]domain.SaleLineItem, 0, len(req.Items))
	var total int64
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, &NotFoundError{Entity: "product", ID: item.ProductID}
		}
		demanded[item.ProductID] += item.Quantity
		if demanded[item.ProductID] > product.Stock {
			return nil, &InsufficientStockError{
				ProductID: item.ProductID,
				Requested: demanded[item.ProductID],
				Available: product.Stock,
			}
		}
		lines = append(lines, domain.SaleLineItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: product.PriceCents,
		})
		total += int64(item.Quantity) * product.PriceCents
	}

	sale, err := s.repo.CreateSale(ctx, domain.Sale{
		OwnerID:    ownerID,
		ClientID:   req.ClientID,
		Items:      lines,
		TotalCents: total,
	})
	if err != nil {
		return nil, fmt.Errorf("persist sale: %w", err)
	}

	var (
		failures []domain.FailedDecrementItem
		causes   []error
	)
	for _, line := range sale.Items {
		err := s.repo.DecrementStock(ctx, ownerID, line.ProductID, line.Quantity)
		if err == nil {
			continue
		}
		log.Printf("[service] WARN: sale %s: stock decrement failed for product %s: %v", sale.ID, line.ProductID, err)
		failures = append(failures, domain.FailedDecrementItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Reason:    err.Error(),
		})
		causes = append(causes, err)
	}

	s.reports.Invalidate(ctx, ownerID)

	if len(failures) > 0 {
		s.publish(func() error {
			return s.publisher.SalePartialCommit(ctx, domain.SalePartialCommitEvent{
				SaleID:     sale.ID,
				OwnerID:    ownerID,
				Failed:     failures,
				OccurredAt: sale.OccurredAt,
			})
		})
		return sale, &PartialCommitError{SaleID: sale.ID, Failures: failures, causes: causes}
	}

	s.publish(func() error {
		return s.publisher.SaleRegistered(ctx, domain.SaleRegisteredEvent{
			SaleID:     sale.ID,
			OwnerID:    ownerID,
			TotalCents: sale.TotalCents,
			ItemCount:  len(sale.Items),
			OccurredAt: sale.OccurredAt,
		})
	})
	return sale, nil
}

func (s *Service) publish(fn func() error) {
	if err := fn(); err != nil {
		log.Printf("[service] WARN: event publish failed: %v", err)
	}
}

func (s *Service) ListSales(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Sale, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListSalesByOwner(ctx, ownerID, from, to)
}

// RecentSales returns the newest sales first, at most limit of them.
func (s *Service) RecentSales(ctx context.Context, ownerID string, limit int) ([]domain.Sale, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if limit < 1 {
		limit = 10
	}
	sales, err := s.repo.ListSalesByOwner(ctx, ownerID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	recent := make([]domain.Sale, 0, limit)
	for i := len(sales) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, sales[i])
	}
	return recent, nil
}

func (s *Service) CreateProduct(ctx context.Context, ownerID string, req domain.ProductCreateRequest) (*domain.Product, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.CreateProduct(ctx, domain.Product{
		OwnerID:    ownerID,
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		CategoryID: req.CategoryID,
	})
}

func (s *Service) GetProduct(ctx context.Context, ownerID string, id string) (*domain.Product, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	product, err := s.repo.GetProduct(ctx, ownerID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Entity: "product", ID: id}
	}
	return product, err
}

func (s *Service) ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListProductsByOwner(ctx, ownerID)
}

func (s *Service) UpdateProduct(ctx context.Context, ownerID string, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	product, err := s.repo.GetProduct(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Entity: "product", ID: id}
		}
		return nil, err
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.PriceCents != nil {
		product.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.CategoryID != nil {
		product.CategoryID = *req.CategoryID
	}
	return s.repo.UpdateProduct(ctx, *product)
}

func (s *Service) DeleteProduct(ctx context.Context, ownerID string, id string) error {
	if ownerID == "" {
		return ErrUnauthenticated
	}
	err := s.repo.DeleteProduct(ctx, ownerID, id)
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: "product", ID: id}
	}
	return err
}

func (s *Service) RestockProduct(ctx context.Context, ownerID string, id string, qty int) (*domain.Product, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if qty < 1 {
		return nil, fmt.Errorf("%w: restock quantity must be at least 1", store.ErrInvalidInput)
	}
	if err := s.repo.IncrementStock(ctx, ownerID, id, qty); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Entity: "product", ID: id}
		}
		return nil, err
	}
	return s.repo.GetProduct(ctx, ownerID, id)
}

func (s *Service) CreateClient(ctx context.Context, ownerID string, req domain.ClientCreateRequest) (*domain.Client, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.CreateClient(ctx, domain.Client{
		OwnerID: ownerID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
}

func (s *Service) GetClient(ctx context.Context, ownerID string, id string) (*domain.Client, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	client, err := s.repo.GetClient(ctx, ownerID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Entity: "client", ID: id}
	}
	return client, err
}

func (s *Service) ListClients(ctx context.Context, ownerID string) ([]domain.Client, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListClientsByOwner(ctx, ownerID)
}

func (s *Service) UpdateClient(ctx context.Context, ownerID string, id string, req domain.ClientUpdateRequest) (*domain.Client, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	client, err := s.repo.GetClient(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Entity: "client", ID: id}
		}
		return nil, err
	}

	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.Email != nil {
		client.Email = *req.Email
	}
	if req.Phone != nil {
		client.Phone = *req.Phone
	}
	if req.Address != nil {
		client.Address = *req.Address
	}
	return s.repo.UpdateClient(ctx, *client)
}

func (s *Service) DeleteClient(ctx context.Context, ownerID string, id string) error {
	if ownerID == "" {
		return ErrUnauthenticated
	}
	err := s.repo.DeleteClient(ctx, ownerID, id)
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: "client", ID: id}
	}
	return err
}

func (s *Service) CreateCategory(ctx context.Context, ownerID string, req domain.CategoryCreateRequest) (*domain.Category, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.CreateCategory(ctx, domain.Category{
		OwnerID: ownerID,
		Name:    req.Name,
	})
}

func (s *Service) ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListCategoriesByOwner(ctx, ownerID)
}

// SetGoal stores the revenue target for a period, replacing any previous
// target for the same period.
func (s *Service) SetGoal(ctx context.Context, ownerID string, req domain.GoalSetRequest) (*domain.Goal, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if !req.Period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", store.ErrInvalidInput, req.Period)
	}
	if req.TargetCents < 0 {
		return nil, fmt.Errorf("%w: target must not be negative", store.ErrInvalidInput)
	}
	goal, err := s.repo.UpsertGoal(ctx, ownerID, req.Period, req.TargetCents)
	if err != nil {
		return nil, err
	}
	s.reports.Invalidate(ctx, ownerID)
	return goal, nil
}

func (s *Service) Goals(ctx context.Context, ownerID string) (map[domain.Period]domain.Goal, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.GetGoals(ctx, ownerID)
}

// GoalProgress reports actual revenue against the stored target for the
// period window containing ref. A period without a stored goal reports a
// zero target and zero percentage.
func (s *Service) GoalProgress(ctx context.Context, ownerID string, period domain.Period, ref time.Time) (*domain.GoalProgress, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", store.ErrInvalidInput, period)
	}
	ref = s.localize(ref)

	goals, err := s.repo.GetGoals(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var target int64
	if goal, ok := goals[period]; ok {
		target = goal.TargetCents
	}

	from, to := report.Window(period, ref)
	sales, err := s.repo.ListSalesByOwner(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}

	progress := report.Progress(sales, period, ref, target)
	return &progress, nil
}

// SalesSeries returns the gap-filled bucket series for the period window
// containing ref. Results are cached per owner, period and window date.
func (s *Service) SalesSeries(ctx context.Context, ownerID string, period domain.Period, ref time.Time) (*domain.SalesSeries, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", store.ErrInvalidInput, period)
	}
	ref = s.localize(ref)

	from, to := report.Window(period, ref)
	key := cache.Key(ownerID, "series", string(period), from.Format("2006-01-02"))
	if raw, ok := s.reports.Get(ctx, key); ok {
		var cached domain.SalesSeries
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	}

	sales, err := s.repo.ListSalesByOwner(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}

	series := domain.SalesSeries{
		Period:  period,
		Date:    from.Format("2006-01-02"),
		Buckets: report.BucketSales(sales, period, ref),
	}
	if raw, err := json.Marshal(series); err == nil {
		s.reports.Set(ctx, key, raw)
	}
	return &series, nil
}

// TopProducts ranks products by quantity sold inside the period window
// containing ref and resolves their current names. Deleted products keep
// their place in the ranking with an empty name.
func (s *Service) TopProducts(ctx context.Context, ownerID string, period domain.Period, ref time.Time, limit int) ([]domain.TopProduct, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", store.ErrInvalidInput, period)
	}
	ref = s.localize(ref)

	from, to := report.Window(period, ref)
	sales, err := s.repo.ListSalesByOwner(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}

	top := report.TopProducts(sales, limit)
	if len(top) == 0 {
		return top, nil
	}

	ids := make([]string, len(top))
	for i, t := range top {
		ids[i] = t.ProductID
	}
	products, err := s.repo.GetProductsByIDs(ctx, ownerID, ids)
	if err != nil {
		return nil, err
	}
	for i := range top {
		if product, ok := products[top[i].ProductID]; ok {
			top[i].Name = product.Name
		}
	}
	return top, nil
}

func (s *Service) localize(ref time.Time) time.Time {
	if ref.IsZero() {
		return time.Now().In(s.loc)
	}
	return ref.In(s.loc)
}

// ParseRefDate interprets a YYYY-MM-DD query value in the service's location.
// An empty value means "now".
func (s *Service) ParseRefDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().In(s.loc), nil
	}
	ref, err := time.ParseInLocation("2006-01-02", value, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	return ref, nil
}
