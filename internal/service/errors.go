package service

import (
	"errors"
	"fmt"
	"strings"

	"vendaflow/backend/internal/domain"
	"vendaflow/backend/internal/store"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// NotFoundError names the entity a lookup missed. Unwraps to the store
// sentinel so callers can keep matching with errors.Is.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return store.ErrNotFound }

// InsufficientStockError reports the first line item that could not be
// covered by the product's current stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return store.ErrInsufficientStock }

// PartialCommitError signals that the sale record was persisted but one or
// more stock decrements failed afterwards. The sale is not rolled back; the
// failed items are reported for out-of-band reconciliation.
//
// Unwrap exposes the underlying decrement errors, so a caller racing for the
// last units still observes errors.Is(err, store.ErrInsufficientStock).
type PartialCommitError struct {
	SaleID   string
	Failures []domain.FailedDecrementItem
	causes   []error
}

func (e *PartialCommitError) Error() string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.ProductID
	}
	return fmt.Sprintf("sale %s persisted but stock update failed for products: %s", e.SaleID, strings.Join(ids, ", "))
}

func (e *PartialCommitError) Unwrap() []error { return e.causes }
