// Package events publishes domain events for out-of-band consumers, such as
// the stock reconciliation worker that handles partially applied sales.
package events

import (
	"context"

	"vendaflow/backend/internal/domain"
)

type Publisher interface {
	SaleRegistered(ctx context.Context, event domain.SaleRegisteredEvent) error
	SalePartialCommit(ctx context.Context, event domain.SalePartialCommitEvent) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) SaleRegistered(context.Context, domain.SaleRegisteredEvent) error {
	return nil
}

func (NoopPublisher) SalePartialCommit(context.Context, domain.SalePartialCommitEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
