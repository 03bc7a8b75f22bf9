// Package cache holds the short-TTL read cache for dashboard report payloads.
// The cache is best effort: every miss or backend error falls through to a
// fresh computation, never to a request failure.
package cache

import "context"

type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context, ownerID string)
}

// NoopReportCache caches nothing. Used when Redis is not configured.
type NoopReportCache struct{}

func (NoopReportCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NoopReportCache) Set(context.Context, string, []byte)       {}
func (NoopReportCache) Invalidate(context.Context, string)        {}
