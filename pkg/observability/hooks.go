// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about the reuse pass (crawl, match, install, fallback) and
// the crawl cache.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetPipelineHooks(&myPipelineHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Pipeline().OnCrawlStart(ctx, roots)
//	// ... walk ...
//	observability.Pipeline().OnCrawlComplete(ctx, len(manifests), duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Pipeline Hooks
// =============================================================================

// Install outcomes reported through PipelineHooks.OnInstall.
const (
	OutcomeInstalled = "installed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// PipelineHooks receives events from the reuse pipeline.
type PipelineHooks interface {
	// Crawl events
	OnCrawlStart(ctx context.Context, roots []string)
	OnCrawlComplete(ctx context.Context, manifests int, duration time.Duration, err error)

	// OnMatchBatch fires after each manifest batch is merged.
	OnMatchBatch(ctx context.Context, batch, manifests, candidates int)

	// OnInstall fires once per resolved dependency.
	OnInstall(ctx context.Context, name, version, outcome string, err error)

	// OnFallback fires after the package manager exits (or fails to start).
	OnFallback(ctx context.Context, manager string, ids []string, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPipelineHooks is a no-op implementation of PipelineHooks.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnCrawlStart(context.Context, []string)                     {}
func (NoopPipelineHooks) OnCrawlComplete(context.Context, int, time.Duration, error) {}
func (NoopPipelineHooks) OnMatchBatch(context.Context, int, int, int)                {}
func (NoopPipelineHooks) OnInstall(context.Context, string, string, string, error)   {}
func (NoopPipelineHooks) OnFallback(context.Context, string, []string, time.Duration, error) {
}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	pipelineHooks PipelineHooks = NoopPipelineHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	hooksMu       sync.RWMutex
)

// SetPipelineHooks registers custom pipeline hooks.
// This should be called once at application startup before any pipeline operations.
func SetPipelineHooks(h PipelineHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		pipelineHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Pipeline returns the registered pipeline hooks.
func Pipeline() PipelineHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return pipelineHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	pipelineHooks = NoopPipelineHooks{}
	cacheHooks = NoopCacheHooks{}
}
