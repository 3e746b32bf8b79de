// Package clog collects request scoped log attributes in the context and
// renders them through slog handlers.
package clog

import (
	"context"
	"maps"
	"sync"
)

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

type attributes struct {
	mu     sync.RWMutex
	values map[string]any
}

type attributesKey struct{}

// ContextWithSlog returns a context carrying a fresh attribute set. Handlers
// wrapped by NewAttributesHandler append the set to every record logged with it.
func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, attributesKey{}, &attributes{values: make(map[string]any)})
}

func fromContext(ctx context.Context) *attributes {
	a, _ := ctx.Value(attributesKey{}).(*attributes)
	return a
}

func AddAttribute(ctx context.Context, key string, value any) {
	AddAttributes(ctx, map[string]any{key: value})
}

// AddAttributes merges src into the context's set. Nested maps merge per key.
func AddAttributes(ctx context.Context, src map[string]any) {
	a := fromContext(ctx)
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	merge(a.values, src)
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if cur, ok := dst[k].(map[string]any); ok {
			merge(cur, sub)
			continue
		}
		dst[k] = maps.Clone(sub)
	}
}

func GetAttribute[T any](ctx context.Context, key string) T {
	var zero T
	a := fromContext(ctx)
	if a == nil {
		return zero
	}
	a.mu.RLock()
	v, ok := a.values[key].(T)
	a.mu.RUnlock()
	if !ok {
		return zero
	}
	return v
}

// GetAttributes returns a copy of the context's set, or nil.
func GetAttributes(ctx context.Context) map[string]any {
	a := fromContext(ctx)
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.values)
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

func GetStack(ctx context.Context) string {
	return GetAttribute[string](ctx, StackAttributeKey)
}
