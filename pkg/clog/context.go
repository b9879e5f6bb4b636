package clog

import (
	"context"
	"maps"
	"sync"
)

type ctxSlog struct {
	mu         sync.RWMutex
	attributes map[string]any
}

type ctxSlogKey struct{}

// ContextWithSlog returns a child context carrying a fresh attribute set.
// Attributes added to it are attached to every record logged with the
// context through AttributesHandler.
func ContextWithSlog(ctx context.Context) context.Context {
	ctxSlog := &ctxSlog{
		attributes: make(map[string]any),
	}
	return context.WithValue(ctx, ctxSlogKey{}, ctxSlog)
}

// EnsureSlog returns ctx unchanged when it already carries an attribute set
// and a new child context otherwise.
func EnsureSlog(ctx context.Context) context.Context {
	if _, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog); ok {
		return ctx
	}
	return ContextWithSlog(ctx)
}

func AddAttribute(ctx context.Context, key string, value any) {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attributes[key] = value
}

func AddAttributes(ctx context.Context, attributes map[string]any) {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	mergeMaps(l.attributes, attributes)
}

func GetAttribute[T any](ctx context.Context, key string) T {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return *new(T)
	}
	l.mu.RLock()
	iVal, ok := l.attributes[key]
	l.mu.RUnlock()
	if !ok {
		return *new(T)
	}
	v, ok := iVal.(T)
	if !ok {
		return *new(T)
	}
	return v
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if vMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				mergeMaps(dstMap, vMap)
			} else {
				dst[k] = vMap
			}
		} else {
			dst[k] = v
		}
	}
}

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

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

func (c *ctxSlog) getAttributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.attributes)
}

func GetAttributes(ctx context.Context) map[string]any {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return nil
	}
	return l.getAttributes()
}
