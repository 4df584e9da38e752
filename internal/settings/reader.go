package settings

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reader wraps a Store with typed getters. Each getter takes the static
// default; a missing key, a store error or an unparsable value yields it.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	if store == nil {
		store = MapStore{}
	}
	return &Reader{store: store}
}

func (r *Reader) lookup(ctx context.Context, key string) (string, bool) {
	v, ok, err := r.store.Get(ctx, key)
	if err != nil {
		zap.L().Warn("Settings store read failed, using default", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}

func (r *Reader) String(ctx context.Context, key, def string) string {
	if v, ok := r.lookup(ctx, key); ok && v != "" {
		return v
	}
	return def
}

func (r *Reader) Duration(ctx context.Context, key string, def time.Duration) time.Duration {
	v, ok := r.lookup(ctx, key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		invalid(key, v, err)
		return def
	}
	return d
}

func (r *Reader) Int(ctx context.Context, key string, def int) int {
	v, ok := r.lookup(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		invalid(key, v, err)
		return def
	}
	return n
}

func (r *Reader) Int64(ctx context.Context, key string, def int64) int64 {
	v, ok := r.lookup(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		invalid(key, v, err)
		return def
	}
	return n
}

func (r *Reader) Decimal(ctx context.Context, key string, def decimal.Decimal) decimal.Decimal {
	v, ok := r.lookup(ctx, key)
	if !ok {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		invalid(key, v, err)
		return def
	}
	return d
}

func (r *Reader) Bool(ctx context.Context, key string, def bool) bool {
	v, ok := r.lookup(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		invalid(key, v, err)
		return def
	}
	return b
}

func invalid(key, value string, err error) {
	zap.L().Warn("Invalid runtime setting, using default",
		zap.String("key", key),
		zap.String("value", value),
		zap.Error(err))
}
