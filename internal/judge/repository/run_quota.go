package repository

import (
	"context"
	"time"

	"dsajudge/internal/common/cache"
	appErr "dsajudge/pkg/errors"
)

const quotaKeyPrefix = "sandbox:quota:"

// RunQuota limits how many runs one owner may start per window.
// It is a fixed-window counter kept in the cache.
type RunQuota struct {
	cache  cache.Cache
	Limit  int64
	Window time.Duration
}

// NewRunQuota creates a quota. A non-positive limit disables it.
func NewRunQuota(cacheClient cache.Cache, limit int64, window time.Duration) *RunQuota {
	if window <= 0 {
		window = time.Minute
	}
	return &RunQuota{cache: cacheClient, Limit: limit, Window: window}
}

// Allow records one run for owner and fails with TooManyRequests once the
// window's limit is exceeded.
func (q *RunQuota) Allow(ctx context.Context, owner string) error {
	if q == nil || q.Limit <= 0 {
		return nil
	}
	if owner == "" {
		return appErr.ValidationError("owner", "required")
	}
	if q.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	n, retry, err := q.cache.IncrWindow(ctx, quotaKeyPrefix+owner, q.Window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "count run failed")
	}
	if n > q.Limit {
		return appErr.New(appErr.TooManyRequests).
			WithMessagef("run limit of %d per %s reached", q.Limit, q.Window).
			WithDetail("retryAfter", retry.String()).
			WithDetail(appErr.DetailRetryAfterSeconds, retrySeconds(retry))
	}
	return nil
}

func retrySeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
