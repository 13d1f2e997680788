package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dsajudge/internal/common/cache"
	appErr "dsajudge/pkg/errors"
)

const draftKeyPrefix = "sandbox:draft:"

// DefaultMaxDraftBytes caps a stored draft when no limit is configured.
const DefaultMaxDraftBytes = 64 << 10

// Draft is the last code a user saved for a problem.
type Draft struct {
	ProblemID string    `json:"problemId"`
	Owner     string    `json:"owner"`
	Code      string    `json:"code"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DraftRepository persists drafts in the cache.
type DraftRepository struct {
	cache    cache.Cache
	TTL      time.Duration
	MaxBytes int
}

// NewDraftRepository creates a new repository. A zero ttl keeps drafts forever.
func NewDraftRepository(cacheClient cache.Cache, ttl time.Duration, maxBytes int) *DraftRepository {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDraftBytes
	}
	return &DraftRepository{cache: cacheClient, TTL: ttl, MaxBytes: maxBytes}
}

// DraftKey returns the cache key of a draft.
func DraftKey(owner, problemID string) string {
	return draftKeyPrefix + owner + ":" + problemID
}

// Get returns the draft of owner for problemID.
func (r *DraftRepository) Get(ctx context.Context, owner, problemID string) (Draft, error) {
	if err := validateDraftKey(owner, problemID); err != nil {
		return Draft{}, err
	}
	if r.cache == nil {
		return Draft{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, DraftKey(owner, problemID))
	if err != nil {
		return Draft{}, appErr.Wrapf(err, appErr.CacheError, "load draft failed")
	}
	if val == "" {
		return Draft{}, appErr.New(appErr.DraftNotFound)
	}
	var draft Draft
	if err := json.Unmarshal([]byte(val), &draft); err != nil {
		return Draft{}, appErr.Wrapf(err, appErr.CacheError, "decode draft failed")
	}
	return draft, nil
}

// Save stores code as the draft of owner for problemID.
func (r *DraftRepository) Save(ctx context.Context, owner, problemID, code string) (Draft, error) {
	if err := validateDraftKey(owner, problemID); err != nil {
		return Draft{}, err
	}
	if len(code) > r.MaxBytes {
		return Draft{}, appErr.New(appErr.DraftTooLarge).WithMessagef("draft exceeds %d bytes", r.MaxBytes)
	}
	if r.cache == nil {
		return Draft{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	draft := Draft{ProblemID: problemID, Owner: owner, Code: code, UpdatedAt: time.Now().UTC()}
	data, err := json.Marshal(draft)
	if err != nil {
		return Draft{}, fmt.Errorf("marshal draft failed: %w", err)
	}
	if err := r.cache.Set(ctx, DraftKey(owner, problemID), string(data), cache.JitterTTL(r.TTL)); err != nil {
		return Draft{}, appErr.Wrapf(err, appErr.CacheError, "store draft failed")
	}
	return draft, nil
}

// Delete removes a draft; deleting a missing draft is not an error.
func (r *DraftRepository) Delete(ctx context.Context, owner, problemID string) error {
	if err := validateDraftKey(owner, problemID); err != nil {
		return err
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if err := r.cache.Del(ctx, DraftKey(owner, problemID)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "delete draft failed")
	}
	return nil
}

func validateDraftKey(owner, problemID string) error {
	if owner == "" {
		return appErr.ValidationError("owner", "required")
	}
	if problemID == "" {
		return appErr.ValidationError("problem_id", "required")
	}
	if strings.Contains(owner, ":") {
		return appErr.ValidationError("owner", "must not contain ':'")
	}
	return nil
}
