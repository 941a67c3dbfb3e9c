// Package changedetect skips re-ingesting documents whose content has not changed.
package changedetect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

const DefaultRedisKey = "rag:doc-hash"

// Tracker remembers the last committed content hash per document.
type Tracker interface {
	Load(ctx context.Context, documentID string) (string, bool, error)
	Store(ctx context.Context, documentID, hash string) error
	Forget(ctx context.Context, documentID string) error
}

// Detector compares content against the last committed hash. Commit only after the
// document has been persisted so a failed ingestion is retried on the next run.
type Detector struct {
	tracker Tracker
}

func New(tracker Tracker) *Detector {
	if tracker == nil {
		tracker = NewMemoryTracker()
	}
	return &Detector{tracker: tracker}
}

// Hash is the content fingerprint used for change detection.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Changed reports whether content differs from the last committed version and returns its hash.
func (d *Detector) Changed(ctx context.Context, documentID, content string) (bool, string, error) {
	hash := Hash(content)
	prev, ok, err := d.tracker.Load(ctx, documentID)
	if err != nil {
		return true, hash, err
	}
	return !ok || prev != hash, hash, nil
}

func (d *Detector) Commit(ctx context.Context, documentID, hash string) error {
	return d.tracker.Store(ctx, documentID, hash)
}

func (d *Detector) Forget(ctx context.Context, documentID string) error {
	return d.tracker.Forget(ctx, documentID)
}

type MemoryTracker struct {
	mu     sync.RWMutex
	hashes map[string]string
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{hashes: make(map[string]string)}
}

func (t *MemoryTracker) Load(_ context.Context, documentID string) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.hashes[documentID]
	return h, ok, nil
}

func (t *MemoryTracker) Store(_ context.Context, documentID, hash string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hashes[documentID] = hash
	return nil
}

func (t *MemoryTracker) Forget(_ context.Context, documentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.hashes, documentID)
	return nil
}

// RedisTracker keeps hashes in a single redis hash keyed by document id.
type RedisTracker struct {
	client redis.Cmdable
	key    string
}

func NewRedisTracker(client redis.Cmdable, key string) *RedisTracker {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisTracker{client: client, key: key}
}

func (t *RedisTracker) Load(ctx context.Context, documentID string) (string, bool, error) {
	h, err := t.client.HGet(ctx, t.key, documentID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: load hash: %v", domain.ErrStorage, err)
	}
	return h, true, nil
}

func (t *RedisTracker) Store(ctx context.Context, documentID, hash string) error {
	if err := t.client.HSet(ctx, t.key, documentID, hash).Err(); err != nil {
		return fmt.Errorf("%w: store hash: %v", domain.ErrStorage, err)
	}
	return nil
}

func (t *RedisTracker) Forget(ctx context.Context, documentID string) error {
	if err := t.client.HDel(ctx, t.key, documentID).Err(); err != nil {
		return fmt.Errorf("%w: forget hash: %v", domain.ErrStorage, err)
	}
	return nil
}
