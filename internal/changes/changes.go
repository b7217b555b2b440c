// Package changes tells callers whether an external source's content has
// changed since it was last observed, so unchanged pages and images are not
// re-parsed. State lives behind Store; the in-process map is only suitable
// for a single instance, the Redis and Postgres stores survive restarts.
package changes

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Store persists sourceID → last content hash, and for page sources the
// paragraph list last processed.
type Store interface {
	// Get returns the stored hash; ok is false when the source was never seen.
	Get(ctx context.Context, sourceID string) (hash string, ok bool, err error)
	Set(ctx context.Context, sourceID, hash string) error
	Delete(ctx context.Context, sourceID string) error

	GetBaseline(ctx context.Context, sourceID string) (paragraphs []string, ok bool, err error)
	SetBaseline(ctx context.Context, sourceID string, paragraphs []string) error
}

// Detector compares content hashes per logical source.
type Detector struct {
	store  Store
	logger *slog.Logger
}

// NewDetector creates a detector over the given store.
func NewDetector(store Store, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: store, logger: logger}
}

// Hash returns the hex MD5 digest of content.
func Hash(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// Key joins source id parts, e.g. Key("image", "hoe", "2026-10-15").
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// HasChanged reports whether content differs from the last observation of
// sourceID. The first observation always counts as a change. The stored
// hash is only written when the answer is true.
func (d *Detector) HasChanged(ctx context.Context, sourceID string, content []byte) (bool, error) {
	hash := Hash(content)

	old, ok, err := d.store.Get(ctx, sourceID)
	if err != nil {
		return false, fmt.Errorf("get hash for %s: %w", sourceID, err)
	}
	if ok && old == hash {
		d.logger.Debug("Source unchanged, skipping parse", "source", sourceID)
		return false, nil
	}

	if err := d.store.Set(ctx, sourceID, hash); err != nil {
		return false, fmt.Errorf("set hash for %s: %w", sourceID, err)
	}
	if ok {
		d.logger.Info("Source changed", "source", sourceID, "hash", hash)
	} else {
		d.logger.Info("Source observed for the first time", "source", sourceID, "hash", hash)
	}
	return true, nil
}

// Baseline returns the paragraphs last processed for a page source.
func (d *Detector) Baseline(ctx context.Context, sourceID string) ([]string, bool, error) {
	paragraphs, ok, err := d.store.GetBaseline(ctx, sourceID)
	if err != nil {
		return nil, false, fmt.Errorf("get baseline for %s: %w", sourceID, err)
	}
	return paragraphs, ok, nil
}

// SetBaseline records the paragraphs processed for a page source.
func (d *Detector) SetBaseline(ctx context.Context, sourceID string, paragraphs []string) error {
	if paragraphs == nil {
		paragraphs = []string{}
	}
	if err := d.store.SetBaseline(ctx, sourceID, paragraphs); err != nil {
		return fmt.Errorf("set baseline for %s: %w", sourceID, err)
	}
	return nil
}

// Forget drops the stored hash so the next observation counts as a change.
// Callers use it when changed content failed to parse.
func (d *Detector) Forget(ctx context.Context, sourceID string) error {
	if err := d.store.Delete(ctx, sourceID); err != nil {
		return fmt.Errorf("forget %s: %w", sourceID, err)
	}
	return nil
}
