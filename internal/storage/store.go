// Package storage persists the client's small state records (point list,
// cached map page, pending ratings). Every record is read and written as a
// whole value; there is no partial update.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys of the records the client persists.
const (
	PointsKey         = "@app_points_cache"
	MapPageKey        = "@cached_map_html"
	PendingRatingsKey = "@pending_ratings"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// Store is a key/value store for whole JSON records.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// GetJSON reads key and unmarshals it into dst.
// It returns (false, nil) when the key does not exist.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and writes it under key as one record.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
