// Package rating persists rating submissions that could not be delivered and
// retries them once connectivity returns.
package rating

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mapclient.gnet.app/internal/metrics"
	"mapclient.gnet.app/internal/models"
	"mapclient.gnet.app/internal/storage"
)

// SubmitFunc delivers one rating and reports success.
type SubmitFunc func(ctx context.Context, pointID string, rating int) bool

// Queue is the persisted list of pending ratings, in submission order.
type Queue struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time

	// mu serializes read-modify-write cycles on the stored list.
	mu sync.Mutex
}

func NewQueue(store storage.Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, logger: logger, now: time.Now}
}

// Pending returns the queued ratings in order.
func (q *Queue) Pending(ctx context.Context) ([]models.PendingRating, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of queued ratings.
func (q *Queue) Len(ctx context.Context) (int, error) {
	pending, err := q.Pending(ctx)
	return len(pending), err
}

// Enqueue appends a rating to the end of the queue.
func (q *Queue) Enqueue(ctx context.Context, pointID string, rating int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.load(ctx)
	if err != nil {
		return err
	}
	pending = append(pending, models.PendingRating{
		PointID:   pointID,
		Rating:    rating,
		Timestamp: q.now().UnixMilli(),
	})
	if err := q.save(ctx, pending); err != nil {
		return err
	}
	q.logger.Info("Rating queued for later delivery", "point_id", pointID, "rating", rating, "pending", len(pending))
	return nil
}

// Drain tries every queued rating once, in order. Ratings that fail stay
// queued, in their original order, for the next cycle. It returns how many
// were delivered.
func (q *Queue) Drain(ctx context.Context, submit SubmitFunc) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var remaining []models.PendingRating
	for _, p := range pending {
		if ctx.Err() != nil || !submit(ctx, p.PointID, p.Rating) {
			remaining = append(remaining, p)
		}
	}

	if err := q.save(ctx, remaining); err != nil {
		return 0, err
	}
	sent := len(pending) - len(remaining)
	q.logger.Info("Drained pending ratings", "sent", sent, "remaining", len(remaining))
	return sent, nil
}

func (q *Queue) load(ctx context.Context) ([]models.PendingRating, error) {
	var pending []models.PendingRating
	if _, err := storage.GetJSON(ctx, q.store, storage.PendingRatingsKey, &pending); err != nil {
		return nil, fmt.Errorf("failed to load pending ratings: %w", err)
	}
	return pending, nil
}

func (q *Queue) save(ctx context.Context, pending []models.PendingRating) error {
	if pending == nil {
		pending = []models.PendingRating{}
	}
	if err := storage.SetJSON(ctx, q.store, storage.PendingRatingsKey, pending); err != nil {
		return fmt.Errorf("failed to save pending ratings: %w", err)
	}
	metrics.PendingRatings.Set(float64(len(pending)))
	return nil
}
