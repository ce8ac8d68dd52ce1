// Package queue implements the fire-and-forget task queue used to hand
// uncertain-band and non-ALLOW decisions to an offline deep-analysis
// worker, the same
// Redis-LPUSH wire format the original engine's queue module used.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rawblock/threatscore/pkg/models"
)

const listKey = "threatscore:tasks"

// Queue enqueues tasks onto a Redis list.
type Queue struct {
	client *redis.Client
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue pushes task onto the list. Enqueue failures are never fatal to
// the caller — the background-sink error kind applies here exactly as it
// does to the decision logger — so callers should log and continue
// rather than propagate this error to an HTTP response.
func (q *Queue) Enqueue(ctx context.Context, task models.QueueTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, listKey, payload).Err(); err != nil {
		return fmt.Errorf("queue: lpush: %w", err)
	}
	return nil
}
