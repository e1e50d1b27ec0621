package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// QueueInspector reads queue state. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueStats summarises the default queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
}

// Stats reads the default queue. A nil inspector reports an empty queue.
func Stats(inspector QueueInspector) (QueueStats, error) {
	stats := QueueStats{Queue: QueueDefault}
	if inspector == nil {
		return stats, nil
	}
	info, err := inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		return QueueStats{}, fmt.Errorf("jobs: queue info: %w", err)
	}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// NewTask builds a task by name. tenantID only scopes integrity checks.
func NewTask(name string, tenantID int64) (*asynq.Task, error) {
	switch name {
	case TaskIntegrityCheck:
		return NewIntegrityCheckTask(tenantID)
	case TaskIdempotencyPurge:
		return NewIdempotencyPurgeTask(), nil
	default:
		return nil, fmt.Errorf("jobs: unsupported task %q", name)
	}
}

// Client submits tasks and inspects the queue.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewClient connects to the queue's Redis.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts), inspector: asynq.NewInspector(redisOpts)}
}

// Enqueue submits the named task to the default queue.
func (c *Client) Enqueue(ctx context.Context, name string, tenantID int64) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs: client not configured")
	}
	task, err := NewTask(name, tenantID)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Stats reads the default queue.
func (c *Client) Stats() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs: inspector not configured")
	}
	return Stats(c.inspector)
}

// Close releases the client and the inspector.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return errors.Join(c.inspector.Close(), c.client.Close())
}
