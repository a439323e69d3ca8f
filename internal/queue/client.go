package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

var ErrWarmNotFound = errors.New("warmup not found")

const (
	warmMaxRetry  = 3
	warmTimeout   = 5 * time.Minute
	warmRetention = 24 * time.Hour
)

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     queueName,
	}
}

// EnqueueWarmVariants schedules a warmup. The payload id doubles as the
// task id, so a repeated request for the same id is rejected by asynq.
// Finished tasks are retained for a day so WarmStatus can report them.
func (c *Client) EnqueueWarmVariants(ctx context.Context, payload WarmVariantsPayload) (*asynq.TaskInfo, error) {
	task, err := NewWarmVariantsTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.ID),
		asynq.MaxRetry(warmMaxRetry),
		asynq.Timeout(warmTimeout),
		asynq.Retention(warmRetention),
	)
}

// WarmStatus looks up the task enqueued for warmup id.
func (c *Client) WarmStatus(_ context.Context, id string) (*asynq.TaskInfo, error) {
	info, err := c.inspector.GetTaskInfo(c.queue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWarmNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("inspect warmup %s: %w", id, err)
	}
	return info, nil
}

func (c *Client) Queue() string {
	return c.queue
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}
