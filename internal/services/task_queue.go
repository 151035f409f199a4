package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/campuspool/backend/internal/config"
	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/pkg/logger"

	"github.com/hibiken/asynq"
)

// Cascade task types. Each terminal transition of a party fans out into one
// of these.
const (
	TaskTypePartyDeleted  = "cascade:party_deleted"
	TaskTypeMemberLeft    = "cascade:member_left"
	TaskTypePartyFilled   = "cascade:party_filled"
	TaskTypeStatusChanged = "cascade:status_changed"
)

// CascadeTask carries everything a cleanup step needs. Member snapshots ride
// along because the party row may already be gone by the time the task runs.
type CascadeTask struct {
	Type     string             `json:"type"`
	PartyID  string             `json:"party_id"`
	ActorID  string             `json:"actor_id,omitempty"`
	UserID   string             `json:"user_id,omitempty"` // departing member, for member_left
	Members  []string           `json:"members,omitempty"` // snapshot at transition time
	Status   models.PartyStatus `json:"status,omitempty"`  // new status, for status_changed
	DestName string             `json:"dest_name,omitempty"`
}

// TaskQueue is the transport for cascade work.
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(task *CascadeTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// Global task queue instance
var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Infof("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalTaskQueue = NewSyncQueue()
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue()
		}
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Verify the connection before committing to async mode
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	_, err := inspector.Queues()
	if err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

// Enqueue adds a cascade task to the async queue
func (q *AsyncQueue) Enqueue(task *CascadeTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(task.Type, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Infof("[AsyncQueue] Task enqueued: id=%s, type=%s", info.ID, task.Type)
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements TaskQueue with inline processing (no Redis). Cascade
// failure isolation then comes from the coordinator itself, which never lets
// a step error escape to the primary transition.
type SyncQueue struct {
	processor func(context.Context, *CascadeTask) error
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function that handles cascade tasks.
func (q *SyncQueue) SetProcessor(processor func(context.Context, *CascadeTask) error) {
	q.processor = processor
}

// Enqueue processes the task immediately in the current goroutine
func (q *SyncQueue) Enqueue(task *CascadeTask) error {
	if q.processor == nil {
		logger.Infof("[SyncQueue] Warning: no processor set, task will be dropped")
		return nil
	}
	return q.processor(context.Background(), task)
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
