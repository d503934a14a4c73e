package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"crosspay.facilitator/internal/domain/entities"
	"crosspay.facilitator/pkg/utils"
)

// BridgeJobRepository is the durable store for bridge jobs.
//
// Create fails with ErrAlreadyExists when the idempotency key is taken.
// Update is last-write-wins for non-terminal rows; rows already in a terminal
// state reject further updates with ErrJobTerminal.
type BridgeJobRepository interface {
	Create(ctx context.Context, job *entities.BridgeJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.BridgeJob, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*entities.BridgeJob, error)
	Update(ctx context.Context, job *entities.BridgeJob) error
	// ListStale returns non-terminal jobs not updated since the cutoff,
	// oldest first. Used by the recovery scan after restarts.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*entities.BridgeJob, error)
	List(ctx context.Context, status entities.BridgeJobStatus, pagination utils.PaginationParams) ([]*entities.BridgeJob, int64, error)
}

// BridgeEventRepository persists the audit outbox.
type BridgeEventRepository interface {
	Create(ctx context.Context, event *entities.BridgeEvent) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entities.BridgeEvent, error)
}

// UnitOfWork executes a function within a transaction scope. Repository
// calls made with the callback's context join the same transaction, so a
// job update and its outbox event commit or roll back together.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
