package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"

	"crosspay.facilitator/internal/domain/entities"
	domainerrors "crosspay.facilitator/internal/domain/errors"
	domainrepos "crosspay.facilitator/internal/domain/repositories"
	"crosspay.facilitator/internal/infrastructure/models"
	"crosspay.facilitator/pkg/utils"
)

var terminalStatuses = []string{
	string(entities.BridgeJobStatusCompleted),
	string(entities.BridgeJobStatusFailed),
	string(entities.BridgeJobStatusCancelled),
}

type bridgeJobRepo struct {
	db *gorm.DB
}

func NewBridgeJobRepository(db *gorm.DB) domainrepos.BridgeJobRepository {
	return &bridgeJobRepo{db: db}
}

func (r *bridgeJobRepo) Create(ctx context.Context, job *entities.BridgeJob) error {
	if job.ID == uuid.Nil {
		job.ID = utils.GenerateUUIDv7()
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	m := toBridgeJobModel(job)
	if err := dbFrom(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *bridgeJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.BridgeJob, error) {
	var m models.BridgeJob
	if err := dbFrom(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toBridgeJobEntity(&m), nil
}

func (r *bridgeJobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entities.BridgeJob, error) {
	var m models.BridgeJob
	if err := dbFrom(ctx, r.db).WithContext(ctx).Where("idempotency_key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toBridgeJobEntity(&m), nil
}

// Update is last-write-wins for non-terminal rows. The WHERE clause excludes
// terminal statuses so a completed/failed/cancelled row can never be rewritten.
func (r *bridgeJobRepo) Update(ctx context.Context, job *entities.BridgeJob) error {
	job.UpdatedAt = time.Now()

	result := dbFrom(ctx, r.db).WithContext(ctx).Model(&models.BridgeJob{}).
		Where("id = ? AND status NOT IN ?", job.ID, terminalStatuses).
		Updates(map[string]interface{}{
			"status":              string(job.Status),
			"attempts":            job.Attempts,
			"last_error":          job.LastError.Ptr(),
			"bridge_tx_hash":      job.BridgeTxHash.Ptr(),
			"destination_tx_hash": job.DestinationTxHash.Ptr(),
			"message_id":          job.MessageID.Ptr(),
			"bridge_message":      job.BridgeMessage.Ptr(),
			"updated_at":          job.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing row from a terminal one.
		var count int64
		if err := dbFrom(ctx, r.db).WithContext(ctx).Model(&models.BridgeJob{}).
			Where("id = ?", job.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domainerrors.ErrNotFound
		}
		return domainerrors.ErrJobTerminal
	}
	return nil
}

func (r *bridgeJobRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*entities.BridgeJob, error) {
	var rows []models.BridgeJob
	query := dbFrom(ctx, r.db).WithContext(ctx).
		Where("status NOT IN ?", terminalStatuses).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	jobs := make([]*entities.BridgeJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, toBridgeJobEntity(&rows[i]))
	}
	return jobs, nil
}

func (r *bridgeJobRepo) List(ctx context.Context, status entities.BridgeJobStatus, pagination utils.PaginationParams) ([]*entities.BridgeJob, int64, error) {
	var rows []models.BridgeJob
	var total int64

	query := dbFrom(ctx, r.db).WithContext(ctx).Model(&models.BridgeJob{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if pagination.Limit > 0 {
		query = query.Limit(pagination.Limit).Offset(pagination.CalculateOffset())
	}

	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]*entities.BridgeJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, toBridgeJobEntity(&rows[i]))
	}
	return jobs, total, nil
}

func toBridgeJobModel(job *entities.BridgeJob) *models.BridgeJob {
	return &models.BridgeJob{
		ID:                 job.ID,
		IdempotencyKey:     job.IdempotencyKey,
		SourceNetwork:      string(job.SourceNetwork),
		DestinationNetwork: string(job.DestinationNetwork),
		SourceTxHash:       job.SourceTxHash,
		Amount:             job.Amount,
		DestinationAsset:   job.DestinationAsset,
		DestinationPayTo:   job.DestinationPayTo,
		Status:             string(job.Status),
		Attempts:           job.Attempts,
		LastError:          job.LastError.Ptr(),
		BridgeTxHash:       job.BridgeTxHash.Ptr(),
		DestinationTxHash:  job.DestinationTxHash.Ptr(),
		MessageID:          job.MessageID.Ptr(),
		BridgeMessage:      job.BridgeMessage.Ptr(),
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	}
}

func toBridgeJobEntity(m *models.BridgeJob) *entities.BridgeJob {
	return &entities.BridgeJob{
		ID:                 m.ID,
		IdempotencyKey:     m.IdempotencyKey,
		SourceNetwork:      entities.Network(m.SourceNetwork),
		DestinationNetwork: entities.Network(m.DestinationNetwork),
		SourceTxHash:       m.SourceTxHash,
		Amount:             m.Amount,
		DestinationAsset:   m.DestinationAsset,
		DestinationPayTo:   m.DestinationPayTo,
		Status:             entities.BridgeJobStatus(m.Status),
		Attempts:           m.Attempts,
		LastError:          null.StringFromPtr(m.LastError),
		BridgeTxHash:       null.StringFromPtr(m.BridgeTxHash),
		DestinationTxHash:  null.StringFromPtr(m.DestinationTxHash),
		MessageID:          null.StringFromPtr(m.MessageID),
		BridgeMessage:      null.StringFromPtr(m.BridgeMessage),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// isUniqueViolation matches the unique-index error text across postgres and
// the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint failed")
}
