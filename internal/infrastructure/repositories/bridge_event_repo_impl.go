package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crosspay.facilitator/internal/domain/entities"
	domainrepos "crosspay.facilitator/internal/domain/repositories"
	"crosspay.facilitator/internal/infrastructure/models"
	"crosspay.facilitator/pkg/utils"
)

type bridgeEventRepo struct {
	db *gorm.DB
}

func NewBridgeEventRepository(db *gorm.DB) domainrepos.BridgeEventRepository {
	return &bridgeEventRepo{db: db}
}

func (r *bridgeEventRepo) Create(ctx context.Context, event *entities.BridgeEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = utils.GenerateUUIDv7()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if event.EventVersion == 0 {
		event.EventVersion = entities.BridgeEventVersion
	}

	payload := "{}"
	if event.Payload != nil {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		payload = string(raw)
	}

	m := &models.BridgeEvent{
		ID:             event.EventID,
		EventType:      string(event.EventType),
		EventVersion:   event.EventVersion,
		OccurredAt:     event.OccurredAt,
		JobID:          event.JobID,
		IdempotencyKey: event.IdempotencyKey,
		Payload:        payload,
		CreatedAt:      time.Now(),
	}
	return dbFrom(ctx, r.db).WithContext(ctx).Create(m).Error
}

func (r *bridgeEventRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entities.BridgeEvent, error) {
	var rows []models.BridgeEvent
	if err := dbFrom(ctx, r.db).WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("occurred_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make([]*entities.BridgeEvent, 0, len(rows))
	for _, row := range rows {
		var payload map[string]interface{}
		// Unknown fields are kept as-is; the envelope is forward-compatible.
		_ = json.Unmarshal([]byte(row.Payload), &payload)
		events = append(events, &entities.BridgeEvent{
			EventID:        row.ID,
			EventType:      entities.BridgeEventType(row.EventType),
			EventVersion:   row.EventVersion,
			OccurredAt:     row.OccurredAt,
			JobID:          row.JobID,
			IdempotencyKey: row.IdempotencyKey,
			Payload:        payload,
		})
	}
	return events, nil
}
