package models

import (
	"time"

	"github.com/google/uuid"
)

type BridgeJob struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	IdempotencyKey     string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	SourceNetwork      string    `gorm:"type:varchar(50);not null"`
	DestinationNetwork string    `gorm:"type:varchar(50);not null"`
	SourceTxHash       string    `gorm:"type:varchar(255);not null;index"`
	Amount             string    `gorm:"type:varchar(100);not null"` // BigInt, atomic units
	DestinationAsset   string    `gorm:"type:varchar(255);not null"`
	DestinationPayTo   string    `gorm:"type:varchar(255);not null"`
	Status             string    `gorm:"type:varchar(50);not null;index"`
	Attempts           int       `gorm:"not null;default:0"`
	LastError          *string   `gorm:"type:text"`
	BridgeTxHash       *string   `gorm:"type:varchar(255)"`
	DestinationTxHash  *string   `gorm:"type:varchar(255)"`
	MessageID          *string   `gorm:"type:varchar(255);index"`
	BridgeMessage      *string   `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time `gorm:"index"`
}

func (BridgeJob) TableName() string {
	return "bridge_jobs"
}

type BridgeEvent struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventType      string    `gorm:"type:varchar(50);not null;index"`
	EventVersion   int       `gorm:"not null"`
	OccurredAt     time.Time `gorm:"not null"`
	JobID          uuid.UUID `gorm:"type:uuid;not null;index"`
	IdempotencyKey string    `gorm:"type:varchar(255);not null;index"`
	Payload        string    `gorm:"type:jsonb;default:'{}'"`
	CreatedAt      time.Time
}

func (BridgeEvent) TableName() string {
	return "bridge_events"
}
