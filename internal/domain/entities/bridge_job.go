package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// BridgeJobStatus represents bridge job status
type BridgeJobStatus string

const (
	BridgeJobStatusPending   BridgeJobStatus = "pending"
	BridgeJobStatusBridging  BridgeJobStatus = "bridging"
	BridgeJobStatusCompleted BridgeJobStatus = "completed"
	BridgeJobStatusFailed    BridgeJobStatus = "failed"
	BridgeJobStatusCancelled BridgeJobStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s BridgeJobStatus) IsTerminal() bool {
	switch s {
	case BridgeJobStatusCompleted, BridgeJobStatusFailed, BridgeJobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the job state machine:
// pending → bridging → {completed, failed}; pending → cancelled;
// bridging → bridging (retry). No backward transitions.
func (s BridgeJobStatus) CanTransitionTo(next BridgeJobStatus) bool {
	switch s {
	case BridgeJobStatusPending:
		return next == BridgeJobStatusBridging || next == BridgeJobStatusCancelled
	case BridgeJobStatusBridging:
		return next == BridgeJobStatusBridging ||
			next == BridgeJobStatusCompleted ||
			next == BridgeJobStatusFailed
	}
	return false
}

// BridgeIdempotencyKey builds the deterministic key that collapses duplicate
// bridge submissions for one settled source transaction.
func BridgeIdempotencyKey(sourceNetwork Network, sourceTxHash string, destNetwork Network) string {
	return fmt.Sprintf("%s:%s:%s", sourceNetwork, sourceTxHash, destNetwork)
}

// BridgeJob is the durable unit of cross-chain work. Owned exclusively by the
// bridge job store; mutate only through repository Update. A job reaches
// completed only once DestinationTxHash is set; a recorded burn with the mint
// outstanding stays in bridging (BridgeTxHash and BridgeMessage set) until
// reconciliation lands the mint.
type BridgeJob struct {
	ID                 uuid.UUID       `json:"id"`
	IdempotencyKey     string          `json:"idempotencyKey"`
	SourceNetwork      Network         `json:"sourceNetwork"`
	DestinationNetwork Network         `json:"destinationNetwork"`
	SourceTxHash       string          `json:"sourceTxHash"`
	Amount             string          `json:"amount"`
	DestinationAsset   string          `json:"destinationAsset"`
	DestinationPayTo   string          `json:"destinationPayTo"`
	Status             BridgeJobStatus `json:"status"`
	Attempts           int             `json:"attempts"`
	LastError          null.String     `json:"lastError,omitempty"`
	BridgeTxHash       null.String     `json:"bridgeTxHash,omitempty"`
	DestinationTxHash  null.String     `json:"destinationTxHash,omitempty"`
	MessageID          null.String     `json:"messageId,omitempty"`
	BridgeMessage      null.String     `json:"-"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// BridgeEventType enumerates audit outbox event types.
type BridgeEventType string

const (
	BridgeEventStart   BridgeEventType = "bridge_start"
	BridgeEventAttempt BridgeEventType = "bridge_attempt"
	BridgeEventSuccess BridgeEventType = "bridge_success"
	BridgeEventFailure BridgeEventType = "bridge_failure"
)

// BridgeEventVersion is the current envelope schema version.
const BridgeEventVersion = 1

// BridgeEvent is the at-least-once outbox envelope for bridge lifecycle
// transitions. Consumers must treat unknown payload fields as
// forward-compatible.
type BridgeEvent struct {
	EventID        uuid.UUID              `json:"eventId"`
	EventType      BridgeEventType        `json:"eventType"`
	EventVersion   int                    `json:"eventVersion"`
	OccurredAt     time.Time              `json:"occurredAt"`
	JobID          uuid.UUID              `json:"jobId"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	Payload        map[string]interface{} `json:"payload"`
}
