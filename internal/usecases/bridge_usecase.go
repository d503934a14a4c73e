package usecases

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"crosspay.facilitator/internal/config"
	"crosspay.facilitator/internal/domain/entities"
	domainerrors "crosspay.facilitator/internal/domain/errors"
	"crosspay.facilitator/internal/domain/repositories"
	"crosspay.facilitator/internal/domain/services"
	"crosspay.facilitator/pkg/logger"
	"crosspay.facilitator/pkg/metrics"
	"crosspay.facilitator/pkg/utils"
)

// BridgeUsecase owns the bridge job lifecycle: enqueue after settlement,
// attempt execution with retries, recovery after restarts, and the admin
// surface.
type BridgeUsecase struct {
	uow      repositories.UnitOfWork
	jobs     repositories.BridgeJobRepository
	events   repositories.BridgeEventRepository
	provider services.BridgeProvider
	cfg      config.BridgeConfig

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewBridgeUsecase creates the bridge usecase. Lifecycle transitions and
// their outbox events are written through uow so both commit atomically.
func NewBridgeUsecase(uow repositories.UnitOfWork, jobs repositories.BridgeJobRepository, events repositories.BridgeEventRepository, provider services.BridgeProvider, cfg config.BridgeConfig) *BridgeUsecase {
	return &BridgeUsecase{
		uow:      uow,
		jobs:     jobs,
		events:   events,
		provider: provider,
		cfg:      cfg,
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Enqueue records a bridge job for a settled payment. The idempotency key
// (source:sourceTx:dest) makes re-settlement of the same payment a no-op:
// the existing job is returned and created is false.
func (u *BridgeUsecase) Enqueue(ctx context.Context, source entities.Network, sourceTxHash string, dest entities.Network, destAsset, amount, recipient string) (*entities.BridgeJob, bool, error) {
	key := entities.BridgeIdempotencyKey(source, sourceTxHash, dest)

	if existing, err := u.jobs.GetByIdempotencyKey(ctx, key); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, false, err
	}

	job := &entities.BridgeJob{
		ID:                 utils.GenerateUUIDv7(),
		IdempotencyKey:     key,
		SourceNetwork:      source,
		DestinationNetwork: dest,
		SourceTxHash:       sourceTxHash,
		Amount:             amount,
		DestinationAsset:   destAsset,
		DestinationPayTo:   recipient,
		Status:             entities.BridgeJobStatusPending,
	}
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		if err := u.jobs.Create(txCtx, job); err != nil {
			return err
		}
		return u.recordEvent(txCtx, job, entities.BridgeEventStart, map[string]interface{}{
			"sourceNetwork":      string(source),
			"destinationNetwork": string(dest),
			"amount":             amount,
			"destinationPayTo":   recipient,
		})
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			// Lost a create race; the winner's job is authoritative.
			existing, gerr := u.jobs.GetByIdempotencyKey(ctx, key)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	logger.Info(ctx, "bridge job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("idempotency_key", key))
	return job, true, nil
}

// Dispatch runs Process in the background under a correlation id. A job
// already being processed is skipped; the single-flight guard keeps the
// facilitator trigger and the recovery scan from double-driving one job.
func (u *BridgeUsecase) Dispatch(job *entities.BridgeJob) {
	u.mu.Lock()
	if _, busy := u.inflight[job.ID]; busy {
		u.mu.Unlock()
		return
	}
	u.inflight[job.ID] = struct{}{}
	u.mu.Unlock()

	go func() {
		defer func() {
			u.mu.Lock()
			delete(u.inflight, job.ID)
			u.mu.Unlock()
		}()
		ctx := logger.WithCorrelationID(context.Background(), job.IdempotencyKey)
		u.Process(ctx, job)
	}()
}

// errMintPending marks an attempt whose burn landed but whose mint has
// not confirmed yet. Always transient.
var errMintPending = errors.New("mint pending: attestation or destination confirmation outstanding")

// Process drives a job toward a terminal state. Transient failures retry
// with linear backoff up to the attempt budget; permanent failures and an
// exhausted budget mark the job failed, but only while nothing has been
// burned. Once a burn is recorded the job never goes terminal without a
// destination hash: it stays in bridging and the recovery scan keeps
// driving the mint through Reconcile.
func (u *BridgeUsecase) Process(ctx context.Context, job *entities.BridgeJob) {
	if job.Status.IsTerminal() {
		return
	}

	metrics.BridgeJobsInFlight.Inc()
	defer metrics.BridgeJobsInFlight.Dec()

	// The attempt budget bounds burns. job.Attempts carries across
	// recoveries, so an unburned job never exceeds it overall; a job with
	// a recorded burn gets a fresh round of mint retries per invocation,
	// since abandoning the mint is not an option.
	for tries := 0; tries < u.cfg.MaxAttempts; tries++ {
		if !job.BridgeTxHash.Valid && job.Attempts >= u.cfg.MaxAttempts {
			break
		}
		attempt := job.Attempts + 1
		if err := u.transitionWithEvent(ctx, job, entities.BridgeJobStatusBridging, func() {
			job.Attempts = attempt
		}, entities.BridgeEventAttempt, map[string]interface{}{
			"attempt": attempt,
		}); err != nil {
			logger.Error(ctx, "bridge job transition failed",
				zap.String("job_id", job.ID.String()), zap.Error(err))
			return
		}

		start := time.Now()
		result, err := u.attempt(ctx, job)
		metrics.BridgeAttemptDuration.WithLabelValues(string(job.SourceNetwork)).Observe(time.Since(start).Seconds())

		if err == nil && result.DestinationTxHash != "" {
			u.complete(ctx, job, result)
			return
		}
		if err == nil {
			// The burn landed but the mint did not. Persist the burn
			// markers so no later attempt can burn again, then retry on
			// the reconcile path.
			u.recordBurn(ctx, job, result)
			err = errMintPending
		}

		job.LastError = null.StringFrom(err.Error())
		logger.Warn(ctx, "bridge attempt failed",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if isPermanentBridgeError(err) ||
			(!job.BridgeTxHash.Valid && job.Attempts >= u.cfg.MaxAttempts) {
			u.finish(ctx, job)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(u.backoff(attempt)):
		}
	}

	u.finish(ctx, job)
}

// attempt runs one bridge attempt. A job with a recorded burn only needs
// the mint, so it goes through Reconcile and never re-burns.
func (u *BridgeUsecase) attempt(ctx context.Context, job *entities.BridgeJob) (*services.BridgeResult, error) {
	if job.BridgeTxHash.Valid && job.BridgeMessage.Valid {
		destTx, err := u.provider.Reconcile(ctx, job.DestinationNetwork, job.BridgeMessage.String)
		if err != nil {
			return nil, err
		}
		return &services.BridgeResult{
			BridgeTxHash:      job.BridgeTxHash.String,
			DestinationTxHash: destTx,
			MessageID:         job.MessageID.String,
			Message:           job.BridgeMessage.String,
			SourceChain:       job.SourceNetwork,
			DestChain:         job.DestinationNetwork,
		}, nil
	}
	return u.provider.Bridge(ctx, job.SourceNetwork, job.SourceTxHash, job.DestinationNetwork, job.DestinationAsset, job.Amount, job.DestinationPayTo)
}

// finish resolves a job that is out of attempts or hit a permanent error.
// With a recorded burn the job must not fail: funds left the source chain
// and only the mint is outstanding, so it stays in bridging for the
// recovery scan.
func (u *BridgeUsecase) finish(ctx context.Context, job *entities.BridgeJob) {
	if job.BridgeTxHash.Valid {
		logger.Warn(ctx, "bridge job mint outstanding, left for recovery",
			zap.String("job_id", job.ID.String()),
			zap.String("bridge_tx", job.BridgeTxHash.String),
			zap.Int("attempts", job.Attempts))
		return
	}
	u.fail(ctx, job)
}

// backoff grows linearly with the attempt count, plus jitter so recovered
// jobs do not retry in lockstep.
func (u *BridgeUsecase) backoff(attempt int) time.Duration {
	if u.cfg.RetryBase <= 0 {
		return 0
	}
	base := time.Duration(attempt) * u.cfg.RetryBase
	jitter := time.Duration(rand.Int63n(int64(u.cfg.RetryBase)))
	return base + jitter
}

// recordBurn persists the burn markers while the job stays in bridging.
func (u *BridgeUsecase) recordBurn(ctx context.Context, job *entities.BridgeJob, result *services.BridgeResult) {
	job.BridgeTxHash = null.StringFrom(result.BridgeTxHash)
	if result.MessageID != "" {
		job.MessageID = null.StringFrom(result.MessageID)
	}
	if result.Message != "" {
		job.BridgeMessage = null.StringFrom(result.Message)
	}
	if err := u.jobs.Update(ctx, job); err != nil {
		logger.Error(ctx, "failed to record bridge burn",
			zap.String("job_id", job.ID.String()),
			zap.String("bridge_tx", result.BridgeTxHash),
			zap.Error(err))
	}
}

func (u *BridgeUsecase) complete(ctx context.Context, job *entities.BridgeJob, result *services.BridgeResult) {
	job.BridgeTxHash = null.StringFrom(result.BridgeTxHash)
	job.DestinationTxHash = null.StringFrom(result.DestinationTxHash)
	if result.MessageID != "" {
		job.MessageID = null.StringFrom(result.MessageID)
	}
	if result.Message != "" {
		job.BridgeMessage = null.StringFrom(result.Message)
	}
	job.LastError = null.String{}

	if err := u.transitionWithEvent(ctx, job, entities.BridgeJobStatusCompleted, nil,
		entities.BridgeEventSuccess, map[string]interface{}{
			"bridgeTxHash":      result.BridgeTxHash,
			"destinationTxHash": result.DestinationTxHash,
			"messageId":         result.MessageID,
		}); err != nil {
		logger.Error(ctx, "failed to mark bridge job completed",
			zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	logger.Info(ctx, "bridge job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("bridge_tx", result.BridgeTxHash),
		zap.String("destination_tx", result.DestinationTxHash))
}

func (u *BridgeUsecase) fail(ctx context.Context, job *entities.BridgeJob) {
	if err := u.transitionWithEvent(ctx, job, entities.BridgeJobStatusFailed, nil,
		entities.BridgeEventFailure, map[string]interface{}{
			"attempts":  job.Attempts,
			"lastError": job.LastError.String,
		}); err != nil {
		logger.Error(ctx, "failed to mark bridge job failed",
			zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	logger.Error(ctx, "bridge job failed permanently",
		zap.String("job_id", job.ID.String()),
		zap.Int("attempts", job.Attempts),
		zap.String("last_error", job.LastError.String))
}

// transitionWithEvent applies a guarded status change and writes the
// outbox event in the same transaction, so a persisted transition always
// has its audit record.
func (u *BridgeUsecase) transitionWithEvent(ctx context.Context, job *entities.BridgeJob, to entities.BridgeJobStatus, mutate func(), eventType entities.BridgeEventType, payload map[string]interface{}) error {
	if !job.Status.CanTransitionTo(to) {
		return domainerrors.ErrJobTerminal
	}
	from := job.Status
	job.Status = to
	if mutate != nil {
		mutate()
	}
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		if err := u.jobs.Update(txCtx, job); err != nil {
			return err
		}
		return u.recordEvent(txCtx, job, eventType, payload)
	})
	if err != nil {
		job.Status = from
		return err
	}
	metrics.BridgeJobTransitions.WithLabelValues(string(from), string(to)).Inc()
	return nil
}

func (u *BridgeUsecase) recordEvent(ctx context.Context, job *entities.BridgeJob, eventType entities.BridgeEventType, payload map[string]interface{}) error {
	return u.events.Create(ctx, &entities.BridgeEvent{
		EventType:      eventType,
		JobID:          job.ID,
		IdempotencyKey: job.IdempotencyKey,
		Payload:        payload,
	})
}

// Recover re-dispatches non-terminal jobs that have gone quiet, typically
// after a process restart. Returns how many jobs were picked up.
func (u *BridgeUsecase) Recover(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().Add(-u.cfg.StaleAfter)
	stale, err := u.jobs.ListStale(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	for _, job := range stale {
		logger.Info(ctx, "recovering stale bridge job",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(job.Status)),
			zap.Int("attempts", job.Attempts))
		u.Dispatch(job)
	}
	return len(stale), nil
}

// GetJob returns a job by id.
func (u *BridgeUsecase) GetJob(ctx context.Context, id uuid.UUID) (*entities.BridgeJob, error) {
	return u.jobs.GetByID(ctx, id)
}

// GetJobByKey returns a job by idempotency key.
func (u *BridgeUsecase) GetJobByKey(ctx context.Context, key string) (*entities.BridgeJob, error) {
	return u.jobs.GetByIdempotencyKey(ctx, key)
}

// ListJobs returns jobs filtered by status with pagination.
func (u *BridgeUsecase) ListJobs(ctx context.Context, status entities.BridgeJobStatus, pagination utils.PaginationParams) ([]*entities.BridgeJob, int64, error) {
	return u.jobs.List(ctx, status, pagination)
}

// ListJobEvents returns the audit trail for a job.
func (u *BridgeUsecase) ListJobEvents(ctx context.Context, jobID uuid.UUID) ([]*entities.BridgeEvent, error) {
	if _, err := u.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return u.events.ListByJob(ctx, jobID)
}

// Cancel aborts a job that has not started bridging. Jobs past pending
// cannot be cancelled; funds may already have been burned.
func (u *BridgeUsecase) Cancel(ctx context.Context, id uuid.UUID) (*entities.BridgeJob, error) {
	job, err := u.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entities.BridgeJobStatusPending {
		return nil, domainerrors.ErrJobNotPending
	}
	if err := u.transitionWithEvent(ctx, job, entities.BridgeJobStatusCancelled, nil,
		entities.BridgeEventFailure, map[string]interface{}{
			"cancelled": true,
		}); err != nil {
		return nil, err
	}
	logger.Info(ctx, "bridge job cancelled", zap.String("job_id", job.ID.String()))
	return job, nil
}

// permanentBridgeErrorMarkers are substrings that identify failures no
// retry can fix.
var permanentBridgeErrorMarkers = []string{
	"insufficient balance",
	"recoverability=fatal",
	"unsupported destination",
	"invalid recipient",
	"execution reverted",
}

func isPermanentBridgeError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentBridgeErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
