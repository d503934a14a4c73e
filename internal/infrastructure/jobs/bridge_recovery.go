package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"crosspay.facilitator/internal/usecases"
	"crosspay.facilitator/pkg/logger"
)

// recoveryBatchSize bounds how many stale jobs one scan re-dispatches.
const recoveryBatchSize = 100

// BridgeRecoveryJob periodically rescans the bridge job store for
// non-terminal jobs that have gone quiet and re-dispatches them. This is
// what makes bridging survive process restarts: a job orphaned mid-flight
// is picked up on the next scan.
type BridgeRecoveryJob struct {
	bridge   *usecases.BridgeUsecase
	interval time.Duration
	stop     chan struct{}
}

func NewBridgeRecoveryJob(bridge *usecases.BridgeUsecase, interval time.Duration) *BridgeRecoveryJob {
	return &BridgeRecoveryJob{
		bridge:   bridge,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (j *BridgeRecoveryJob) Start(ctx context.Context) {
	logger.Info(ctx, "starting bridge recovery job",
		zap.Duration("interval", j.interval))

	// Scan once at startup so jobs orphaned by the previous process do
	// not wait a full interval.
	j.scan(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "bridge recovery job stopped")
			return
		case <-j.stop:
			logger.Info(ctx, "bridge recovery job stopped")
			return
		case <-ticker.C:
			j.scan(ctx)
		}
	}
}

func (j *BridgeRecoveryJob) Stop() {
	close(j.stop)
}

func (j *BridgeRecoveryJob) scan(ctx context.Context) {
	recovered, err := j.bridge.Recover(ctx, recoveryBatchSize)
	if err != nil {
		logger.Error(ctx, "bridge recovery scan failed", zap.Error(err))
		return
	}
	if recovered > 0 {
		logger.Info(ctx, "bridge recovery scan re-dispatched jobs",
			zap.Int("count", recovered))
	}
}
