package usecases

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"crosspay.facilitator/internal/config"
	"crosspay.facilitator/internal/domain/entities"
	"crosspay.facilitator/internal/domain/services"
	"crosspay.facilitator/internal/infrastructure/models"
	"crosspay.facilitator/internal/infrastructure/repositories"
	"crosspay.facilitator/pkg/logger"
	"crosspay.facilitator/pkg/utils"
)

func TestMain(m *testing.M) {
	logger.Init("production")
	os.Exit(m.Run())
}

// scriptedProvider returns canned bridge outcomes in order, then repeats
// the last one. Reconcile outcomes are scripted separately.
type scriptedProvider struct {
	mu             sync.Mutex
	results        []*services.BridgeResult
	errs           []error
	calls          int
	reconcileTxs   []string
	reconcileErrs  []error
	reconcileCalls int
	liquid         bool
	supports       bool
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{liquid: true, supports: true}
}

func (p *scriptedProvider) script(result *services.BridgeResult, err error) {
	p.results = append(p.results, result)
	p.errs = append(p.errs, err)
}

func (p *scriptedProvider) scriptReconcile(destTx string, err error) {
	p.reconcileTxs = append(p.reconcileTxs, destTx)
	p.reconcileErrs = append(p.reconcileErrs, err)
}

func (p *scriptedProvider) SupportsChain(network entities.Network) bool { return p.supports }

func (p *scriptedProvider) IsUSDC(network entities.Network, asset string) bool { return true }

func (p *scriptedProvider) CheckLiquidity(ctx context.Context, source, dest entities.Network, asset, amount string) bool {
	return p.liquid
}

func (p *scriptedProvider) GetExchangeRate(source, dest entities.Network, sourceAsset, destAsset string) float64 {
	return 1
}

func (p *scriptedProvider) Bridge(ctx context.Context, source entities.Network, sourceTxHash string, dest entities.Network, destAsset, amount, recipient string) (*services.BridgeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	if idx < 0 {
		return nil, fmt.Errorf("no scripted result")
	}
	return p.results[idx], p.errs[idx]
}

func (p *scriptedProvider) Reconcile(ctx context.Context, dest entities.Network, message string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.reconcileCalls
	p.reconcileCalls++
	if idx >= len(p.reconcileTxs) {
		idx = len(p.reconcileTxs) - 1
	}
	if idx < 0 {
		return "", fmt.Errorf("no scripted reconcile result")
	}
	return p.reconcileTxs[idx], p.reconcileErrs[idx]
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProvider) reconcileCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reconcileCalls
}

func testBridgeConfig() config.BridgeConfig {
	return config.BridgeConfig{
		Enabled:     true,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
		StaleAfter:  time.Minute,
	}
}

func defaultPagination() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 10}
}

func newTestBridgeUsecase(t *testing.T, provider services.BridgeProvider) (*BridgeUsecase, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BridgeJob{}, &models.BridgeEvent{}))

	uow := repositories.NewUnitOfWork(db)
	jobs := repositories.NewBridgeJobRepository(db)
	events := repositories.NewBridgeEventRepository(db)
	return NewBridgeUsecase(uow, jobs, events, provider, testBridgeConfig()), db
}
