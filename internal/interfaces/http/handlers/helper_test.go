package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"crosspay.facilitator/internal/config"
	"crosspay.facilitator/internal/domain/entities"
	"crosspay.facilitator/internal/domain/services"
	"crosspay.facilitator/internal/infrastructure/models"
	"crosspay.facilitator/internal/infrastructure/repositories"
	"crosspay.facilitator/internal/usecases"
	"crosspay.facilitator/pkg/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Init("production")
	os.Exit(m.Run())
}

// stubScheme answers with fixed responses so handler tests never touch a
// chain.
type stubScheme struct {
	name       string
	verifyResp *entities.VerifyResponse
	settleResp *entities.SettleResponse
}

func (s *stubScheme) Scheme() string { return s.name }

func (s *stubScheme) Signers(_ entities.Network) []string {
	return []string{"0x00000000000000000000000000000000000000F0"}
}

func (s *stubScheme) Verify(ctx context.Context, payload entities.PaymentPayload, requirements entities.PaymentRequirements) (*entities.VerifyResponse, error) {
	return s.verifyResp, nil
}

func (s *stubScheme) Settle(ctx context.Context, payload entities.PaymentPayload, requirements entities.PaymentRequirements) (*entities.SettleResponse, error) {
	return s.settleResp, nil
}

type okProvider struct{}

func (okProvider) SupportsChain(entities.Network) bool           { return true }
func (okProvider) IsUSDC(entities.Network, string) bool          { return true }
func (okProvider) CheckLiquidity(context.Context, entities.Network, entities.Network, string, string) bool {
	return true
}
func (okProvider) GetExchangeRate(entities.Network, entities.Network, string, string) float64 {
	return 1
}
func (okProvider) Bridge(ctx context.Context, source entities.Network, sourceTxHash string, dest entities.Network, destAsset, amount, recipient string) (*services.BridgeResult, error) {
	return &services.BridgeResult{BridgeTxHash: "0xburn", DestinationTxHash: "0xmint", SourceChain: source, DestChain: dest}, nil
}
func (okProvider) Reconcile(ctx context.Context, dest entities.Network, message string) (string, error) {
	return "0xmint", nil
}

func newTestBridgeUsecase(t *testing.T) *usecases.BridgeUsecase {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BridgeJob{}, &models.BridgeEvent{}))
	return usecases.NewBridgeUsecase(
		repositories.NewUnitOfWork(db),
		repositories.NewBridgeJobRepository(db),
		repositories.NewBridgeEventRepository(db),
		okProvider{},
		config.BridgeConfig{Enabled: true, MaxAttempts: 3, RetryBase: time.Millisecond, StaleAfter: time.Minute},
	)
}

func newFacilitatorUsecase(scheme usecases.SchemeFacilitator) *usecases.FacilitatorUsecase {
	registry := entities.NewChainRegistry(entities.DefaultChains)
	return usecases.NewFacilitatorUsecase([]usecases.SchemeFacilitator{scheme}, registry, usecases.Hooks{}, nil, false)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doRaw(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func validVerifyBody() map[string]interface{} {
	return map[string]interface{}{
		"paymentPayload": map[string]interface{}{
			"x402Version": 2,
			"payload":     map[string]interface{}{"signature": "0x01"},
			"accepted": map[string]interface{}{
				"scheme":  "exact",
				"network": "eip155:84532",
			},
		},
		"paymentRequirements": map[string]interface{}{
			"scheme":  "exact",
			"network": "eip155:84532",
			"asset":   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			"amount":  "10000",
			"payTo":   "0x00000000000000000000000000000000000000A1",
		},
	}
}
