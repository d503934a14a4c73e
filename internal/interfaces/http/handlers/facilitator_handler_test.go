package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"crosspay.facilitator/internal/domain/entities"
)

func newFacilitatorRouter(scheme *stubScheme) *gin.Engine {
	h := NewFacilitatorHandler(newFacilitatorUsecase(scheme))
	r := gin.New()
	r.POST("/verify", h.Verify)
	r.POST("/settle", h.Settle)
	r.GET("/supported", h.Supported)
	r.GET("/health", h.Health)
	return r
}

func TestVerifyEndpoint(t *testing.T) {
	scheme := &stubScheme{
		name:       entities.SchemeExact,
		verifyResp: &entities.VerifyResponse{IsValid: true, Payer: "0xpayer"},
	}
	r := newFacilitatorRouter(scheme)

	w := doJSON(t, r, http.MethodPost, "/verify", validVerifyBody())
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, true, body["isValid"])
	require.Equal(t, "0xpayer", body["payer"])
}

func TestVerifyEndpointInvalidPaymentIsStill200(t *testing.T) {
	scheme := &stubScheme{
		name:       entities.SchemeExact,
		verifyResp: &entities.VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds"},
	}
	r := newFacilitatorRouter(scheme)

	w := doJSON(t, r, http.MethodPost, "/verify", validVerifyBody())
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, false, body["isValid"])
	require.Equal(t, "insufficient_funds", body["invalidReason"])
}

func TestVerifyEndpointMalformedBody(t *testing.T) {
	r := newFacilitatorRouter(&stubScheme{name: entities.SchemeExact})

	w := doRaw(t, r, http.MethodPost, "/verify", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, "ERR_INVALID_INPUT", body["code"])

	w = doRaw(t, r, http.MethodPost, "/verify", "{}")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettleEndpoint(t *testing.T) {
	scheme := &stubScheme{
		name: entities.SchemeExact,
		settleResp: &entities.SettleResponse{
			Success:     true,
			Payer:       "0xpayer",
			Transaction: "0xsettle",
			Network:     "eip155:84532",
		},
	}
	r := newFacilitatorRouter(scheme)

	w := doJSON(t, r, http.MethodPost, "/settle", validVerifyBody())
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, true, body["success"])
	require.Equal(t, "0xsettle", body["transaction"])
}

func TestSettleEndpointFailureIsStill200(t *testing.T) {
	scheme := &stubScheme{
		name: entities.SchemeExact,
		settleResp: &entities.SettleResponse{
			Success:     false,
			ErrorReason: "transaction_failed",
			Network:     "eip155:84532",
		},
	}
	r := newFacilitatorRouter(scheme)

	w := doJSON(t, r, http.MethodPost, "/settle", validVerifyBody())
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, false, body["success"])
	require.Equal(t, "transaction_failed", body["errorReason"])
}

func TestSupportedEndpoint(t *testing.T) {
	r := newFacilitatorRouter(&stubScheme{name: entities.SchemeExact})

	w := doJSON(t, r, http.MethodGet, "/supported", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	kinds := body["kinds"].([]interface{})
	require.Len(t, kinds, len(entities.DefaultChains))
	require.Contains(t, body["extensions"], "cross-chain")
	signers := body["signers"].(map[string]interface{})
	require.NotEmpty(t, signers["eip155"])
}

func TestHealthEndpoint(t *testing.T) {
	r := newFacilitatorRouter(&stubScheme{name: entities.SchemeExact})

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, body["timestamp"])
}
