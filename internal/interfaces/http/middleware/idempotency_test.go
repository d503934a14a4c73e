package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"crosspay.facilitator/pkg/logger"
	"crosspay.facilitator/pkg/redis"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Init("production")
	os.Exit(m.Run())
}

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	redis.SetClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { redis.SetClient(nil) })
	return mr
}

func newIdempotencyRouter(handlerCalls *int64, status int) *gin.Engine {
	r := gin.New()
	r.POST("/settle", IdempotencyMiddleware(), func(c *gin.Context) {
		atomic.AddInt64(handlerCalls, 1)
		c.JSON(status, gin.H{"success": status < 300})
	})
	return r
}

func doSettle(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/settle", nil)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplaysCachedResponse(t *testing.T) {
	setupMiniredis(t)
	var calls int64
	r := newIdempotencyRouter(&calls, http.StatusOK)

	w := doSettle(r, "key-1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("X-Idempotency-Hit"))
	require.EqualValues(t, 1, calls)

	// The repeat never reaches the handler.
	w = doSettle(r, "key-1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "true", w.Header().Get("X-Idempotency-Hit"))
	require.JSONEq(t, `{"success":true}`, w.Body.String())
	require.EqualValues(t, 1, calls)

	// A different key is a different payment.
	w = doSettle(r, "key-2")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, calls)
}

func TestIdempotencyConflictWhileProcessing(t *testing.T) {
	mr := setupMiniredis(t)
	var calls int64
	r := newIdempotencyRouter(&calls, http.StatusOK)

	require.NoError(t, mr.Set("idempotency:/settle:key-1", "processing"))

	w := doSettle(r, "key-1")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "ERR_IDEMPOTENCY_CONFLICT")
	require.EqualValues(t, 0, calls)
}

func TestIdempotencyErrorResponsesAreNotCached(t *testing.T) {
	setupMiniredis(t)
	var calls int64
	r := newIdempotencyRouter(&calls, http.StatusBadRequest)

	w := doSettle(r, "key-1")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.EqualValues(t, 1, calls)

	// The failed attempt released the lock; a retry runs the handler again.
	w = doSettle(r, "key-1")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.EqualValues(t, 2, calls)
}

func TestIdempotencyPassThrough(t *testing.T) {
	setupMiniredis(t)
	var calls int64
	r := newIdempotencyRouter(&calls, http.StatusOK)

	// No header: every request runs.
	doSettle(r, "")
	doSettle(r, "")
	require.EqualValues(t, 2, calls)
}

func TestIdempotencyDisabledWithoutRedis(t *testing.T) {
	redis.SetClient(nil)
	var calls int64
	r := newIdempotencyRouter(&calls, http.StatusOK)

	doSettle(r, "key-1")
	doSettle(r, "key-1")
	require.EqualValues(t, 2, calls)
}
