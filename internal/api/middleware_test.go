package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"registry-federation/internal/logs"
	"registry-federation/internal/metrics"
)

func TestRecoveryMiddleware(t *testing.T) {
	buf := logs.NewBuffer(10)
	logger := zap.New(buf.Core(zapcore.DebugLevel))

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom!")
	})
	recoveredHandler := RecoveryMiddleware(logger)(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	recoveredHandler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal server error")

	entries := buf.GetLast(1)
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "panic recovered", entries[0].Message)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	}
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	buf := logs.NewBuffer(10)
	logger := zap.New(buf.Core(zapcore.DebugLevel))

	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	entries := buf.GetLast(1)
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "http request", entries[0].Message)
		assert.EqualValues(t, http.StatusTeapot, entries[0].Fields["status"])
		assert.Equal(t, "/x", entries[0].Fields["path"])
	}
}

func TestInstrument(t *testing.T) {
	reg := metrics.NewRegistry()
	h := Instrument("test", reg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, int64(1), reg.Snapshot()[string(metrics.HTTPRequestsTotal)])
}

func TestChain(t *testing.T) {
	finalHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				w.Header().Set("X-Test", "true")
				next.ServeHTTP(w, r)
			})
		}
	}

	chained := Chain(finalHandler, mw("outer"), mw("inner"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	chained.ServeHTTP(rr, req)

	assert.Equal(t, "true", rr.Header().Get("X-Test"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
