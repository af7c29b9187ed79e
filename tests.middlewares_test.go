package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMiddlewaresStacks ensures we get both public and ops middlewares
// stacks with exact number of elements in those stacks.
func TestMiddlewaresStacks(t *testing.T) {
	api := newTestAPIHandler(nil)
	pub, ops := api.MiddlewaresStacks()
	assert.Equal(t, 6, len(*pub))
	assert.Equal(t, 4, len(*ops))
}

// TestChain ensures each middleware in the stack is called as well the handler.
func TestChain(t *testing.T) {
	var ca, cb, cc, ch bool
	queue := make(chan int, 4)

	middlewareA := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 1
			ca = true
			next(w, r, ps)
		}
	}
	middlewareB := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 2
			cb = true
			next(w, r, ps)
		}
	}
	middlewareC := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 3
			cc = true
			next(w, r, ps)
		}
	}
	middlewares := Middlewares{
		middlewareA,
		middlewareB,
		middlewareC,
	}

	handler := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		queue <- 4
		ch = true
	}

	chained := (&middlewares).Chain(handler)
	req := httptest.NewRequest("GET", "/api/books", nil)
	w := httptest.NewRecorder()
	chained(w, req, nil)

	t.Run("check calling", func(t *testing.T) {
		assert.Equal(t, true, ca)
		assert.Equal(t, true, cb)
		assert.Equal(t, true, cc)
		assert.Equal(t, true, ch)
	})

	t.Run("check ordering", func(t *testing.T) {
		assert.Equal(t, 1, <-queue)
		assert.Equal(t, 2, <-queue)
		assert.Equal(t, 3, <-queue)
		assert.Equal(t, 4, <-queue)
	})
}

// TestRequestsCounterMiddleware ensures the request counter increment.
func TestRequestsCounterMiddleware(t *testing.T) {
	api := newTestAPIHandler(nil)
	req := httptest.NewRequest("GET", "/api/books", nil)
	w := httptest.NewRecorder()
	var num uint64
	handler := func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		num = GetRequestNumberFromContext(req.Context())
	}
	wrapped := api.RequestsCounterMiddleware(handler)
	wrapped(w, req, nil)
	wrapped(w, req, nil)
	assert.Equal(t, uint64(2), num)
	assert.Equal(t, uint64(2), api.stats.called)
}

func TestRequestIDMiddleware(t *testing.T) {
	var got string
	handler := func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		got = GetValueFromContext(r.Context(), RequestIDContextKey)
	}

	t.Run("generates an id", func(t *testing.T) {
		api := newTestAPIHandler(nil)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		req.Header.Set(RequestIDHeader, "not-an-id")
		api.RequestIDMiddleware(handler)(w, req, nil)
		assert.Equal(t, "r:abc", got)
		assert.Equal(t, "r:abc", w.Header().Get(RequestIDHeader))
	})

	t.Run("reuses a valid client id", func(t *testing.T) {
		api := newTestAPIHandler(nil)
		api.idsHandler = NewMockUIDHandler("abc", true)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		req.Header.Set(RequestIDHeader, "r:from-client")
		api.RequestIDMiddleware(handler)(w, req, nil)
		assert.Equal(t, "r:from-client", got)
		assert.Equal(t, "r:from-client", w.Header().Get(RequestIDHeader))
	})
}

func TestCoreMiddlewareRecordsStatus(t *testing.T) {
	api := newTestAPIHandler(nil)
	handler := func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		assert.NotNil(t, r.Context().Value(LoggerContextKey))
		w.WriteHeader(http.StatusTeapot)
	}
	w := httptest.NewRecorder()
	api.CoreMiddleware(handler)(w, httptest.NewRequest(http.MethodGet, "/api/books", nil), nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, uint64(1), api.stats.status[http.StatusTeapot])
}

func TestCORSMiddleware(t *testing.T) {
	noop := func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {}

	t.Run("any origin by default", func(t *testing.T) {
		api := newTestAPIHandler(nil)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		api.CORSMiddleware(noop)(w, req, nil)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, corsAllowMethods, w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("listed origin only", func(t *testing.T) {
		api := newTestAPIHandler(nil)
		api.config.CORS.AllowedOrigins = []string{"http://localhost:3000"}

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		api.CORSMiddleware(noop)(w, req, nil)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))

		w = httptest.NewRecorder()
		req.Header.Set("Origin", "http://evil.example")
		api.CORSMiddleware(noop)(w, req, nil)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestMaintenanceModeMiddleware(t *testing.T) {
	api := newTestAPIHandler(nil)
	var called bool
	handler := func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) { called = true }

	w := httptest.NewRecorder()
	api.MaintenanceModeMiddleware(handler)(w, httptest.NewRequest(http.MethodGet, "/api/books", nil), nil)
	assert.True(t, called)

	called = false
	api.mode.message = "inventory"
	api.mode.started = api.clock.Now()
	api.mode.enabled.Store(true)
	w = httptest.NewRecorder()
	api.MaintenanceModeMiddleware(handler)(w, httptest.NewRequest(http.MethodGet, "/api/books", nil), nil)
	assert.False(t, called)
	res := w.Result()
	defer res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	apiErr := decodeAPIError(t, res)
	assert.Equal(t, map[string]interface{}{"reason": "inventory", "since": "Sun, 02 Jul 2023 00:00:00 UTC"}, apiErr.Data)
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	api := newTestAPIHandler(nil)
	handler := func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		panic("boom")
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	req = req.WithContext(context.WithValue(req.Context(), RequestIDContextKey, "r:abc"))
	require.NotPanics(t, func() { api.PanicRecoveryMiddleware(handler)(w, req, nil) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"requestid":"r:abc"`)
}
