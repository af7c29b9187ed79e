package main

import (
	"expvar"
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// OpsHandlerWrapper adapts a native handler to the router signature.
func (api *APIHandler) OpsHandlerWrapper(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

// Maintenance enables, disables or shows the maintenance mode.
// Enable the maintenance mode : /ops/maintenance?status=enable&msg=message-to-be-displayed-to-users
// Disable the maintenance mode: /ops/maintenance?status=disable
// Any other call reports the current mode.
func (api *APIHandler) Maintenance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	q := r.URL.Query()
	var response map[string]interface{}

	api.mode.mu.Lock()
	switch q.Get("status") {
	case "enable":
		api.mode.message = q.Get("msg")
		api.mode.started = api.clock.Now().UTC()
		api.mode.enabled.Store(true)
		response = map[string]interface{}{
			"requestid":           requestID,
			"maintenance.started": api.mode.started.Format(time.RFC1123),
			"maintenance.message": api.mode.message,
			"message":             "Maintenance mode enabled successfully.",
		}
	case "disable":
		api.mode.enabled.Store(false)
		api.mode.started = time.Time{}
		api.mode.message = ""
		response = map[string]interface{}{
			"requestid": requestID,
			"message":   "Maintenance mode disabled successfully.",
		}
	default:
		response = map[string]interface{}{
			"requestid": requestID,
			"enabled":   api.mode.enabled.Load(),
			"message":   api.mode.message,
		}
	}
	api.mode.mu.Unlock()

	if err := WriteResponse(r.Context(), w, http.StatusOK, response); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send maintenance response", zap.Error(err))
	}
}

// goroutines is exported for the expvar handler.
var goroutines = expvar.NewInt("goroutines")

// GetMemStats returns memory statistics with number of goroutines in json.
func GetMemStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	goroutines.Set(int64(runtime.NumGoroutine()))
	expvar.Handler().ServeHTTP(w, r)
}

// RunGC triggers a garbage collection in the background.
func (api *APIHandler) RunGC(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	go runtime.GC()
	api.sendOpsCalled(w, r, "go runtime.GC()")
}

// FreeOSMemory forces a garbage collection and tries to return as much
// memory as possible to the operating system, in the background.
func (api *APIHandler) FreeOSMemory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	go debug.FreeOSMemory()
	api.sendOpsCalled(w, r, "go debug.FreeOSMemory()")
}

func (api *APIHandler) sendOpsCalled(w http.ResponseWriter, r *http.Request, called string) {
	response := map[string]string{
		"requestid": GetValueFromContext(r.Context(), RequestIDContextKey),
		"called":    called,
	}
	if err := WriteResponse(r.Context(), w, http.StatusOK, response); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send ops response", zap.String("called", called), zap.Error(err))
	}
}

// GetStatistics provides useful details about the application to the internal ops users.
// The ops request which triggered it is not part of the reported calls.
func (api *APIHandler) GetStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	api.mode.mu.RLock()
	maintenance := map[string]interface{}{
		"enabled": api.mode.enabled.Load(),
		"started": "",
		"message": api.mode.message,
	}
	if !api.mode.started.IsZero() {
		maintenance["started"] = api.mode.started.Format(time.RFC1123)
	}
	api.mode.mu.RUnlock()

	api.stats.mu.RLock()
	status := make(map[int]uint64, len(api.stats.status))
	for code, count := range api.stats.status {
		status[code] = count
	}
	api.stats.mu.RUnlock()

	called := atomic.LoadUint64(&api.stats.called)
	if called > 0 {
		called--
	}
	response := map[string]interface{}{
		"requestid":     GetValueFromContext(r.Context(), RequestIDContextKey),
		"app.version":   api.stats.version,
		"app.container": api.stats.container,
		"app.platform":  api.stats.platform,
		"go.version":    api.stats.runtime,
		"called":        called,
		"started":       api.stats.started.Format(time.RFC1123),
		"uptime":        fmt.Sprintf("%.0f mins", api.clock.Now().Sub(api.stats.started).Minutes()),
		"maintenance":   maintenance,
		"status":        status,
	}
	if err := WriteResponse(r.Context(), w, http.StatusOK, response); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send statistics response", zap.Error(err))
	}
}

// GetConfigs serves current in-use configurations. Secrets are tagged
// to be skipped by the json encoder.
func (api *APIHandler) GetConfigs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	response := map[string]interface{}{
		"requestid": GetValueFromContext(r.Context(), RequestIDContextKey),
		"configs":   api.config,
	}
	if err := WriteResponse(r.Context(), w, http.StatusOK, response); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send configs response", zap.Error(err))
	}
}

// NotFound answers unknown routes with a json body.
func (api *APIHandler) NotFound() http.Handler {
	return api.routeError(http.StatusNotFound, "route does not exist")
}

// MethodNotAllowed answers known routes called with an unsupported method.
// The router sets the Allow header beforehand.
func (api *APIHandler) MethodNotAllowed() http.Handler {
	return api.routeError(http.StatusMethodNotAllowed, "method not allowed on this route")
}

// routeError serves the router fallbacks, which run outside the middlewares.
func (api *APIHandler) routeError(status int, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
		if requestID == "" && api.idsHandler != nil {
			requestID = api.idsHandler.Generate(RequestIDPrefix)
		}
		api.setCORSHeaders(w, r)
		response := map[string]string{
			"requestid": requestID,
			"message":   message,
			"path":      r.Method + " " + r.URL.Path,
		}
		if err := WriteResponse(r.Context(), w, status, response); err != nil {
			api.logger.Error("failed to send route error response", zap.Int("status", status), zap.String("request.id", requestID), zap.Error(err))
		}
	})
}
