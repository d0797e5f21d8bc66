// Package httpapi implements the HTTP dispatcher: a
// thin JSON surface over the asset store, resource store, and invocation
// engine, built on a Go 1.22+ method-prefixed http.ServeMux.
package httpapi

import (
	"net/http"
	"time"

	"github.com/kestrelfaas/kestrel/internal/assetstore"
	"github.com/kestrelfaas/kestrel/internal/engine"
	"github.com/kestrelfaas/kestrel/internal/idgen"
	"github.com/kestrelfaas/kestrel/internal/logging"
	"github.com/kestrelfaas/kestrel/internal/resourcestore"
)

// defaultInvokeTimeoutMillis is the fixed timeout POST /invoke/{id} applies.
const defaultInvokeTimeoutMillis = 5000

// Server bundles the dependencies the dispatcher's handlers need.
type Server struct {
	assets    *assetstore.Store
	resources *resourcestore.Store
	engine    *engine.Engine
	cwd       string
}

// New constructs a Server. cwd is the working directory uploaded manifests'
// relative sourceFile/file paths are resolved against.
func New(assets *assetstore.Store, resources *resourcestore.Store, eng *engine.Engine, cwd string) *Server {
	return &Server{assets: assets, resources: resources, engine: eng, cwd: cwd}
}

// Handler builds the routed http.Handler, wrapped with request-id
// stamping and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /functions", s.handleCreateFunction)
	mux.HandleFunc("GET /functions", s.handleListFunctions)
	mux.HandleFunc("POST /invoke/{id}", s.handleInvoke)
	mux.HandleFunc("POST /resources", s.handleCreateResource)
	mux.HandleFunc("GET /resources", s.handleListResources)
	mux.HandleFunc("POST /resources/{id}/owners", s.handleAttachOwner)

	return withRequestID(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := idgen.NewV7()
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(withRequestIDContext(r.Context(), requestID)))
		logging.Op().Info("http request",
			"requestId", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"durationMs", time.Since(start).Milliseconds(),
		)
	})
}
