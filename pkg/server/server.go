// Package server exposes the relayer pipeline over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/gin-gonic/gin"
)

const (
	DefaultMaxUploadBytes = 20 << 20
	defaultRunBudget      = 75 * time.Second

	// Covers upload read and response write around a pipeline run.
	writeTimeoutMargin = 30 * time.Second
)

type Option func(*handlers)

func WithMaxUploadBytes(limit int64) Option {
	return func(h *handlers) {
		if limit > 0 {
			h.maxUploadBytes = limit
		}
	}
}

// NewRouter wires the middleware chain and routes:
//
//	GET  /health
//	POST /api/v1/reports  (multipart field "audio")
//	GET  /api/v1/models
func NewRouter(runner ReportRunner, lister model.ModelLister, opts ...Option) *gin.Engine {
	h := &handlers{
		runner:         runner,
		lister:         lister,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	router := gin.New()
	router.MaxMultipartMemory = h.maxUploadBytes
	router.Use(RequestID(), AccessLog(), Recovery())

	router.GET("/health", h.health)
	v1 := router.Group("/api/v1")
	{
		v1.POST("/reports", h.createReport)
		v1.GET("/models", h.listModels)
	}
	return router
}

// NewHTTPServer sizes the write deadline from runBudget, the longest a
// pipeline run may take (inference plus delivery timeouts), so a slow run
// still gets its response written. A non-positive budget uses the pipeline
// defaults.
func NewHTTPServer(addr string, handler http.Handler, runBudget time.Duration) *http.Server {
	if runBudget <= 0 {
		runBudget = defaultRunBudget
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      runBudget + writeTimeoutMargin,
	}
}
