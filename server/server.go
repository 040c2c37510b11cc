// Package server - HTTP harness exposing the predictor as a prediction endpoint.
package server

import (
	"context"
	"errors"
	"io"
	"iter"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"github.com/tuhinmallick/grounded-sam-replicate/inference"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
	"github.com/tuhinmallick/grounded-sam-replicate/models/model"
	"github.com/tuhinmallick/grounded-sam-replicate/profiler"
	"github.com/tuhinmallick/grounded-sam-replicate/store"
)

// RequestIDHeader carries the per-HTTP-request id.
const RequestIDHeader = "X-Request-Id"

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Predictor runs one prediction under a caller-chosen id.
type Predictor interface {
	PredictID(ctx context.Context, id string, req inference.Request) iter.Seq2[string, error]
}

// PredictionRequest is the body of POST /predictions. Fields absent from
// Input keep the defaults of inference.NewRequest.
type PredictionRequest struct {
	Input inference.Request `json:"input"`
}

// Prediction reports the outcome of a prediction. ID is generated for every
// request and names its output directory.
type Prediction struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  string   `json:"error,omitempty"`
}

// Options configures the server.
type Options struct {
	// Addr is the listen address.
	Addr string
	// Device is reported by the health endpoint.
	Device string
	// Stats, when set, is served on GET /stats.
	Stats *profiler.RuntimeProfiler
}

// Server is the HTTP front of a Predictor.
type Server struct {
	predictor Predictor
	opts      Options
	engine    *gin.Engine

	total     atomic.Int64
	failed    atomic.Int64
	streaming atomic.Int64
}

var _ profiler.MetricsCollector = (*Server)(nil)

// New creates the server and registers its routes.
//
// Arguments:
//   - p: The predictor serving POST /predictions.
//   - opts: The server options.
//
// Returns:
//   - *Server: The server.
func New(p Predictor, opts Options) *Server {
	s := &Server{predictor: p, opts: opts}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestID())
	engine.GET("/health", s.health)
	engine.POST("/predictions", s.predictions)
	if opts.Stats != nil {
		opts.Stats.AddMetricsCollector(s)
		engine.GET("/stats", s.stats)
	}
	s.engine = engine
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// CollectMetrics implements profiler.MetricsCollector.
func (s *Server) CollectMetrics() map[string]float64 {
	return map[string]float64{
		"predictions_total":     float64(s.total.Load()),
		"predictions_failed":    float64(s.failed.Load()),
		"predictions_streaming": float64(s.streaming.Load()),
	}
}

// ListenAndServe serves until ctx is done and then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	logger := log.FromContextOrDiscard(ctx)
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", s.opts.Addr, "device", s.opts.Device)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = ksuid.New().String()
		}
		c.Header(RequestIDHeader, rid)

		ctx := c.Request.Context()
		logger := log.FromContextOrDiscard(ctx).With("http_request_id", rid)
		c.Request = c.Request.WithContext(log.NewContext(ctx, logger))

		start := time.Now()
		c.Next()
		logger.Info("handled request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "device": s.opts.Device})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Stats.Snapshot())
}

// predictions runs one prediction. Paths are streamed as server-sent
// "output" events followed by "done" or "error", unless ?stream=false asks
// for a single JSON response.
func (s *Server) predictions(c *gin.Context) {
	body := PredictionRequest{Input: inference.NewRequest("")}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Prediction{Status: StatusFailed, Error: err.Error()})
		return
	}
	id := uuid.NewString()
	if err := body.Input.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, Prediction{ID: id, Status: StatusFailed, Error: err.Error()})
		return
	}

	s.total.Add(1)
	seq := s.predictor.PredictID(c.Request.Context(), id, body.Input)

	if c.DefaultQuery("stream", "true") == "false" {
		s.respond(c, id, seq)
		return
	}
	s.stream(c, id, seq)
}

func (s *Server) respond(c *gin.Context, id string, seq iter.Seq2[string, error]) {
	paths, err := inference.Collect(seq)
	result := Prediction{ID: id, Status: StatusSucceeded, Output: paths}
	if err != nil {
		s.failed.Add(1)
		result.Status = StatusFailed
		result.Error = err.Error()
		c.JSON(statusCode(err), result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) stream(c *gin.Context, id string, seq iter.Seq2[string, error]) {
	s.streaming.Add(1)
	defer s.streaming.Add(-1)

	next, stop := iter.Pull2(seq)
	defer stop()

	result := Prediction{ID: id, Status: StatusSucceeded, Output: []string{}}
	c.Stream(func(w io.Writer) bool {
		path, err, ok := next()
		switch {
		case !ok:
			c.SSEvent("done", result)
			return false
		case err != nil:
			s.failed.Add(1)
			result.Status = StatusFailed
			result.Error = err.Error()
			c.SSEvent("error", result)
			return false
		default:
			result.Output = append(result.Output, path)
			c.SSEvent("output", path)
			return true
		}
	})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, inference.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNoDetections):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrRequestExists):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
