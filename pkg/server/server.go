// Package server exposes the calculation, streaming and narrative services
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/acacalc/acacalc/pkg/audit"
	"github.com/acacalc/acacalc/pkg/calculator"
	"github.com/acacalc/acacalc/pkg/config"
	"github.com/acacalc/acacalc/pkg/metrics"
	"github.com/acacalc/acacalc/pkg/models"
	"github.com/acacalc/acacalc/pkg/narrative"
)

// maxBodySize caps request bodies; households are small.
const maxBodySize = 1 << 20

// Server is the acacalc HTTP API.
type Server struct {
	cfg        *config.Config
	calculator *calculator.Service
	narrative  *narrative.Service
	auditor    *audit.Logger
	metrics    *metrics.Collector
	logger     *zap.Logger
	mux        *http.ServeMux
	handler    http.Handler
}

// New creates a Server wired with all dependencies. auditor and m may be nil.
func New(cfg *config.Config, calc *calculator.Service, narr *narrative.Service, auditor *audit.Logger, m *metrics.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		calculator: calc,
		narrative:  narr,
		auditor:    auditor,
		metrics:    m,
		logger:     logger.With(zap.String("component", "server")),
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("/calculate", s.handleCalculate)
	s.mux.HandleFunc("/calculate-stream", s.handleCalculateStream)
	s.mux.HandleFunc("/explain", s.handleExplain)
	s.mux.HandleFunc("/health", s.handleHealth)
	if m != nil {
		s.mux.Handle("/metrics", m.Handler())
	}

	s.handler = Chain(s.mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		Metrics(m),
		CORS(cfg.CORS.AllowedOrigins),
	)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("acacalc listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"status":"healthy"}`)
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := models.NewCalculationRequest()
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.calculator.Calculate(r.Context(), req)
	if err != nil {
		code := errorStatus(err)
		writeJSONError(w, code, calculator.ErrorMessage(err))
		s.audit(r, start, code, s.calculator.Key(req), "", nil, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Acacalc-Cache", cacheStatus(resp.Cached))
	_, _ = w.Write(resp.Payload)
	s.audit(r, start, http.StatusOK, resp.Key, cacheStatus(resp.Cached), resp.FailedReforms, nil)
}

func (s *Server) handleCalculateStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := models.NewCalculationRequest()
	if !decodeBody(w, r, &req) {
		return
	}
	// Reject bad input with a plain 400 before committing to an event stream.
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		s.audit(r, start, http.StatusBadRequest, "", "", nil, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(evt models.ProgressEvent) error {
		data, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return r.Context().Err()
	}

	resp, err := s.calculator.Stream(r.Context(), req, emit)
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Info("stream client disconnected",
				zap.String("request_id", RequestIDFromContext(r.Context())))
		}
		s.audit(r, start, http.StatusOK, s.calculator.Key(req), "", nil, err)
		return
	}
	s.audit(r, start, http.StatusOK, resp.Key, cacheStatus(resp.Cached), resp.FailedReforms, nil)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := models.NewNarrativeRequest()
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.narrative.Explain(r.Context(), req)
	if err != nil {
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			s.logger.Error("explain failed", zap.Error(err),
				zap.String("request_id", RequestIDFromContext(r.Context())))
		}
		writeJSONError(w, code, narrative.ErrorMessage(err))
		s.audit(r, start, code, "", "", nil, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Acacalc-Cache", cacheStatus(resp.Cached))
	_, _ = w.Write(resp.Payload)
	s.audit(r, start, http.StatusOK, resp.Key, cacheStatus(resp.Cached), nil, nil)
}

// audit records the request; failures are logged and otherwise ignored.
func (s *Server) audit(r *http.Request, start time.Time, code int, key, status string, failed []string, reqErr error) {
	if s.auditor == nil {
		return
	}
	entry := models.AuditEntry{
		RequestID:     RequestIDFromContext(r.Context()),
		Endpoint:      r.URL.Path,
		CacheKey:      key,
		CacheStatus:   status,
		StatusCode:    code,
		FailedReforms: failed,
		LatencyMs:     time.Since(start).Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
	if reqErr != nil {
		entry.Error = reqErr.Error()
	}
	if err := s.auditor.Log(context.WithoutCancel(r.Context()), entry); err != nil {
		s.logger.Warn("audit log error", zap.Error(err))
	}
}

// decodeBody enforces POST and decodes a JSON body into v, writing the error
// response itself when it returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	r.Body.Close()
	if err := json.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func errorStatus(err error) int {
	if models.IsValidationError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func cacheStatus(cached bool) string {
	if cached {
		return models.CacheHit
	}
	return models.CacheMiss
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// writeJSONError writes the error envelope. Messages may echo client
// input or upstream bodies, so they go through the JSON encoder.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Message: message, Type: "acacalc_error", Code: code},
	})
}
