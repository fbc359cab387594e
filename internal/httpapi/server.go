package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hupe1980/metastore"
	"github.com/hupe1980/metastore/gc"
	"github.com/hupe1980/metastore/model"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	maxBodyBytes           = 8 << 20
)

// Metastore is the catalog served by the API.
type Metastore interface {
	CreateIndex(ctx context.Context, index model.IndexMetadata) (*model.IndexMetadata, error)
	GetIndex(ctx context.Context, indexID string) (*model.IndexMetadata, error)
	DeleteIndex(ctx context.Context, indexID string) error
	ListIndexes(ctx context.Context) ([]*model.IndexMetadata, error)
	StageSplits(ctx context.Context, indexID string, splits []model.SplitMetadata) error
	PublishSplits(ctx context.Context, indexID string, stageIDs, replacedIDs []string) error
	MarkSplitsForDeletion(ctx context.Context, indexID string, splitIDs []string) error
	ListSplits(ctx context.Context, indexID string, q model.ListSplitsQuery) ([]model.SplitMetadata, error)
}

// GarbageCollector purges split files. It is optional.
type GarbageCollector interface {
	CollectIndex(ctx context.Context, indexID string) (*gc.Stats, error)
	DeleteIndex(ctx context.Context, indexID string, dryRun bool) ([]model.FileEntry, error)
	ResetIndex(ctx context.Context, indexID string) ([]model.FileEntry, error)
}

var (
	_ Metastore        = (*metastore.Metastore)(nil)
	_ GarbageCollector = (*gc.Collector)(nil)
)

// Server exposes the metastore over HTTP.
type Server struct {
	ms         Metastore
	gc         GarbageCollector
	metrics    http.Handler
	logger     *metastore.Logger
	httpServer *http.Server
	addr       string
}

// Option configures a Server.
type Option func(*Server)

// WithGarbageCollector enables the force delete, reset and gc endpoints.
func WithGarbageCollector(c GarbageCollector) Option {
	return func(s *Server) { s.gc = c }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(l *metastore.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server listening on addr.
func NewServer(ms Metastore, addr string, opts ...Option) *Server {
	s := &Server{
		ms:     ms,
		addr:   addr,
		logger: metastore.NoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1/indexes", func(r chi.Router) {
		r.Get("/", s.handleListIndexes)
		r.Post("/", s.handleCreateIndex)
		r.Route("/{indexID}", func(r chi.Router) {
			r.Get("/", s.handleGetIndex)
			r.Delete("/", s.handleDeleteIndex)
			r.Post("/reset", s.handleResetIndex)
			r.Post("/gc", s.handleCollectIndex)
			r.Get("/splits", s.handleListSplits)
			r.Post("/splits/stage", s.handleStageSplits)
			r.Post("/splits/publish", s.handlePublishSplits)
			r.Post("/splits/mark-for-deletion", s.handleMarkSplits)
		})
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server started", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("invalid request body: "+err.Error()))
		return false
	}
	if err := model.Validate(dst); err != nil {
		writeError(w, fmt.Errorf("%w: %w", metastore.ErrInvalidArgument, err))
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewOKResponse())
}

type createIndexRequest struct {
	IndexID  string          `json:"index_id" validate:"required,index_id"`
	IndexURI string          `json:"index_uri"`
	Config   json.RawMessage `json:"config"`
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var req createIndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	idx, err := s.ms.CreateIndex(r.Context(), model.IndexMetadata{
		IndexID:  req.IndexID,
		IndexURI: req.IndexURI,
		Config:   req.Config,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewSuccessResponse(idx))
}

func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	indexes, err := s.ms.ListIndexes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(indexes))
}

func (s *Server) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	idx, err := s.ms.GetIndex(r.Context(), chi.URLParam(r, "indexID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(idx))
}

// handleDeleteIndex deletes an empty index. With force=true the garbage
// collector purges its splits first; dry_run=true lists the files instead.
func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	indexID := chi.URLParam(r, "indexID")
	force := queryBool(r, "force")
	dryRun := queryBool(r, "dry_run")

	if !force && !dryRun {
		if err := s.ms.DeleteIndex(r.Context(), indexID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, NewSuccessResponse(nil))
		return
	}
	if s.gc == nil {
		writeJSON(w, http.StatusNotImplemented, NewErrorResponse("garbage collector not configured"))
		return
	}
	files, err := s.gc.DeleteIndex(r.Context(), indexID, dryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(files))
}

func (s *Server) handleResetIndex(w http.ResponseWriter, r *http.Request) {
	if s.gc == nil {
		writeJSON(w, http.StatusNotImplemented, NewErrorResponse("garbage collector not configured"))
		return
	}
	files, err := s.gc.ResetIndex(r.Context(), chi.URLParam(r, "indexID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(files))
}

func (s *Server) handleCollectIndex(w http.ResponseWriter, r *http.Request) {
	if s.gc == nil {
		writeJSON(w, http.StatusNotImplemented, NewErrorResponse("garbage collector not configured"))
		return
	}
	stats, err := s.gc.CollectIndex(r.Context(), chi.URLParam(r, "indexID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(stats))
}

type stageSplitsRequest struct {
	Splits []model.SplitMetadata `json:"splits" validate:"required,min=1,dive"`
}

func (s *Server) handleStageSplits(w http.ResponseWriter, r *http.Request) {
	var req stageSplitsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ms.StageSplits(r.Context(), chi.URLParam(r, "indexID"), req.Splits); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(nil))
}

type publishSplitsRequest struct {
	SplitIDs         []string `json:"split_ids" validate:"dive,required"`
	ReplacedSplitIDs []string `json:"replaced_split_ids" validate:"dive,required"`
}

func (s *Server) handlePublishSplits(w http.ResponseWriter, r *http.Request) {
	var req publishSplitsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ms.PublishSplits(r.Context(), chi.URLParam(r, "indexID"), req.SplitIDs, req.ReplacedSplitIDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(nil))
}

type markSplitsRequest struct {
	SplitIDs []string `json:"split_ids" validate:"required,min=1,dive,required"`
}

func (s *Server) handleMarkSplits(w http.ResponseWriter, r *http.Request) {
	var req markSplitsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ms.MarkSplitsForDeletion(r.Context(), chi.URLParam(r, "indexID"), req.SplitIDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(nil))
}

// handleListSplits accepts split_states (comma separated), start_timestamp,
// end_timestamp and tags (comma separated, all required).
func (s *Server) handleListSplits(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	splits, err := s.ms.ListSplits(r.Context(), chi.URLParam(r, "indexID"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(splits))
}

func parseListQuery(r *http.Request) (model.ListSplitsQuery, error) {
	var q model.ListSplitsQuery
	values := r.URL.Query()

	for _, name := range splitList(values.Get("split_states")) {
		st, err := model.ParseSplitState(name)
		if err != nil {
			return q, fmt.Errorf("%w: %w", metastore.ErrInvalidArgument, err)
		}
		q.States = append(q.States, st)
	}
	q.Tags = splitList(values.Get("tags"))

	start, hasStart, err := queryInt(values.Get("start_timestamp"))
	if err != nil {
		return q, fmt.Errorf("%w: start_timestamp: %w", metastore.ErrInvalidArgument, err)
	}
	end, hasEnd, err := queryInt(values.Get("end_timestamp"))
	if err != nil {
		return q, fmt.Errorf("%w: end_timestamp: %w", metastore.ErrInvalidArgument, err)
	}
	if hasStart || hasEnd {
		tr := model.TimeRange{Start: minTimestamp, End: maxTimestamp}
		if hasStart {
			tr.Start = start
		}
		if hasEnd {
			tr.End = end
		}
		q.TimeRange = &tr
	}
	return q, nil
}

const (
	minTimestamp = -1 << 63
	maxTimestamp = 1<<63 - 1
)

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func queryInt(s string) (int64, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil, err
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
