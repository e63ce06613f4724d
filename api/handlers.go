package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/index"
	"github.com/poiesic/marketsearch/rebuild"
	"github.com/poiesic/marketsearch/search"
	"github.com/poiesic/marketsearch/storage"
)

const (
	foundMessage  = "Matches found"
	browseMessage = "Discover our products."
)

type foundObject struct {
	Kind           string `json:"kind"`
	ID             string `json:"id"`
	Representation string `json:"representation"`
}

type result struct {
	ID          core.ID        `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	Distance    *float64       `json:"distance,omitempty"`
	FoundObject foundObject    `json:"found_object"`
}

type searchResponse struct {
	Results  []result      `json:"results"`
	Found    bool          `json:"found"`
	Message  string        `json:"message"`
	Strategy core.Strategy `json:"strategy"`
}

type indexRequest struct {
	Kind string `json:"kind" binding:"required"`
	ID   string `json:"id" binding:"required"`
}

type rebuildRequest struct {
	Kind       string `json:"kind" binding:"required"`
	Background bool   `json:"background"`
	PurgeFirst bool   `json:"purge_first"`
}

type jobResponse struct {
	JobID     string        `json:"job_id"`
	Kind      string        `json:"kind"`
	State     core.JobState `json:"state"`
	Cursor    string        `json:"cursor,omitempty"`
	Indexed   int           `json:"indexed"`
	Skipped   int           `json:"skipped"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toJobResponse(cp *core.Checkpoint) jobResponse {
	return jobResponse{
		JobID:     cp.JobID,
		Kind:      cp.SourceKind,
		State:     cp.State,
		Cursor:    cp.Cursor,
		Indexed:   cp.Indexed,
		Skipped:   cp.Skipped,
		Error:     cp.Error,
		StartedAt: cp.StartedAt,
		UpdatedAt: cp.UpdatedAt,
	}
}

func toResult(hit *core.Hit) result {
	e := hit.Entry
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return result{
		ID:          e.Id,
		Title:       e.Title,
		Description: e.Description,
		Metadata:    metadata,
		Distance:    hit.Distance,
		FoundObject: foundObject{
			Kind:           e.SourceKind,
			ID:             e.SourceID,
			Representation: representation(e),
		},
	}
}

func representation(e *core.IndexEntry) string {
	kind := strings.ReplaceAll(e.SourceKind, "_", " ")
	if kind != "" {
		kind = strings.ToUpper(kind[:1]) + kind[1:]
	}
	return kind + ": " + e.Title
}

// Search handles GET /search.
// When nothing matches, a random sample of the index (restricted to the
// requested type) is returned with found=false.
func (s *Server) Search(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", ErrInvalidLimit)
			return
		}
		limit = n
	}

	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	parsed := search.ParseFilters(params)
	query := c.Query("q")

	resp, err := s.searcher.Search(c.Request.Context(), search.Request{
		Query:      query,
		Kind:       parsed.Kind,
		Filters:    parsed.Filters,
		Limit:      limit,
		UserID:     c.GetString(userIDKey),
		SessionKey: c.GetHeader("X-Session-Key"),
	})
	if err != nil {
		s.logger.Error("search failed", "query", query, "err", err)
		RespondError(c, http.StatusInternalServerError, "search_failed", err)
		return
	}

	if len(resp.Hits) > 0 {
		RespondOK(c, searchResponse{
			Results:  toResults(resp.Hits),
			Found:    true,
			Message:  foundMessage,
			Strategy: resp.Strategy,
		})
		return
	}

	sample, err := s.searcher.Sample(c.Request.Context(), parsed.Kind, search.SampleSize)
	if err != nil {
		s.logger.Warn("error sampling index", "err", err)
		sample = nil
	}
	message := browseMessage
	if q := strings.TrimSpace(query); q != "" {
		message = fmt.Sprintf("No exact matches for '%s'. Here are some available products.", q)
	}
	RespondOK(c, searchResponse{
		Results:  toResults(sample),
		Found:    false,
		Message:  message,
		Strategy: core.StrategySample,
	})
}

func toResults(hits []*core.Hit) []result {
	results := make([]result, len(hits))
	for i, hit := range hits {
		results[i] = toResult(hit)
	}
	return results
}

// IndexEntity handles POST /admin/index.
func (s *Server) IndexEntity(c *gin.Context) {
	var req indexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	entry, err := s.indexer.IndexKey(c.Request.Context(), req.Kind, req.ID)
	switch {
	case err == nil:
	case errors.Is(err, index.ErrEntityNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	case errors.Is(err, index.ErrUnknownKind):
		RespondError(c, http.StatusBadRequest, "unknown_kind", err)
		return
	case errors.Is(err, core.ErrInvalidEntity):
		RespondError(c, http.StatusUnprocessableEntity, "invalid_entity", err)
		return
	default:
		s.logger.Error("index failed", "kind", req.Kind, "id", req.ID, "err", err)
		RespondError(c, http.StatusInternalServerError, "index_failed", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":   "indexed",
		"kind":     entry.SourceKind,
		"id":       entry.SourceID,
		"entry_id": entry.Id,
		"embedded": entry.HasEmbedding(),
	})
}

// DeleteEntry handles DELETE /admin/index-entry/:id.
func (s *Server) DeleteEntry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		RespondError(c, http.StatusBadRequest, "invalid_id", ErrInvalidEntryID)
		return
	}
	err = s.indexer.Entries().DeleteEntry(c.Request.Context(), core.ID(id))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case err != nil:
		RespondError(c, http.StatusInternalServerError, "delete_failed", err)
	default:
		c.Status(http.StatusNoContent)
	}
}

// Rebuild handles POST /admin/rebuild.
// A background rebuild returns 202 with its job; otherwise the rebuild runs
// within the request and returns 200 with the final job state.
func (s *Server) Rebuild(c *gin.Context) {
	var req rebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()

	if s.rebuilds == nil {
		if req.Background {
			RespondError(c, http.StatusNotImplemented, "unsupported", errors.New("background rebuilds are not enabled"))
			return
		}
		n, err := s.indexer.Rebuild(ctx, req.Kind)
		if err != nil {
			s.rebuildError(c, err)
			return
		}
		RespondOK(c, gin.H{"status": "rebuilt", "kind": core.NormalizeKind(req.Kind), "indexed": n})
		return
	}

	var opts []rebuild.StartOption
	if req.PurgeFirst {
		opts = append(opts, rebuild.PurgeFirst())
	}
	if req.Background {
		cp, err := s.rebuilds.Start(ctx, req.Kind, opts...)
		if err != nil {
			s.rebuildError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, toJobResponse(cp))
		return
	}

	cp, err := s.rebuilds.Run(ctx, req.Kind, opts...)
	if err != nil {
		s.rebuildError(c, err)
		return
	}
	RespondOK(c, toJobResponse(cp))
}

// ListRebuilds handles GET /admin/rebuild.
func (s *Server) ListRebuilds(c *gin.Context) {
	if !s.requireRebuilds(c) {
		return
	}
	jobs, err := s.rebuilds.Jobs(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	out := make([]jobResponse, len(jobs))
	for i, cp := range jobs {
		out[i] = toJobResponse(cp)
	}
	RespondOK(c, gin.H{"jobs": out})
}

// RebuildStatus handles GET /admin/rebuild/:job.
func (s *Server) RebuildStatus(c *gin.Context) {
	if !s.requireRebuilds(c) {
		return
	}
	cp, err := s.rebuilds.Status(c.Request.Context(), c.Param("job"))
	if err != nil {
		s.rebuildError(c, err)
		return
	}
	RespondOK(c, toJobResponse(cp))
}

// CancelRebuild handles DELETE /admin/rebuild/:job.
func (s *Server) CancelRebuild(c *gin.Context) {
	if !s.requireRebuilds(c) {
		return
	}
	ctx := c.Request.Context()
	if err := s.rebuilds.Cancel(ctx, c.Param("job")); err != nil {
		s.rebuildError(c, err)
		return
	}
	cp, err := s.rebuilds.Status(ctx, c.Param("job"))
	if err != nil {
		s.rebuildError(c, err)
		return
	}
	RespondOK(c, toJobResponse(cp))
}

// ResumeRebuild handles POST /admin/rebuild/:job/resume.
func (s *Server) ResumeRebuild(c *gin.Context) {
	if !s.requireRebuilds(c) {
		return
	}
	cp, err := s.rebuilds.Resume(c.Request.Context(), c.Param("job"))
	if err != nil {
		s.rebuildError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toJobResponse(cp))
}

// Health handles GET /healthz.
func Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) requireRebuilds(c *gin.Context) bool {
	if s.rebuilds == nil {
		RespondError(c, http.StatusNotImplemented, "unsupported", errors.New("background rebuilds are not enabled"))
		return false
	}
	return true
}

func (s *Server) rebuildError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, index.ErrUnknownKind):
		RespondError(c, http.StatusBadRequest, "unknown_kind", err)
	case errors.Is(err, rebuild.ErrJobNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, rebuild.ErrRebuildInProgress), errors.Is(err, rebuild.ErrJobFinished):
		RespondError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, rebuild.ErrManagerClosed):
		RespondError(c, http.StatusServiceUnavailable, "unavailable", err)
	default:
		s.logger.Error("rebuild failed", "err", err)
		RespondError(c, http.StatusInternalServerError, "rebuild_failed", err)
	}
}
