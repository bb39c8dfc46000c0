package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/funnyzak/gqltap/internal/config"
	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/internal/session"
	"github.com/funnyzak/gqltap/internal/storage"
	"github.com/funnyzak/gqltap/pkg/entry"
	"github.com/funnyzak/gqltap/pkg/filter"
	"github.com/funnyzak/gqltap/pkg/inspect"
	"github.com/funnyzak/gqltap/pkg/stats"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	contentTypeJSON  = "application/json"
)

// Service exposes the session over HTTP: event ingest, session control, row
// queries, export and the live feed.
type Service struct {
	cfg     *config.WebConfig
	logger  logger.Logger
	ctrl    *session.Controller
	hub     *LiveHub
	formats []string
	maxBody int64
}

// NewService builds a Service and registers its live hub as a session sink.
func NewService(cfg *config.WebConfig, maxBody int64, ctrl *session.Controller, log logger.Logger) *Service {
	hub := NewLiveHub(log)
	svc := &Service{
		cfg:     cfg,
		logger:  log,
		ctrl:    ctrl,
		hub:     hub,
		formats: AllowedFormats(cfg.Export.Formats),
		maxBody: maxBody,
	}
	hub.OnHello(svc.hello)
	ctrl.AddSink(hub)
	return svc
}

// Hub returns the live feed hub.
func (s *Service) Hub() *LiveHub {
	return s.hub
}

// RegisterRoutes wires HTTP routes into the provided router.
func (s *Service) RegisterRoutes(router *mux.Router) {
	if s == nil || !s.cfg.Enable {
		return
	}

	api := router.PathPrefix(normalizePath(s.cfg.AdminPath)).Subrouter()
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodPost)
	api.HandleFunc("/navigate", s.handleNavigate).Methods(http.MethodPost)
	api.HandleFunc("/clear", s.handleClear).Methods(http.MethodPost)
	api.HandleFunc("/pause", s.handlePause).Methods(http.MethodPost)
	api.HandleFunc("/preserve", s.handlePreserve).Methods(http.MethodPost)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/filters", s.handleFilters).Methods(http.MethodGet)
	api.HandleFunc("/filters", s.handleSetFilters).Methods(http.MethodPut)
	api.HandleFunc("/filters/{name}/toggle", s.handleToggleFilter).Methods(http.MethodPost)
	api.HandleFunc("/rows", s.handleRows).Methods(http.MethodGet)
	api.HandleFunc("/rows/{id}", s.handleRow).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
}

// Close releases resources.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.hub.Close()
}

type helloMessage struct {
	Type  string         `json:"type"`
	State session.State  `json:"state"`
	Stats stats.Snapshot `json:"stats"`
}

func (s *Service) hello() interface{} {
	return helloMessage{Type: "hello", State: s.ctrl.State(), Stats: s.ctrl.Stats()}
}

type eventsResponse struct {
	Accepted int              `json:"accepted"`
	Dropped  int              `json:"dropped"`
	Results  []session.Result `json:"results"`
}

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if s.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}

	records, err := entry.DecodeEvents(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		case errors.Is(err, entry.ErrNoEntries):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.respondError(w, http.StatusBadRequest, "invalid event payload")
		}
		s.logger.Debug("Rejected event payload", "error", err, "remote", r.RemoteAddr)
		return
	}

	results, err := s.ctrl.HandleBatch(r.Context(), records)
	if err != nil {
		s.logger.Error("Failed to handle events", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to record events")
		return
	}

	resp := eventsResponse{Results: results}
	for _, res := range results {
		if res.Dropped {
			resp.Dropped++
		} else {
			resp.Accepted++
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Service) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Navigate(r.Context()); err != nil {
		s.logger.Error("Navigation reset failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "navigation reset failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"state": s.ctrl.State(), "stats": s.ctrl.Stats()})
}

func (s *Service) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Clear(r.Context()); err != nil {
		s.logger.Error("Clear failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"state": s.ctrl.State(), "stats": s.ctrl.Stats()})
}

type flagRequest struct {
	Paused      *bool `json:"paused"`
	PreserveLog *bool `json:"preserve_log"`
}

// decodeFlags reads an optional JSON body; an empty body means toggle.
func decodeFlags(r *http.Request) (flagRequest, error) {
	var req flagRequest
	if r.Body == nil {
		return req, nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req)
	if errors.Is(err, io.EOF) {
		return req, nil
	}
	return req, err
}

func (s *Service) handlePause(w http.ResponseWriter, r *http.Request) {
	req, err := decodeFlags(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var state session.State
	if req.Paused != nil {
		state = s.ctrl.SetPaused(r.Context(), *req.Paused)
	} else {
		state = s.ctrl.TogglePause(r.Context())
	}
	s.respondJSON(w, http.StatusOK, state)
}

func (s *Service) handlePreserve(w http.ResponseWriter, r *http.Request) {
	req, err := decodeFlags(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var state session.State
	if req.PreserveLog != nil {
		state, err = s.ctrl.SetPreserve(r.Context(), *req.PreserveLog)
	} else {
		state, err = s.ctrl.TogglePreserve(r.Context())
	}
	if err != nil {
		s.logger.Error("Preserve log change failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "preserve log change failed")
		return
	}
	s.respondJSON(w, http.StatusOK, state)
}

func (s *Service) handleState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.ctrl.State())
}

func (s *Service) handleFilters(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string][]filter.Filter{"filters": s.ctrl.Filters()})
}

func (s *Service) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filters []string `json:"filters"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	state, err := s.ctrl.SetFilters(r.Context(), req.Filters)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string][]filter.Filter{"filters": state.Filters})
}

func (s *Service) handleToggleFilter(w http.ResponseWriter, r *http.Request) {
	state, err := s.ctrl.ToggleFilter(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string][]filter.Filter{"filters": state.Filters})
}

func (s *Service) handleRows(w http.ResponseWriter, r *http.Request) {
	q, err := s.rowQuery(r, true)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, total, err := s.ctrl.Rows(q)
	if err != nil {
		s.logger.Error("Failed to list rows", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list rows")
		return
	}
	if rows == nil {
		rows = []*inspect.Row{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   rows,
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
	})
}

func (s *Service) handleRow(w http.ResponseWriter, r *http.Request) {
	row, err := s.ctrl.Row(mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "row not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load row", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load row")
		return
	}
	s.respondJSON(w, http.StatusOK, row)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats": s.ctrl.Stats(),
		"other": s.ctrl.OtherStats(),
		"state": s.ctrl.State(),
	})
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Export.Enable {
		s.respondError(w, http.StatusForbidden, "export disabled")
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	if !containsFormat(s.formats, format) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format: %s", format))
		return
	}
	contentType, ext, err := DescribeFormat(format)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.rowQuery(r, false)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, _, err := s.ctrl.Rows(q)
	if err != nil {
		s.logger.Error("Export failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to export data")
		return
	}

	filename := fmt.Sprintf("gqltap_rows_%d.%s", time.Now().Unix(), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	if _, _, err := StreamExport(w, SliceIterator(rows), format); err != nil {
		s.logger.Error("Export stream interrupted", "error", err)
	}
}

func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Upgrade(w, r); err != nil {
		s.logger.Error("Failed to upgrade websocket", "error", err)
	}
}

// rowQuery parses search, category, visible and, when paged, limit/offset.
func (s *Service) rowQuery(r *http.Request, paged bool) (session.RowQuery, error) {
	query := r.URL.Query()
	q := session.RowQuery{
		ListOptions: storage.ListOptions{Search: query.Get("search")},
		OnlyVisible: parseBool(query.Get("visible")),
	}

	if c := strings.ToLower(strings.TrimSpace(query.Get("category"))); c != "" {
		if !isCategory(c) {
			return q, fmt.Errorf("unknown category: %s", c)
		}
		q.Category = inspect.Category(c)
	}

	if paged {
		q.Limit = parseIntDefault(query.Get("limit"), defaultListLimit)
		if q.Limit <= 0 || q.Limit > maxListLimit {
			q.Limit = maxListLimit
		}
		q.Offset = parseIntDefault(query.Get("offset"), 0)
		if q.Offset < 0 {
			q.Offset = 0
		}
	}
	return q, nil
}

func (s *Service) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Service) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func isCategory(name string) bool {
	for _, c := range inspect.Categories {
		if string(c) == name {
			return true
		}
	}
	return false
}

func parseBool(value string) bool {
	b, err := strconv.ParseBool(value)
	return err == nil && b
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}

	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return def
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func containsFormat(formats []string, target string) bool {
	for _, f := range formats {
		if f == target {
			return true
		}
	}
	return false
}
