// Package api provides the REST endpoints for registry search and refresh
// control.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aircraft_registry/internal/refresh"
	"aircraft_registry/internal/store"
)

// Searcher answers aircraft search queries.
type Searcher interface {
	Search(ctx context.Context, params store.SearchParams) (*store.SearchResult, error)
}

// Refresher runs dataset refreshes and reports the latest run.
type Refresher interface {
	Refresh(ctx context.Context, trigger string) (*refresh.Result, error)
	LatestStatus(ctx context.Context) (*refresh.Status, error)
}

// Server exposes the registry over HTTP.
type Server struct {
	searcher Searcher
	refresh  Refresher
	port     int
	logger   *log.Logger
}

// Config holds configuration for the API server.
type Config struct {
	Port int
}

// NewServer creates the API server.
func NewServer(searcher Searcher, refreshSvc Refresher, cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		searcher: searcher,
		refresh:  refreshSvc,
		port:     cfg.Port,
		logger:   logger,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := ":" + strconv.Itoa(s.port)
	s.logger.Printf("[api] listening at http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Router())
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/airplanes", s.handleSearch)
		r.Get("/airplanes/refresh-status", s.handleRefreshStatus)
		r.Post("/airplanes/refresh", s.handleRefresh)
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.refresh.LatestStatus(r.Context())
	if err != nil {
		s.logger.Printf("[api] refresh status: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load refresh status")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(status))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.refresh.Refresh(r.Context(), store.TriggerManual)
	if errors.Is(err, refresh.ErrRefreshInProgress) {
		writeError(w, http.StatusConflict, "a dataset refresh is already in progress")
		return
	}
	if err != nil {
		s.logger.Printf("[api] manual refresh: %v", err)
		writeError(w, http.StatusInternalServerError, "dataset refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ingestionId": res.IngestionID,
		"durationMs":  res.Duration.Milliseconds(),
		"dataVersion": res.DataVersion,
		"stats": map[string]int64{
			"manufacturers": res.Stats.Manufacturers,
			"models":        res.Stats.AircraftModels,
			"engines":       res.Stats.Engines,
			"aircraft":      res.Stats.Aircraft,
			"owners":        res.Stats.Owners,
			"ownerLinks":    res.Stats.OwnerLinks,
		},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params, echo, err := parseSearchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.searcher.Search(r.Context(), params)
	if err != nil {
		s.logger.Printf("[api] search: %v", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	totalPages := int64(0)
	if result.Total > 0 {
		totalPages = (result.Total + int64(params.PageSize) - 1) / int64(params.PageSize)
	}

	data := make([]airplaneResponse, 0, len(result.Data))
	for _, a := range result.Data {
		data = append(data, airplaneToResponse(a))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": map[string]any{
			"page":       params.Page,
			"pageSize":   params.PageSize,
			"total":      result.Total,
			"totalPages": totalPages,
		},
		"filters": echo,
	})
}

// parseSearchQuery validates the filters and pagination, returning the store
// params plus the normalized filter echo for the response body.
func parseSearchQuery(r *http.Request) (store.SearchParams, map[string]any, error) {
	q := r.URL.Query()
	params := store.SearchParams{Page: 1, PageSize: 25}

	var tailEcho any
	if raw := strings.ToUpper(strings.TrimSpace(q.Get("tailNumber"))); raw != "" {
		if !isAlphanumeric(raw) {
			return params, nil, errors.New("tail number must be alphanumeric")
		}
		if strings.TrimPrefix(raw, "N") == "" {
			return params, nil, errors.New("tail number must include characters after the N prefix")
		}
		tail := raw
		if !strings.HasPrefix(tail, "N") {
			tail = "N" + tail
		}
		if len(tail) > 10 {
			return params, nil, errors.New("tail number must not exceed 10 characters")
		}
		exact, err := parseBool(q.Get("exact"))
		if err != nil {
			return params, nil, err
		}
		params.TailNumber = &store.TailNumberFilter{Value: tail, Exact: exact}
		tailEcho = map[string]any{"value": tail, "exact": exact}
	}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		if len(raw) > 10 {
			return params, nil, errors.New("status must not exceed 10 characters")
		}
		status := strings.ToUpper(raw)
		params.Status = &status
	}
	if raw := strings.TrimSpace(q.Get("manufacturer")); raw != "" {
		if len(raw) > 120 {
			return params, nil, errors.New("manufacturer must not exceed 120 characters")
		}
		params.Manufacturer = &raw
	}
	if raw := strings.TrimSpace(q.Get("owner")); raw != "" {
		if len(raw) > 120 {
			return params, nil, errors.New("owner must not exceed 120 characters")
		}
		params.Owner = &raw
	}

	if params.TailNumber == nil && params.Status == nil && params.Manufacturer == nil && params.Owner == nil {
		return params, nil, errors.New("at least one search filter is required")
	}

	var err error
	if params.Page, err = parseIntInRange(q.Get("page"), 1, 1000, 1, "page"); err != nil {
		return params, nil, err
	}
	if params.PageSize, err = parseIntInRange(q.Get("pageSize"), 1, 100, 25, "pageSize"); err != nil {
		return params, nil, err
	}

	echo := map[string]any{
		"tailNumber":   tailEcho,
		"status":       params.Status,
		"manufacturer": params.Manufacturer,
		"owner":        params.Owner,
	}
	return params, echo, nil
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "false", "0":
		return false, nil
	case "true", "1":
		return true, nil
	default:
		return false, errors.New("exact must be a boolean")
	}
}

func parseIntInRange(raw string, min, max, fallback int, name string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < min || n > max {
		return 0, errors.New(name + " must be an integer between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return n, nil
}

// airplaneResponse is one aircraft summary in the search payload.
type airplaneResponse struct {
	TailNumber             string          `json:"tailNumber"`
	SerialNumber           *string         `json:"serialNumber"`
	StatusCode             *string         `json:"statusCode"`
	RegistrantType         *string         `json:"registrantType"`
	Manufacturer           *string         `json:"manufacturer"`
	Model                  *string         `json:"model"`
	ModelCode              *string         `json:"modelCode"`
	EngineManufacturer     *string         `json:"engineManufacturer"`
	EngineModel            *string         `json:"engineModel"`
	AirworthinessClass     *string         `json:"airworthinessClass"`
	CertificationIssueDate *string         `json:"certificationIssueDate"`
	ExpirationDate         *string         `json:"expirationDate"`
	LastActivityDate       *string         `json:"lastActivityDate"`
	FractionalOwnership    *bool           `json:"fractionalOwnership"`
	Owners                 []ownerResponse `json:"owners"`
}

type ownerResponse struct {
	Name           string  `json:"name"`
	City           *string `json:"city"`
	State          *string `json:"state"`
	Country        *string `json:"country"`
	OwnershipType  *string `json:"ownershipType"`
	LastActionDate *string `json:"lastActionDate"`
}

func airplaneToResponse(a store.AircraftSummary) airplaneResponse {
	owners := make([]ownerResponse, 0, len(a.Owners))
	for _, o := range a.Owners {
		owners = append(owners, ownerResponse{
			Name:           o.Name,
			City:           o.City,
			State:          o.State,
			Country:        o.Country,
			OwnershipType:  o.OwnershipType,
			LastActionDate: formatTime(o.LastActionDate),
		})
	}
	return airplaneResponse{
		TailNumber:             a.TailNumber,
		SerialNumber:           a.SerialNumber,
		StatusCode:             a.StatusCode,
		RegistrantType:         a.RegistrantType,
		Manufacturer:           a.Manufacturer,
		Model:                  a.Model,
		ModelCode:              a.ModelCode,
		EngineManufacturer:     a.EngineManufacturer,
		EngineModel:            a.EngineModel,
		AirworthinessClass:     a.AirworthinessClass,
		CertificationIssueDate: formatTime(a.CertificationIssueDate),
		ExpirationDate:         formatTime(a.ExpirationDate),
		LastActivityDate:       formatTime(a.LastActivityDate),
		FractionalOwnership:    a.FractionalOwnership,
		Owners:                 owners,
	}
}

func statusResponse(s *refresh.Status) map[string]any {
	return map[string]any{
		"id":           s.ID,
		"status":       s.Status,
		"trigger":      s.Trigger,
		"downloadedAt": s.DownloadedAt,
		"startedAt":    s.StartedAt,
		"completedAt":  s.CompletedAt,
		"failedAt":     s.FailedAt,
		"dataVersion":  s.DataVersion,
		"totals": map[string]any{
			"manufacturers": s.Totals.Manufacturers,
			"models":        s.Totals.Models,
			"engines":       s.Totals.Engines,
			"aircraft":      s.Totals.Aircraft,
			"owners":        s.Totals.Owners,
			"ownerLinks":    s.Totals.OwnerLinks,
		},
		"errorMessage": s.ErrorMessage,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}
