package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"shortlink/internal/logger"
	"shortlink/internal/model"
	"shortlink/internal/service"
	"shortlink/internal/util"
)

const (
	msgInvalidURL  = "Invalid URL"
	msgInvalidCode = "Short code must be exactly 6 characters long."
	msgNotFound    = "Short code not found."
	msgDatabase    = "Database unavailable."
	msgUnexpected  = "Unexpected error."
	msgUnknown     = "Unknown error."
)

// URLService is the subset of *service.Service the handlers call.
type URLService interface {
	ShortenURL(ctx context.Context, url string) service.Result
	GetOriginalURL(ctx context.Context, code string) service.Result
	GetStats(ctx context.Context, code string) service.StatsResult
	ListMappings(ctx context.Context, page, limit int) service.ListResult
	Ready(ctx context.Context) error
}

type Handler struct {
	Service URLService
	Log     *zap.Logger
	Origins []string
}

type shortenRequest struct {
	URL string `json:"url"`
}

type shortenResponse struct {
	URL    string `json:"url"`
	Code   string `json:"code"`
	Status string `json:"status"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NewHandler(s URLService, log *zap.Logger, origins []string) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: s, Log: log, Origins: origins}
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/shorten", h.Shorten).Methods(http.MethodPost)
	r.HandleFunc("/api/stats/{code}", h.Stats).Methods(http.MethodGet)
	r.HandleFunc("/api/urls", h.ListURLs).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/{code}", h.Redirect).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(h.Origins),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(h.Log)),
		handlers.PrintRecoveryStack(false),
	)
	// logging sits outside the router so mux's own 404 and 405 replies are logged too
	return recovery(logger.Middleware(h.Log)(cors(r)))
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Ready(r.Context()); err != nil {
		h.Log.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, service.DatabaseError.String(), msgDatabase)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	var req shortenRequest
	r.Body = http.MaxBytesReader(w, r.Body, 2*model.MaxOriginalURLLen+1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !util.ValidateURL(req.URL) {
		writeError(w, http.StatusBadRequest, service.InvalidRequest.String(), msgInvalidURL)
		return
	}

	res := h.Service.ShortenURL(r.Context(), req.URL)
	if res.Status != service.Success {
		writeStatus(w, res.Status)
		return
	}
	writeJSON(w, http.StatusOK, shortenResponse{URL: res.URL, Code: res.Code, Status: res.Status.String()})
}

func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if !util.IsValidShortCode(code) {
		writeError(w, http.StatusBadRequest, service.InvalidRequest.String(), msgInvalidCode)
		return
	}

	res := h.Service.GetOriginalURL(r.Context(), code)
	if res.Status != service.Success {
		writeStatus(w, res.Status)
		return
	}
	http.Redirect(w, r, res.URL, http.StatusMovedPermanently)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if !util.IsValidShortCode(code) {
		writeError(w, http.StatusBadRequest, service.InvalidRequest.String(), msgInvalidCode)
		return
	}

	res := h.Service.GetStats(r.Context(), code)
	if res.Status != service.Success || res.Stats == nil {
		writeStatus(w, res.Status)
		return
	}
	writeJSON(w, http.StatusOK, res.Stats)
}

func (h *Handler) ListURLs(w http.ResponseWriter, r *http.Request) {
	page, limit := 1, 20
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = l
	}

	res := h.Service.ListMappings(r.Context(), page, limit)
	if res.Status != service.Success {
		writeStatus(w, res.Status)
		return
	}
	writeJSON(w, http.StatusOK, res.Mappings)
}

// writeStatus renders a non-success engine status. Anything unmapped still gets a 500 body.
func writeStatus(w http.ResponseWriter, status service.Status) {
	switch status {
	case service.NotFound:
		writeError(w, http.StatusNotFound, status.String(), msgNotFound)
	case service.DatabaseError:
		writeError(w, http.StatusServiceUnavailable, status.String(), msgDatabase)
	case service.UnexpectedError:
		writeError(w, http.StatusInternalServerError, status.String(), msgUnexpected)
	default:
		writeError(w, http.StatusInternalServerError, "Unknown", msgUnknown)
	}
}

func writeError(w http.ResponseWriter, code int, status, message string) {
	writeJSON(w, code, errorResponse{Status: status, Message: message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
