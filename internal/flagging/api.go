package flagging

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// Handler provides HTTP handlers for flagging configurations
type Handler struct {
	repo *Repository
}

// NewHandler creates a flagging config handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the flagging config routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateConfig)
	r.Get("/{testCode}", h.ListByTestCode)
	r.Delete("/{configID}", h.DeactivateConfig)
	return r
}

type CreateConfigRequest struct {
	TestCode      string     `json:"test_code"`
	Gender        string     `json:"gender,omitempty"`
	Min           float64    `json:"min"`
	Max           float64    `json:"max"`
	Unit          string     `json:"unit,omitempty"`
	Version       int        `json:"version"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
}

func (h *Handler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := make(map[string]string)
	if req.TestCode == "" {
		details["test_code"] = "required"
	}
	if req.Min >= req.Max {
		details["min"] = "must be less than max"
	}
	if req.Version <= 0 {
		details["version"] = "must be positive"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("invalid flagging config", details))
		return
	}

	cfg := &Config{
		TestCode: req.TestCode,
		Gender:   types.ParseGender(req.Gender),
		Min:      req.Min,
		Max:      req.Max,
		Unit:     req.Unit,
		Version:  req.Version,
		IsActive: true,
	}
	if req.EffectiveDate != nil {
		cfg.EffectiveDate = *req.EffectiveDate
	}

	if err := h.repo.Create(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

func (h *Handler) ListByTestCode(w http.ResponseWriter, r *http.Request) {
	testCode := chi.URLParam(r, "testCode")

	configs, err := h.repo.ListByTestCode(r.Context(), testCode)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  configs,
		"total": len(configs),
	})
}

func (h *Handler) DeactivateConfig(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "configID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid config ID"))
		return
	}

	if err := h.repo.Deactivate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
