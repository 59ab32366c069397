package patient

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medilab/platform/internal/shared/auth"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the patient module
type Handler struct {
	repo *Repository
	sync *Synchronizer
}

// NewHandler creates a patient handler
func NewHandler(repo *Repository, sync *Synchronizer) *Handler {
	return &Handler{repo: repo, sync: sync}
}

// Routes registers the patient routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListPatients)
	r.Get("/{patientID}", h.GetPatient)
	r.Post("/{identityKey}/sync", h.SynchronizePatient)
	return r
}

func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	patients, total, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	// Mask identity keys in listings
	data := make([]map[string]any, 0, len(patients))
	for _, p := range patients {
		data = append(data, map[string]any{
			"id":           p.ID,
			"identity_key": p.IdentityKey.Masked(),
			"first_name":   p.FirstName,
			"last_name":    p.LastName,
			"gender":       p.Gender,
			"age":          p.Age(),
			"created_at":   p.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  data,
		"total": total,
	})
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	p, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) SynchronizePatient(w http.ResponseWriter, r *http.Request) {
	key, err := types.ParseNationalID(chi.URLParam(r, "identityKey"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid identity key"))
		return
	}

	actor := "anonymous"
	if user := auth.GetUser(r.Context()); user != nil {
		actor = user.ID.String()
	}

	p, err := h.sync.Synchronize(r.Context(), key, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
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
