package comment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medilab/platform/internal/shared/auth"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// Handler provides HTTP handlers for order comments
type Handler struct {
	repo *Repository
}

// NewHandler creates a comment handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the comment routes, mounted under an order path
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListComments)
	r.Post("/", h.AddComment)
	r.Delete("/{commentID}", h.DeleteComment)
	return r
}

type AddCommentRequest struct {
	TestResultID *types.ID `json:"test_result_id,omitempty"`
	Body         string    `json:"body"`
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	orderID, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	comments, err := h.repo.ListByOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  comments,
		"total": len(comments),
	})
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	orderID, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	var req AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	author := "anonymous"
	if user := auth.GetUser(r.Context()); user != nil {
		author = user.ID.String()
	}

	c := &Comment{
		TestOrderID:  orderID,
		TestResultID: req.TestResultID,
		Author:       author,
		Body:         req.Body,
	}

	if err := h.repo.Create(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "commentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid comment ID"))
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
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
