package order

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medilab/platform/internal/patient"
	"github.com/medilab/platform/internal/result"
	"github.com/medilab/platform/internal/shared/auth"
	"github.com/medilab/platform/internal/shared/errors"
	"github.com/medilab/platform/internal/shared/types"
)

// ResultReader lists the results attached to an order
type ResultReader interface {
	ListByOrder(ctx context.Context, orderID types.ID) ([]result.TestResult, error)
}

// Handler provides HTTP handlers for the order module
type Handler struct {
	service  *Service
	results  ResultReader
	comments chi.Router
}

// NewHandler creates a new order handler. The comments router is mounted
// under /{orderID}/comments and may be nil.
func NewHandler(service *Service, results ResultReader, comments chi.Router) *Handler {
	return &Handler{service: service, results: results, comments: comments}
}

// Routes registers the order routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateOrder)

	r.Route("/{orderID}", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.Put("/", h.ModifyOrder)
		r.Delete("/", h.DeleteOrder)
		r.Get("/results", h.ListResults)

		if h.comments != nil {
			r.Mount("/comments", h.comments)
		}
	})

	return r
}

// --- Request/Response types ---

type CreateOrderRequest struct {
	IdentityKey string `json:"identity_key"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Address     string `json:"address,omitempty"`
	TestType    string `json:"test_type"`
	Priority    string `json:"priority"`
	Note        string `json:"note,omitempty"`
}

type ModifyOrderRequest struct {
	IdentityKey string `json:"identity_key"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Note        string `json:"note,omitempty"`
}

// --- Handlers ---

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	demo := patient.Demographics{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Gender:    types.ParseGender(req.Gender),
		Phone:     req.Phone,
		Email:     req.Email,
		Address:   req.Address,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			writeError(w, errors.BadRequest("date_of_birth must be YYYY-MM-DD"))
			return
		}
		demo.DateOfBirth = dob
	}

	orderID, err := h.service.CreateOrder(r.Context(), CreateRequest{
		IdentityKey:  types.NationalID(req.IdentityKey),
		Demographics: demo,
		TestType:     req.TestType,
		Priority:     req.Priority,
		Note:         req.Note,
		CreatedBy:    operator(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"test_order_id": orderID})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	o, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) ModifyOrder(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	var req ModifyOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	err = h.service.ModifyOrder(r.Context(), ModifyRequest{
		OrderID:     id,
		IdentityKey: types.NationalID(req.IdentityKey),
		Priority:    req.Priority,
		Status:      req.Status,
		Note:        req.Note,
		UpdatedBy:   operator(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id, operator(r)); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	if _, err := h.service.GetOrder(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	results, err := h.results.ListByOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  results,
		"total": len(results),
	})
}

// --- Helpers ---

func operator(r *http.Request) string {
	if user := auth.GetUser(r.Context()); user != nil {
		return user.ID.String()
	}
	// Development without auth
	return "anonymous"
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
