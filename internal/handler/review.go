package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/service"
)

// ListReviews возвращает видимые отзывы.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	h.listReviews(w, r, true)
}

// ListAllReviews возвращает все отзывы, включая скрытые.
func (h *Handler) ListAllReviews(w http.ResponseWriter, r *http.Request) {
	h.listReviews(w, r, false)
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request, visibleOnly bool) {
	reviews, err := h.services.Reviews.List(r.Context(), visibleOnly)
	if err != nil {
		h.writeError(w, err, "list reviews error")
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// AverageRating возвращает средний рейтинг видимых отзывов.
func (h *Handler) AverageRating(w http.ResponseWriter, r *http.Request) {
	summary, err := h.services.Reviews.AverageRating(r.Context())
	if err != nil {
		h.writeError(w, err, "average rating error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type submitReviewRequest struct {
	Rating       int     `json:"rating"`
	Comment      string  `json:"comment"`
	CustomerName string  `json:"customerName"`
	OrderID      *string `json:"orderId"`
}

// SubmitReview принимает отзыв покупателя.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req submitReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rv, err := h.services.Reviews.Submit(r.Context(), service.ReviewInput{
		Rating:       req.Rating,
		Comment:      req.Comment,
		CustomerName: req.CustomerName,
		OrderID:      req.OrderID,
	})
	if err != nil {
		h.writeError(w, err, "submit review error")
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// SetReviewVisibility скрывает или показывает отзыв.
func (h *Handler) SetReviewVisibility(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req visibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Visible == nil {
		badRequest(w, "visible", "is required")
		return
	}

	rv, err := h.services.Reviews.SetVisibility(r.Context(), id, *req.Visible)
	if err != nil {
		h.writeError(w, err, "set review visibility error", zap.String("reviewID", id))
		return
	}
	writeJSON(w, http.StatusOK, rv)
}
