package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/middleware"
	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

func stockRef(r *http.Request) (model.Category, string) {
	return model.Category(chi.URLParam(r, "category")), chi.URLParam(r, "name")
}

// ListStock возвращает все складские позиции.
func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.services.Stock.List(r.Context())
	if err != nil {
		h.writeError(w, err, "list stock error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListLowStock возвращает позиции с остатком ниже порога дозаказа.
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.services.Stock.ListLow(r.Context())
	if err != nil {
		h.writeError(w, err, "list low stock error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type setStockRequest struct {
	Quantity         int   `json:"quantity"`
	ReorderThreshold *int  `json:"reorderThreshold"`
	Active           *bool `json:"active"`
}

// SetStock записывает точные значения позиции.
func (h *Handler) SetStock(w http.ResponseWriter, r *http.Request) {
	category, name := stockRef(r)

	var req setStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.services.Stock.SetAbsolute(r.Context(), model.StockUpdate{
		Category:         category,
		Name:             name,
		Quantity:         req.Quantity,
		ReorderThreshold: req.ReorderThreshold,
		Active:           req.Active,
	})
	if err != nil {
		h.writeError(w, err, "set stock error", zap.String("item", model.StockKey(category, name)))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type incrementStockRequest struct {
	Amount int `json:"amount"`
}

// IncrementStock пополняет позицию на указанное количество.
func (h *Handler) IncrementStock(w http.ResponseWriter, r *http.Request) {
	category, name := stockRef(r)

	var req incrementStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.services.Stock.Increment(r.Context(), category, name, req.Amount)
	if err != nil {
		h.writeError(w, err, "increment stock error", zap.String("item", model.StockKey(category, name)))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// RestockStock добавляет к позиции количество, равное её порогу дозаказа.
func (h *Handler) RestockStock(w http.ResponseWriter, r *http.Request) {
	category, name := stockRef(r)

	item, err := h.services.Stock.RestockToThreshold(r.Context(), category, name)
	if err != nil {
		h.writeError(w, err, "restock error", zap.String("item", model.StockKey(category, name)))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteStock удаляет позицию.
func (h *Handler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	category, name := stockRef(r)

	if err := h.services.Stock.Delete(r.Context(), category, name); err != nil {
		h.writeError(w, err, "delete stock error", zap.String("item", model.StockKey(category, name)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type issueCodeRequest struct {
	CupSize model.CupSize `json:"cupSize"`
}

// IssueMenuCode выпускает новый код меню от имени текущего администратора.
func (h *Handler) IssueMenuCode(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	var req issueCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	code, err := h.services.MenuCodes.Generate(r.Context(), req.CupSize, id.UserID)
	if err != nil {
		h.writeError(w, err, "issue menu code error", zap.String("cupSize", string(req.CupSize)))
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

// ListMenuCodes возвращает все коды меню.
func (h *Handler) ListMenuCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.services.MenuCodes.List(r.Context())
	if err != nil {
		h.writeError(w, err, "list menu codes error")
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

// DeleteMenuCode удаляет код меню.
func (h *Handler) DeleteMenuCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.services.MenuCodes.Delete(r.Context(), code); err != nil {
		h.writeError(w, err, "delete menu code error", zap.String("code", code))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CleanupMenuCodes удаляет просроченные неиспользованные коды.
func (h *Handler) CleanupMenuCodes(w http.ResponseWriter, r *http.Request) {
	n, err := h.services.MenuCodes.CleanupExpired(r.Context())
	if err != nil {
		h.writeError(w, err, "cleanup menu codes error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

// Stats возвращает сводку для панели администратора.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.services.Stats.Stats(r.Context())
	if err != nil {
		h.writeError(w, err, "stats error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
