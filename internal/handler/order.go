package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/middleware"
	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

type orderResponse struct {
	model.Order
	CustomerID *int64 `json:"customerId,omitempty"`
}

func newOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{Order: *o}
	if id, ok := o.Owner.CustomerID(); ok {
		resp.CustomerID = &id
	}
	return resp
}

func newOrderResponses(orders []model.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	return resp
}

type validateCodeRequest struct {
	Code string `json:"code"`
}

// ValidateMenuCode проверяет код меню без погашения.
func (h *Handler) ValidateMenuCode(w http.ResponseWriter, r *http.Request) {
	var req validateCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	check, err := h.services.MenuCodes.Validate(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, err, "validate menu code error", zap.String("code", req.Code))
		return
	}

	writeJSON(w, http.StatusOK, check)
}

// StockAvailability возвращает вкусы и топпинги, доступные для заказа.
func (h *Handler) StockAvailability(w http.ResponseWriter, r *http.Request) {
	avail, err := h.services.Stock.Availability(r.Context())
	if err != nil {
		h.writeError(w, err, "stock availability error")
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

type createOrderRequest struct {
	MenuCode            string            `json:"menuCode"`
	Flavor              model.Selection   `json:"flavor"`
	Toppings            []model.Selection `json:"toppings"`
	SpecialInstructions string            `json:"specialInstructions"`
}

// CreateOrder оформляет заказ гостя или авторизованного покупателя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	owner := model.Guest()
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		owner = model.Customer(id.UserID)
	}

	o, err := h.services.Orders.Create(r.Context(), model.OrderRequest{
		MenuCode:            req.MenuCode,
		Flavor:              req.Flavor,
		Toppings:            req.Toppings,
		SpecialInstructions: req.SpecialInstructions,
		Owner:               owner,
	})
	if err != nil {
		h.writeError(w, err, "create order error", zap.String("menuCode", req.MenuCode))
		return
	}

	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

// TrackOrder ищет заказ по коду отслеживания.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	o, err := h.services.Orders.TrackByCode(r.Context(), code)
	if err != nil {
		h.writeError(w, err, "track order error", zap.String("code", code))
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// ListOrders возвращает заказы с фильтром по статусу и постраничной выборкой.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var f model.OrderFilter
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		status := model.OrderStatus(s)
		if !status.Valid() {
			badRequest(w, "status", "unknown order status")
			return
		}
		f.Status = &status
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, p.name, "must be a non-negative integer")
			return
		}
		*p.dst = n
	}

	orders, err := h.services.Orders.List(r.Context(), f)
	if err != nil {
		h.writeError(w, err, "list orders error")
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponses(orders))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, err := h.services.Orders.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get order error", zap.String("orderID", id))
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type updateStatusRequest struct {
	Status   model.OrderStatus `json:"status"`
	Override bool              `json:"override"`
}

// UpdateOrderStatus продвигает заказ по статусам; с override=true выставляет статус принудительно.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		badRequest(w, "status", "unknown order status")
		return
	}

	update := h.services.Orders.UpdateStatus
	if req.Override {
		update = h.services.Orders.OverrideStatus
	}

	o, err := update(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, err, "update order status error", zap.String("orderID", id), zap.String("status", string(req.Status)))
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type updatePaymentRequest struct {
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
}

// UpdatePayment меняет статус оплаты заказа.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.services.Orders.UpdatePayment(r.Context(), id, req.PaymentStatus)
	if err != nil {
		h.writeError(w, err, "update payment error", zap.String("orderID", id))
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}
