package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/middleware"
	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        int64                `json:"id"`
	Login     string               `json:"login"`
	Role      model.Role           `json:"role"`
	Loyalty   model.LoyaltyAccount `json:"loyalty"`
	CreatedAt string               `json:"createdAt"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Login:     u.Login,
		Role:      u.Role,
		Loyalty:   u.Loyalty,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// Register обрабатывает регистрацию нового покупателя и сразу авторизует его.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID, err := h.services.Accounts.Register(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, err, "register user error", zap.String("login", req.Login))
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID, model.RoleCustomer)
	writeJSON(w, http.StatusOK, map[string]int64{"id": userID})
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.services.Accounts.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, err, "login user error", zap.String("login", req.Login))
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID, u.Role)
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// Logout удаляет cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Profile возвращает профиль текущего пользователя вместе со счётом лояльности.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	u, err := h.services.Accounts.Profile(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, err, "get profile error", zap.Int64("userID", id.UserID))
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// UserOrders возвращает заказы текущего покупателя.
func (h *Handler) UserOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	orders, err := h.services.Orders.ListForCustomer(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, err, "get orders error", zap.Int64("userID", id.UserID))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponses(orders))
}

// ListUsers возвращает всех пользователей для администратора.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.services.Accounts.List(r.Context())
	if err != nil {
		h.writeError(w, err, "list users error")
		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}
