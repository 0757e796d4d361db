// Package handler содержит HTTP-обработчики API магазина сюрприз-боксов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/surprisebox-shop/internal/middleware"
	"github.com/mmeshcher/surprisebox-shop/internal/model"
	"github.com/mmeshcher/surprisebox-shop/internal/repository"
	"github.com/mmeshcher/surprisebox-shop/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateBox(ctx context.Context, box model.SurpriseBox) (*model.SurpriseBox, error)
	GetBoxes(ctx context.Context, filter model.BoxFilter) ([]model.SurpriseBox, error)
	GetBoxByID(ctx context.Context, id uuid.UUID) (*model.SurpriseBox, error)
	UpdateBox(ctx context.Context, id uuid.UUID, upd model.BoxUpdate) (*model.SurpriseBox, error)
	DeleteBox(ctx context.Context, id uuid.UUID) (bool, error)
	RegisterUser(ctx context.Context, email, password, firstName, lastName string) (*model.User, error)
	LoginUser(ctx context.Context, email, password string) (*model.User, error)
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*model.Order, error)
	GetOrders(ctx context.Context) ([]model.Order, error)
	GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error)
}

// Handler реализует HTTP-обработчики API магазина сюрприз-боксов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

type boxResponse struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Tagline             string          `json:"tagline"`
	Description         string          `json:"description"`
	Price               decimal.Decimal `json:"price"`
	ImageURL            string          `json:"image_url"`
	Category            string          `json:"category"`
	ContentsDescription string          `json:"contents_description"`
	Stock               int32           `json:"stock"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           string          `json:"created_at"`
	UpdatedAt           string          `json:"updated_at"`
}

func boxToResponse(b *model.SurpriseBox) boxResponse {
	return boxResponse{
		ID:                  b.ID.String(),
		Name:                b.Name,
		Tagline:             b.Tagline,
		Description:         b.Description,
		Price:               b.Price,
		ImageURL:            b.ImageURL,
		Category:            string(b.Category),
		ContentsDescription: b.ContentsDescription,
		Stock:               b.Stock,
		IsActive:            b.IsActive,
		CreatedAt:           b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           b.UpdatedAt.Format(time.RFC3339),
	}
}

type boxRequest struct {
	Name                string          `json:"name"`
	Tagline             string          `json:"tagline"`
	Description         string          `json:"description"`
	Price               decimal.Decimal `json:"price"`
	ImageURL            string          `json:"image_url"`
	Category            string          `json:"category"`
	ContentsDescription string          `json:"contents_description"`
	Stock               int32           `json:"stock"`
	IsActive            *bool           `json:"is_active"`
}

// CreateBox добавляет новый товар в каталог.
func (h *Handler) CreateBox(w http.ResponseWriter, r *http.Request) {
	var req boxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	category, ok := model.ParseCategory(req.Category)
	if !ok {
		http.Error(w, "unknown category", http.StatusBadRequest)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	box, err := h.service.CreateBox(r.Context(), model.SurpriseBox{
		Name:                req.Name,
		Tagline:             req.Tagline,
		Description:         req.Description,
		Price:               req.Price,
		ImageURL:            req.ImageURL,
		Category:            category,
		ContentsDescription: req.ContentsDescription,
		Stock:               req.Stock,
		IsActive:            isActive,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("create box error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, boxToResponse(box))
}

// GetBoxes возвращает каталог с учётом фильтров из query-параметров.
func (h *Handler) GetBoxes(w http.ResponseWriter, r *http.Request) {
	filter := model.BoxFilter{ActiveOnly: true}

	if raw := r.URL.Query().Get("category"); raw != "" {
		category, ok := model.ParseCategory(raw)
		if !ok {
			http.Error(w, "unknown category", http.StatusBadRequest)
			return
		}
		filter.Category = &category
	}

	filter.Search = r.URL.Query().Get("search")

	if raw := r.URL.Query().Get("active_only"); raw != "" {
		activeOnly, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "invalid active_only", http.StatusBadRequest)
			return
		}
		filter.ActiveOnly = activeOnly
	}

	boxes, err := h.service.GetBoxes(r.Context(), filter)
	if err != nil {
		h.logger.Error("get boxes error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]boxResponse, 0, len(boxes))
	for i := range boxes {
		resp = append(resp, boxToResponse(&boxes[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetBoxByID возвращает товар по идентификатору из пути.
func (h *Handler) GetBoxByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	box, err := h.service.GetBoxByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrBoxNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get box error", zap.Error(err), zap.String("id", id.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, boxToResponse(box))
}

type boxUpdateRequest struct {
	Name                *string          `json:"name"`
	Tagline             *string          `json:"tagline"`
	Description         *string          `json:"description"`
	Price               *decimal.Decimal `json:"price"`
	ImageURL            *string          `json:"image_url"`
	Category            *string          `json:"category"`
	ContentsDescription *string          `json:"contents_description"`
	Stock               *int32           `json:"stock"`
	IsActive            *bool            `json:"is_active"`
}

// UpdateBox применяет частичное обновление товара: меняются только присланные поля.
func (h *Handler) UpdateBox(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req boxUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	upd := model.BoxUpdate{
		Name:                req.Name,
		Tagline:             req.Tagline,
		Description:         req.Description,
		Price:               req.Price,
		ImageURL:            req.ImageURL,
		ContentsDescription: req.ContentsDescription,
		Stock:               req.Stock,
		IsActive:            req.IsActive,
	}
	if req.Category != nil {
		category, ok := model.ParseCategory(*req.Category)
		if !ok {
			http.Error(w, "unknown category", http.StatusBadRequest)
			return
		}
		upd.Category = &category
	}

	box, err := h.service.UpdateBox(r.Context(), id, upd)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrBoxNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("update box error", zap.Error(err), zap.String("id", id.String()))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, boxToResponse(box))
}

// DeleteBox удаляет товар. Повторное удаление не является ошибкой.
func (h *Handler) DeleteBox(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	deleted, err := h.service.DeleteBox(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrBoxReferenced) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("delete box error", zap.Error(err), zap.String("id", id.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	CreatedAt string `json:"created_at"`
}

func userToResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Register обрабатывает регистрацию нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrEmailExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("register user error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID)
	h.writeJSON(w, http.StatusCreated, userToResponse(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию покупателя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID)
	h.writeJSON(w, http.StatusOK, userToResponse(user))
}

type orderItemResponse struct {
	ID              string          `json:"id"`
	BoxID           string          `json:"box_id"`
	Quantity        int32           `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          *string             `json:"user_id"`
	Status          string              `json:"status"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	ShippingAddress string              `json:"shipping_address"`
	Items           []orderItemResponse `json:"items,omitempty"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
}

func orderToResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID.String(),
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       o.UpdatedAt.Format(time.RFC3339),
	}
	if o.UserID != nil {
		s := o.UserID.String()
		resp.UserID = &s
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:              item.ID.String(),
			BoxID:           item.BoxID.String(),
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
		})
	}
	return resp
}

type createOrderRequest struct {
	UserID          *string `json:"user_id"`
	ShippingAddress string  `json:"shipping_address"`
	Items           []struct {
		BoxID    string `json:"box_id"`
		Quantity int32  `json:"quantity"`
	} `json:"items"`
}

// CreateOrder размещает заказ. Заказ без user_id считается гостевым.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in := service.CreateOrderInput{ShippingAddress: req.ShippingAddress}

	if req.UserID != nil {
		userID, err := uuid.Parse(*req.UserID)
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		in.UserID = &userID
	}

	for _, item := range req.Items {
		boxID, err := uuid.Parse(item.BoxID)
		if err != nil {
			http.Error(w, "invalid box_id", http.StatusBadRequest)
			return
		}
		in.Items = append(in.Items, service.OrderItemInput{BoxID: boxID, Quantity: item.Quantity})
	}

	order, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrBoxNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrInsufficientStock):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("create order error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, orderToResponse(order))
}

// GetOrders возвращает все заказы.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetOrders(r.Context())
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, orderToResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetUserOrders возвращает заказы текущего пользователя.
// Гостевые заказы в выборку не попадают.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get user orders error", zap.Error(err), zap.String("userID", userID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, orderToResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus устанавливает новый статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	status, ok := model.ParseOrderStatus(req.Status)
	if !ok {
		http.Error(w, "unknown order status", http.StatusBadRequest)
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), id, status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("update order status error", zap.Error(err), zap.String("id", id.String()))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, orderToResponse(order))
}
