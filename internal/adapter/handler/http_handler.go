package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/core/service"
)

const (
	headerUserID    = "X-User-Id"
	headerUserEmail = "X-User-Email"
)

type HTTPHandler struct {
	catalog *service.CatalogService
	orders  *service.OrderService
}

type PlaceOrderRequest struct {
	Email string             `json:"email"`
	Items []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	ProductID string  `json:"_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type AddReviewRequest struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func NewHTTPHandler(catalog *service.CatalogService, orders *service.OrderService) *HTTPHandler {
	return &HTTPHandler{catalog: catalog, orders: orders}
}

// Products serves a single product when productId is given, otherwise a
// page of the category (or of everything).
func (h *HTTPHandler) Products(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pageParam(q.Get("page"))

	var (
		body []byte
		err  error
	)
	if id := q.Get("productId"); id != "" {
		body, err = h.catalog.ProductDetail(r.Context(), id, page)
	} else {
		body, err = h.catalog.ProductList(r.Context(), q.Get("category"), page)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

// AddReview appends a review written by the calling user.
func (h *HTTPHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, MessageResponse{Message: "unauthorized"})
		return
	}

	var req AddReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "invalid request body"})
		return
	}

	review := domain.Review{UserID: userID, Name: req.Name, Rating: req.Rating, Comment: req.Comment}
	if err := h.catalog.AddReview(r.Context(), req.ProductID, review); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"success": "Review added"})
}

func (h *HTTPHandler) UserProfile(w http.ResponseWriter, r *http.Request) {
	body, err := h.catalog.UserProfile(r.Context(), r.Header.Get(headerUserEmail))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, MessageResponse{Message: "unauthorized"})
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "invalid request body"})
		return
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.LineItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.Price})
	}

	order, err := h.orders.PlaceOrder(r.Context(), userID, req.Email, items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"_id": order.ID})
}

// UserOrders lists the calling user's own orders.
func (h *HTTPHandler) UserOrders(w http.ResponseWriter, r *http.Request) {
	history, err := h.orders.UserOrders(r.Context(), r.Header.Get(headerUserID), pageParam(r.URL.Query().Get("page")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// HasPurchased tells the product page whether the caller may review.
func (h *HTTPHandler) HasPurchased(w http.ResponseWriter, r *http.Request) {
	ok, err := h.orders.HasPurchased(r.Context(), r.Header.Get(headerUserID), r.URL.Query().Get("productId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"message": ok})
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "invalid request body"})
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), id, domain.OrderStatus(req.Status)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"_id": id, "status": req.Status})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, service.ErrProductNotFound):
		status, message = http.StatusNotFound, "Product not found"
	case errors.Is(err, service.ErrNoProducts):
		status, message = http.StatusNotFound, "No products found"
	case errors.Is(err, service.ErrOrderNotFound):
		status, message = http.StatusNotFound, "Order not found"
	case errors.Is(err, service.ErrNoOrders):
		status, message = http.StatusNotFound, "No orders found"
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrUnauthorized):
		status, message = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, service.ErrEmptyOrder), errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidRequest):
		status, message = http.StatusBadRequest, err.Error()
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	writeJSON(w, status, MessageResponse{Message: message})
}

func pageParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeRaw sends an already encoded JSON body, such as a cache entry.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
