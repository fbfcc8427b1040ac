package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercato/internal/service/order/application"
	"mercato/internal/service/order/domain"
)

const serviceName = "order-service"

// 调用方身份从请求头取。网关负责认证，这里只做授权。
const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
)

// OrderHandler 暴露下单和订单状态管理的 HTTP 接口。
type OrderHandler struct {
	service *application.OrderService
}

func NewOrderHandler(service *application.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /orders", h.placeOrder)
	mux.HandleFunc("GET /orders/{orderId}", h.get)
	mux.HandleFunc("GET /orders/{orderId}/status", h.status)
	mux.HandleFunc("PUT /orders/{orderId}/status", h.changeStatus)
}

func actorFrom(r *http.Request) (domain.Actor, bool) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		return domain.Actor{}, false
	}
	role := domain.RoleCustomer
	if r.Header.Get(headerRole) == string(domain.RoleAdmin) {
		role = domain.RoleAdmin
	}
	return domain.Actor{UserID: userID, Role: role}, true
}

type placeOrderBody struct {
	Cart            map[string]int `json:"cart"`
	ShippingAddress string         `json:"shippingAddress"`
}

type statusBody struct {
	Status domain.Status `json:"status"`
}

type statusResponse struct {
	OrderID string        `json:"orderId"`
	Status  domain.Status `json:"status"`
}

func (h *OrderHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "order-service.PlaceOrder")
	defer span.End()

	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "missing "+headerUserID+" header", http.StatusUnauthorized)
		return
	}

	var body placeOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	summary, err := h.service.PlaceOrder(ctx, application.PlaceOrderRequest{
		BuyerID:         actor.UserID,
		Cart:            body.Cart,
		ShippingAddress: body.ShippingAddress,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(summary)
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "missing "+headerUserID+" header", http.StatusUnauthorized)
		return
	}

	order, err := h.service.Get(r.Context(), actor, r.PathValue("orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, order)
}

func (h *OrderHandler) status(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "missing "+headerUserID+" header", http.StatusUnauthorized)
		return
	}

	orderID := r.PathValue("orderId")
	status, err := h.service.Status(r.Context(), actor, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, statusResponse{OrderID: orderID, Status: status})
}

func (h *OrderHandler) changeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "order-service.ChangeStatus")
	defer span.End()

	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "missing "+headerUserID+" header", http.StatusUnauthorized)
		return
	}

	var body statusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	orderID := r.PathValue("orderId")
	order, err := h.service.ChangeStatus(ctx, actor, orderID, body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, statusResponse{OrderID: orderID, Status: order.Status})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrUnknownProduct), errors.Is(err, domain.ErrUnknownAccount):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrOutOfStock), errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrTransport):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
