package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercato/internal/service/warehouse/application"
	"mercato/internal/service/warehouse/domain"
)

const serviceName = "warehouse-service"

// WarehouseHandler 暴露库存侧的同步 RPC 接口。
// 预占/释放给事务编排方调用，商品和阈值编辑给管理端调用。
type WarehouseHandler struct {
	service   *application.WarehouseService
	allocator *application.Allocator
}

func NewWarehouseHandler(service *application.WarehouseService, allocator *application.Allocator) *WarehouseHandler {
	return &WarehouseHandler{service: service, allocator: allocator}
}

func (h *WarehouseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /deliveries/{orderId}", h.createDeliveryList)
	mux.HandleFunc("POST /warehouses/{warehouseId}/reservations/{orderId}", h.reserve)
	mux.HandleFunc("DELETE /warehouses/{warehouseId}/reservations/{orderId}", h.release)
	mux.HandleFunc("GET /warehouses/{warehouseId}/inventory", h.inventory)
	mux.HandleFunc("PUT /warehouses/{warehouseId}/products", h.editProduct)
	mux.HandleFunc("PUT /warehouses/{warehouseId}/products/{productId}/alarm", h.editAlarm)
}

// CartRequest 是整单分配请求体：productId -> 需求量。
type CartRequest map[string]int

// ReservationRequest 是单仓单品的预占/释放请求体。
type ReservationRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ProductRequest 是管理员的商品编辑请求体。
// PUT products 时 Quantity 为有符号增量，商品不存在则按初始量新建。
type ProductRequest struct {
	ProductID      string `json:"productId"`
	Quantity       int    `json:"quantity"`
	AlarmThreshold int    `json:"alarmThreshold"`
}

type alarmRequest struct {
	Threshold int `json:"threshold"`
}

func (h *WarehouseHandler) createDeliveryList(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "warehouse-service.CreateDeliveryList")
	defer span.End()

	orderID := r.PathValue("orderId")

	var cart CartRequest
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for productID, qty := range cart {
		if qty <= 0 {
			http.Error(w, "non-positive quantity for product "+productID, http.StatusBadRequest)
			return
		}
	}

	plans, err := h.allocator.CreateDeliveryList(ctx, orderID, cart)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, plans)
}

func (h *WarehouseHandler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "warehouse-service.Reserve")
	defer span.End()

	var req ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	remaining, err := h.service.Reserve(ctx, r.PathValue("warehouseId"), req.ProductID, req.Quantity, r.PathValue("orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]int{"remaining": remaining})
}

func (h *WarehouseHandler) release(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "warehouse-service.Release")
	defer span.End()

	var req ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.Release(ctx, r.PathValue("warehouseId"), req.ProductID, req.Quantity, r.PathValue("orderId"), domain.StatusRollback)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WarehouseHandler) inventory(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Inventory(r.Context(), r.PathValue("warehouseId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, products)
}

func (h *WarehouseHandler) editProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.EditProduct(r.Context(), r.PathValue("warehouseId"), domain.WarehouseProduct{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		AlarmThreshold: req.AlarmThreshold,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WarehouseHandler) editAlarm(w http.ResponseWriter, r *http.Request) {
	var req alarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.EditAlarm(r.Context(), r.PathValue("warehouseId"), r.PathValue("productId"), req.Threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrWarehouseNotFound), errors.Is(err, domain.ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrNoStockAnywhere), errors.Is(err, domain.ErrProductExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
