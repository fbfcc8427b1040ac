package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercato/internal/service/wallet/application"
	"mercato/internal/service/wallet/domain"
)

const serviceName = "wallet-service"

// WalletHandler 暴露资金侧的同步 RPC 接口。
// 业务拒绝映射为 4xx，其余为 5xx，调用方据此判断是否值得重试。
type WalletHandler struct {
	service *application.WalletService
}

func NewWalletHandler(service *application.WalletService) *WalletHandler {
	return &WalletHandler{service: service}
}

func (h *WalletHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("PUT /wallets/{userId}/transactions", h.addTransaction)
	mux.HandleFunc("GET /wallets/{userId}/funds", h.funds)
	mux.HandleFunc("GET /wallets/{userId}/transactions", h.transactions)
}

// TransactionRequest 是资金变动请求体。Amount 有符号，负数为扣款。
type TransactionRequest struct {
	IssuerID string  `json:"issuerId"`
	Amount   float64 `json:"amount"`
}

type fundsResponse struct {
	Funds float64 `json:"funds"`
}

func (h *WalletHandler) addTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "wallet-service.AddTransaction")
	defer span.End()

	userID := r.PathValue("userId")

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var funds float64
	var err error
	if req.Amount < 0 {
		funds, err = h.service.Debit(ctx, userID, -req.Amount, req.IssuerID)
	} else {
		funds, err = h.service.Deposit(ctx, userID, req.Amount, req.IssuerID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, fundsResponse{Funds: funds})
}

func (h *WalletHandler) funds(w http.ResponseWriter, r *http.Request) {
	funds, err := h.service.Funds(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, fundsResponse{Funds: funds})
}

func (h *WalletHandler) transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.Transactions(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, txs)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrWalletNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
