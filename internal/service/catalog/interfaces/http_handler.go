package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mercato/internal/pkg/logger"
	"mercato/internal/service/catalog/domain"
)

// CatalogHandler 暴露商品目录的只读接口。
type CatalogHandler struct {
	repo  domain.CatalogRepository
	cache domain.StockCache
}

func NewCatalogHandler(repo domain.CatalogRepository, cache domain.StockCache) *CatalogHandler {
	return &CatalogHandler{repo: repo, cache: cache}
}

func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /products/{productId}", h.product)
	mux.HandleFunc("GET /users/{userId}/email", h.userEmail)
	mux.HandleFunc("GET /admins/emails", h.adminEmails)
}

type productResponse struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	// 展示用的全网库存量，取自最近一次快照，可能缺席
	AvailableQuantity *int `json:"availableQuantity,omitempty"`
}

func (h *CatalogHandler) product(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, err := h.repo.FindProduct(ctx, r.PathValue("productId"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := productResponse{ID: product.ID, Name: product.Name, Price: product.Price}
	if qty, ok, err := h.cache.Quantity(ctx, product.ID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product", product.ID).Msg("stock cache unavailable")
	} else if ok {
		resp.AvailableQuantity = &qty
	}
	writeJSON(w, resp)
}

func (h *CatalogHandler) userEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.repo.FindUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"email": user.Email})
}

func (h *CatalogHandler) adminEmails(w http.ResponseWriter, r *http.Request) {
	emails, err := h.repo.AdminEmails(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, emails)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
