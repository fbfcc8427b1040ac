package adapter

import (
	"context"
	"fmt"
	"net/http"

	"mercato/internal/pkg/httpclient"
	"mercato/internal/service/order/domain"
	"mercato/internal/service/order/domain/port"
)

const catalogServiceName = "catalog-service"

// CatalogHTTPAdapter 实现 port.CatalogService。商品目录对本服务只读。
type CatalogHTTPAdapter struct {
	client *httpclient.Client
}

func NewCatalogHTTPAdapter(client *httpclient.Client) *CatalogHTTPAdapter {
	return &CatalogHTTPAdapter{client: client}
}

func (a *CatalogHTTPAdapter) GetProduct(ctx context.Context, productID string) (*port.Product, error) {
	var product port.Product
	err := a.client.CallJSON(ctx, http.MethodGet, catalogServiceName, "/products/"+productID, nil, &product)
	if err != nil {
		var statusErr *httpclient.StatusError
		if asStatusError(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrUnknownProduct)
		}
		return nil, fmt.Errorf("product %s: %v: %w", productID, err, domain.ErrTransport)
	}
	return &product, nil
}

func (a *CatalogHTTPAdapter) GetEmail(ctx context.Context, userID string) (string, error) {
	var resp struct {
		Email string `json:"email"`
	}
	err := a.client.CallJSON(ctx, http.MethodGet, catalogServiceName, "/users/"+userID+"/email", nil, &resp)
	if err != nil {
		return "", fmt.Errorf("email of %s: %v: %w", userID, err, domain.ErrTransport)
	}
	return resp.Email, nil
}

func (a *CatalogHTTPAdapter) GetAdminEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := a.client.CallJSON(ctx, http.MethodGet, catalogServiceName, "/admins/emails", nil, &emails)
	if err != nil {
		return nil, fmt.Errorf("admin emails: %v: %w", err, domain.ErrTransport)
	}
	return emails, nil
}
