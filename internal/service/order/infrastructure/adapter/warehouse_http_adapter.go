package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"mercato/internal/pkg/httpclient"
	"mercato/internal/service/order/domain"
)

const warehouseServiceName = "warehouse-service"

// asStatusError 是 errors.As 的本地别名，适配器共用。
func asStatusError(err error, target **httpclient.StatusError) bool {
	return errors.As(err, target)
}

// WarehouseHTTPAdapter 实现 port.WarehouseService。
type WarehouseHTTPAdapter struct {
	client *httpclient.Client
}

func NewWarehouseHTTPAdapter(client *httpclient.Client) *WarehouseHTTPAdapter {
	return &WarehouseHTTPAdapter{client: client}
}

type deliveryResponse struct {
	WarehouseID string         `json:"warehouseId"`
	Products    map[string]int `json:"products"`
}

func (a *WarehouseHTTPAdapter) CreateDeliveryList(ctx context.Context, orderID string, cart map[string]int) ([]domain.Delivery, error) {
	path := fmt.Sprintf("/deliveries/%s", orderID)
	var resp []deliveryResponse
	err := a.client.CallJSON(ctx, http.MethodPost, warehouseServiceName, path, cart, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if asStatusError(err, &statusErr) && statusErr.Code == http.StatusConflict {
			return nil, fmt.Errorf("allocate order %s: %w", orderID, domain.ErrOutOfStock)
		}
		return nil, fmt.Errorf("allocate order %s: %v: %w", orderID, err, domain.ErrTransport)
	}

	deliveries := make([]domain.Delivery, 0, len(resp))
	for _, d := range resp {
		deliveries = append(deliveries, domain.Delivery{WarehouseID: d.WarehouseID, Products: d.Products})
	}
	return deliveries, nil
}
