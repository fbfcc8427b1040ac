package adapter

import (
	"context"
	"fmt"
	"net/http"

	"mercato/internal/pkg/httpclient"
	"mercato/internal/service/order/domain"
)

const walletServiceName = "wallet-service"

// WalletHTTPAdapter 实现 port.WalletService，
// 把 wallet-service 的 HTTP 状态码翻译成领域错误。
type WalletHTTPAdapter struct {
	client *httpclient.Client
}

func NewWalletHTTPAdapter(client *httpclient.Client) *WalletHTTPAdapter {
	return &WalletHTTPAdapter{client: client}
}

type walletTransactionRequest struct {
	IssuerID string  `json:"issuerId"`
	Amount   float64 `json:"amount"`
}

func (a *WalletHTTPAdapter) Debit(ctx context.Context, userID string, amount float64, orderID string) error {
	path := fmt.Sprintf("/wallets/%s/transactions", userID)
	req := walletTransactionRequest{IssuerID: orderID, Amount: -amount}
	err := a.client.CallJSON(ctx, http.MethodPut, walletServiceName, path, req, nil)
	if err == nil {
		return nil
	}

	var statusErr *httpclient.StatusError
	if asStatusError(err, &statusErr) && statusErr.IsClientError() {
		switch statusErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("debit %s: %w", userID, domain.ErrUnknownAccount)
		case http.StatusConflict:
			return fmt.Errorf("debit %s: %w", userID, domain.ErrInsufficientFunds)
		}
	}
	// 预期之外的状态码和通信失败同级对待：响应不符合契约
	return fmt.Errorf("debit %s: %v: %w", userID, err, domain.ErrTransport)
}
