package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"mercato/internal/pkg/nacos"
)

// StatusError 表示下游返回了非 2xx 状态。
// 调用方用 IsClientError 区分业务拒绝（4xx，不重试）和服务端故障（5xx）。
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s returned status %d: %s", e.Service, e.Code, e.Body)
}

// IsClientError 为 true 表示这是一次业务层面的拒绝而非传输故障。
func (e *StatusError) IsClientError() bool {
	return e.Code >= 400 && e.Code < 500
}

// Client 是一个可追踪的 HTTP 客户端，目标地址通过 Nacos 解析。
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	Registry   *nacos.Client
}

// NewClient 创建客户端。不设置全局 Timeout，超时完全由每次调用的 ctx 控制。
func NewClient(tracer trace.Tracer, registry *nacos.Client) *Client {
	return &Client{
		Tracer: tracer,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		Registry: registry,
	}
}

// CallJSON 调用 serviceName 服务的 path，请求和响应体都是 JSON。
// reqBody 为 nil 时不带请求体；respBody 为 nil 时丢弃响应体。
func (c *Client) CallJSON(ctx context.Context, method, serviceName, path string, reqBody, respBody interface{}) error {
	ip, port, err := c.Registry.DiscoverServiceInstance(serviceName)
	if err != nil {
		return fmt.Errorf("discover %s: %w", serviceName, err)
	}

	ctx, span := c.Tracer.Start(ctx, "call-"+serviceName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	url := fmt.Sprintf("http://%s:%d%s", ip, port, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Service: serviceName, Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
		span.RecordError(statusErr)
		span.SetStatus(codes.Error, statusErr.Error())
		return statusErr
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			span.RecordError(err)
			return fmt.Errorf("decode %s response: %w", serviceName, err)
		}
	}
	return nil
}
