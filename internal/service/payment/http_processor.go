package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	defaultProcessorTimeout = 10 * time.Second
	maxErrorBodyBytes       = 4 << 10
)

// HTTPProcessorConfig — параметры подключения к Stripe-совместимому API сессий оплаты.
type HTTPProcessorConfig struct {
	BaseURL     string
	SecretKey   string
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
	Timeout     time.Duration
}

// HTTPProcessor вызывает API провайдера: POST /v1/checkout/sessions и GET /v1/checkout/sessions/{id}.
type HTTPProcessor struct {
	cfg    HTTPProcessorConfig
	client *http.Client
}

// NewHTTPProcessor создаёт клиент провайдера с трассировкой исходящих запросов.
func NewHTTPProcessor(cfg HTTPProcessorConfig) (*HTTPProcessor, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("payment processor base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse payment processor base url: %w", err)
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.ProductName == "" {
		cfg.ProductName = "Order"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProcessorTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &HTTPProcessor{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type checkoutSessionResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

type processorErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CreateCheckoutSession открывает сессию одной позицией на всю сумму заказа.
func (p *HTTPProcessor) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (string, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", p.cfg.Currency)
	form.Set("line_items[0][price_data][product_data][name]", p.cfg.ProductName)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("line_items[0][quantity]", "1")
	if p.cfg.SuccessURL != "" {
		form.Set("success_url", p.cfg.SuccessURL)
	}
	if p.cfg.CancelURL != "" {
		form.Set("cancel_url", p.cfg.CancelURL)
	}
	if req.UserID != "" {
		form.Set("client_reference_id", req.UserID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build create session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp checkoutSessionResponse
	if err := p.do(httpReq, &resp); err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create checkout session: empty session id in response")
	}
	return resp.ID, nil
}

// GetSessionStatus читает статус сессии: complete → complete, expired → cancelled, иначе pending.
func (p *HTTPProcessor) GetSessionStatus(ctx context.Context, sessionID string) (domain.SessionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return "", fmt.Errorf("build session status request: %w", err)
	}

	var resp checkoutSessionResponse
	if err := p.do(httpReq, &resp); err != nil {
		return "", fmt.Errorf("get checkout session: %w", err)
	}
	return mapSessionStatus(resp), nil
}

func mapSessionStatus(resp checkoutSessionResponse) domain.SessionStatus {
	switch resp.Status {
	case "complete":
		return domain.SessionStatusComplete
	case "expired":
		return domain.SessionStatusCancelled
	}
	if resp.PaymentStatus == "refunded" {
		return domain.SessionStatusRefunded
	}
	return domain.SessionStatusPending
}

func (p *HTTPProcessor) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		var perr processorErrorResponse
		if json.Unmarshal(body, &perr) == nil && perr.Error.Message != "" {
			return fmt.Errorf("processor returned %d: %s", resp.StatusCode, perr.Error.Message)
		}
		return fmt.Errorf("processor returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode processor response: %w", err)
	}
	return nil
}

var _ domain.PaymentProcessor = (*HTTPProcessor)(nil)
