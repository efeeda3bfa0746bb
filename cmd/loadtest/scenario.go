package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	idempotencyHeader  = "Idempotency-Key"
	transportErrorCode = "transport_error"
	paymentMethodCash  = "CashOnDelivery"
)

type loadMode string

const (
	// modeCart нагружает корзину: добавить товар, прочитать, очистить.
	modeCart loadMode = "cart"
	// modeCheckout оформляет заказ с оплатой при получении по текущей корзине.
	modeCheckout loadMode = "checkout"
)

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(value); mode {
	case modeCart, modeCheckout:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

type cartView struct {
	Items []struct {
		ProductID  string `json:"product_id"`
		Quantity   int32  `json:"quantity"`
		PriceMinor int64  `json:"price_minor"`
	} `json:"items"`
	TotalMinor int64 `json:"total_minor"`
}

type orderView struct {
	ID string `json:"id"`
}

// apiClient вызывает HTTP API сервиса и пишет каждый вызов в collector.
type apiClient struct {
	baseURL string
	http    *http.Client
	tokens  map[string]string
	col     *collector
}

type statusError struct {
	method string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.method, e.code, e.body)
}

func (c *apiClient) call(ctx context.Context, method, name, userID, path string, body any, want int, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal body: %w", name, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", name, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens[userID])
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(name, time.Since(start), transportErrorCode, false)
		return fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	ok := resp.StatusCode == want && readErr == nil
	c.col.record(name, time.Since(start), strconv.Itoa(resp.StatusCode), ok)
	if readErr != nil {
		return fmt.Errorf("%s: read body: %w", name, readErr)
	}
	if resp.StatusCode != want {
		return &statusError{method: name, code: resp.StatusCode, body: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", name, err)
		}
	}
	return nil
}

// runScenario выполняет один сценарий для пользователя, выбранного по индексу.
func runScenario(ctx context.Context, client *apiClient, cfg config, index int, runID string) (err error) {
	start := time.Now()
	defer func() {
		code := "ok"
		var statusErr *statusError
		switch {
		case errors.As(err, &statusErr):
			code = strconv.Itoa(statusErr.code)
		case err != nil:
			code = transportErrorCode
		}
		client.col.record(scenarioMethod, time.Since(start), code, err == nil)
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	userID := cfg.users[index%len(cfg.users)]
	itemPath := "/api/v1/cart/items/" + url.PathEscape(cfg.product)

	var cart cartView
	if err := client.call(ctx, http.MethodPut, "UpsertCartItem", userID, itemPath,
		map[string]int32{"quantity": cfg.quantity}, http.StatusOK, nil, &cart); err != nil {
		return err
	}

	switch cfg.mode {
	case modeCart:
		if err := client.call(ctx, http.MethodGet, "GetCart", userID, "/api/v1/cart", nil, http.StatusOK, nil, &cart); err != nil {
			return err
		}
		return client.call(ctx, http.MethodDelete, "ClearCart", userID, "/api/v1/cart", nil, http.StatusNoContent, nil, nil)
	case modeCheckout:
		var lineTotal int64
		for _, item := range cart.Items {
			if item.ProductID == cfg.product {
				lineTotal = item.PriceMinor * int64(item.Quantity)
			}
		}
		if lineTotal == 0 {
			return fmt.Errorf("product %s is missing from cart view", cfg.product)
		}

		var order orderView
		err := client.call(ctx, http.MethodPost, "CreateOrder", userID, "/api/v1/orders", map[string]any{
			"items":            []map[string]any{{"product_id": cfg.product, "quantity": cfg.quantity}},
			"total_minor":      lineTotal,
			"payment_method":   paymentMethodCash,
			"shipping_address": "load test",
		}, http.StatusCreated, map[string]string{
			idempotencyHeader: fmt.Sprintf("lt-order-%s-%d", runID, index),
		}, &order)
		if err != nil {
			return err
		}
		if order.ID == "" {
			return errors.New("create order returned empty order id")
		}
		return nil
	default:
		return fmt.Errorf("unsupported mode: %s", cfg.mode)
	}
}
