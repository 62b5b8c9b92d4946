// Package mail предоставляет клиент внешнего API транзакционных писем.
// Отправка выполняется по принципу best-effort: ошибки логируются вызывающей
// стороной и не откатывают бизнес-транзакции.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с почтовым API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient создаёт почтовый клиент для указанного адреса API.
func NewClient(baseURL, token string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.HTTPClient.Timeout = 5 * time.Second
	retryClient.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: retryClient.StandardClient(),
	}
}

type message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c *Client) send(ctx context.Context, msg message) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("mail client not configured")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d from mail API", resp.StatusCode)
	}

	return nil
}

// SendOrderCreated отправляет подтверждение оформления заказа.
func (c *Client) SendOrderCreated(ctx context.Context, to string, orderID int64, total float64) error {
	return c.send(ctx, message{
		To:      to,
		Subject: fmt.Sprintf("Order #%d received", orderID),
		Body:    fmt.Sprintf("We received your order #%d for a total of $%.2f.", orderID, total),
	})
}

// SendOrderPaid отправляет уведомление об успешной оплате.
func (c *Client) SendOrderPaid(ctx context.Context, to string, orderID int64) error {
	return c.send(ctx, message{
		To:      to,
		Subject: fmt.Sprintf("Order #%d paid", orderID),
		Body:    fmt.Sprintf("Payment for order #%d was confirmed.", orderID),
	})
}

// SendOrderCancelled отправляет уведомление об отмене заказа.
func (c *Client) SendOrderCancelled(ctx context.Context, to string, orderID int64, refunded bool) error {
	body := fmt.Sprintf("Order #%d was cancelled.", orderID)
	if refunded {
		body += " The paid amount was refunded to your wallet."
	}
	return c.send(ctx, message{
		To:      to,
		Subject: fmt.Sprintf("Order #%d cancelled", orderID),
		Body:    body,
	})
}
