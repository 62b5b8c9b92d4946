// Package wompi предоставляет адаптер платёжного шлюза Wompi.
package wompi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует подписи и HTTP-взаимодействие со шлюзом Wompi.
type Client struct {
	baseURL         string
	publicKey       string
	integritySecret string
	eventsSecret    string
	httpClient      *http.Client
}

// Transaction описывает транзакцию шлюза в ответах API и webhook-событиях.
type Transaction struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
}

// PaymentData — данные для инициализации платёжного виджета на клиенте.
type PaymentData struct {
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amountInCents"`
	Currency      string `json:"currency"`
	Signature     string `json:"signature"`
	PublicKey     string `json:"publicKey"`
}

// NewClient создаёт адаптер шлюза с указанными ключами.
func NewClient(baseURL, publicKey, integritySecret, eventsSecret string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.HTTPClient.Timeout = 5 * time.Second
	retryClient.Logger = nil

	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		publicKey:       publicKey,
		integritySecret: integritySecret,
		eventsSecret:    eventsSecret,
		httpClient:      retryClient.StandardClient(),
	}
}

// PublicKey возвращает публичный ключ для платёжного виджета.
func (c *Client) PublicKey() string {
	return c.publicKey
}

// GenerateSignature считает подпись целостности для виджета Wompi:
// SHA256(reference + amountInCents + currency + integritySecret), без разделителей.
func (c *Client) GenerateSignature(reference string, amountInCents int64, currency string) string {
	chain := reference + strconv.FormatInt(amountInCents, 10) + currency + c.integritySecret
	sum := sha256.Sum256([]byte(chain))
	return hex.EncodeToString(sum[:])
}

// VerifyWebhookSignature сверяет checksum webhook-события:
// SHA256(transaction.id + status + amountInCents + eventsSecret).
func (c *Client) VerifyWebhookSignature(tx Transaction, checksum string) bool {
	if c.eventsSecret == "" || checksum == "" {
		return false
	}

	chain := tx.ID + tx.Status + strconv.FormatInt(tx.AmountInCents, 10) + c.eventsSecret
	sum := sha256.Sum256([]byte(chain))
	return hex.EncodeToString(sum[:]) == strings.ToLower(checksum)
}

// GetTransaction запрашивает состояние транзакции у шлюза. Используется для
// ручной сверки платежей, когда webhook не дошёл.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("wompi client not configured")
	}

	url := fmt.Sprintf("%s/transactions/%s", c.baseURL, transactionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from gateway", resp.StatusCode)
	}

	var body struct {
		Data Transaction `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	return &body.Data, nil
}
