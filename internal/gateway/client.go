// Package gateway предоставляет единую точку выхода к REST API маркетплейса автошкол.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

// DefaultBaseURL используется, если адрес API не задан.
const DefaultBaseURL = "http://localhost:8080/api"

// TokenSource отдаёт текущий bearer-токен. Пустая строка означает отсутствие токена.
type TokenSource interface {
	Token() string
}

// Result содержит нормализованный результат вызова API. Send никогда не возвращает ошибку Go:
// HTTP- и транспортные сбои описываются полями Error и Transport.
type Result struct {
	StatusCode int
	Data       json.RawMessage
	Error      string
	Transport  bool
}

// OK сообщает об успешном ответе.
func (r Result) OK() bool {
	return r.Error == ""
}

// Decode разбирает тело успешного ответа в v. Пустое тело (например, 204) не считается ошибкой.
func (r Result) Decode(v any) error {
	if len(r.Data) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client инкапсулирует HTTP-взаимодействие с API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент. nil оставляет клиент по умолчанию.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout задаёт общий таймаут одного запроса. Переданный через WithHTTPClient
// клиент не меняется: таймаут ставится на его копию.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

// WithTokenSource подключает источник bearer-токена.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger подключает логгер.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient создаёт клиент API по указанному базовому адресу.
func NewClient(baseURL string, opts ...Option) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = 10 * time.Second

	c := &Client{
		baseURL:    NormalizeBaseURL(baseURL),
		httpClient: hc,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeBaseURL обрезает пробелы и завершающий слэш и дописывает http://, если схема не указана.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base
}

// BaseURL возвращает нормализованный базовый адрес.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type requestConfig struct {
	headers http.Header
}

// RequestOption настраивает отдельный запрос.
type RequestOption func(*requestConfig)

// WithHeader добавляет заголовок к запросу.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		rc.headers.Set(key, value)
	}
}

// Send выполняет запрос method path с JSON-телом body (nil означает запрос без тела).
func (c *Client) Send(ctx context.Context, method, path string, body any, opts ...RequestOption) Result {
	rc := requestConfig{headers: make(http.Header)}
	for _, opt := range opts {
		opt(&rc)
	}

	url := c.baseURL + "/" + strings.TrimPrefix(path, "/")

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Result{Error: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Result{Error: err.Error(), Transport: true}
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range rc.headers {
		req.Header[k] = v
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debug("api request", zap.String("method", method), zap.String("url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api transport error", zap.String("url", url), zap.Error(err))
		return Result{Error: err.Error(), Transport: true}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(raw, resp.StatusCode)
		c.logger.Warn("api error response",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.String("error", msg),
		)
		return Result{StatusCode: resp.StatusCode, Error: msg}
	}

	if resp.StatusCode == http.StatusNoContent {
		return Result{StatusCode: resp.StatusCode}
	}

	if readErr != nil {
		return Result{StatusCode: resp.StatusCode, Error: readErr.Error(), Transport: true}
	}

	if len(bytes.TrimSpace(raw)) > 0 && !json.Valid(raw) {
		return Result{StatusCode: resp.StatusCode, Error: "invalid JSON in response"}
	}

	return Result{StatusCode: resp.StatusCode, Data: raw}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorMessage(raw []byte, status int) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	return fmt.Sprintf("Error: %d", status)
}
