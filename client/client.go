// Package client talks to the library catalog service and keeps
// a local view of the catalog for terminal front-ends.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const booksPath = "/api/books"

// Book mirrors the catalog record served by the service.
type Book struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	IsAvailable bool   `json:"is_available"`
}

// APIError is returned for every non-2xx answer of the service.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog api: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 answer of the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Config holds the client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RPS caps outgoing calls per second. Zero disables the limit.
	RPS int
}

// Client is the HTTP transport to the catalog service.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

func New(logger *zap.Logger, config Config) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RPS > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Second/time.Duration(config.RPS)), 1)
	}
	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		limiter:    limiter,
	}
}

// List fetches the full catalog.
func (c *Client) List(ctx context.Context) ([]Book, error) {
	books := []Book{}
	if err := c.do(ctx, http.MethodGet, booksPath, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// Create adds a new book.
func (c *Client) Create(ctx context.Context, title, author string) (Book, error) {
	var book Book
	payload := map[string]string{"title": title, "author": author}
	err := c.do(ctx, http.MethodPost, booksPath, payload, &book)
	return book, err
}

// ToggleAvailability issues or returns the book with the given id.
func (c *Client) ToggleAvailability(ctx context.Context, id int64) (Book, error) {
	var book Book
	err := c.do(ctx, http.MethodPut, booksPath+"/"+strconv.FormatInt(id, 10), nil, &book)
	return book, err
}

func (c *Client) do(ctx context.Context, method, path string, payload, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("catalog call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request.id", resp.Header.Get("X-Request-ID")),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if derr := json.NewDecoder(resp.Body).Decode(apiErr); derr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
