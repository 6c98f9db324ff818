package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseSize - ограничение на размер ответа внешнего сервиса.
const maxResponseSize = 4 << 20

// Upstream - внешний сервис инвентаря.
type Upstream interface {
	CaseItems(ctx context.Context, caseID string) ([]byte, error)
	CaseListing(ctx context.Context) ([]byte, error)
}

// Client - HTTP-клиент внешнего сервиса инвентаря.
// Каждый запрос ограничен таймаутом, после которого каталог уходит в запасной набор.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент. timeout - верхняя граница одного запроса.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CaseItems запрашивает /cases/<id>/.
func (c *Client) CaseItems(ctx context.Context, caseID string) ([]byte, error) {
	return c.get(ctx, "/cases/"+url.PathEscape(caseID)+"/")
}

// CaseListing запрашивает /cases/category_and_cases/.
func (c *Client) CaseListing(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/cases/category_and_cases/")
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("upstream %s: статус %d", path, resp.StatusCode)
	}
	return data, nil
}
