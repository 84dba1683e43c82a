package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

// Brave searches through the Brave Search API.
type Brave struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewBrave creates a Brave engine. An empty baseURL uses the public endpoint.
func NewBrave(apiKey, baseURL string, timeout time.Duration) *Brave {
	if baseURL == "" {
		baseURL = braveSearchURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Brave{apiKey: apiKey, baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (b *Brave) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, query string, num int) ([]Item, error) {
	if num > 20 {
		num = 20
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	items := make([]Item, 0, len(parsed.Web.Results))
	for i, r := range parsed.Web.Results {
		items = append(items, Item{
			Title:       r.Title,
			URL:         r.URL,
			Description: r.Description,
			Position:    i + 1,
			Source:      "Brave",
		})
	}
	return items, nil
}
