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

const serpAPIURL = "https://serpapi.com/search.json"

// SerpAPI searches Google through serpapi.com.
type SerpAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSerpAPI creates a SerpAPI engine. An empty baseURL uses the public endpoint.
func NewSerpAPI(apiKey, baseURL string, timeout time.Duration) *SerpAPI {
	if baseURL == "" {
		baseURL = serpAPIURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SerpAPI{apiKey: apiKey, baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (s *SerpAPI) Name() string { return "serpapi" }

type serpAPIResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
}

func (s *SerpAPI) Search(ctx context.Context, query string, num int) ([]Item, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))
	params.Set("engine", "google")
	params.Set("api_key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
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

	var parsed serpAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("API error: %s", parsed.Error)
	}

	items := make([]Item, 0, len(parsed.OrganicResults))
	for i, r := range parsed.OrganicResults {
		title := r.Title
		if title == "" {
			title = fmt.Sprintf("SerpAPI Result %d", i+1)
		}
		items = append(items, Item{
			Title:       title,
			URL:         r.Link,
			Description: r.Snippet,
			Position:    i + 1,
			Source:      "SerpAPI",
		})
	}
	return items, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
