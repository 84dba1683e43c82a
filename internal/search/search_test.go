package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type stubEngine struct {
	name  string
	items []Item
	err   error
	calls int
	num   int
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Search(ctx context.Context, query string, num int) ([]Item, error) {
	s.calls++
	s.num = num
	return s.items, s.err
}

func TestSerpAPISearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "golang generics", q.Get("q"))
		assert.Equal(t, "3", q.Get("num"))
		assert.Equal(t, "google", q.Get("engine"))
		assert.Equal(t, "serp-key", q.Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic_results": [
			{"position": 1, "title": "Go generics", "link": "https://go.dev/doc/tutorial/generics", "snippet": "Tutorial"},
			{"position": 2, "title": "", "link": "https://example.com", "snippet": ""}
		]}`))
	}))
	defer srv.Close()

	items, err := NewSerpAPI("serp-key", srv.URL, time.Second).Search(context.Background(), "golang generics", 3)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, Item{Title: "Go generics", URL: "https://go.dev/doc/tutorial/generics", Description: "Tutorial", Position: 1, Source: "SerpAPI"}, items[0])
	assert.Equal(t, "SerpAPI Result 2", items[1].Title)
}

func TestSerpAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") == "bad" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "Invalid API key."}`))
			return
		}
		_, _ = w.Write([]byte(`{"error": "Your account has run out of searches."}`))
	}))
	defer srv.Close()

	_, err := NewSerpAPI("bad", srv.URL, time.Second).Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")

	_, err = NewSerpAPI("ok", srv.URL, time.Second).Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run out of searches")
}

func TestBraveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "brave-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "20", r.URL.Query().Get("count"), "count is capped")
		_, _ = w.Write([]byte(`{"web": {"results": [
			{"title": "Brave result", "url": "https://brave.com", "description": "desc"}
		]}}`))
	}))
	defer srv.Close()

	items, err := NewBrave("brave-key", srv.URL, time.Second).Search(context.Background(), "privacy", 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, Item{Title: "Brave result", URL: "https://brave.com", Description: "desc", Position: 1, Source: "Brave"}, items[0])
}

func TestBraveBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewBrave("k", srv.URL, time.Second).Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestSearcherFallsBackOnError(t *testing.T) {
	primary := &stubEngine{name: "primary", err: errors.New("quota exceeded")}
	backup := &stubEngine{name: "backup", items: []Item{{Title: "hit", Position: 1}}}

	items, err := NewSearcher([]Engine{primary, backup}, 5, silentLog()).Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, "hit", items[0].Title)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 5, backup.num, "default result count")
}

func TestSearcherFallsBackOnEmpty(t *testing.T) {
	primary := &stubEngine{name: "primary"}
	backup := &stubEngine{name: "backup", items: []Item{{Title: "a"}, {Title: "b"}, {Title: "c"}}}

	items, err := NewSearcher([]Engine{primary, backup}, 5, silentLog()).Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, items, 2, "results are trimmed to the requested count")
}

func TestSearcherAllFail(t *testing.T) {
	a := &stubEngine{name: "a", err: errors.New("down")}
	b := &stubEngine{name: "b", err: errors.New("timeout")}

	_, err := NewSearcher([]Engine{a, b}, 5, silentLog()).Search(context.Background(), "q", 0)
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "a", ee.Engine)
	assert.Contains(t, err.Error(), "b: timeout")
}

func TestSearcherNoResults(t *testing.T) {
	_, err := NewSearcher([]Engine{&stubEngine{name: "a"}}, 5, silentLog()).Search(context.Background(), "q", 0)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestSearcherRejectsEmptyQuery(t *testing.T) {
	e := &stubEngine{name: "a"}
	_, err := NewSearcher([]Engine{e}, 5, silentLog()).Search(context.Background(), "  ", 0)
	require.Error(t, err)
	assert.Zero(t, e.calls)
}

func TestSearcherNoEngines(t *testing.T) {
	_, err := NewSearcher(nil, 5, silentLog()).Search(context.Background(), "q", 0)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	s := NewFromConfig(config.SearchConfig{
		Engine:          "brave",
		FallbackEngines: []string{"serpapi", "Brave", "bing"},
		BraveAPIKey:     "b",
	}, silentLog())
	assert.Equal(t, []string{"brave"}, s.Engines(), "serpapi has no key, bing is unknown")

	s = NewFromConfig(config.SearchConfig{
		Engine:          "serpapi",
		FallbackEngines: []string{"brave"},
		SerpAPIKey:      "s",
		BraveAPIKey:     "b",
	}, silentLog())
	assert.Equal(t, []string{"serpapi", "brave"}, s.Engines())
}

func TestFormat(t *testing.T) {
	out := Format("go", []Item{{Title: "Go", URL: "https://go.dev", Description: "The Go language"}})
	assert.Contains(t, out, "Search results for: go")
	assert.Contains(t, out, "1. Go\n   URL: https://go.dev\n   The Go language\n")

	assert.Contains(t, Format("x", nil), "No results found.")
}
