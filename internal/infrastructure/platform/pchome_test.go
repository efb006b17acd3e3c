package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pchomePage(n, offset int) map[string]any {
	prods := make([]map[string]any, n)
	for i := range prods {
		prods[i] = map[string]any{
			"Id":          fmt.Sprintf("DYAJ%03d", offset+i),
			"name":        fmt.Sprintf("Widget %d", offset+i),
			"price":       1000 + offset + i,
			"originPrice": 1200,
			"picB":        "/items/pic.jpg",
			"buttonType":  "ForSale",
		}
	}
	return map[string]any{"totalPage": 5, "prods": prods}
}

func TestPChomeScraper_Search(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, pchomeSearchPath, r.URL.Path)
		assert.Equal(t, "widget", r.URL.Query().Get("q"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size := pchomePageSize
		if page == 2 {
			size = 3
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pchomePage(size, (page-1)*pchomePageSize))
	}))
	defer server.Close()

	scraper := NewPChomeScraper(PChomeConfig{BaseURL: server.URL + "/", MaxPages: 5, UserAgent: "test-agent"}, nil)
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	scraper.now = func() time.Time { return fixed }

	records, err := scraper.Search(context.Background(), " widget ")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, records, pchomePageSize+3)

	first := records[0]
	assert.Equal(t, PlatformPChome, first.Platform)
	require.NotNil(t, first.PlatformProductID)
	assert.Equal(t, "DYAJ000", *first.PlatformProductID)
	assert.Equal(t, "Widget 0", first.Name)
	require.NotNil(t, first.Price)
	assert.Equal(t, "1000", *first.Price)
	require.NotNil(t, first.OriginalPrice)
	assert.Equal(t, "1200", *first.OriginalPrice)
	assert.Equal(t, defaultPChomeProductURL+"DYAJ000", first.URL)
	assert.Equal(t, defaultPChomeImageURL+"/items/pic.jpg", first.ImageURL)
	require.NotNil(t, first.Available)
	assert.True(t, *first.Available)
	assert.Equal(t, fixed, first.ScrapedAt)
	assert.Equal(t, "TWD", first.Currency)
}

func TestPChomeScraper_MaxPages(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(pchomePage(pchomePageSize, 0))
	}))
	defer server.Close()

	scraper := NewPChomeScraper(PChomeConfig{BaseURL: server.URL, MaxPages: 2}, nil)
	records, err := scraper.Search(context.Background(), "widget")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, records, 2*pchomePageSize)
}

func TestPChomeScraper_Errors(t *testing.T) {
	t.Run("first page failure is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		scraper := NewPChomeScraper(PChomeConfig{BaseURL: server.URL}, nil)
		_, err := scraper.Search(context.Background(), "widget")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("later page failure keeps earlier results", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") == "2" {
				_, _ = w.Write([]byte("{not json"))
				return
			}
			_ = json.NewEncoder(w).Encode(pchomePage(pchomePageSize, 0))
		}))
		defer server.Close()

		scraper := NewPChomeScraper(PChomeConfig{BaseURL: server.URL, MaxPages: 3}, nil)
		records, err := scraper.Search(context.Background(), "widget")
		require.NoError(t, err)
		assert.Len(t, records, pchomePageSize)
	})

	t.Run("empty query", func(t *testing.T) {
		scraper := NewPChomeScraper(PChomeConfig{}, nil)
		_, err := scraper.Search(context.Background(), "  ")
		assert.Error(t, err)
	})

	t.Run("missing fields stay absent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"prods":[{"name":"No Id"}]}`))
		}))
		defer server.Close()

		scraper := NewPChomeScraper(PChomeConfig{BaseURL: server.URL}, nil)
		records, err := scraper.Search(context.Background(), "widget")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Nil(t, records[0].PlatformProductID)
		assert.Nil(t, records[0].Price)
		assert.Nil(t, records[0].Available)
		assert.Empty(t, records[0].URL)
	})
}
