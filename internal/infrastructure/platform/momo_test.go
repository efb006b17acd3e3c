package platform

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	pages  map[string][]momoItem
	errAt  string
	seen   []string
	closed bool
}

func (f *fakeExtractor) Extract(_ context.Context, pageURL string) ([]momoItem, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	page := u.Query().Get("curPage")
	f.seen = append(f.seen, page)
	if page == f.errAt {
		return nil, errors.New("navigation failed")
	}
	return f.pages[page], nil
}

func (f *fakeExtractor) Close() error {
	f.closed = true
	return nil
}

func newTestMomoScraper(extractor *fakeExtractor, maxPages int) *MomoScraper {
	s := NewMomoScraper(MomoConfig{BaseURL: "https://momo.example/", MaxPages: maxPages}, nil)
	s.extractor = extractor
	return s
}

func TestMomoScraper_Search(t *testing.T) {
	extractor := &fakeExtractor{pages: map[string][]momoItem{
		"1": {
			{Code: "1001", Name: "Widget Pro 128GB", Price: "$1,050", Image: "https://img.example/1.jpg"},
			{Code: "1002", Name: "Widget Mini", Price: "", SoldOut: true},
			{},
		},
		"2": {
			{Code: "1003", Name: "Widget Max", Price: "2,990"},
		},
	}}
	scraper := newTestMomoScraper(extractor, 5)

	records, err := scraper.Search(context.Background(), "widget")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, extractor.seen)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, PlatformMomo, first.Platform)
	require.NotNil(t, first.PlatformProductID)
	assert.Equal(t, "1001", *first.PlatformProductID)
	assert.Equal(t, "https://momo.example/goods/GoodsDetail.jsp?i_code=1001", first.URL)
	require.NotNil(t, first.Price)
	assert.Equal(t, "$1,050", *first.Price)
	assert.Nil(t, first.Available)

	soldOut := records[1]
	assert.Nil(t, soldOut.Price)
	require.NotNil(t, soldOut.Available)
	assert.False(t, *soldOut.Available)
}

func TestMomoScraper_SearchURL(t *testing.T) {
	scraper := newTestMomoScraper(&fakeExtractor{}, 1)
	u, err := url.Parse(scraper.searchURL("無線 耳機", 2))
	require.NoError(t, err)
	assert.Equal(t, "momo.example", u.Host)
	assert.Equal(t, momoSearchPath, u.Path)
	assert.Equal(t, "無線 耳機", u.Query().Get("keyword"))
	assert.Equal(t, "2", u.Query().Get("curPage"))
}

func TestMomoScraper_Errors(t *testing.T) {
	t.Run("first page failure", func(t *testing.T) {
		scraper := newTestMomoScraper(&fakeExtractor{errAt: "1"}, 3)
		_, err := scraper.Search(context.Background(), "widget")
		assert.Error(t, err)
	})

	t.Run("later page failure keeps results", func(t *testing.T) {
		extractor := &fakeExtractor{errAt: "2", pages: map[string][]momoItem{
			"1": {{Code: "1001", Name: "Widget", Price: "100"}},
		}}
		scraper := newTestMomoScraper(extractor, 3)
		records, err := scraper.Search(context.Background(), "widget")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("close releases the browser", func(t *testing.T) {
		extractor := &fakeExtractor{}
		scraper := newTestMomoScraper(extractor, 1)
		require.NoError(t, scraper.Close())
		assert.True(t, extractor.closed)
	})
}

func TestChromedpExtractor_CloseWithoutBrowser(t *testing.T) {
	e := newChromedpExtractor(MomoConfig{}, nil)
	assert.NoError(t, e.Close())
}
