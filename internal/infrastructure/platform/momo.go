package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const (
	defaultMomoBaseURL = "https://www.momoshop.com.tw"
	momoSearchPath     = "/search/searchShop.jsp"
	momoProductPath    = "/goods/GoodsDetail.jsp"
	defaultBrowserWait = 45 * time.Second
)

// momoExtractJS collects the visible search results of a rendered page
const momoExtractJS = `(() => Array.from(document.querySelectorAll('li.goodsItemLi')).map(li => {
	const link = li.querySelector('a[goodscode]') || li.querySelector('a');
	const title = li.querySelector('a[title]');
	const price = li.querySelector('.price b, span.price, b.price, .priceArea');
	const img = li.querySelector('img');
	return {
		code: link ? (link.getAttribute('goodscode') || '') : '',
		name: title ? title.getAttribute('title') : (li.querySelector('.prdName') || {}).textContent || '',
		price: price ? price.textContent.trim() : '',
		image: img ? (img.getAttribute('src') || img.getAttribute('data-original') || '') : '',
		soldOut: !!li.querySelector('.soldOut, .sold-out')
	};
}))()`

// momoItem is one search result as extracted from the page
type momoItem struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Price   string `json:"price"`
	Image   string `json:"image"`
	SoldOut bool   `json:"soldOut"`
}

// pageExtractor renders a search page and returns its result items
type pageExtractor interface {
	Extract(ctx context.Context, pageURL string) ([]momoItem, error)
	Close() error
}

// MomoConfig configures the momo search adapter
type MomoConfig struct {
	BaseURL   string
	MaxPages  int
	Timeout   time.Duration
	RemoteURL string // remote Chrome DevTools endpoint; empty launches a local browser
	UserAgent string
	NoSandbox bool
}

// MomoConfigFrom builds the adapter config from application settings
func MomoConfigFrom(cfg config.ScrapersConfig) MomoConfig {
	return MomoConfig{
		BaseURL:   cfg.MomoBaseURL,
		MaxPages:  cfg.MaxPages,
		Timeout:   cfg.RequestTimeout,
		RemoteURL: cfg.ChromeRemoteURL,
		UserAgent: cfg.UserAgent,
		NoSandbox: true,
	}
}

func (c *MomoConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultMomoBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultBrowserWait
	}
}

// MomoScraper searches momo by rendering its JavaScript search pages in a
// headless browser.
type MomoScraper struct {
	config    MomoConfig
	extractor pageExtractor
	logger    *zap.Logger
	now       func() time.Time
}

// NewMomoScraper creates a new momo adapter. The browser is started lazily
// on the first search.
func NewMomoScraper(cfg MomoConfig, logger *zap.Logger) *MomoScraper {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MomoScraper{
		config:    cfg,
		extractor: newChromedpExtractor(cfg, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// Platform returns the platform name
func (s *MomoScraper) Platform() string {
	return PlatformMomo
}

// Search renders result pages for query until a page comes back empty or
// MaxPages is reached.
func (s *MomoScraper) Search(ctx context.Context, query string) ([]ingestion.RawRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("momo: query is required")
	}

	scrapedAt := s.now().UTC()
	records := make([]ingestion.RawRecord, 0)
	for page := 1; page <= s.config.MaxPages; page++ {
		pageCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		items, err := s.extractor.Extract(pageCtx, s.searchURL(query, page))
		cancel()
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("momo: page %d: %w", page, err)
			}
			s.logger.Warn("momo search stopped early",
				zap.String("query", query),
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			if strings.TrimSpace(item.Name) == "" && item.Code == "" {
				continue
			}
			records = append(records, s.toRawRecord(item, scrapedAt))
		}
	}

	s.logger.Debug("momo search finished", zap.String("query", query), zap.Int("records", len(records)))
	return records, nil
}

// Close shuts the browser down
func (s *MomoScraper) Close() error {
	return s.extractor.Close()
}

func (s *MomoScraper) searchURL(query string, page int) string {
	params := url.Values{}
	params.Set("keyword", query)
	params.Set("curPage", strconv.Itoa(page))
	return s.config.BaseURL + momoSearchPath + "?" + params.Encode()
}

func (s *MomoScraper) toRawRecord(item momoItem, scrapedAt time.Time) ingestion.RawRecord {
	rec := ingestion.RawRecord{
		Platform:  PlatformMomo,
		Name:      item.Name,
		Currency:  "TWD",
		ImageURL:  item.Image,
		ScrapedAt: scrapedAt,
	}
	if code := strings.TrimSpace(item.Code); code != "" {
		rec.PlatformProductID = ingestion.StringPtr(code)
		rec.URL = s.config.BaseURL + momoProductPath + "?i_code=" + url.QueryEscape(code)
	}
	if price := strings.TrimSpace(item.Price); price != "" {
		rec.Price = ingestion.StringPtr(price)
	}
	if item.SoldOut {
		rec.Available = ingestion.BoolPtr(false)
	}
	return rec
}

// chromedpExtractor drives a headless Chrome through chromedp
type chromedpExtractor struct {
	config      MomoConfig
	logger      *zap.Logger
	once        sync.Once
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func newChromedpExtractor(cfg MomoConfig, logger *zap.Logger) *chromedpExtractor {
	return &chromedpExtractor{config: cfg, logger: logger}
}

// initAllocator starts or connects to the browser
func (e *chromedpExtractor) initAllocator() {
	if e.config.RemoteURL != "" {
		e.allocCtx, e.allocCancel = chromedp.NewRemoteAllocator(context.Background(), e.config.RemoteURL)
		return
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if e.config.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	if e.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(e.config.UserAgent))
	}
	e.allocCtx, e.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
}

// Extract navigates to pageURL, waits for results and evaluates the extractor.
// A page without any result list yields no items.
func (e *chromedpExtractor) Extract(ctx context.Context, pageURL string) ([]momoItem, error) {
	e.once.Do(e.initAllocator)

	browserCtx, cancel := chromedp.NewContext(e.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			e.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer cancel()

	// Tie the tab's lifetime to the caller's deadline.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var items []momoItem
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(momoExtractJS, &items),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return items, nil
}

// Close releases the browser
func (e *chromedpExtractor) Close() error {
	if e.allocCancel != nil {
		e.allocCancel()
	}
	return nil
}

// Ensure MomoScraper implements ingestion.Scraper
var _ ingestion.Scraper = (*MomoScraper)(nil)
