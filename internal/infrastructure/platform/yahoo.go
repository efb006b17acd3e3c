package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	defaultYahooBaseURL = "https://tw.buy.yahoo.com"
	yahooSearchPath     = "/search/product"
)

// yahooPriceText finds the first "$25,990" style amount in a result's text
var yahooPriceText = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)

// yahooNamePrefixes are badges rendered in front of the product name
var yahooNamePrefixes = []string{"比較找相似", "馬上比買"}

// YahooConfig configures the Yahoo shopping search adapter
type YahooConfig struct {
	BaseURL   string
	MaxPages  int
	Timeout   time.Duration
	UserAgent string
}

// YahooConfigFrom builds the adapter config from application settings
func YahooConfigFrom(cfg config.ScrapersConfig) YahooConfig {
	return YahooConfig{
		BaseURL:   cfg.YahooBaseURL,
		MaxPages:  cfg.MaxPages,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}
}

func (c *YahooConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultYahooBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultRequestTimeout
	}
}

// yahooItem is one result card lifted from a search page
type yahooItem struct {
	href  string
	title string
	price string
	image string
	text  string
}

// YahooScraper searches Yahoo shopping by parsing its server-rendered
// search pages.
type YahooScraper struct {
	config     YahooConfig
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewYahooScraper creates a new Yahoo adapter
func NewYahooScraper(cfg YahooConfig, logger *zap.Logger) *YahooScraper {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YahooScraper{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Platform returns the platform name
func (s *YahooScraper) Platform() string {
	return PlatformYahoo
}

// Search parses result pages for query until a page has no result cards or
// MaxPages is reached. Only a failure on the first page is an error.
func (s *YahooScraper) Search(ctx context.Context, query string) ([]ingestion.RawRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("yahoo: query is required")
	}

	scrapedAt := s.now().UTC()
	records := make([]ingestion.RawRecord, 0)
	for page := 1; page <= s.config.MaxPages; page++ {
		items, err := s.fetchPage(ctx, query, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.logger.Warn("Yahoo search stopped early",
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
			records = append(records, s.toRawRecord(item, scrapedAt))
		}
	}

	s.logger.Debug("Yahoo search finished", zap.String("query", query), zap.Int("records", len(records)))
	return records, nil
}

func (s *YahooScraper) fetchPage(ctx context.Context, query string, page int) ([]yahooItem, error) {
	params := url.Values{}
	params.Set("p", query)
	params.Set("pg", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+yahooSearchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo: page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: page %d: unexpected status %d", page, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("yahoo: parse page %d: %w", page, err)
	}
	return parseYahooResults(doc), nil
}

// parseYahooResults collects the result cards of a search page. A card is
// an element carrying a gridItem class; cards are not searched for nested
// cards.
func parseYahooResults(doc *html.Node) []yahooItem {
	var items []yahooItem
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isYahooCard(n) {
			if item, ok := readYahooCard(n); ok {
				items = append(items, item)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return items
}

func isYahooCard(n *html.Node) bool {
	for _, class := range strings.Fields(attr(n, "class")) {
		class = strings.ToLower(class)
		if class == "griditem" || strings.HasPrefix(class, "basegriditem__grid") {
			return true
		}
	}
	return false
}

func readYahooCard(card *html.Node) (yahooItem, bool) {
	var item yahooItem
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			class := strings.ToLower(attr(n, "class"))
			switch {
			case n.Data == "a" && item.href == "":
				item.href = attr(n, "href")
				if t := attr(n, "title"); t != "" && item.title == "" {
					item.title = t
				}
			case n.Data == "img" && item.image == "":
				item.image = firstNonEmpty(attr(n, "src"), attr(n, "data-src"), attr(n, "data-original"))
			case strings.Contains(class, "title") && item.title == "":
				item.title = textOf(n)
			case strings.Contains(class, "price") && item.price == "":
				item.price = textOf(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(card)

	item.text = textOf(card)
	if item.title == "" {
		item.title = nameFromText(item.text)
	}
	return item, item.title != "" || item.href != ""
}

func (s *YahooScraper) toRawRecord(item yahooItem, scrapedAt time.Time) ingestion.RawRecord {
	rec := ingestion.RawRecord{
		Platform:  PlatformYahoo,
		Name:      stripYahooBadges(item.title),
		Currency:  "TWD",
		ScrapedAt: scrapedAt,
	}
	if item.href != "" {
		rec.URL = s.absolute(item.href)
		if id := yahooProductID(rec.URL); id != "" {
			rec.PlatformProductID = ingestion.StringPtr(id)
		}
	}
	price := item.price
	if m := yahooPriceText.FindStringSubmatch(item.price + " " + item.text); m != nil {
		price = m[1]
	}
	if price = strings.TrimSpace(price); price != "" {
		rec.Price = ingestion.StringPtr(price)
	}
	if item.image != "" {
		rec.ImageURL = s.absolute(item.image)
	}
	return rec
}

func (s *YahooScraper) absolute(ref string) string {
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	if strings.HasPrefix(ref, "/") {
		return s.config.BaseURL + ref
	}
	return ref
}

// yahooProductID reads the gdid parameter of a product link, falling back to
// the last path segment without its extension.
func yahooProductID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if id := u.Query().Get("gdid"); id != "" {
		return id
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// nameFromText takes the card text up to the first price
func nameFromText(text string) string {
	if loc := yahooPriceText.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.TrimSpace(text)
}

func stripYahooBadges(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range yahooNamePrefixes {
		name = strings.TrimSpace(strings.TrimPrefix(name, prefix))
	}
	return name
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// textOf joins the text below n, collapsing whitespace
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Ensure YahooScraper implements ingestion.Scraper
var _ ingestion.Scraper = (*YahooScraper)(nil)
