package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// maxResponseSize is the maximum accepted search API response (10MB)
const maxResponseSize = 10 * 1024 * 1024

const (
	defaultPChomeBaseURL    = "https://ecshweb.pchome.com.tw"
	pchomeSearchPath        = "/search/v3.3/all/results"
	defaultPChomeProductURL = "https://24h.pchome.com.tw/prod/"
	defaultPChomeImageURL   = "https://cs-a.ecimg.tw"
	pchomePageSize          = 20
	defaultMaxPages         = 3
	defaultRequestTimeout   = 15 * time.Second
)

// PChomeConfig configures the PChome search adapter
type PChomeConfig struct {
	BaseURL      string
	ProductURL   string
	ImageBaseURL string
	MaxPages     int
	Timeout      time.Duration
	UserAgent    string
}

// PChomeConfigFrom builds the adapter config from application settings
func PChomeConfigFrom(cfg config.ScrapersConfig) PChomeConfig {
	return PChomeConfig{
		BaseURL:   cfg.PChomeBaseURL,
		MaxPages:  cfg.MaxPages,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}
}

func (c *PChomeConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultPChomeBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ProductURL == "" {
		c.ProductURL = defaultPChomeProductURL
	}
	if c.ImageBaseURL == "" {
		c.ImageBaseURL = defaultPChomeImageURL
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultRequestTimeout
	}
}

// pchomeSearchResponse is the search API payload
type pchomeSearchResponse struct {
	TotalPage int             `json:"totalPage"`
	Prods     []pchomeProduct `json:"prods"`
}

type pchomeProduct struct {
	ID          string      `json:"Id"`
	Name        string      `json:"name"`
	Price       json.Number `json:"price"`
	OriginPrice json.Number `json:"originPrice"`
	PicB        string      `json:"picB"`
	Brand       string      `json:"brand"`
	ButtonType  string      `json:"buttonType"`
}

// PChomeScraper searches PChome through its public JSON search API
type PChomeScraper struct {
	config     PChomeConfig
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewPChomeScraper creates a new PChome adapter
func NewPChomeScraper(cfg PChomeConfig, logger *zap.Logger) *PChomeScraper {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PChomeScraper{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Platform returns the platform name
func (s *PChomeScraper) Platform() string {
	return PlatformPChome
}

// Search returns the listings for query, following pages until a short page
// or MaxPages. A failure on the first page is an error; later failures end
// the search with what was collected.
func (s *PChomeScraper) Search(ctx context.Context, query string) ([]ingestion.RawRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("pchome: query is required")
	}

	scrapedAt := s.now().UTC()
	records := make([]ingestion.RawRecord, 0)
	for page := 1; page <= s.config.MaxPages; page++ {
		resp, err := s.fetchPage(ctx, query, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.logger.Warn("PChome search stopped early",
				zap.String("query", query),
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}

		for _, p := range resp.Prods {
			records = append(records, s.toRawRecord(p, scrapedAt))
		}
		if len(resp.Prods) < pchomePageSize || (resp.TotalPage > 0 && page >= resp.TotalPage) {
			break
		}
	}

	s.logger.Debug("PChome search finished", zap.String("query", query), zap.Int("records", len(records)))
	return records, nil
}

func (s *PChomeScraper) fetchPage(ctx context.Context, query string, page int) (*pchomeSearchResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("sort", "rnk/dc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+pchomeSearchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("pchome: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}

	httpResp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pchome: page %d: %w", page, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pchome: page %d: unexpected status %d", page, httpResp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("pchome: read page %d: %w", page, err)
	}

	var resp pchomeSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("pchome: decode page %d: %w", page, err)
	}
	return &resp, nil
}

func (s *PChomeScraper) toRawRecord(p pchomeProduct, scrapedAt time.Time) ingestion.RawRecord {
	rec := ingestion.RawRecord{
		Platform:  PlatformPChome,
		Name:      p.Name,
		Currency:  "TWD",
		ScrapedAt: scrapedAt,
	}
	if p.ID != "" {
		rec.PlatformProductID = ingestion.StringPtr(p.ID)
		rec.URL = s.config.ProductURL + p.ID
	}
	if p.Price != "" {
		rec.Price = ingestion.StringPtr(p.Price.String())
	}
	if p.OriginPrice != "" {
		rec.OriginalPrice = ingestion.StringPtr(p.OriginPrice.String())
	}
	if p.Brand != "" {
		rec.Brand = ingestion.StringPtr(p.Brand)
	}
	if p.PicB != "" {
		rec.ImageURL = s.config.ImageBaseURL + p.PicB
		if strings.HasPrefix(p.PicB, "http") {
			rec.ImageURL = p.PicB
		}
	}
	if p.ButtonType != "" {
		rec.Available = ingestion.BoolPtr(p.ButtonType == "ForSale" || p.ButtonType == "buy")
	}
	return rec
}

// Ensure PChomeScraper implements ingestion.Scraper
var _ ingestion.Scraper = (*PChomeScraper)(nil)
