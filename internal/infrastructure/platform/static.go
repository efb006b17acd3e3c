package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/xuri/excelize/v2"
)

// Batch file formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// StaticScraper serves a fixed batch of records, typically loaded from a file
type StaticScraper struct {
	platform string
	records  []ingestion.RawRecord
}

// NewStaticScraper wraps records. Records without a platform take platform.
func NewStaticScraper(platform string, records []ingestion.RawRecord) *StaticScraper {
	platform = strings.ToLower(strings.TrimSpace(platform))
	out := make([]ingestion.RawRecord, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.Platform) == "" {
			r.Platform = platform
		}
		out[i] = r
	}
	return &StaticScraper{platform: platform, records: out}
}

// LoadStaticScraper reads a JSON, CSV or XLSX batch file
func LoadStaticScraper(platform, path string) (*StaticScraper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	records, err := DecodeBatch(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return NewStaticScraper(platform, records), nil
}

// Platform returns the platform name
func (s *StaticScraper) Platform() string {
	return s.platform
}

// Search returns the records whose name contains query, ignoring case. An
// empty query returns the whole batch.
func (s *StaticScraper) Search(_ context.Context, query string) ([]ingestion.RawRecord, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]ingestion.RawRecord, 0, len(s.records))
	for _, r := range s.records {
		if query == "" || strings.Contains(strings.ToLower(r.Name), query) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FormatFromPath picks a batch format from the file extension
func FormatFromPath(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// DecodeBatch decodes raw records in the given format
func DecodeBatch(r io.Reader, format string) ([]ingestion.RawRecord, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(r)
	case FormatCSV:
		table, err := readCSV(r)
		if err != nil {
			return nil, err
		}
		return tableRecords(table), nil
	case FormatXLSX:
		table, err := readXLSX(r)
		if err != nil {
			return nil, err
		}
		return tableRecords(table), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func decodeJSON(r io.Reader) ([]ingestion.RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	var records []ingestion.RawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return records, nil
}

// readXLSX reads the first sheet of a workbook
func readXLSX(r io.Reader) (*tableReader, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return newTable(rows)
}

// tableRecords maps tabular rows onto raw records. Cells are passed through
// untouched; blank optional cells stay absent.
func tableRecords(t *tableReader) []ingestion.RawRecord {
	rows := t.maps()
	records := make([]ingestion.RawRecord, 0, len(rows))
	for _, row := range rows {
		rec := ingestion.RawRecord{
			Platform:          row["platform"],
			PlatformProductID: optional(first(row, "platform_product_id", "product_id", "id")),
			Name:              row["name"],
			Price:             optional(row["price"]),
			OriginalPrice:     optional(row["original_price"]),
			Currency:          row["currency"],
			URL:               row["url"],
			ImageURL:          row["image_url"],
			Brand:             optional(row["brand"]),
		}
		if v := row["available"]; v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				rec.Available = ingestion.BoolPtr(b)
			}
		}
		if v := row["scraped_at"]; v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				rec.ScrapedAt = ts
			}
		}
		records = append(records, rec)
	}
	return records
}

func first(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return ingestion.StringPtr(s)
}

// Ensure StaticScraper implements ingestion.Scraper
var _ ingestion.Scraper = (*StaticScraper)(nil)
