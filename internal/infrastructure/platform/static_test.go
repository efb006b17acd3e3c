package platform

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func TestDecodeBatch_CSV(t *testing.T) {
	input := "\xEF\xBB\xBFPlatform, product_id ,name,price,available,scraped_at,brand\n" +
		"pchome,A1,Widget Pro,\"NT$1,290\",true,2026-10-01T08:00:00Z,Acme\n" +
		",,,,,,\n" +
		"momo,B2,Gadget,,no,not-a-time\n"

	records, err := DecodeBatch(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "pchome", first.Platform)
	require.NotNil(t, first.PlatformProductID)
	assert.Equal(t, "A1", *first.PlatformProductID)
	assert.Equal(t, "Widget Pro", first.Name)
	require.NotNil(t, first.Price)
	assert.Equal(t, "NT$1,290", *first.Price)
	require.NotNil(t, first.Available)
	assert.True(t, *first.Available)
	assert.Equal(t, time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC), first.ScrapedAt.UTC())
	require.NotNil(t, first.Brand)
	assert.Equal(t, "Acme", *first.Brand)

	second := records[1]
	assert.Nil(t, second.Price)
	assert.Nil(t, second.Available, "unparsable booleans are left unset")
	assert.True(t, second.ScrapedAt.IsZero())
	assert.Nil(t, second.Brand)
}

func TestDecodeBatch_CSVErrors(t *testing.T) {
	_, err := DecodeBatch(strings.NewReader(""), FormatCSV)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = DecodeBatch(bytes.NewReader([]byte{'n', 'a', 'm', 'e', '\n', 0xff, 0xfe, '\n'}), FormatCSV)
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	_, err = DecodeBatch(strings.NewReader("x"), "txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeBatch_JSON(t *testing.T) {
	input := `[{"platform":"shopee","platform_product_id":"9","name":"Widget","price":"499","available":true}]`

	records, err := DecodeBatch(strings.NewReader(input), FormatJSON)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "shopee", records[0].Platform)
	assert.Equal(t, "499", *records[0].Price)

	_, err = DecodeBatch(strings.NewReader("  "), FormatJSON)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = DecodeBatch(strings.NewReader("{"), FormatJSON)
	assert.Error(t, err)
}

func TestDecodeBatch_XLSX(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]any{"platform_product_id", "name", "price", "original_price"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]any{"X-1", "Widget Pro 128GB", "990", "1290"}))
	require.NoError(t, book.SetSheetRow(sheet, "A3", &[]any{"X-2", "Widget Mini", "490"}))

	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	records, err := DecodeBatch(bytes.NewReader(buf.Bytes()), FormatXLSX)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "X-1", *records[0].PlatformProductID)
	assert.Equal(t, "Widget Pro 128GB", records[0].Name)
	assert.Equal(t, "1290", *records[0].OriginalPrice)
	assert.Nil(t, records[1].OriginalPrice)

	_, err = DecodeBatch(strings.NewReader("not a zip"), FormatXLSX)
	assert.Error(t, err)
}

func TestLoadStaticScraper(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shopee.CSV")
	content := "platform,platform_product_id,name,price\n" +
		",1,Widget Pro,100\n" +
		"shopee,2,Gadget Max,200\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := LoadStaticScraper(" Shopee ", path)
	require.NoError(t, err)
	assert.Equal(t, "shopee", s.Platform())

	all, err := s.Search(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "shopee", all[0].Platform, "blank platform takes the scraper's")

	hits, err := s.Search(context.Background(), "  widget ")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", *hits[0].PlatformProductID)

	_, err = LoadStaticScraper("shopee", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(config.ScrapersConfig{}, zap.NewNop())
	r.Register(NewStaticScraper("shopee", []ingestion.RawRecord{{Name: "x"}}))

	all := r.All()
	require.Len(t, all, 4)
	assert.Equal(t, PlatformMomo, all[0].Platform())
	assert.Equal(t, PlatformPChome, all[1].Platform())
	assert.Equal(t, "shopee", all[2].Platform())
	assert.Equal(t, PlatformYahoo, all[3].Platform())
	assert.Equal(t, []string{PlatformMomo, PlatformPChome, "shopee", PlatformYahoo}, r.Platforms())

	s, err := r.Get(" PCHOME ")
	require.NoError(t, err)
	assert.Equal(t, PlatformPChome, s.Platform())

	_, err = r.Get("rakuten")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}
