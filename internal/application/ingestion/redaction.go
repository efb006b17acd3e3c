package ingestion

import (
	"encoding/json"
	"net/url"
	"unicode/utf8"

	"github.com/pricedragon/backend/internal/domain/ingestion"
)

// snippet is the redacted form of a raw record kept in run reports
type snippet struct {
	Platform          string  `json:"platform,omitempty"`
	PlatformProductID *string `json:"platform_product_id,omitempty"`
	Name              string  `json:"name"`
	Price             *string `json:"price,omitempty"`
	Brand             *string `json:"brand,omitempty"`
	URLHost           string  `json:"url_host,omitempty"`
}

// RedactSnippet renders raw as compact JSON for error reports. URLs are
// reduced to their host and the name is cut to maxNameRunes.
func RedactSnippet(raw ingestion.RawRecord, maxNameRunes int) string {
	s := snippet{
		Platform:          raw.Platform,
		PlatformProductID: raw.PlatformProductID,
		Name:              truncateRunes(raw.Name, maxNameRunes),
		Price:             raw.Price,
		Brand:             raw.Brand,
		URLHost:           urlHost(raw.URL),
	}
	out, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(out)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}

func urlHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
