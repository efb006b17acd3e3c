package ingestion

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultCurrency is assigned to records that do not state one
const DefaultCurrency = "TWD"

// defaultBrandAliases maps lower-cased brand spellings to their canonical form
var defaultBrandAliases = map[string]string{
	"apple":     "Apple",
	"samsung":   "Samsung",
	"sony":      "Sony",
	"lg":        "LG",
	"htc":       "HTC",
	"asus":      "ASUS",
	"acer":      "Acer",
	"msi":       "MSI",
	"gigabyte":  "Gigabyte",
	"xiaomi":    "Xiaomi",
	"oppo":      "OPPO",
	"vivo":      "Vivo",
	"hp":        "HP",
	"dell":      "Dell",
	"lenovo":    "Lenovo",
	"google":    "Google",
	"huawei":    "Huawei",
	"nintendo":  "Nintendo",
	"dyson":     "Dyson",
	"panasonic": "Panasonic",
	"philips":   "Philips",
}

// currencyTokens are stripped from price text, longest first so "NT$" wins over "$".
var currencyTokens = []struct {
	token string
	code  string
}{
	{"NT$", "TWD"},
	{"US$", "USD"},
	{"NTD", "TWD"},
	{"TWD", "TWD"},
	{"USD", "USD"},
	{"EUR", "EUR"},
	{"JPY", "JPY"},
	{"元", "TWD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"$", ""},
}

var repeatedMarks = regexp.MustCompile(`([!?])[!?]+`)

// plainPrice is the only accepted price shape once currency and separators
// are stripped. Exponents and signs are rejected.
var plainPrice = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Price bounds follow the decimal(18,4) columns. The significant digit cap
// keeps prices exact through SQLite's float storage.
const (
	maxPriceTextLen       = 64
	maxPriceIntegerDigits = 14
	maxPriceScale         = 4
	maxPriceSignificant   = 15
)

var (
	errPriceEmpty       = errors.New("no digits in price")
	errPriceTooLong     = errors.New("price text is too long")
	errPriceNotNumber   = errors.New("price is not a plain decimal number")
	errPriceNotPositive = errors.New("price must be greater than zero")
	errPriceTooLarge    = errors.New("price has more than 14 integer digits")
	errPriceTooPrecise  = errors.New("price has more than 4 decimal places")
	errPriceTooManySig  = errors.New("price has more than 15 significant digits")
)

// Normalizer turns RawRecords into NormalizedRecords.
// It performs no I/O and never mutates its input.
type Normalizer struct {
	defaultCurrency string
	brandAliases    map[string]string
	aliasKeys       []string
	now             func() time.Time
}

// NormalizerOption configures a Normalizer
type NormalizerOption func(*Normalizer)

// WithDefaultCurrency sets the currency used when a record states none
func WithDefaultCurrency(code string) NormalizerOption {
	return func(n *Normalizer) {
		if code = strings.TrimSpace(code); code != "" {
			n.defaultCurrency = strings.ToUpper(code)
		}
	}
}

// WithBrandAliases adds brand spellings to the canonicalization table
func WithBrandAliases(aliases map[string]string) NormalizerOption {
	return func(n *Normalizer) {
		for k, v := range aliases {
			n.brandAliases[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
}

// WithClock overrides the clock used for records without a scrape timestamp
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNormalizer creates a Normalizer with the built-in brand table
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		defaultCurrency: DefaultCurrency,
		brandAliases:    make(map[string]string, len(defaultBrandAliases)),
		now:             time.Now,
	}
	for k, v := range defaultBrandAliases {
		n.brandAliases[k] = v
	}
	for _, opt := range opts {
		opt(n)
	}
	n.aliasKeys = make([]string, 0, len(n.brandAliases))
	for k := range n.brandAliases {
		n.aliasKeys = append(n.aliasKeys, k)
	}
	sort.Strings(n.aliasKeys)
	return n
}

// Normalize validates and canonicalizes a raw record.
// Every failure is returned as a *ValidationError.
func (n *Normalizer) Normalize(raw RawRecord) (NormalizedRecord, error) {
	platform := strings.ToLower(strings.TrimSpace(raw.Platform))
	if platform == "" {
		return NormalizedRecord{}, newValidationError(ReasonMissingPlatform, "platform", "platform is required")
	}

	if raw.PlatformProductID == nil || strings.TrimSpace(*raw.PlatformProductID) == "" {
		return NormalizedRecord{}, newValidationError(ReasonMissingIdentity, "platform_product_id", "platform product id is required")
	}
	productID := strings.TrimSpace(*raw.PlatformProductID)

	name := CleanName(raw.Name)
	if name == "" {
		return NormalizedRecord{}, newValidationError(ReasonEmptyName, "name", "name is empty after trimming")
	}

	price, priceCurrency, err := ParsePrice(raw.Price)
	if err != nil {
		return NormalizedRecord{}, newValidationError(ReasonInvalidPrice, "price", err.Error())
	}

	// An unparsable list price is informational only and is dropped.
	original, _, err := ParsePrice(raw.OriginalPrice)
	if err != nil {
		original = decimal.NullDecimal{}
	}

	// Without a price the listing counts as unavailable unless the scraper
	// said otherwise.
	available := price.Valid
	if raw.Available != nil {
		available = *raw.Available
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = priceCurrency
	}
	if currency == "" {
		currency = n.defaultCurrency
	}

	observedAt := raw.ScrapedAt
	if observedAt.IsZero() {
		observedAt = n.now()
	}

	brand := n.canonicalBrand(raw.Brand)

	return NormalizedRecord{
		Platform:          platform,
		PlatformProductID: productID,
		Name:              name,
		CanonicalName:     cases.Fold().String(name),
		MatchKey:          MatchKey(name, brand),
		Brand:             brand,
		Price:             price,
		OriginalPrice:     original,
		Currency:          currency,
		Available:         available,
		URL:               strings.TrimSpace(raw.URL),
		ImageURL:          strings.TrimSpace(raw.ImageURL),
		ObservedAt:        observedAt.UTC(),
	}, nil
}

// CleanName folds compatibility characters, drops decorative symbols and
// collapses whitespace. The result keeps its original letter case.
func CleanName(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\u200d' || r == '\ufe0f':
			return -1
		case unicode.Is(unicode.So, r), unicode.IsControl(r):
			return ' '
		}
		return r
	}, s)
	s = repeatedMarks.ReplaceAllString(s, "$1")
	return strings.Join(strings.Fields(s), " ")
}

// ParsePrice parses price text such as "NT$1,299" or "1299.00".
// A nil or blank input yields an invalid NullDecimal and no error; the
// second return value is the currency implied by a symbol, if any.
func ParsePrice(raw *string) (decimal.NullDecimal, string, error) {
	if raw == nil {
		return decimal.NullDecimal{}, "", nil
	}
	if len(*raw) > maxPriceTextLen {
		return decimal.NullDecimal{}, "", errPriceTooLong
	}
	s := strings.TrimSpace(norm.NFKC.String(*raw))
	if s == "" {
		return decimal.NullDecimal{}, "", nil
	}

	s = strings.ToUpper(s)
	currency := ""
	for _, ct := range currencyTokens {
		if strings.Contains(s, ct.token) {
			if currency == "" {
				currency = ct.code
			}
			s = strings.ReplaceAll(s, ct.token, "")
		}
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.NullDecimal{}, "", errPriceEmpty
	}

	if !plainPrice.MatchString(s) {
		return decimal.NullDecimal{}, "", errPriceNotNumber
	}
	if err := checkPriceDigits(s); err != nil {
		return decimal.NullDecimal{}, "", err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, "", errPriceNotNumber
	}
	if !d.IsPositive() {
		return decimal.NullDecimal{}, "", errPriceNotPositive
	}
	return decimal.NewNullDecimal(d), currency, nil
}

// checkPriceDigits bounds a plain decimal string so it reads back from the
// store exactly as written. Leading integer zeros and trailing fractional
// zeros do not count.
func checkPriceDigits(s string) error {
	intPart, fracPart, _ := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	fracPart = strings.TrimRight(fracPart, "0")
	switch {
	case len(intPart) > maxPriceIntegerDigits:
		return errPriceTooLarge
	case len(fracPart) > maxPriceScale:
		return errPriceTooPrecise
	}
	digits := strings.TrimLeft(intPart+fracPart, "0")
	if len(digits) > maxPriceSignificant {
		return errPriceTooManySig
	}
	return nil
}

func (n *Normalizer) canonicalBrand(raw *string) string {
	if raw == nil {
		return ""
	}
	brand := strings.Join(strings.Fields(norm.NFKC.String(*raw)), " ")
	if brand == "" {
		return ""
	}
	lower := strings.ToLower(brand)
	if v, ok := n.brandAliases[lower]; ok {
		return v
	}
	tokens := strings.Fields(lower)
	for _, key := range n.aliasKeys {
		for _, tok := range tokens {
			if tok == key {
				return n.brandAliases[key]
			}
		}
	}
	if brand == lower {
		return cases.Title(language.Und).String(brand)
	}
	return brand
}
