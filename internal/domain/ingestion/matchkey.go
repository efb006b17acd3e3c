package ingestion

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	bracketed      = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|【[^】]*】|〔[^〕]*〕|「[^」]*」`)
	storageSize    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(gb|tb|mb)\b`)
	modelYearToken = regexp.MustCompile(`^(19|20)\d{2}(年|年式|年款)?$`)
)

// noiseTokens never help tell two products apart
var noiseTokens = map[string]struct{}{
	"model": {}, "new": {}, "sale": {}, "hot": {}, "official": {},
	"年式": {}, "年款": {}, "新款": {}, "限時": {}, "特價": {}, "優惠": {},
	"免運": {}, "現貨": {}, "熱銷": {}, "公司貨": {}, "台灣公司貨": {},
}

// MatchKey reduces a product name to the token string the matcher compares.
// Bracketed qualifiers, brand tokens, model years and promotional words are
// removed; storage sizes are glued to their unit ("128 GB" becomes "128gb").
func MatchKey(name, brand string) string {
	fold := cases.Fold()
	s := fold.String(norm.NFKC.String(name))
	s = bracketed.ReplaceAllString(s, " ")
	s = storageSize.ReplaceAllString(s, "$1$2")
	s = stripPunctuation(s)

	brandTokens := make(map[string]struct{})
	if brand != "" {
		for _, tok := range strings.Fields(stripPunctuation(fold.String(brand))) {
			brandTokens[tok] = struct{}{}
		}
	}

	out := make([]string, 0, 8)
	for _, tok := range strings.Fields(s) {
		if _, ok := brandTokens[tok]; ok {
			continue
		}
		if _, ok := noiseTokens[tok]; ok {
			continue
		}
		if modelYearToken.MatchString(tok) {
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// stripPunctuation replaces punctuation and symbols with spaces, keeping a
// decimal point between digits and a trailing plus ("pro+").
func stripPunctuation(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		switch {
		case r == '.' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			b.WriteRune(r)
		case r == '+':
			b.WriteRune(r)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
