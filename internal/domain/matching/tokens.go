package matching

import (
	"strings"
	"unicode"
)

// Tokens splits a match key into the token set used for name similarity.
// Runs of Han characters carry no spaces, so they contribute character
// bigrams instead of one opaque token.
func Tokens(matchKey string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, field := range strings.Fields(matchKey) {
		for _, run := range splitHanRuns(field) {
			if !run.han || len([]rune(run.text)) <= 2 {
				set[run.text] = struct{}{}
				continue
			}
			runes := []rune(run.text)
			for i := 0; i+1 < len(runes); i++ {
				set[string(runes[i:i+2])] = struct{}{}
			}
		}
	}
	return set
}

// Jaccard is |a ∩ b| / |a ∪ b|; two empty sets are dissimilar.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

type textRun struct {
	text string
	han  bool
}

func splitHanRuns(s string) []textRun {
	runs := make([]textRun, 0, 2)
	var b strings.Builder
	current := false
	for i, r := range s {
		isHan := unicode.Is(unicode.Han, r)
		if i > 0 && isHan != current && b.Len() > 0 {
			runs = append(runs, textRun{text: b.String(), han: current})
			b.Reset()
		}
		current = isHan
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		runs = append(runs, textRun{text: b.String(), han: current})
	}
	return runs
}
