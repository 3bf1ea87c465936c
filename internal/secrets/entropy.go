package secrets

import (
	"math"
	"strings"
)

const (
	base64Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/-_="
	hexCharset    = "0123456789abcdefABCDEF"

	base64Limit = 4.5
	hexLimit    = 3.0

	// minEntropyLength is the shortest token scored for entropy.
	minEntropyLength = 20
)

// highEntropy fires when any run of charset characters in value is long
// enough and exceeds limit bits of Shannon entropy per character.
func highEntropy(charset string, limit float64) func(string, string) bool {
	return func(_, value string) bool {
		for _, token := range tokens(value, charset) {
			if len(token) < minEntropyLength {
				continue
			}
			e := shannonEntropy(token, charset)
			// All-digit strings look like hex but are mostly ids.
			if charset == hexCharset && isDigits(token) {
				e -= 1.2 / math.Log2(float64(len(token)))
			}
			if e > limit {
				return true
			}
		}
		return false
	}
}

func tokens(value, charset string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return !strings.ContainsRune(charset, r)
	})
}

func shannonEntropy(data, charset string) float64 {
	if data == "" {
		return 0
	}

	counts := make(map[rune]int)
	for _, r := range data {
		counts[r]++
	}

	var e float64
	n := float64(len(data))
	for r, c := range counts {
		if !strings.ContainsRune(charset, r) {
			continue
		}
		p := float64(c) / n
		e -= p * math.Log2(p)
	}
	return e
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
