package scraper

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxPlausiblePrice rejects values that can only come from parsing the
// wrong element (a SKU, a view counter, a mangled concatenation).
const maxPlausiblePrice = 10_000_000

var nonPriceChars = regexp.MustCompile(`[^0-9.,]`)

// parsePrice demangles locale formatting and parses the result. Both
// "1.234,56" and "1,234.56" styles come out as 1234.56; a lone
// separator followed by three digits is a thousands separator.
func parsePrice(text string) (float64, bool) {
	s := nonPriceChars.ReplaceAllString(text, "")
	if s == "" {
		return 0, false
	}

	dot := strings.LastIndexByte(s, '.')
	comma := strings.LastIndexByte(s, ',')
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			comma = strings.LastIndexByte(s, ',')
			s = strings.ReplaceAll(s[:comma], ",", "") + "." + s[comma+1:]
		} else {
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if len(s)-comma-1 <= 2 {
			s = strings.ReplaceAll(s[:comma], ",", "") + "." + s[comma+1:]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case dot >= 0:
		if len(s)-dot-1 > 2 || strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, plausible(v)
}

func plausible(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 && v < maxPlausiblePrice
}

// firstPrice walks the selectors in order and returns the first element
// whose text parses to a plausible price.
func firstPrice(doc *goquery.Document, selectors []string) (float64, bool) {
	for _, selector := range selectors {
		var price float64
		var found bool
		doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if v, ok := parsePrice(strings.TrimSpace(s.Text())); ok {
				price, found = v, true
				return false
			}
			return true
		})
		if found {
			return price, true
		}
	}
	return 0, false
}

// metaPrice reads the standard price meta tags.
func metaPrice(doc *goquery.Document) (float64, bool) {
	metaSelectors := []string{
		"meta[property='product:price:amount']",
		"meta[itemprop='price']",
	}
	for _, selector := range metaSelectors {
		if content, exists := doc.Find(selector).First().Attr("content"); exists {
			if v, ok := parsePrice(content); ok {
				return v, true
			}
		}
	}
	return 0, false
}

var (
	jsonLDOffersPriceRe = regexp.MustCompile(`"offers"[^}]*"price"\s*:\s*"?([0-9.,]+)"?`)
	jsonLDPriceRe       = regexp.MustCompile(`"price"\s*:\s*"?([0-9.,]+)"?`)
	jsonLDNameRe        = regexp.MustCompile(`"name"\s*:\s*"([^"]+)"`)
)

// jsonLDPrice digs the price out of embedded JSON-LD, preferring the
// "offers" block which carries the current (promotional) price.
func jsonLDPrice(doc *goquery.Document) (float64, bool) {
	var price float64
	var found bool
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(i int, s *goquery.Selection) bool {
		jsonText := s.Text()
		if m := jsonLDOffersPriceRe.FindStringSubmatch(jsonText); len(m) > 1 {
			if v, ok := parsePrice(m[1]); ok {
				price, found = v, true
				return false
			}
		}
		if m := jsonLDPriceRe.FindStringSubmatch(jsonText); len(m) > 1 {
			if v, ok := parsePrice(m[1]); ok {
				price, found = v, true
				return false
			}
		}
		return true
	})
	return price, found
}

// jsonLDName extracts the product name from embedded JSON-LD.
func jsonLDName(doc *goquery.Document) string {
	var name string
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if m := jsonLDNameRe.FindStringSubmatch(s.Text()); len(m) > 1 {
			name = m[1]
			return false
		}
		return true
	})
	return name
}

// firstText returns the trimmed text of the first non-empty match.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
