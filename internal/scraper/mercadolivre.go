package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MercadoLivre extracts prices from Mercado Livre product pages.
type MercadoLivre struct{}

func NewMercadoLivre() *MercadoLivre {
	return &MercadoLivre{}
}

func (m *MercadoLivre) Name() string {
	return "mercadolivre"
}

func (m *MercadoLivre) CanHandle(url string) bool {
	return strings.Contains(url, "mercadolivre.com.br") ||
		strings.Contains(url, "mercadolibre.com")
}

// The promotional price lives in the second price line when the listing
// has a discount; checked first so a struck-through original price never
// wins.
var mercadoLivrePromoSelectors = []string{
	".ui-pdp-price__second-line .andes-money-amount__fraction",
	".ui-pdp-price--size-large .andes-money-amount__fraction",
	".andes-money-amount--cents-superscript + .andes-money-amount__fraction",
}

var mercadoLivrePriceSelectors = []string{
	"[data-testid='price'] .andes-money-amount__fraction",
	".ui-pdp-price__first-line .andes-money-amount__fraction",
	".andes-money-amount__fraction",
	".price-tag-fraction",
	"[data-testid='price']",
}

func (m *MercadoLivre) Price(doc *goquery.Document) (float64, error) {
	if price, ok := firstPrice(doc, mercadoLivrePromoSelectors); ok {
		return price, nil
	}

	// Without a promo block the page may still render several price
	// candidates (installments, crossed-out original). The lowest one
	// is the current asking price.
	var prices []float64
	for _, selector := range mercadoLivrePriceSelectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			if v, ok := parsePrice(strings.TrimSpace(s.Text())); ok {
				prices = append(prices, v)
			}
		})
		if len(prices) > 0 {
			break
		}
	}
	if len(prices) > 0 {
		min := prices[0]
		for _, v := range prices[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	}

	if content, exists := doc.Find("[data-testid='price']").First().Attr("content"); exists {
		if v, ok := parsePrice(content); ok {
			return v, nil
		}
	}
	if price, ok := metaPrice(doc); ok {
		return price, nil
	}
	if price, ok := jsonLDPrice(doc); ok {
		return price, nil
	}
	return 0, ErrPriceNotFound
}

var mercadoLivreTitleSelectors = []string{
	"h1.ui-pdp-title",
	"h1[data-testid='title']",
	".ui-pdp-title",
	"h1",
}

func (m *MercadoLivre) Title(doc *goquery.Document) string {
	if title := firstText(doc, mercadoLivreTitleSelectors); title != "" {
		return title
	}
	return jsonLDName(doc)
}
