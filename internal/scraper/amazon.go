package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Amazon extracts prices from Amazon product pages. Amazon renders the
// price in a handful of layouts depending on the deal type, so the
// selectors cascade from the most specific "price to pay" block down to
// the legacy priceblock ids.
type Amazon struct{}

func NewAmazon() *Amazon {
	return &Amazon{}
}

func (a *Amazon) Name() string {
	return "amazon"
}

func (a *Amazon) CanHandle(url string) bool {
	if !strings.Contains(url, "amazon.") {
		return false
	}
	return strings.Contains(url, "/dp/") || strings.Contains(url, "/gp/product/")
}

var amazonPriceSelectors = []string{
	".a-price.priceToPay .a-price-whole",
	".a-price.reinventPricePriceToPayMargin .a-price-whole",
	".a-price.apexPriceToPay .a-offscreen",
	".a-price .a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	"#priceblock_saleprice",
	".a-price-whole",
}

func (a *Amazon) Price(doc *goquery.Document) (float64, error) {
	// The whole/fraction split layout needs reassembly before the
	// generic cascade, otherwise ".a-price-whole" alone drops the cents.
	if price, ok := amazonSplitPrice(doc); ok {
		return price, nil
	}
	if price, ok := firstPrice(doc, amazonPriceSelectors); ok {
		return price, nil
	}
	if price, ok := metaPrice(doc); ok {
		return price, nil
	}
	if price, ok := jsonLDPrice(doc); ok {
		return price, nil
	}
	return 0, ErrPriceNotFound
}

// amazonSplitPrice handles the layout where the integer part and the
// cents live in sibling spans inside the price-to-pay container.
func amazonSplitPrice(doc *goquery.Document) (float64, bool) {
	container := doc.Find(".a-price.priceToPay").First()
	if container.Length() == 0 {
		container = doc.Find(".a-price.reinventPricePriceToPayMargin").First()
	}
	if container.Length() == 0 {
		return 0, false
	}
	whole := strings.TrimSpace(container.Find(".a-price-whole").First().Text())
	fraction := strings.TrimSpace(container.Find(".a-price-fraction").First().Text())
	if whole == "" || fraction == "" {
		return 0, false
	}
	whole = strings.TrimRight(whole, ".,")
	return parsePrice(whole + "." + fraction)
}

var amazonTitleSelectors = []string{
	"#productTitle",
	"#title",
	"h1.a-size-large",
	"h1",
}

func (a *Amazon) Title(doc *goquery.Document) string {
	if title := firstText(doc, amazonTitleSelectors); title != "" {
		return title
	}
	return jsonLDName(doc)
}
