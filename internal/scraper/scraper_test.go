package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestRegistryFind(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		url  string
		want string
	}{
		{"https://www.amazon.com/dp/B0EXAMPLE", "amazon"},
		{"https://www.amazon.com.br/gp/product/B0EXAMPLE", "amazon"},
		{"https://produto.mercadolivre.com.br/MLB-12345", "mercadolivre"},
		{"https://articulo.mercadolibre.com.ar/MLA-12345", "mercadolivre"},
	}
	for _, tt := range tests {
		ext := registry.Find(tt.url)
		require.NotNil(t, ext, tt.url)
		require.Equal(t, tt.want, ext.Name())
	}

	require.Nil(t, registry.Find("https://example.com/product/1"))
	require.Nil(t, registry.Find("https://www.amazon.com/s?k=search+results"))
}

func TestAmazonPrice(t *testing.T) {
	amazon := NewAmazon()

	t.Run("offscreen price", func(t *testing.T) {
		doc := docFromHTML(t, `
			<html><body>
			<span id="productTitle"> Wireless Headphones </span>
			<span class="a-price"><span class="a-offscreen">$1,399.00</span></span>
			</body></html>`)
		price, err := amazon.Price(doc)
		require.NoError(t, err)
		require.InDelta(t, 1399.00, price, 0.001)
		require.Equal(t, "Wireless Headphones", amazon.Title(doc))
	})

	t.Run("whole and fraction spans", func(t *testing.T) {
		doc := docFromHTML(t, `
			<html><body>
			<span class="a-price priceToPay">
				<span class="a-price-whole">899</span>
				<span class="a-price-fraction">99</span>
			</span>
			</body></html>`)
		price, err := amazon.Price(doc)
		require.NoError(t, err)
		require.InDelta(t, 899.99, price, 0.001)
	})

	t.Run("legacy priceblock", func(t *testing.T) {
		doc := docFromHTML(t, `
			<html><body><span id="priceblock_ourprice">$249.50</span></body></html>`)
		price, err := amazon.Price(doc)
		require.NoError(t, err)
		require.InDelta(t, 249.50, price, 0.001)
	})

	t.Run("json-ld fallback", func(t *testing.T) {
		doc := docFromHTML(t, `
			<html><head>
			<script type="application/ld+json">
			{"@type":"Product","name":"Mechanical Keyboard","offers":{"price":"179.90","priceCurrency":"USD"}}
			</script>
			</head><body></body></html>`)
		price, err := amazon.Price(doc)
		require.NoError(t, err)
		require.InDelta(t, 179.90, price, 0.001)
		require.Equal(t, "Mechanical Keyboard", amazon.Title(doc))
	})

	t.Run("no price anywhere", func(t *testing.T) {
		doc := docFromHTML(t, `<html><body><p>Currently unavailable.</p></body></html>`)
		_, err := amazon.Price(doc)
		require.ErrorIs(t, err, ErrPriceNotFound)
	})
}

func TestMercadoLivrePrice(t *testing.T) {
	ml := NewMercadoLivre()

	t.Run("promotional price wins over original", func(t *testing.T) {
		doc := docFromHTML(t, `
			<html><body>
			<h1 class="ui-pdp-title">Notebook Gamer</h1>
			<div class="ui-pdp-price__first-line">
				<span class="andes-money-amount--previous-price">
					<span class="andes-money-amount__fraction">4.599</span>
				</span>
			</div>
			<div class="ui-pdp-price__second-line">
				<span class="andes-money-amount__fraction">3.899</span>
			</div>
			</body></html>`)
		price, err := ml.Price(doc)
		require.NoError(t, err)
		require.InDelta(t, 3899, price, 0.001)
		require.Equal(t, "Notebook Gamer", ml.Title(doc))
	})

	t.Run("lowest candidate wins without promo block", func(t *testing.T) {
		doc := docFromHTML(t, `
			<html><body>
			<span class="andes-money-amount__fraction">4.599</span>
			<span class="andes-money-amount__fraction">3.899</span>
			</body></html>`)
		price, err := ml.Price(doc)
		require.NoError(t, err)
		require.InDelta(t, 3899, price, 0.001)
	})

	t.Run("meta tag fallback", func(t *testing.T) {
		doc := docFromHTML(t, `
			<html><head>
			<meta property="product:price:amount" content="1299.90">
			</head><body></body></html>`)
		price, err := ml.Price(doc)
		require.NoError(t, err)
		require.InDelta(t, 1299.90, price, 0.001)
	})

	t.Run("no price anywhere", func(t *testing.T) {
		doc := docFromHTML(t, `<html><body><p>Anúncio pausado.</p></body></html>`)
		_, err := ml.Price(doc)
		require.ErrorIs(t, err, ErrPriceNotFound)
	})
}
