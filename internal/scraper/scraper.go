package scraper

import (
	"errors"

	"github.com/PuerkitoBio/goquery"
)

// ErrPriceNotFound reports a page that was fetched fine but yielded no
// plausible price with any strategy. That means the layout changed or
// the listing is gone, as opposed to the site being unreachable.
var ErrPriceNotFound = errors.New("scraper: no plausible price found on page")

// Extractor parses product pages of one store.
type Extractor interface {
	// CanHandle reports whether this extractor understands the URL.
	CanHandle(url string) bool
	// Name identifies the store in logs.
	Name() string
	// Price extracts the current asking price from a parsed page.
	Price(doc *goquery.Document) (float64, error)
	// Title extracts the product name, best effort. Empty when unknown.
	Title(doc *goquery.Document) string
}

// Registry holds all known extractors.
type Registry struct {
	extractors []Extractor
}

// NewRegistry returns a registry with the built-in extractors.
func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			NewAmazon(),
			NewMercadoLivre(),
		},
	}
}

// Register appends an extractor. Later registrations lose to earlier
// ones when both claim a URL.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Find returns the extractor for url, or nil when no store matches.
func (r *Registry) Find(url string) Extractor {
	for _, e := range r.extractors {
		if e.CanHandle(url) {
			return e
		}
	}
	return nil
}
