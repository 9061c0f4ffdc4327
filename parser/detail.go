package parser

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// ImageStrategy describes one way of locating product images on a detail
// page: a selector for the image elements and the attributes to read from
// each match, in priority order.
type ImageStrategy struct {
	Name     string
	Selector string
	Attrs    []string
}

// DefaultImageStrategies matches the product gallery markup. The combined
// selector catches both the placeholder rendered before the gallery script
// runs and the fotorama viewer images in a single pass.
var DefaultImageStrategies = []ImageStrategy{
	{
		Name:     "gallery",
		Selector: "img.gallery-placeholder__image, img.fotorama__img",
		Attrs:    []string{"src", "data-src", "data-lazy-src"},
	},
}

// ImageURLs extracts candidate image URLs from a product detail page.
// Strategies are tried in order and the first one yielding at least one
// candidate wins. Within a matched element the attributes are tried in
// priority order; an element carrying none of them is skipped.
func ImageURLs(doc *goquery.Document, strategies []ImageStrategy) []string {
	for _, strategy := range strategies {
		var urls []string
		doc.Find(strategy.Selector).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range strategy.Attrs {
				if value, ok := s.Attr(attr); ok && value != "" {
					urls = append(urls, value)
					return
				}
			}
		})
		if len(urls) > 0 {
			return urls
		}
	}
	return nil
}

// Document parses raw HTML bytes into a goquery document.
func Document(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}
