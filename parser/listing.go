package parser

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the Magento storefront markup used by the target site.
const (
	productLinkSelector = "a.product-item-link"
	paginationSelector  = "div.pages"
	pageAnchorSelector  = "a.page"
)

// Link is a raw product anchor from a listing page: the href exactly as it
// appears in the markup plus the trimmed display title.
type Link struct {
	Href  string
	Title string
}

// ProductLinks returns every product detail link on a catalog listing page,
// in document order. An empty result is a valid outcome, not an error.
func ProductLinks(doc *goquery.Document) []Link {
	var links []Link
	doc.Find(productLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		links = append(links, Link{
			Href:  href,
			Title: strings.TrimSpace(s.Text()),
		})
	})
	return links
}

// TotalPages reads the total page count from the pagination block: the
// maximum of the numeric page anchors. A missing container, no anchors, or
// an unparseable anchor all degrade to a single page.
func TotalPages(doc *goquery.Document) int {
	anchors := doc.Find(paginationSelector).First().Find(pageAnchorSelector)
	if anchors.Length() == 0 {
		return 1
	}

	maxPage := 0
	parsed := true
	anchors.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		page, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err != nil {
			parsed = false
			return false
		}
		if page > maxPage {
			maxPage = page
		}
		return true
	})
	if !parsed || maxPage < 1 {
		return 1
	}
	return maxPage
}
