package scraper

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const DefaultItemCap = 5

// RawItem is one listing entry as found in the markup, before validation.
type RawItem struct {
	Title     string
	Href      string
	PriceText string
}

// Selectors locate listing entries and their fields. Link and Price are
// evaluated relative to each Item match.
type Selectors struct {
	Item  string
	Link  string
	Price string
}

// BookstoreSelectors match the product_pod markup used by books.toscrape.com.
var BookstoreSelectors = Selectors{
	Item:  "article.product_pod",
	Link:  "h3 a",
	Price: "p.price_color",
}

type Parser struct {
	sel     Selectors
	itemCap int
}

func NewParser(sel Selectors, itemCap int) *Parser {
	if sel.Item == "" {
		sel = BookstoreSelectors
	}
	if itemCap <= 0 {
		itemCap = DefaultItemCap
	}
	return &Parser{sel: sel, itemCap: itemCap}
}

// ParseListing returns up to the item cap entries in document order. A page
// without any entry yields an empty slice and no error.
func (p *Parser) ParseListing(doc []byte) ([]RawItem, error) {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	items := make([]RawItem, 0, p.itemCap)
	d.Find(p.sel.Item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find(p.sel.Link).First()
		title := strings.TrimSpace(link.AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		items = append(items, RawItem{
			Title:     title,
			Href:      strings.TrimSpace(link.AttrOr("href", "")),
			PriceText: strings.TrimSpace(s.Find(p.sel.Price).First().Text()),
		})
		return len(items) < p.itemCap
	})
	return items, nil
}
