package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/listing-scraper/internal/models"
	"golang.org/x/net/html"
)

// Resolver is one extraction strategy for a single field. It reports false
// when the page does not carry what the strategy looks for.
type Resolver func(doc *goquery.Document) (string, bool)

var pricePattern = regexp.MustCompile(`\$\d[\d,]*(\.\d{2})?`)

// ListingParser resolves price, shipping and inventory from an item page.
// Each field has its own ordered chain; the first non-empty value wins and
// an exhausted chain yields models.NotAvailable.
type ListingParser struct {
	price     []Resolver
	shipping  []Resolver
	inventory []Resolver
}

func NewListingParser() *ListingParser {
	return &ListingParser{
		price: []Resolver{
			PriceFromMarker,
			PriceFromText,
		},
		shipping: []Resolver{
			ShippingAfterLabel,
		},
		inventory: []Resolver{
			InventoryFromQuantity,
			InventoryFromAvailability,
		},
	}
}

func (p *ListingParser) ParseListingPage(html string) (Fields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Fields{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return p.ExtractFields(doc), nil
}

// ExtractFields runs the three chains against an already parsed document.
func (p *ListingParser) ExtractFields(doc *goquery.Document) Fields {
	return Fields{
		Price:     resolve(doc, p.price),
		Shipping:  resolve(doc, p.shipping),
		Inventory: resolve(doc, p.inventory),
	}
}

func resolve(doc *goquery.Document, chain []Resolver) string {
	for _, r := range chain {
		if value, ok := r(doc); ok && value != "" {
			return value
		}
	}
	return models.NotAvailable
}

// PriceFromMarker reads the content attribute of the first itemprop="price"
// element.
func PriceFromMarker(doc *goquery.Document) (string, bool) {
	marker := doc.Find(`[itemprop="price"]`).First()
	if marker.Length() == 0 {
		return "", false
	}
	return marker.Attr("content")
}

// PriceFromText returns the first dollar amount found in the page text, in
// document order.
func PriceFromText(doc *goquery.Document) (string, bool) {
	var price string
	for _, n := range doc.Nodes {
		completed := walkText(n, func(text string) bool {
			if m := pricePattern.FindString(text); m != "" {
				price = m
				return false
			}
			return true
		})
		if !completed {
			break
		}
	}
	return price, price != ""
}

// ShippingAfterLabel finds the first span labelled "shipping" and returns the
// text of the span that follows it in document order.
func ShippingAfterLabel(doc *goquery.Document) (string, bool) {
	label := spanWithText(doc, "shipping")
	if label.Length() == 0 {
		return "", false
	}

	next := nextElement(label.Nodes[0], "span")
	if next == nil {
		return "", false
	}
	return strings.TrimSpace(doc.FindNodes(next).Text()), true
}

// InventoryFromQuantity reads the span.qtyTxt stock counter.
func InventoryFromQuantity(doc *goquery.Document) (string, bool) {
	qty := doc.Find("span.qtyTxt").First()
	if qty.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(qty.Text()), true
}

// InventoryFromAvailability falls back to any span mentioning "available".
func InventoryFromAvailability(doc *goquery.Document) (string, bool) {
	span := spanWithText(doc, "available")
	if span.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(span.Text()), true
}

// spanWithText returns the first span whose sole string content contains
// needle, ignoring case. Spans whose text is split over several child nodes
// never match.
func spanWithText(doc *goquery.Document, needle string) *goquery.Selection {
	needle = strings.ToLower(needle)
	return doc.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
		text, ok := soleString(s.Nodes[0])
		return ok && strings.Contains(strings.ToLower(text), needle)
	}).First()
}

// soleString returns the text of n when n has exactly one child that is
// either a text node or an element that itself has a sole string.
func soleString(n *html.Node) (string, bool) {
	c := n.FirstChild
	if c == nil || c.NextSibling != nil {
		return "", false
	}
	switch c.Type {
	case html.TextNode:
		return c.Data, true
	case html.ElementNode:
		return soleString(c)
	}
	return "", false
}

// nextElement returns the first element named tag after n in document order,
// starting with n's own descendants.
func nextElement(n *html.Node, tag string) *html.Node {
	if found := firstDescendant(n, tag); found != nil {
		return found
	}
	for cur := n; cur != nil; cur = cur.Parent {
		for sib := cur.NextSibling; sib != nil; sib = sib.NextSibling {
			if isElement(sib, tag) {
				return sib
			}
			if found := firstDescendant(sib, tag); found != nil {
				return found
			}
		}
	}
	return nil
}

func firstDescendant(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c, tag) {
			return c
		}
		if found := firstDescendant(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

var invisibleTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// walkText calls fn for every visible text node under n until fn returns
// false. It reports whether the walk ran to completion.
func walkText(n *html.Node, fn func(string) bool) bool {
	switch n.Type {
	case html.TextNode:
		return fn(n.Data)
	case html.ElementNode:
		if invisibleTags[n.Data] {
			return true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walkText(c, fn) {
			return false
		}
	}
	return true
}
