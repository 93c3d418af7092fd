package parser

import (
	"github.com/maltedev/listing-scraper/internal/models"
)

type Parser interface {
	ParseListingPage(html string) (Fields, error)
}

// Fields holds the page-derived part of a listing.
type Fields struct {
	Price     string
	Shipping  string
	Inventory string
}

// Apply copies the page fields onto a listing.
func (f Fields) Apply(l models.Listing) models.Listing {
	l.Price = f.Price
	l.Shipping = f.Shipping
	l.Inventory = f.Inventory
	return l
}
