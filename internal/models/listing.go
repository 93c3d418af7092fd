package models

import (
	"time"
)

const (
	// NotAvailable marks a field that could not be extracted.
	NotAvailable = "N/A"
	// UnknownItemID is used when the URL carries no /itm/<digits> segment.
	UnknownItemID = "Unknown"
)

const (
	ErrCodeFetchFailed = "FETCH_FAILED"
	ErrCodeParseFailed = "PARSE_FAILED"
)

// Listing is the extracted record for one item page URL.
type Listing struct {
	URL       string `json:"url"`
	ItemID    string `json:"item_id"`
	Price     string `json:"price"`
	Shipping  string `json:"shipping"`
	Inventory string `json:"inventory"`
}

// FailedListing returns the record used when fetching or parsing a page
// failed altogether.
func FailedListing(url string) Listing {
	return Listing{
		URL:       url,
		ItemID:    NotAvailable,
		Price:     NotAvailable,
		Shipping:  NotAvailable,
		Inventory: NotAvailable,
	}
}

// IsFailed reports whether every field carries the failure sentinel.
func (l Listing) IsFailed() bool {
	return l.ItemID == NotAvailable &&
		l.Price == NotAvailable &&
		l.Shipping == NotAvailable &&
		l.Inventory == NotAvailable
}

// Row returns the exported columns in table order.
func (l Listing) Row() []string {
	return []string{l.ItemID, l.Price, l.Shipping, l.Inventory}
}

// Columns is the header matching Row.
var Columns = []string{"item_id", "price", "shipping", "inventory"}

type Error struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	URL     string    `json:"url,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// ScrapeResult is the outcome of scraping a single URL. Err is set for the
// failure variant, in which case Listing is ignored.
type ScrapeResult struct {
	Listing Listing `json:"listing"`
	Err     *Error  `json:"error,omitempty"`
}

func (r ScrapeResult) Success() bool {
	return r.Err == nil
}

// Record returns the listing to append to the output table. Failures always
// map to the all-sentinel record.
func (r ScrapeResult) Record() Listing {
	if r.Err != nil {
		return FailedListing(r.Err.URL)
	}
	return r.Listing
}

func NewFailure(url, code string, err error) ScrapeResult {
	return ScrapeResult{
		Err: &Error{
			Code:    code,
			Message: err.Error(),
			Time:    time.Now(),
			URL:     url,
		},
	}
}
