package parser

import (
	"regexp"

	"github.com/maltedev/listing-scraper/internal/models"
)

var itemIDPattern = regexp.MustCompile(`/itm/(\d+)`)

// ExtractItemID returns the digits following /itm/ in the URL, or
// models.UnknownItemID when there are none.
func ExtractItemID(url string) string {
	matches := itemIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return models.UnknownItemID
	}
	return matches[1]
}
