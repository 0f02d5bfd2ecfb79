package headless

import (
	"context"
	"errors"

	"github.com/scrapekit/scrapper/internal/scrape"
)

// Disabled implements scrape.Fetcher but always fails. It is
// installed when headless browsing is turned off in configuration so
// promotion attempts surface a clear error instead of a nil call.
type Disabled struct{}

// NewDisabled returns the stand-in fetcher.
func NewDisabled() *Disabled {
	return &Disabled{}
}

// Fetch always reports that headless browsing is unavailable.
func (Disabled) Fetch(_ context.Context, _ scrape.FetchRequest) (scrape.FetchResponse, error) {
	return scrape.FetchResponse{}, errors.New("headless fetching disabled")
}
