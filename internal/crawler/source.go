package crawler

import (
	"time"

	"specscrape/internal/model"
)

// Target is a sitemap entry that passed the endpoint filter.
type Target struct {
	model.SitemapEntry
	Endpoint string
}

// ProductSource decides which URL holds a product's data and how to read it.
type ProductSource interface {
	ProductURL(t Target) (string, error)
	Parse(body []byte, t Target) (model.ProductRecord, error)
}

// APISource reads products through the page-info JSON API.
type APISource struct {
	Base string
	Now  func() time.Time
}

func (s APISource) ProductURL(t Target) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	base := s.Base
	if base == "" {
		base = DefaultPageInfoBase
	}
	return PageInfoURL(base, t.Endpoint, now())
}

func (s APISource) Parse(body []byte, t Target) (model.ProductRecord, error) {
	return ParsePageInfo(body, t)
}

// HTMLSource reads products from the rendered product page.
type HTMLSource struct {
	Selectors Selectors
}

func (s HTMLSource) ProductURL(t Target) (string, error) {
	return t.URL, nil
}

func (s HTMLSource) Parse(body []byte, t Target) (model.ProductRecord, error) {
	return ParseProductHTML(body, t, s.Selectors)
}
