package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"specscrape/internal/model"

	"github.com/antchfx/xmlquery"
	log "github.com/sirupsen/logrus"
)

const maxSitemapDepth = 2

// SitemapLister turns a category sitemap into an ordered list of entries.
type SitemapLister struct {
	Fetcher Fetcher
	// URLTemplate receives the product type through a single %s verb.
	URLTemplate string
}

func (l *SitemapLister) SitemapURL(productType string) string {
	return fmt.Sprintf(l.URLTemplate, productType)
}

// List returns entries in document order. Sitemap indexes are followed and
// their children concatenated in the order they are listed.
func (l *SitemapLister) List(ctx context.Context, productType string) ([]model.SitemapEntry, error) {
	seen := map[string]struct{}{}
	var out []model.SitemapEntry
	if err := l.collect(ctx, l.SitemapURL(productType), 0, seen, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *SitemapLister) collect(ctx context.Context, url string, depth int, seen map[string]struct{}, out *[]model.SitemapEntry) error {
	body, err := l.Fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("sitemap %s: %w", url, err)
	}
	entries, children, err := ParseSitemap(body)
	if err != nil {
		return fmt.Errorf("sitemap %s: %w", url, err)
	}

	for _, e := range entries {
		if _, dup := seen[e.URL]; dup {
			continue
		}
		seen[e.URL] = struct{}{}
		*out = append(*out, e)
	}

	if len(children) > 0 && depth >= maxSitemapDepth {
		log.WithField("url", url).Warn("sitemap index nested too deep, ignoring children")
		return nil
	}
	for _, child := range children {
		if err := l.collect(ctx, child, depth+1, seen, out); err != nil {
			return err
		}
	}
	return nil
}

// ParseSitemap reads a <urlset> or <sitemapindex> document. For an index the
// child sitemap locations are returned instead of entries.
func ParseSitemap(body []byte) ([]model.SitemapEntry, []string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse xml: %w", err)
	}

	switch rootName(doc) {
	case "urlset":
		var entries []model.SitemapEntry
		for _, n := range xmlquery.Find(doc, "//*[local-name()='url']") {
			loc := childText(n, "loc")
			if loc == "" {
				continue
			}
			entries = append(entries, model.SitemapEntry{
				URL:          loc,
				LastModified: childText(n, "lastmod"),
			})
		}
		return entries, nil, nil
	case "sitemapindex":
		var children []string
		for _, n := range xmlquery.Find(doc, "//*[local-name()='sitemap']") {
			if loc := childText(n, "loc"); loc != "" {
				children = append(children, loc)
			}
		}
		return nil, children, nil
	default:
		return nil, nil, fmt.Errorf("not a sitemap document")
	}
}

func rootName(doc *xmlquery.Node) string {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n.Data
		}
	}
	return ""
}

func childText(n *xmlquery.Node, name string) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			return strings.TrimSpace(c.InnerText())
		}
	}
	return ""
}
