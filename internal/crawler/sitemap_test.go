package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"specscrape/internal/model"

	"github.com/stretchr/testify/require"
)

type staticFetcher struct {
	pages map[string]string
	hits  []string
}

func (f *staticFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.hits = append(f.hits, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, &FetchFailure{URL: url, Reason: "Not Found", Status: 404, Attempts: 1}
	}
	return []byte(body), nil
}

const urlsetXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
	<url><loc>https://www.smartprix.com/mobiles/a-ppd1</loc><lastmod>2024-01-01</lastmod></url>
	<url><loc> https://www.smartprix.com/mobiles/b-ppd2 </loc></url>
	<url><lastmod>2024-01-03</lastmod></url>
	<url><loc>https://www.smartprix.com/mobiles/a-ppd1</loc><lastmod>2024-02-02</lastmod></url>
</urlset>`

func TestParseSitemapURLSet(t *testing.T) {
	entries, children, err := ParseSitemap([]byte(urlsetXML))
	require.NoError(t, err)
	require.Empty(t, children)
	require.Equal(t, []model.SitemapEntry{
		{URL: "https://www.smartprix.com/mobiles/a-ppd1", LastModified: "2024-01-01"},
		{URL: "https://www.smartprix.com/mobiles/b-ppd2"},
		{URL: "https://www.smartprix.com/mobiles/a-ppd1", LastModified: "2024-02-02"},
	}, entries)
}

func TestParseSitemapNotASitemap(t *testing.T) {
	_, _, err := ParseSitemap([]byte(`<html><body>Just a moment...</body></html>`))
	require.Error(t, err)

	_, _, err = ParseSitemap([]byte(`not xml at all <`))
	require.Error(t, err)
}

func TestSitemapListerDedups(t *testing.T) {
	f := &staticFetcher{pages: map[string]string{
		"https://example.com/sitemaps/mobiles.xml": urlsetXML,
	}}
	l := &SitemapLister{Fetcher: f, URLTemplate: "https://example.com/sitemaps/%s.xml"}

	entries, err := l.List(context.Background(), "mobiles")
	require.NoError(t, err)
	require.Equal(t, []model.SitemapEntry{
		{URL: "https://www.smartprix.com/mobiles/a-ppd1", LastModified: "2024-01-01"},
		{URL: "https://www.smartprix.com/mobiles/b-ppd2"},
	}, entries)
}

func TestSitemapListerFollowsIndex(t *testing.T) {
	index := `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
	<sitemap><loc>https://example.com/sitemaps/mobiles-1.xml</loc></sitemap>
	<sitemap><loc>https://example.com/sitemaps/mobiles-2.xml</loc></sitemap>
</sitemapindex>`
	page := func(slugs ...string) string {
		s := `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
		for _, slug := range slugs {
			s += fmt.Sprintf("<url><loc>https://example.com/mobiles/%s</loc></url>", slug)
		}
		return s + `</urlset>`
	}

	f := &staticFetcher{pages: map[string]string{
		"https://example.com/sitemaps/mobiles.xml":   index,
		"https://example.com/sitemaps/mobiles-1.xml": page("a", "b"),
		"https://example.com/sitemaps/mobiles-2.xml": page("b", "c"),
	}}
	l := &SitemapLister{Fetcher: f, URLTemplate: "https://example.com/sitemaps/%s.xml"}

	entries, err := l.List(context.Background(), "mobiles")
	require.NoError(t, err)

	var urls []string
	for _, e := range entries {
		urls = append(urls, e.URL)
	}
	require.Equal(t, []string{
		"https://example.com/mobiles/a",
		"https://example.com/mobiles/b",
		"https://example.com/mobiles/c",
	}, urls)
	require.Equal(t, []string{
		"https://example.com/sitemaps/mobiles.xml",
		"https://example.com/sitemaps/mobiles-1.xml",
		"https://example.com/sitemaps/mobiles-2.xml",
	}, f.hits)
}

func TestSitemapListerFetchError(t *testing.T) {
	l := &SitemapLister{Fetcher: &staticFetcher{}, URLTemplate: "https://example.com/sitemaps/%s.xml"}

	_, err := l.List(context.Background(), "mobiles")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrFetch))
}
