package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultSitemapURL   = "https://www.smartprix.com/sitemaps/in/%s.xml"
	DefaultPageInfoBase = "https://www.smartprix.com/ui/api/page-info?k="
)

const keyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"

// PageInfoPayload is the request descriptor the site packs into the k= query
// parameter. Field order matters: it is part of the encoded key.
type PageInfoPayload struct {
	URL  string         `json:"url"`
	Data map[string]any `json:"data"`
	T    int64          `json:"t"`
	ST   int64          `json:"st"`
}

// EndpointPattern recognizes product pages of one category.
type EndpointPattern struct {
	re *regexp.Regexp
}

func NewEndpointPattern(productType string) *EndpointPattern {
	return &EndpointPattern{re: regexp.MustCompile("/" + regexp.QuoteMeta(productType) + "/[^/]+$")}
}

// Match extracts "/{productType}/{slug}" from a product URL. ok is false
// for URLs that are not product pages of that category.
func (p *EndpointPattern) Match(url string) (string, bool) {
	m := p.re.FindString(url)
	return m, m != ""
}

// EncodeKey serializes v as compact JSON and maps every ASCII character into
// the site's 64-symbol alphabet. Characters whose code mod 95 is 64 or more
// take two symbols ("." prefix). Non-ASCII runes are copied through.
func EncodeKey(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	raw := strings.TrimSuffix(buf.String(), "\n")
	if raw == "{}" || raw == "null" {
		return "", nil
	}

	var out strings.Builder
	out.WriteByte('1')
	for _, r := range raw {
		if r > 127 {
			out.WriteRune(r)
			continue
		}
		code := int(r) % 95
		if code < 64 {
			out.WriteByte(keyAlphabet[code])
		} else {
			out.WriteByte('.')
			out.WriteByte(keyAlphabet[code&63])
		}
	}
	return out.String(), nil
}

// PageInfoURL builds the API URL the product page itself would call.
func PageInfoURL(base, endpoint string, now time.Time) (string, error) {
	t := now.UnixMilli()
	key, err := EncodeKey(PageInfoPayload{
		URL:  endpoint,
		Data: map[string]any{},
		T:    t,
		ST:   t - 5000,
	})
	if err != nil {
		return "", fmt.Errorf("encode page-info key: %w", err)
	}
	return base + key, nil
}
