package model

import "encoding/json"

// SitemapEntry is one <url> element of a category sitemap.
type SitemapEntry struct {
	URL          string
	LastModified string
}

type PriceDrop struct {
	Flag   string
	Amount string
}

// RelatedItem keeps the price as raw JSON so numeric prices stay numbers in
// the Related Items column.
type RelatedItem struct {
	Name  string          `json:"Name"`
	Price json.RawMessage `json:"Price"`
}

// ProductRecord is a single scraped product. URL holds the endpoint path
// (e.g. /mobiles/apple-iphone-15-ppd1abc), which is also the progress key.
type ProductRecord struct {
	URL          string
	Name         string
	Brand        string
	Price        string
	PriceDrop    *PriceDrop
	Specs        *SpecNode
	LastModified string
	Related      []RelatedItem
}

// Fixed top-level CSV columns. Spec columns are "<Category>.<Attribute>".
const (
	ColURL             = "URL"
	ColName            = "Name"
	ColBrand           = "Brand"
	ColPrice           = "Price"
	ColPriceDrop       = "Price Drop"
	ColPriceDropAmount = "Price Drop Amount"
	ColLastModified    = "Last modified"
	ColRelated         = "Related Items"
)

// FlatRow maps a CSV column name to a cell value.
type FlatRow map[string]string

