package crawler

import (
	"bytes"
	"encoding/json"
	"strings"

	"specscrape/internal/model"
)

const pathSeparator = "."

// Flatten turns a record into a CSV row. Basic columns are set after the
// spec columns, so they win if a spec path happens to collide with one.
func Flatten(p model.ProductRecord) model.FlatRow {
	row := FlattenSpecs(p.Specs)

	row[model.ColURL] = p.URL
	row[model.ColName] = p.Name
	row[model.ColBrand] = p.Brand
	row[model.ColPrice] = p.Price
	row[model.ColPriceDrop] = ""
	row[model.ColPriceDropAmount] = ""
	if p.PriceDrop != nil {
		row[model.ColPriceDrop] = p.PriceDrop.Flag
		row[model.ColPriceDropAmount] = p.PriceDrop.Amount
	}
	row[model.ColLastModified] = p.LastModified
	row[model.ColRelated] = relatedJSON(p.Related)

	return row
}

// FlattenSpecs joins every leaf path with a dot. A later leaf with the same
// joined path overwrites an earlier one.
func FlattenSpecs(specs *model.SpecNode) model.FlatRow {
	row := model.FlatRow{}
	specs.Walk(func(path []string, value string) {
		row[strings.Join(path, pathSeparator)] = value
	})
	return row
}

// relatedJSON renders related items the way Python's json.dumps does with
// default separators and ensure_ascii off, so rows match CSVs written before.
func relatedJSON(items []model.RelatedItem) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(`{"Name": `)
		b.WriteString(jsonText(it.Name))
		b.WriteString(`, "Price": `)
		b.WriteString(rawJSON(it.Price))
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return b.String()
}

func jsonText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// rawJSON normalizes a raw value: missing becomes null, strings are
// re-encoded so escaped non-ASCII is written as is, anything else is kept.
func rawJSON(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "null"
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return jsonText(s)
		}
	}
	return string(raw)
}
