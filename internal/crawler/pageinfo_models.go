package crawler

import (
	"bytes"
	"encoding/json"
	"strings"

	"specscrape/internal/model"
)

type PageInfoResponse struct {
	Item PageInfoItem `json:"item"`
}

type PageInfoItem struct {
	Name            string              `json:"name"`
	Brand           json.RawMessage     `json:"brand"`
	Price           json.RawMessage     `json:"price"`
	PriceDrop       json.RawMessage     `json:"priceDrop"`
	PriceDropAmount json.RawMessage     `json:"priceDropAmount"`
	FullSpecs       []PageInfoSpecGroup `json:"fullSpecs"`
	RelatedItems    struct {
		Products []PageInfoRelated `json:"products"`
	} `json:"relatedItems"`
}

type PageInfoSpecGroup struct {
	Title string             `json:"title"`
	Items []PageInfoSpecItem `json:"items"`
}

type PageInfoSpecItem struct {
	Title       string          `json:"title"`
	Description json.RawMessage `json:"description"`
}

type PageInfoRelated struct {
	Name  string          `json:"name"`
	Price json.RawMessage `json:"price"`
}

// ParsePageInfo decodes a page-info API response into a product record.
func ParsePageInfo(body []byte, target Target) (model.ProductRecord, error) {
	var res PageInfoResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return model.ProductRecord{}, &ParseFailure{URL: target.Endpoint, Reason: "invalid page-info json", Err: err}
	}
	item := res.Item
	name := strings.TrimSpace(item.Name)
	if name == "" {
		return model.ProductRecord{}, &ParseFailure{URL: target.Endpoint, Reason: "product name missing"}
	}

	specs := model.NewGroup()
	for _, group := range item.FullSpecs {
		if group.Title == "" {
			continue
		}
		node, ok := specs.Get(group.Title)
		if !ok {
			node = model.NewGroup()
			specs.Set(group.Title, node)
		}
		for _, spec := range group.Items {
			if spec.Title == "" {
				continue
			}
			node.Set(spec.Title, model.Leaf(scalar(spec.Description)))
		}
	}

	var drop *model.PriceDrop
	if flag, amount := scalar(item.PriceDrop), scalar(item.PriceDropAmount); flag != "" || amount != "" {
		drop = &model.PriceDrop{Flag: flag, Amount: amount}
	}

	related := make([]model.RelatedItem, 0, len(item.RelatedItems.Products))
	for _, p := range item.RelatedItems.Products {
		related = append(related, model.RelatedItem{Name: p.Name, Price: p.Price})
	}

	return model.ProductRecord{
		URL:          target.Endpoint,
		Name:         name,
		Brand:        brandName(item.Brand),
		Price:        scalar(item.Price),
		PriceDrop:    drop,
		Specs:        specs,
		LastModified: target.LastModified,
		Related:      related,
	}, nil
}

// brand is usually {"name": "..."} but older payloads carry a bare string.
func brandName(raw json.RawMessage) string {
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	return scalar(raw)
}

// scalar renders a JSON scalar as a CSV cell. Numbers keep their literal text.
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
