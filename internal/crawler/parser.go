package crawler

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"specscrape/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// Selectors locate product fields on a product page. Empty selectors are
// skipped. Elements that are <meta> tags are read from their content attribute.
type Selectors struct {
	Name            string `json:"name"`
	Brand           string `json:"brand"`
	Price           string `json:"price"`
	PriceDrop       string `json:"price_drop"`
	PriceDropAmount string `json:"price_drop_amount"`
	// SpecGroup matches one category block; SpecGroupTitle is looked up
	// among its direct children, SpecRow/SpecKey/SpecValue inside it.
	SpecGroup      string `json:"spec_group"`
	SpecGroupTitle string `json:"spec_group_title"`
	SpecRow        string `json:"spec_row"`
	SpecKey        string `json:"spec_key"`
	SpecValue      string `json:"spec_value"`
	Related        string `json:"related"`
	RelatedName    string `json:"related_name"`
	RelatedPrice   string `json:"related_price"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		Name:            "h1",
		Brand:           `[itemprop="brand"]`,
		Price:           `[itemprop="price"]`,
		PriceDrop:       ".sm-price-drop .label",
		PriceDropAmount: ".sm-price-drop .amount",
		SpecGroup:       ".sm-fullspecs-grp",
		SpecGroupTitle:  ".title",
		SpecRow:         "li",
		SpecKey:         ".title",
		SpecValue:       ".data",
		Related:         ".sm-related .sm-product",
		RelatedName:     ".name",
		RelatedPrice:    ".price",
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return innerWhitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}

func selText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	s = s.First()
	if goquery.NodeName(s) == "meta" {
		v, _ := s.Attr("content")
		return cleanText(v)
	}
	return cleanText(s.Text())
}

// textPrice wraps a price read from the page as a JSON string.
func textPrice(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	b, _ := json.Marshal(s)
	return b
}

func find(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return selText(s.Find(selector))
}

// ParseProductHTML walks a product page and builds the record.
func ParseProductHTML(body []byte, target Target, sel Selectors) (model.ProductRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.ProductRecord{}, &ParseFailure{URL: target.Endpoint, Reason: "unreadable html", Err: err}
	}
	root := doc.Selection

	name := find(root, sel.Name)
	if name == "" {
		return model.ProductRecord{}, &ParseFailure{URL: target.Endpoint, Reason: "product name missing"}
	}

	specs := model.NewGroup()
	if sel.SpecGroup != "" {
		root.Find(sel.SpecGroup).Each(func(_ int, g *goquery.Selection) {
			title := selText(g.ChildrenFiltered(sel.SpecGroupTitle))
			if title == "" {
				return
			}
			node, ok := specs.Get(title)
			if !ok {
				node = model.NewGroup()
				specs.Set(title, node)
			}
			g.Find(sel.SpecRow).Each(func(_ int, row *goquery.Selection) {
				key := find(row, sel.SpecKey)
				if key == "" {
					return
				}
				node.Set(key, model.Leaf(find(row, sel.SpecValue)))
			})
		})
	}

	var drop *model.PriceDrop
	if flag, amount := find(root, sel.PriceDrop), find(root, sel.PriceDropAmount); flag != "" || amount != "" {
		drop = &model.PriceDrop{Flag: flag, Amount: amount}
	}

	related := []model.RelatedItem{}
	if sel.Related != "" {
		root.Find(sel.Related).Each(func(_ int, p *goquery.Selection) {
			n := find(p, sel.RelatedName)
			if n == "" {
				return
			}
			related = append(related, model.RelatedItem{Name: n, Price: textPrice(find(p, sel.RelatedPrice))})
		})
	}

	return model.ProductRecord{
		URL:          target.Endpoint,
		Name:         name,
		Brand:        find(root, sel.Brand),
		Price:        find(root, sel.Price),
		PriceDrop:    drop,
		Specs:        specs,
		LastModified: target.LastModified,
		Related:      related,
	}, nil
}
