package parser

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/danidanone/scraping-dashboard/models"
)

// DefaultEnrichment is used when a detail page cannot be fetched or read.
func DefaultEnrichment() models.Enrichment {
	return models.Enrichment{
		Category:     models.NotAvailable,
		Description:  models.NoDescription,
		UPC:          "",
		Availability: models.NotAvailable,
	}
}

// ParseDetail reads the enrichment fields of a detail page. Every field
// falls back to its sentinel on its own; it never fails.
func ParseDetail(r io.Reader) models.Enrichment {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return DefaultEnrichment()
	}

	out := DefaultEnrichment()

	if crumbs := doc.Find("ul.breadcrumb").First().Find("li"); crumbs.Length() >= 3 {
		if category := NormalizeText(crumbs.Eq(2).Text()); category != "" {
			out.Category = category
		}
	}

	if desc := doc.Find("article.product_page").First().ChildrenFiltered("p").First(); desc.Length() > 0 {
		if text := strings.TrimSpace(desc.Text()); text != "" {
			out.Description = text
		}
	}

	doc.Find("table.table-striped").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		value := strings.TrimSpace(row.Find("td").First().Text())
		switch strings.TrimSpace(row.Find("th").First().Text()) {
		case "UPC":
			out.UPC = value
		case "Availability":
			if value != "" {
				out.Availability = value
			}
		}
	})

	return out
}
