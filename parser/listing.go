package parser

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/danidanone/scraping-dashboard/models"
)

var (
	// ErrMissingTitle marks a listing entry without a title.
	ErrMissingTitle = errors.New("missing title")
	// ErrMissingDetailLink marks a listing entry without a detail link.
	ErrMissingDetailLink = errors.New("missing detail link")
)

// SkippedEntry describes a listing entry that was dropped.
type SkippedEntry struct {
	Index int
	Title string
	Err   error
}

// EntryWarning describes a kept listing entry whose optional field could not
// be read.
type EntryWarning struct {
	Index int
	Title string
	Err   error
}

// ListingPage is the parsed content of one listing page.
type ListingPage struct {
	Summaries []models.Summary
	Skipped   []SkippedEntry
	Warnings  []EntryWarning
}

// ParseListing extracts item summaries from a listing page in document
// order. Relative links are resolved against base.
func ParseListing(r io.Reader, base *url.URL) (*ListingPage, error) {
	if base == nil {
		return nil, fmt.Errorf("listing base url is nil")
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	page := &ListingPage{}
	doc.Find("article.product_pod").Each(func(i int, s *goquery.Selection) {
		summary, warning, err := extractSummary(s, base)
		if err != nil {
			page.Skipped = append(page.Skipped, SkippedEntry{Index: i, Title: summary.Title, Err: err})
			return
		}
		if warning != nil {
			page.Warnings = append(page.Warnings, EntryWarning{Index: i, Title: summary.Title, Err: warning})
		}
		page.Summaries = append(page.Summaries, summary)
	})
	return page, nil
}

// extractSummary returns an error when the entry must be dropped and a
// warning when only the image locator was unusable.
func extractSummary(s *goquery.Selection, base *url.URL) (summary models.Summary, warning, err error) {
	link := s.Find("h3 a").First()
	title := strings.TrimSpace(link.AttrOr("title", ""))
	if title == "" {
		title = NormalizeText(link.Text())
	}
	if title == "" {
		return models.Summary{}, nil, ErrMissingTitle
	}

	summary.Title = title

	price, err := ParsePrice(s.Find("p.price_color").First().Text())
	if err != nil {
		return summary, nil, err
	}
	summary.Price = price

	href := strings.TrimSpace(link.AttrOr("href", ""))
	if href == "" {
		return summary, nil, ErrMissingDetailLink
	}
	detail, err := resolve(base, href)
	if err != nil {
		return summary, nil, fmt.Errorf("detail link: %w", err)
	}
	summary.DetailURL = detail

	// An unusable image locator leaves ImageURL empty, as a missing one does.
	if src := strings.TrimSpace(s.Find("img").First().AttrOr("src", "")); src != "" {
		image, imgErr := resolve(base, src)
		if imgErr != nil {
			warning = fmt.Errorf("image link: %w", imgErr)
		} else {
			summary.ImageURL = image
		}
	}

	summary.RatingToken, summary.Rating = ratingFromClass(s.Find("p.star-rating").First().AttrOr("class", ""))

	summary.AvailabilityHint = models.UnknownStock
	if marker := s.Find("p.instock.availability").First(); marker.Length() > 0 {
		if text := NormalizeText(marker.Text()); text != "" {
			summary.AvailabilityHint = text
		}
	}

	return summary, warning, nil
}

func resolve(base *url.URL, ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(parsed).String(), nil
}
