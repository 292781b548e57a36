// Package models defines data structures for the crawler.
package models

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Sentinels substituted when a field cannot be extracted.
const (
	NotAvailable      = "N/A"
	UnknownStock      = "Unknown"
	NoDescription     = "Sin descripción"
	MaxDescriptionLen = 200
	MaxRating         = 5
	RatingUnknown     = 0
)

// Summary is one entry of a listing page.
type Summary struct {
	Title            string
	Price            decimal.Decimal
	RatingToken      string
	Rating           int
	AvailabilityHint string
	ImageURL         string
	DetailURL        string
}

// Enrichment holds the fields read from a detail page.
type Enrichment struct {
	Category     string
	Description  string
	UPC          string
	Availability string
}

// Item is a merged catalog record. Items are built by NewItem and passed by
// value; nothing modifies them afterwards.
type Item struct {
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	Rating       int             `json:"rating"`
	Category     string          `json:"category"`
	Availability string          `json:"availability"`
	Description  string          `json:"description"`
	ImageURL     string          `json:"image_locator"`
	DetailURL    string          `json:"detail_locator"`
	UPC          string          `json:"inventory_code"`
}

// NewItem merges a listing summary with its detail enrichment. Empty
// enrichment fields fall back to their sentinels, and the description is cut
// to MaxDescriptionLen runes. Availability always comes from the detail page.
func NewItem(s Summary, e Enrichment) Item {
	category := e.Category
	if category == "" {
		category = NotAvailable
	}
	availability := e.Availability
	if availability == "" {
		availability = NotAvailable
	}
	description := e.Description
	if description == "" {
		description = NoDescription
	}

	rating := s.Rating
	if rating < RatingUnknown || rating > MaxRating {
		rating = RatingUnknown
	}

	return Item{
		Title:        s.Title,
		Price:        s.Price,
		Rating:       rating,
		Category:     category,
		Availability: availability,
		Description:  TruncateRunes(description, MaxDescriptionLen),
		ImageURL:     s.ImageURL,
		DetailURL:    s.DetailURL,
		UPC:          e.UPC,
	}
}

// TruncateRunes keeps at most n Unicode scalar values of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// CategoryStats aggregates the items of one category.
type CategoryStats struct {
	Category   string          `json:"category"`
	PriceMean  decimal.Decimal `json:"price_mean"`
	PriceMin   decimal.Decimal `json:"price_min"`
	PriceMax   decimal.Decimal `json:"price_max"`
	ItemCount  int             `json:"item_count"`
	RatingMean decimal.Decimal `json:"rating_mean"`
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	RunID          string
	Items          []Item
	StartTime      time.Time
	EndTime        time.Time
	PagesRequested int
	PagesVisited   int
	SkippedPages   []int
	DroppedEntries int
	DetailFailures int
	FailuresByKind map[string]int
	CacheHits      int
	Cancelled      bool
}
