package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

func TestNewItemAppliesDefaults(t *testing.T) {
	summary := Summary{
		Title:            "Book A",
		Price:            decimal.RequireFromString("12.50"),
		Rating:           3,
		AvailabilityHint: "In stock",
		ImageURL:         "http://example.test/media/a.jpg",
		DetailURL:        "http://example.test/catalogue/a/index.html",
	}

	item := NewItem(summary, Enrichment{})

	if item.Category != NotAvailable {
		t.Fatalf("category = %q, want %q", item.Category, NotAvailable)
	}
	if item.Availability != NotAvailable {
		t.Fatalf("availability = %q, want %q", item.Availability, NotAvailable)
	}
	if item.Description != NoDescription {
		t.Fatalf("description = %q, want %q", item.Description, NoDescription)
	}
	if item.UPC != "" {
		t.Fatalf("upc = %q, want empty", item.UPC)
	}
	if !item.Price.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("price = %s", item.Price)
	}
}

func TestNewItemDetailAvailabilityWins(t *testing.T) {
	item := NewItem(
		Summary{Title: "Book", AvailabilityHint: "In stock"},
		Enrichment{Category: "Poetry", Availability: "In stock (22 available)"},
	)
	if item.Availability != "In stock (22 available)" {
		t.Fatalf("availability = %q", item.Availability)
	}
}

func TestNewItemClampsRating(t *testing.T) {
	item := NewItem(Summary{Title: "Book", Rating: 9}, Enrichment{})
	if item.Rating != RatingUnknown {
		t.Fatalf("rating = %d, want %d", item.Rating, RatingUnknown)
	}
}

func TestNewItemTruncatesDescriptionByRunes(t *testing.T) {
	long := strings.Repeat("ñ", 250)
	item := NewItem(Summary{Title: "Book"}, Enrichment{Description: long})
	if got := utf8.RuneCountInString(item.Description); got != MaxDescriptionLen {
		t.Fatalf("description runes = %d, want %d", got, MaxDescriptionLen)
	}
	if !utf8.ValidString(item.Description) {
		t.Fatalf("truncated description is not valid UTF-8")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "abcdef", n: 3, want: "abc"},
		{in: "abc", n: 3, want: "abc"},
		{in: "abc", n: 10, want: "abc"},
		{in: "héllo", n: 2, want: "hé"},
		{in: "abc", n: 0, want: ""},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
