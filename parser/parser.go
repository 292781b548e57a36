package parser

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/danidanone/scraping-dashboard/models"
	"github.com/shopspring/decimal"
)

var ratingTokens = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

// ValidateItem ensures a merged item satisfies the record invariants.
func ValidateItem(item models.Item) error {
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("item missing title")
	}
	if item.Price.IsNegative() {
		return fmt.Errorf("negative price %s for %s", item.Price, item.Title)
	}
	if item.Rating < models.RatingUnknown || item.Rating > models.MaxRating {
		return fmt.Errorf("rating %d out of range for %s", item.Rating, item.Title)
	}
	if item.Category == "" {
		return fmt.Errorf("item missing category for %s", item.Title)
	}
	if !isAbsolute(item.DetailURL) {
		return fmt.Errorf("detail locator %q is not absolute", item.DetailURL)
	}
	if item.ImageURL != "" && !isAbsolute(item.ImageURL) {
		return fmt.Errorf("image locator %q is not absolute", item.ImageURL)
	}
	return nil
}

func isAbsolute(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

// NormalizePrice removes currency symbols and surrounding whitespace.
func NormalizePrice(price string) string {
	trim := func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != '-'
	}
	price = strings.TrimLeftFunc(price, trim)
	price = strings.TrimRightFunc(price, trim)
	return strings.TrimSpace(price)
}

// ParsePrice normalizes and parses a listing price. Negative and malformed
// prices are errors.
func ParsePrice(raw string) (decimal.Decimal, error) {
	cleaned := NormalizePrice(raw)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty price %q", raw)
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed price %q: %w", raw, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", raw)
	}
	return price, nil
}

// NormalizeText trims and collapses inner whitespace.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// RatingToNumeric converts the textual rating to a numeric scale. Unknown
// tokens map to zero.
func RatingToNumeric(rating string) int {
	return ratingTokens[strings.TrimSpace(rating)]
}

// ratingFromClass picks the first rating word out of a class attribute such
// as "star-rating Three".
func ratingFromClass(class string) (string, int) {
	fields := strings.Fields(class)
	for _, field := range fields {
		if n := RatingToNumeric(field); n > 0 {
			return field, n
		}
	}
	for _, field := range fields {
		if field != "star-rating" {
			return field, 0
		}
	}
	return "", 0
}
