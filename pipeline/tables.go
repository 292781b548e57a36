package pipeline

import (
	"strconv"

	"github.com/danidanone/scraping-dashboard/models"
)

// Output file and table names.
const (
	FullTable  = "books_full"
	BasicTable = "books_basic"
	StatsTable = "category_stats"
)

// Column layouts of the three output tables, in order.
var (
	FullColumns = []string{
		"title", "price", "rating", "category", "availability",
		"description", "image_locator", "detail_locator", "inventory_code",
	}
	BasicColumns = []string{"title", "price", "rating", "category"}
	StatsColumns = []string{"category", "price_mean", "price_min", "price_max", "item_count", "rating_mean"}
)

// OutputWriter persists the item tables and the category aggregate table.
type OutputWriter interface {
	WriteItems(items []models.Item) error
	WriteStats(stats []models.CategoryStats) error
	Close() error
	Validate() error
}

func fullRow(item models.Item) []string {
	return []string{
		item.Title,
		item.Price.StringFixed(2),
		strconv.Itoa(item.Rating),
		item.Category,
		item.Availability,
		item.Description,
		item.ImageURL,
		item.DetailURL,
		item.UPC,
	}
}

func basicRow(item models.Item) []string {
	return fullRow(item)[:len(BasicColumns)]
}

func statsRow(s models.CategoryStats) []string {
	return []string{
		s.Category,
		s.PriceMean.StringFixed(2),
		s.PriceMin.StringFixed(2),
		s.PriceMax.StringFixed(2),
		strconv.Itoa(s.ItemCount),
		s.RatingMean.StringFixed(2),
	}
}
