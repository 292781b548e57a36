// Package stats derives per-category statistics from crawled items.
package stats

import (
	"sort"

	"github.com/danidanone/scraping-dashboard/models"
	"github.com/shopspring/decimal"
)

// Digits is the number of fractional digits every statistic is rounded to.
const Digits = 2

type group struct {
	count     int
	priceSum  decimal.Decimal
	priceMin  decimal.Decimal
	priceMax  decimal.Decimal
	ratingSum int64
}

// Aggregate groups items by exact category text and reduces each group once.
// Rows come out in the order each category was first seen. Means are
// computed exactly and rounded half-up; an empty input gives an empty slice.
func Aggregate(items []models.Item) []models.CategoryStats {
	order := make([]string, 0)
	groups := make(map[string]*group)

	for _, item := range items {
		g, ok := groups[item.Category]
		if !ok {
			g = &group{priceMin: item.Price, priceMax: item.Price}
			groups[item.Category] = g
			order = append(order, item.Category)
		}
		g.count++
		g.priceSum = g.priceSum.Add(item.Price)
		g.priceMin = decimal.Min(g.priceMin, item.Price)
		g.priceMax = decimal.Max(g.priceMax, item.Price)
		g.ratingSum += int64(item.Rating)
	}

	out := make([]models.CategoryStats, 0, len(order))
	for _, category := range order {
		g := groups[category]
		n := decimal.NewFromInt(int64(g.count))
		out = append(out, models.CategoryStats{
			Category:   category,
			PriceMean:  g.priceSum.DivRound(n, Digits),
			PriceMin:   g.priceMin.Round(Digits),
			PriceMax:   g.priceMax.Round(Digits),
			ItemCount:  g.count,
			RatingMean: decimal.NewFromInt(g.ratingSum).DivRound(n, Digits),
		})
	}
	return out
}

// CategoryCount pairs a category with its number of items.
type CategoryCount struct {
	Category string
	Count    int
}

// Summary is the console report of one crawl.
type Summary struct {
	TotalItems    int
	PriceMin      decimal.Decimal
	PriceMax      decimal.Decimal
	PriceMean     decimal.Decimal
	RatingMean    decimal.Decimal
	Categories    int
	TopCategories []CategoryCount
}

// Summarize computes overall figures and the top categories by item count.
// Ties keep first-seen order.
func Summarize(items []models.Item, top int) Summary {
	summary := Summary{TotalItems: len(items)}
	if len(items) == 0 {
		return summary
	}

	n := decimal.NewFromInt(int64(len(items)))
	priceSum := decimal.Zero
	var ratingSum int64
	summary.PriceMin = items[0].Price
	summary.PriceMax = items[0].Price
	for _, item := range items {
		priceSum = priceSum.Add(item.Price)
		ratingSum += int64(item.Rating)
		summary.PriceMin = decimal.Min(summary.PriceMin, item.Price)
		summary.PriceMax = decimal.Max(summary.PriceMax, item.Price)
	}
	summary.PriceMin = summary.PriceMin.Round(Digits)
	summary.PriceMax = summary.PriceMax.Round(Digits)
	summary.PriceMean = priceSum.DivRound(n, Digits)
	summary.RatingMean = decimal.NewFromInt(ratingSum).DivRound(n, Digits)

	rows := Aggregate(items)
	summary.Categories = len(rows)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ItemCount > rows[j].ItemCount
	})
	if top > len(rows) || top < 0 {
		top = len(rows)
	}
	for _, row := range rows[:top] {
		summary.TopCategories = append(summary.TopCategories, CategoryCount{Category: row.Category, Count: row.ItemCount})
	}
	return summary
}
