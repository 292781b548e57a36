package parser

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/danidanone/scraping-dashboard/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><body><section><ol class="row">
<li><article class="product_pod">
  <div class="image_container"><a href="a-light-in-the-attic_1000/index.html"><img src="../media/cache/2c/da/2cdad67c.jpg" alt="A Light in the Attic" class="thumbnail"></a></div>
  <p class="star-rating Three"><i class="icon-star"></i></p>
  <h3><a href="a-light-in-the-attic_1000/index.html" title="A Light in the Attic">A Light in the ...</a></h3>
  <div class="product_price">
    <p class="price_color">£51.77</p>
    <p class="instock availability">
        <i class="icon-ok"></i>

        In stock

    </p>
  </div>
</article></li>
<li><article class="product_pod">
  <p class="star-rating Seven"></p>
  <h3><a href="tipping-the-velvet_999/index.html" title="Tipping the Velvet">Tipping the ...</a></h3>
  <p class="price_color">£53.74</p>
</article></li>
<li><article class="product_pod">
  <p class="star-rating One"></p>
  <h3><a href="no-title_1/index.html"></a></h3>
  <p class="price_color">£10.00</p>
</article></li>
<li><article class="product_pod">
  <p class="star-rating Two"></p>
  <h3><a href="bad-price_2/index.html" title="Bad Price">Bad Price</a></h3>
  <p class="price_color">free</p>
</article></li>
<li><article class="product_pod">
  <p class="star-rating Five"></p>
  <h3><a title="No Link">No Link</a></h3>
  <p class="price_color">£1.00</p>
</article></li>
</ol></section></body></html>`

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseListing(t *testing.T) {
	base := mustURL(t, "https://books.toscrape.com/catalogue/page-1.html")

	page, err := ParseListing(strings.NewReader(listingHTML), base)
	require.NoError(t, err)
	require.Len(t, page.Summaries, 2)
	require.Len(t, page.Skipped, 3)

	first := page.Summaries[0]
	assert.Equal(t, "A Light in the Attic", first.Title)
	assert.True(t, first.Price.Equal(decimal.RequireFromString("51.77")), "price %s", first.Price)
	assert.Equal(t, "Three", first.RatingToken)
	assert.Equal(t, 3, first.Rating)
	assert.Equal(t, "In stock", first.AvailabilityHint)
	assert.Equal(t, "https://books.toscrape.com/media/cache/2c/da/2cdad67c.jpg", first.ImageURL)
	assert.Equal(t, "https://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html", first.DetailURL)

	second := page.Summaries[1]
	assert.Equal(t, "Tipping the Velvet", second.Title)
	assert.Equal(t, 0, second.Rating, "unknown rating token maps to zero")
	assert.Equal(t, models.UnknownStock, second.AvailabilityHint)
	assert.Empty(t, second.ImageURL)

	assert.Equal(t, 2, page.Skipped[0].Index)
	assert.True(t, errors.Is(page.Skipped[0].Err, ErrMissingTitle))
	assert.Equal(t, "Bad Price", page.Skipped[1].Title)
	assert.Error(t, page.Skipped[1].Err)
	assert.True(t, errors.Is(page.Skipped[2].Err, ErrMissingDetailLink))
}

func TestParseListingFallsBackToLinkText(t *testing.T) {
	html := `<article class="product_pod"><h3><a href="x/index.html">  Plain   Title </a></h3><p class="price_color">£2.00</p></article>`
	page, err := ParseListing(strings.NewReader(html), mustURL(t, "http://example.test/catalogue/page-2.html"))
	require.NoError(t, err)
	require.Len(t, page.Summaries, 1)
	assert.Equal(t, "Plain Title", page.Summaries[0].Title)
	assert.Equal(t, "http://example.test/catalogue/x/index.html", page.Summaries[0].DetailURL)
}

func TestParseListingKeepsEntryWithBadImageLink(t *testing.T) {
	html := `<article class="product_pod">
<div class="image_container"><a href="book-a/index.html"><img src="%zz.jpg"></a></div>
<p class="star-rating Two"></p>
<h3><a href="book-a/index.html" title="Book A">Book A</a></h3>
<p class="price_color">£12.50</p>
</article>`
	page, err := ParseListing(strings.NewReader(html), mustURL(t, "http://example.test/catalogue/page-1.html"))
	require.NoError(t, err)
	require.Len(t, page.Summaries, 1)
	assert.Empty(t, page.Skipped)

	got := page.Summaries[0]
	assert.Equal(t, "Book A", got.Title)
	assert.Equal(t, "12.50", got.Price.StringFixed(2))
	assert.Equal(t, 2, got.Rating)
	assert.Empty(t, got.ImageURL)
	assert.Equal(t, "http://example.test/catalogue/book-a/index.html", got.DetailURL)

	require.Len(t, page.Warnings, 1)
	assert.Equal(t, 0, page.Warnings[0].Index)
	assert.Equal(t, "Book A", page.Warnings[0].Title)
	assert.ErrorContains(t, page.Warnings[0].Err, "image link")
}

func TestParseListingEmptyPage(t *testing.T) {
	page, err := ParseListing(strings.NewReader("<html><body><p>nothing here</p></body></html>"), mustURL(t, "http://example.test/"))
	require.NoError(t, err)
	assert.Empty(t, page.Summaries)
	assert.Empty(t, page.Skipped)
}

func TestParseListingRequiresBase(t *testing.T) {
	_, err := ParseListing(strings.NewReader(listingHTML), nil)
	assert.Error(t, err)
}
