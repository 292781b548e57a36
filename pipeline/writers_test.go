package pipeline

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/danidanone/scraping-dashboard/models"
	"github.com/shopspring/decimal"
)

func sampleItems() []models.Item {
	return []models.Item{
		{
			Title:        "Book A",
			Price:        decimal.RequireFromString("12.5"),
			Rating:       3,
			Category:     "Fiction",
			Availability: "In stock (3 available)",
			Description:  "A, with \"quotes\"",
			ImageURL:     "http://example.test/media/a.jpg",
			DetailURL:    "http://example.test/catalogue/a/index.html",
			UPC:          "upc-a",
		},
		{
			Title:        "Book B",
			Price:        decimal.RequireFromString("9.99"),
			Rating:       5,
			Category:     "Fiction",
			Availability: models.NotAvailable,
			Description:  models.NoDescription,
			ImageURL:     "http://example.test/media/b.jpg",
			DetailURL:    "http://example.test/catalogue/b/index.html",
		},
	}
}

func sampleStats() []models.CategoryStats {
	return []models.CategoryStats{{
		Category:   "Fiction",
		PriceMean:  decimal.RequireFromString("11.25"),
		PriceMin:   decimal.RequireFromString("9.99"),
		PriceMax:   decimal.RequireFromString("12.5"),
		ItemCount:  2,
		RatingMean: decimal.RequireFromString("4"),
	}}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return records
}

func TestCSVWriterWritesThreeTables(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.WriteItems(sampleItems()); err != nil {
		t.Fatalf("write items: %v", err)
	}
	if err := writer.WriteStats(sampleStats()); err != nil {
		t.Fatalf("write stats: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	full := readCSV(t, filepath.Join(dir, "books_full.csv"))
	if len(full) != 3 {
		t.Fatalf("full records=%d, want 3", len(full))
	}
	if !reflect.DeepEqual(full[0], FullColumns) {
		t.Fatalf("unexpected header: %v", full[0])
	}
	wantFirst := []string{
		"Book A", "12.50", "3", "Fiction", "In stock (3 available)", "A, with \"quotes\"",
		"http://example.test/media/a.jpg", "http://example.test/catalogue/a/index.html", "upc-a",
	}
	if !reflect.DeepEqual(full[1], wantFirst) {
		t.Fatalf("row = %v, want %v", full[1], wantFirst)
	}

	basic := readCSV(t, filepath.Join(dir, "books_basic.csv"))
	if len(basic) != len(full) {
		t.Fatalf("basic rows=%d, full rows=%d", len(basic), len(full))
	}
	if !reflect.DeepEqual(basic[2], []string{"Book B", "9.99", "5", "Fiction"}) {
		t.Fatalf("basic row = %v", basic[2])
	}

	stats := readCSV(t, filepath.Join(dir, "category_stats.csv"))
	want := [][]string{
		StatsColumns,
		{"Fiction", "11.25", "9.99", "12.50", "2", "4.00"},
	}
	if !reflect.DeepEqual(stats, want) {
		t.Fatalf("stats = %v, want %v", stats, want)
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewJSONWriter(dir)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.WriteItems(sampleItems()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.WriteStats(sampleStats()); err != nil {
		t.Fatalf("write json stats: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "books.jsonl"))
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []map[string]any
	for scanner.Scan() {
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("json lines=%d, want 2", len(decoded))
	}
	if decoded[0]["price"] != 12.5 {
		t.Fatalf("price = %v, want numeric 12.5", decoded[0]["price"])
	}
	if decoded[1]["inventory_code"] != "" {
		t.Fatalf("inventory_code = %v, want empty", decoded[1]["inventory_code"])
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewDualWriter(dir)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.WriteItems(sampleItems()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.WriteStats(sampleStats()); err != nil {
		t.Fatalf("write dual stats: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	for _, name := range []string{"books_full.csv", "books_basic.csv", "category_stats.csv", "books.jsonl", "category_stats.jsonl"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.Size() == 0 {
			t.Fatalf("%s missing or empty", name)
		}
	}
}

func TestSQLiteWriterWrite(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewSQLiteWriter(dir)
	if err != nil {
		t.Fatalf("create sqlite writer: %v", err)
	}
	if err := writer.WriteItems(sampleItems()); err != nil {
		t.Fatalf("write items: %v", err)
	}
	if err := writer.WriteStats(sampleStats()); err != nil {
		t.Fatalf("write stats: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "books.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var title, price string
	if err := db.QueryRow("SELECT title, price FROM books_basic ORDER BY row_id LIMIT 1").Scan(&title, &price); err != nil {
		t.Fatalf("query basic: %v", err)
	}
	if title != "Book A" || price != "12.50" {
		t.Fatalf("first basic row = %q/%q", title, price)
	}

	var mean string
	var count int
	if err := db.QueryRow("SELECT price_mean, item_count FROM category_stats WHERE category = ?", "Fiction").Scan(&mean, &count); err != nil {
		t.Fatalf("query stats: %v", err)
	}
	if mean != "11.25" || count != 2 {
		t.Fatalf("stats row = %s/%d", mean, count)
	}
}

func TestSQLiteWriterValidateDetectsMismatch(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewSQLiteWriter(dir)
	if err != nil {
		t.Fatalf("create sqlite writer: %v", err)
	}
	defer writer.Close()

	if err := writer.WriteItems(sampleItems()); err != nil {
		t.Fatalf("write items: %v", err)
	}
	stats := sampleStats()
	stats[0].ItemCount = 5
	if err := writer.WriteStats(stats); err != nil {
		t.Fatalf("write stats: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("expected validation error for mismatched item_count")
	}
}

type recordingWriter struct {
	name   string
	failOn string
	calls  *[]string
}

func (w recordingWriter) record(op string) error {
	*w.calls = append(*w.calls, w.name+"."+op)
	if op == w.failOn {
		return errors.New(op + " broke")
	}
	return nil
}

func (w recordingWriter) WriteItems([]models.Item) error          { return w.record("items") }
func (w recordingWriter) WriteStats([]models.CategoryStats) error { return w.record("stats") }
func (w recordingWriter) Close() error                            { return w.record("close") }
func (w recordingWriter) Validate() error                         { return w.record("validate") }

func TestMultiWriterStopsWritesButClosesAll(t *testing.T) {
	var calls []string
	mw := NewMultiWriter(
		NamedWriter{Name: "first", Writer: recordingWriter{name: "a", failOn: "items", calls: &calls}},
		NamedWriter{Name: "second", Writer: recordingWriter{name: "b", failOn: "close", calls: &calls}},
	)

	err := mw.WriteItems(sampleItems())
	if err == nil || !strings.Contains(err.Error(), "first write failed") {
		t.Fatalf("unexpected write error: %v", err)
	}
	err = mw.Close()
	if err == nil || !strings.Contains(err.Error(), "second close failed") {
		t.Fatalf("unexpected close error: %v", err)
	}

	want := []string{"a.items", "a.close", "b.close"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}
