package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/danidanone/scraping-dashboard/models"
)

type csvTable struct {
	file   *os.File
	writer *csv.Writer
}

func newCSVTable(path string, header []string) (*csvTable, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &csvTable{file: f, writer: writer}, nil
}

func (t *csvTable) write(records [][]string) error {
	if err := t.writer.WriteAll(records); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(t.file.Name()), err)
	}
	return nil
}

func (t *csvTable) close() error {
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		t.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return t.file.Close()
}

// CSVWriter writes the three output tables as CSV files in one directory.
type CSVWriter struct {
	full  *csvTable
	basic *csvTable
	stats *csvTable
	mu    sync.Mutex
}

// NewCSVWriter creates books_full.csv, books_basic.csv and
// category_stats.csv in dir and writes their header rows.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	tables := make([]*csvTable, 0, 3)
	closeAll := func() {
		for _, t := range tables {
			t.file.Close()
		}
	}
	for _, tbl := range []struct {
		name   string
		header []string
	}{
		{FullTable, FullColumns},
		{BasicTable, BasicColumns},
		{StatsTable, StatsColumns},
	} {
		t, err := newCSVTable(filepath.Join(dir, tbl.name+".csv"), tbl.header)
		if err != nil {
			closeAll()
			return nil, err
		}
		tables = append(tables, t)
	}

	return &CSVWriter{
		full:  tables[0],
		basic: tables[1],
		stats: tables[2],
	}, nil
}

// WriteItems appends items to the full and basic tables, in order.
func (cw *CSVWriter) WriteItems(items []models.Item) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	full := make([][]string, 0, len(items))
	basic := make([][]string, 0, len(items))
	for _, item := range items {
		full = append(full, fullRow(item))
		basic = append(basic, basicRow(item))
	}
	if err := cw.full.write(full); err != nil {
		return err
	}
	return cw.basic.write(basic)
}

// WriteStats appends rows to the category aggregate table.
func (cw *CSVWriter) WriteStats(stats []models.CategoryStats) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, statsRow(s))
	}
	return cw.stats.write(rows)
}

// Close flushes and closes every file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	return errors.Join(cw.full.close(), cw.basic.close(), cw.stats.close())
}

// Validate ensures every table file has at least its header.
func (cw *CSVWriter) Validate() error {
	for _, t := range []*csvTable{cw.full, cw.basic, cw.stats} {
		info, err := os.Stat(t.file.Name())
		if err != nil {
			return fmt.Errorf("stat csv file: %w", err)
		}
		if info.Size() <= 0 {
			return fmt.Errorf("csv file %s is empty", filepath.Base(t.file.Name()))
		}
	}
	return nil
}

type jsonItem struct {
	Title        string      `json:"title"`
	Price        json.Number `json:"price"`
	Rating       int         `json:"rating"`
	Category     string      `json:"category"`
	Availability string      `json:"availability"`
	Description  string      `json:"description"`
	ImageURL     string      `json:"image_locator"`
	DetailURL    string      `json:"detail_locator"`
	UPC          string      `json:"inventory_code"`
}

type jsonStats struct {
	Category   string      `json:"category"`
	PriceMean  json.Number `json:"price_mean"`
	PriceMin   json.Number `json:"price_min"`
	PriceMax   json.Number `json:"price_max"`
	ItemCount  int         `json:"item_count"`
	RatingMean json.Number `json:"rating_mean"`
}

type jsonlFile struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
}

func newJSONLFile(path string) (*jsonlFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}
	buffer := bufio.NewWriter(f)
	return &jsonlFile{file: f, writer: buffer, encoder: json.NewEncoder(buffer)}, nil
}

func (j *jsonlFile) close() error {
	if err := j.writer.Flush(); err != nil {
		j.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return j.file.Close()
}

// JSONWriter writes newline-delimited JSON: books.jsonl holds the full
// records and category_stats.jsonl the aggregate rows.
type JSONWriter struct {
	items *jsonlFile
	stats *jsonlFile
	mu    sync.Mutex
}

// NewJSONWriter initialises the JSON writer in dir.
func NewJSONWriter(dir string) (*JSONWriter, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	items, err := newJSONLFile(filepath.Join(dir, "books.jsonl"))
	if err != nil {
		return nil, err
	}
	stats, err := newJSONLFile(filepath.Join(dir, StatsTable+".jsonl"))
	if err != nil {
		items.file.Close()
		return nil, err
	}
	return &JSONWriter{items: items, stats: stats}, nil
}

// WriteItems appends items in JSONL format.
func (jw *JSONWriter) WriteItems(items []models.Item) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, item := range items {
		record := jsonItem{
			Title:        item.Title,
			Price:        json.Number(item.Price.StringFixed(2)),
			Rating:       item.Rating,
			Category:     item.Category,
			Availability: item.Availability,
			Description:  item.Description,
			ImageURL:     item.ImageURL,
			DetailURL:    item.DetailURL,
			UPC:          item.UPC,
		}
		if err := jw.items.encoder.Encode(record); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := jw.items.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// WriteStats appends aggregate rows in JSONL format.
func (jw *JSONWriter) WriteStats(stats []models.CategoryStats) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, s := range stats {
		record := jsonStats{
			Category:   s.Category,
			PriceMean:  json.Number(s.PriceMean.StringFixed(2)),
			PriceMin:   json.Number(s.PriceMin.StringFixed(2)),
			PriceMax:   json.Number(s.PriceMax.StringFixed(2)),
			ItemCount:  s.ItemCount,
			RatingMean: json.Number(s.RatingMean.StringFixed(2)),
		}
		if err := jw.stats.encoder.Encode(record); err != nil {
			return fmt.Errorf("encode json stats: %w", err)
		}
	}
	if err := jw.stats.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying files.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return errors.Join(jw.items.close(), jw.stats.close())
}

// Validate ensures both JSON files exist. An empty crawl legitimately
// produces empty files, so only their presence is checked.
func (jw *JSONWriter) Validate() error {
	for _, f := range []*jsonlFile{jw.items, jw.stats} {
		if _, err := os.Stat(f.file.Name()); err != nil {
			return fmt.Errorf("stat json file: %w", err)
		}
	}
	return nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
