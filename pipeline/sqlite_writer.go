package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/danidanone/scraping-dashboard/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
DROP TABLE IF EXISTS books_full;
DROP TABLE IF EXISTS books_basic;
DROP TABLE IF EXISTS category_stats;

CREATE TABLE books_full (
	row_id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	price TEXT NOT NULL,
	rating INTEGER NOT NULL,
	category TEXT NOT NULL,
	availability TEXT NOT NULL,
	description TEXT NOT NULL,
	image_locator TEXT NOT NULL,
	detail_locator TEXT NOT NULL,
	inventory_code TEXT NOT NULL
);

CREATE TABLE books_basic (
	row_id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	price TEXT NOT NULL,
	rating INTEGER NOT NULL,
	category TEXT NOT NULL
);

CREATE TABLE category_stats (
	category TEXT PRIMARY KEY,
	price_mean TEXT NOT NULL,
	price_min TEXT NOT NULL,
	price_max TEXT NOT NULL,
	item_count INTEGER NOT NULL,
	rating_mean TEXT NOT NULL
);
`

// SQLiteWriter stores the three output tables in a SQLite database. Each run
// replaces the previous contents. Decimals are stored as fixed two-digit
// text so they round-trip exactly.
type SQLiteWriter struct {
	db   *sql.DB
	path string
	rows int
	mu   sync.Mutex
}

// NewSQLiteWriter opens (or creates) books.db in dir and resets its tables.
func NewSQLiteWriter(dir string) (*SQLiteWriter, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "books.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteWriter{db: db, path: path}, nil
}

// WriteItems inserts items into books_full and books_basic in one
// transaction.
func (sw *SQLiteWriter) WriteItems(items []models.Item) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	return sw.inTx(func(tx *sql.Tx) error {
		full, err := tx.Prepare(insertStatement(FullTable, FullColumns))
		if err != nil {
			return err
		}
		defer full.Close()
		basic, err := tx.Prepare(insertStatement(BasicTable, BasicColumns))
		if err != nil {
			return err
		}
		defer basic.Close()

		for _, item := range items {
			if _, err := full.Exec(toArgs(fullRow(item))...); err != nil {
				return fmt.Errorf("insert %s: %w", FullTable, err)
			}
			if _, err := basic.Exec(toArgs(basicRow(item))...); err != nil {
				return fmt.Errorf("insert %s: %w", BasicTable, err)
			}
		}
		sw.rows += len(items)
		return nil
	})
}

// WriteStats inserts the aggregate rows.
func (sw *SQLiteWriter) WriteStats(stats []models.CategoryStats) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	return sw.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(insertStatement(StatsTable, StatsColumns))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range stats {
			if _, err := stmt.Exec(toArgs(statsRow(s))...); err != nil {
				return fmt.Errorf("insert %s: %w", StatsTable, err)
			}
		}
		return nil
	})
}

// Close closes the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.db.Close()
}

// Validate checks that both item tables hold every written row and that the
// aggregate counts add up to the same total.
func (sw *SQLiteWriter) Validate() error {
	db, err := sql.Open("sqlite", sw.path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	var full, basic int
	var counted sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books_full").Scan(&full); err != nil {
		return fmt.Errorf("count %s: %w", FullTable, err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books_basic").Scan(&basic); err != nil {
		return fmt.Errorf("count %s: %w", BasicTable, err)
	}
	if err := db.QueryRowContext(ctx, "SELECT SUM(item_count) FROM category_stats").Scan(&counted); err != nil {
		return fmt.Errorf("sum %s: %w", StatsTable, err)
	}

	if full != basic {
		return fmt.Errorf("%s has %d rows, %s has %d", FullTable, full, BasicTable, basic)
	}
	if full != sw.rows {
		return fmt.Errorf("%s has %d rows, wrote %d", FullTable, full, sw.rows)
	}
	if counted.Valid && int(counted.Int64) != full {
		return fmt.Errorf("%s counts %d items, %s has %d", StatsTable, counted.Int64, FullTable, full)
	}
	return nil
}

func (sw *SQLiteWriter) inTx(fn func(*sql.Tx) error) error {
	tx, err := sw.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertStatement(table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
