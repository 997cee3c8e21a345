// Package sqlite reads the FPA FOD incident table from a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

// Source reads every row of one table.
// It implements pipeline.Source.
type Source struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// Open opens an existing database file. The file is never created.
func Open(path, table string, logger *slog.Logger) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open sqlite source: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite source: %w", err)
	}
	return New(db, table, logger), nil
}

// New wraps an open database handle.
func New(db *sql.DB, table string, logger *slog.Logger) *Source {
	return &Source{db: db, table: table, logger: logger}
}

// FetchAll runs SELECT * over the table and returns the result column-wise.
func (s *Source) FetchAll(ctx context.Context) (*domain.RawFrame, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(s.table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	b := domain.NewFrameBuilder(cols)
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	row := make([]domain.Field, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			row[i] = domain.FieldFromValue(v)
		}
		if err := b.Append(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	frame := b.Frame()
	s.logger.Debug("sqlite table read", "table", s.table, "rows", frame.Len(), "columns", len(cols))
	return frame, nil
}

// CheckReadiness pings the database.
func (s *Source) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Source) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
