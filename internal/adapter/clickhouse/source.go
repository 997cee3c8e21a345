// Package clickhouse reads a mirror of the FPA FOD incident table from
// ClickHouse.
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
)

// Options configures the connection.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// Source reads every row of one table.
// It implements pipeline.Source.
type Source struct {
	conn   driver.Conn
	table  string
	logger *slog.Logger
}

// Open connects and pings the server.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Source, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 600,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	logger.Info("connected to clickhouse", "addr", opts.Addr, "database", opts.Database)
	return &Source{conn: conn, table: opts.Table, logger: logger}, nil
}

// FetchAll runs SELECT * over the table and returns the result column-wise.
func (s *Source) FetchAll(ctx context.Context) (*domain.RawFrame, error) {
	rows, err := s.conn.Query(ctx, "SELECT * FROM "+quoteIdent(s.table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	cols := rows.Columns()
	types := rows.ColumnTypes()
	b := domain.NewFrameBuilder(cols)

	dest := make([]any, len(cols))
	row := make([]domain.Field, len(cols))
	for rows.Next() {
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, d := range dest {
			row[i] = fieldFromScan(d)
		}
		if err := b.Append(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	frame := b.Frame()
	s.logger.Debug("clickhouse table read", "table", s.table, "rows", frame.Len(), "columns", len(cols))
	return frame, nil
}

// CheckReadiness pings the server.
func (s *Source) CheckReadiness(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *Source) Close() error {
	return s.conn.Close()
}

// fieldFromScan unwraps a scan destination. Nullable columns scan into a
// pointer that stays nil for NULL.
func fieldFromScan(dest any) domain.Field {
	v := reflect.ValueOf(dest)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return domain.Null()
		}
		v = v.Elem()
	}
	return domain.FieldFromValue(v.Interface())
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
