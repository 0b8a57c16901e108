package observability

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/plaenen/shopcore/pkg/sqlite/migrate"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SpanRecord is a stored span.
type SpanRecord struct {
	SpanID        string
	TraceID       string
	ParentSpanID  string
	Name          string
	Start         time.Time
	Duration      time.Duration
	Failed        bool
	StatusMessage string
	Attributes    map[string]any
}

// SQLiteSpanExporter stores finished spans in SQLite so dispatch traces of
// short-lived CLI runs can be inspected afterwards.
type SQLiteSpanExporter struct {
	db        *sql.DB
	retention time.Duration
	mu        sync.Mutex
}

// NewSQLiteSpanExporter migrates the span table in db. Spans older than retention are
// pruned after each export; retention <= 0 keeps everything.
func NewSQLiteSpanExporter(ctx context.Context, db *sql.DB, retention time.Duration) (*SQLiteSpanExporter, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := migrate.Run(ctx, db, "otel_migrations", migrationsFS, "migrations"); err != nil {
		return nil, err
	}
	return &SQLiteSpanExporter{db: db, retention: retention}, nil
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *SQLiteSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO otel_spans (
			span_id, trace_id, parent_span_id, name,
			start_time, end_time, status_code, status_message, attributes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare span statement: %w", err)
	}
	defer stmt.Close()

	for _, span := range spans {
		var parent sql.NullString
		if span.Parent().SpanID().IsValid() {
			parent = sql.NullString{String: span.Parent().SpanID().String(), Valid: true}
		}

		attrs, err := json.Marshal(attributesToMap(span.Attributes()))
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			span.SpanContext().SpanID().String(),
			span.SpanContext().TraceID().String(),
			parent,
			span.Name(),
			span.StartTime().UnixNano(),
			span.EndTime().UnixNano(),
			int(span.Status().Code),
			span.Status().Description,
			string(attrs),
		); err != nil {
			return fmt.Errorf("insert span: %w", err)
		}
	}

	if e.retention > 0 {
		cutoff := time.Now().Add(-e.retention).UnixNano()
		if _, err := tx.ExecContext(ctx, `DELETE FROM otel_spans WHERE start_time < ?`, cutoff); err != nil {
			return fmt.Errorf("prune spans: %w", err)
		}
	}

	return tx.Commit()
}

// Shutdown implements sdktrace.SpanExporter. The database is owned by the caller.
func (e *SQLiteSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

// RecentSpans returns up to limit spans, newest first.
func (e *SQLiteSpanExporter) RecentSpans(ctx context.Context, limit int) ([]SpanRecord, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT span_id, trace_id, parent_span_id, name, start_time, end_time,
		       status_code, status_message, attributes
		FROM otel_spans
		ORDER BY start_time DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var records []SpanRecord
	for rows.Next() {
		var (
			rec           SpanRecord
			parent        sql.NullString
			message       sql.NullString
			start, end    int64
			code          int
			attributesRaw string
		)
		if err := rows.Scan(&rec.SpanID, &rec.TraceID, &parent, &rec.Name, &start, &end, &code, &message, &attributesRaw); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		rec.ParentSpanID = parent.String
		rec.StatusMessage = message.String
		rec.Start = time.Unix(0, start)
		rec.Duration = time.Duration(end - start)
		rec.Failed = codes.Code(code) == codes.Error
		if err := json.Unmarshal([]byte(attributesRaw), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	result := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		result[string(attr.Key)] = attr.Value.AsInterface()
	}
	return result
}
