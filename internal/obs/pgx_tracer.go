package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type querySpanKey struct{}

// maxStatementAttr caps the db.statement attribute; proposal and estimate
// queries carry jsonb literals that would otherwise bloat spans.
const maxStatementAttr = 300

// PGXTracer is a pgx.QueryTracer that emits one span per statement.
type PGXTracer struct{}

// TraceQueryStart opens the span and tags it with the statement.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, span := otel.Tracer("db.pgx").Start(ctx, "pgx.query")
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", compactSQL(data.SQL)),
	)
	if verb := sqlVerb(data.SQL); verb != "" {
		span.SetAttributes(attribute.String("db.operation", verb))
	}
	return context.WithValue(ctx, querySpanKey{}, span)
}

// TraceQueryEnd records the error, if any, and closes the span.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(querySpanKey{}).(trace.Span)
	if !ok {
		return
	}
	if data.Err != nil {
		span.RecordError(data.Err)
	}
	span.End()
}

func compactSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > maxStatementAttr {
		return trimmed[:maxStatementAttr] + "..."
	}
	return trimmed
}

// sqlVerb returns the leading keyword (SELECT, INSERT, ...) or "".
func sqlVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
