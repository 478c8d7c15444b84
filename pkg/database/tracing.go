package database

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sonic7adarsh/bharatapp/pkg/database"

// QueryObserver wraps store operations in client spans and logs any that
// take longer than SlowThreshold. The zero value traces without slow logging.
type QueryObserver struct {
	System        string
	SlowThreshold time.Duration
	Logger        *slog.Logger
}

// Observe starts a span named "db.<operation>". Call the returned function
// with the operation's error when it finishes.
//
//	ctx, done := obs.Observe(ctx, "kv.get", query)
//	defer func() { done(err) }()
func (o *QueryObserver) Observe(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	system := "postgresql"
	if o != nil && o.System != "" {
		system = o.System
	}
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if o == nil || o.SlowThreshold <= 0 || o.Logger == nil {
			return
		}
		if elapsed := time.Since(start); elapsed >= o.SlowThreshold {
			o.Logger.WarnContext(ctx, "slow query",
				slog.String("operation", operation),
				slog.String("db_system", system),
				slog.Duration("duration", elapsed),
			)
		}
	}
}
