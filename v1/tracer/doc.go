// Package tracer provides distributed tracing functionality using OpenTelemetry.
//
// NewClient builds an SDK tracer provider (optionally exporting over OTLP/HTTP)
// and installs it globally. The vector store adapters create one span per
// contract operation through the global provider, so no further wiring is
// needed:
//
//	t, err := tracer.NewClient(tracer.Config{ServiceName: "memory-api", EnableExport: true}, log)
//	if err != nil {
//	    return err
//	}
//	defer t.Shutdown(context.Background())
//
// Application code can create its own spans:
//
//	ctx, span := t.StartSpan(ctx, "recall")
//	defer span.End()
//	t.SetAttributes(span, map[string]interface{}{"user.id": "123"})
//	if err != nil {
//	    t.RecordErrorOnSpan(span, err)
//	}
package tracer
