package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/noah-isme/campus-ops-api/pkg/config"
)

func TestSetupNoneIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "campus-ops-api", "test", config.TracingConfig{Exporter: config.TraceExporterNone}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupStdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), "campus-ops-api", "test", config.TracingConfig{Exporter: config.TraceExporterStdout, SampleRatio: 1}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "boundary.CreateExam")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "boundary.CreateExam")
	assert.Contains(t, buf.String(), "campus-ops-api")
}

func TestSetupUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), "campus-ops-api", "test", config.TracingConfig{Exporter: "zipkin"}, nil)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
