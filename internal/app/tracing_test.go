package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestSetupTracingLogsSpans(t *testing.T) {
	var out bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&out)
	logger.SetLevel(logrus.DebugLevel)

	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	shutdown := SetupTracing(logger)
	_, span := otel.Tracer("test").Start(context.Background(), "scrape.metadata",
		trace.WithAttributes(attribute.String("kind", "movie")))
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, out.String(), "span=scrape.metadata")
	assert.Contains(t, out.String(), "kind=movie")
}
