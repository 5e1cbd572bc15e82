package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/config"
)

func TestSetupDisabledInstallsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.Tracing{Enabled: false}, nil)
	require.NoError(t, err)
	_, span := StartSpan(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), config.Tracing{Enabled: true, Exporter: config.TracingExporterStdout}, &buf)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "workflow.run", StringAttr("job_id", "job-1"), IntAttr("steps", 5))
	RecordError(span, errors.New("boom"))
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "workflow.run")
	assert.Contains(t, buf.String(), "job-1")

	_, err = Setup(context.Background(), config.Tracing{Enabled: false}, nil)
	require.NoError(t, err)
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.Tracing{Enabled: true, Exporter: "zipkin"}, nil)
	require.Error(t, err)
}
