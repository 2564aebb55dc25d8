package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	require.NoError(t, Init(context.Background(), Options{}))

	_, span := Tracer("").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, Shutdown(context.Background()))
}

func TestInit_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(context.Background(), Options{
		Enabled:     true,
		Stdout:      true,
		ServiceName: "auditdesk-test",
		Writer:      &buf,
	}))
	t.Cleanup(func() { _ = Init(context.Background(), Options{}) })

	_, span := Tracer("test").Start(context.Background(), "queue.select")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	counter, err := Meter("test").Int64Counter("auditdesk.test")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "queue.select")
}
