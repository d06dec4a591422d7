package telemetry

import (
	"context"
	"testing"

	"storefront/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTracer_Disabled(t *testing.T) {
	shutdown, err := SetupTracer(context.Background(), config.TracingConfig{Enabled: false}, zerolog.Nop())

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracer_EnabledDoesNotNeedCollector(t *testing.T) {
	// grpc.NewClient connects lazily, so setup succeeds without a collector.
	shutdown, err := SetupTracer(context.Background(), config.TracingConfig{
		Enabled:      true,
		ServiceName:  "storefront-test",
		OTLPEndpoint: "http://127.0.0.1:4317",
	}, zerolog.Nop())

	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestStripScheme(t *testing.T) {
	tests := map[string]string{
		"http://collector:4317":  "collector:4317",
		"https://collector:4317": "collector:4317",
		"collector:4317":         "collector:4317",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripScheme(in), in)
	}
}
