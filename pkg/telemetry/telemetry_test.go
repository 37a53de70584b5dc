package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitDisabledReturnsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestParseKeyValuePairs(t *testing.T) {
	tests := []struct {
		input    string
		expected map[string]string
	}{
		{"", map[string]string{}},
		{"a=1", map[string]string{"a": "1"}},
		{"a=1,b=2", map[string]string{"a": "1", "b": "2"}},
		{"Authorization=Bearer x=y", map[string]string{"Authorization": "Bearer x=y"}},
		{" a = 1 , ,=bad", map[string]string{"a": "1"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseKeyValuePairs(tt.input), "input %q", tt.input)
	}
}

func TestCreateSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample(), createSampler(Options{}))
	assert.Equal(t, sdktrace.AlwaysSample(), createSampler(Options{Sampler: "always_on"}))
	assert.Equal(t, sdktrace.NeverSample(), createSampler(Options{Sampler: "always_off"}))
	assert.Equal(t,
		sdktrace.TraceIDRatioBased(0.25),
		createSampler(Options{Sampler: "traceidratio", SamplerArg: "0.25"}))
}

func TestParseRatio(t *testing.T) {
	assert.Equal(t, 1.0, parseRatio(""))
	assert.Equal(t, 1.0, parseRatio("junk"))
	assert.Equal(t, 0.5, parseRatio("0.5"))
	assert.Equal(t, 0.0, parseRatio("-3"))
	assert.Equal(t, 1.0, parseRatio("7"))
}

func TestBuildResource(t *testing.T) {
	res, err := buildResource(Options{ServiceName: "heapscope-test", ServiceVersion: "1.2.3"})
	require.NoError(t, err)

	found := false
	for _, attr := range res.Attributes() {
		if string(attr.Key) == "service.name" {
			assert.Equal(t, "heapscope-test", attr.Value.AsString())
			found = true
		}
	}
	assert.True(t, found)
}
