package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/logtest"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled local", func(c *Config) { c.Enabled = true }, false},
		{"enabled no endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, true},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, true},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, false},
		{"ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"http scheme loopback", func(c *Config) {
			c.Enabled = true
			c.Protocol = "http/protobuf"
			c.Endpoint = "http://127.0.0.1:4318"
		}, false},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "thrift" }, true},
		{"bad rate", func(c *Config) { c.Enabled = true; c.SampleRate = 2 }, true},
		{"zero interval", func(c *Config) { c.Enabled = true; c.ExportInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))

	degraded, lastErr := tel.Degraded()
	assert.False(t, degraded)
	assert.NoError(t, lastErr)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.ServiceName = ""
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestTelemetry_LoggerProvider(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, tel.LoggerProvider())

	recorder := logtest.NewRecorder()
	tel.SetLoggerProvider(recorder)
	require.NotNil(t, tel.LoggerProvider())

	var record log.Record
	record.SetBody(log.StringValue("entry stored"))
	tel.LoggerProvider().Logger("journalgpt").Emit(context.Background(), record)

	var bodies []string
	for _, rs := range recorder.Result() {
		for _, r := range rs {
			bodies = append(bodies, r.Body.AsString())
		}
	}
	assert.Equal(t, []string{"entry stored"}, bodies)

	tt := NewTestTelemetry()
	assert.Same(t, tt.LogRecorder, tt.LoggerProvider())
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTestTelemetry_SpansAndCounters(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("journalgpt/test").Start(ctx, "journal.add_entry")
	span.SetAttributes(attribute.String("user.id", "alice"))
	span.End()

	counter, err := tt.Meter("journalgpt/test").Int64Counter("journalgpt.test.count")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricAttrs("semantic"))
	counter.Add(ctx, 1, metricAttrs("recency"))

	tt.AssertSpanExists(t, "journal.add_entry")
	tt.AssertSpanAttribute(t, "journal.add_entry", "user.id", "alice")
	assert.Equal(t, int64(3), tt.CounterValue(t, "journalgpt.test.count"))
	assert.Equal(t, int64(1), tt.CounterValue(t, "journalgpt.test.count", attribute.String("strategy", "recency")))

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, tt.Shutdown(ctx))
}
