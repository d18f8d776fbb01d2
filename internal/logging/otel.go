package logging

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newDualCore creates core with console and/or OTEL outputs.
func newDualCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Console {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		bridge, err := zapcore.NewIncreaseLevelCore(
			otelzap.NewCore("journalgpt", otelzap.WithLoggerProvider(otelProvider)),
			cfg.Level,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otel core: %w", err)
		}
		fields, patterns, err := compileRedaction(cfg.Redaction)
		if err != nil {
			return nil, err
		}
		cores = append(cores, &redactingCore{Core: bridge, fields: fields, patterns: patterns})
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := zapcore.NewTee(cores...)
	return newSampledCore(core, cfg.Sampling), nil
}

// redactingCore applies the redaction rules to fields before they reach a
// core that does not encode through RedactingEncoder, such as the OTEL bridge.
type redactingCore struct {
	zapcore.Core
	fields   map[string]bool
	patterns []*regexp.Regexp
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.redact(fields)), fields: c.fields, patterns: c.patterns}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	for _, re := range c.patterns {
		ent.Message = re.ReplaceAllString(ent.Message, redactedValue)
	}
	return c.Core.Write(ent, c.redact(fields))
}

func (c *redactingCore) redact(fields []zapcore.Field) []zapcore.Field {
	if len(c.fields) == 0 && len(c.patterns) == 0 {
		return fields
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case c.fields[strings.ToLower(f.Key)]:
			out[i] = zap.String(f.Key, redactedValue)
		case f.Type == zapcore.StringType && matchesAny(c.patterns, f.String):
			out[i] = zap.String(f.Key, "[REDACTED:pattern]")
		default:
			out[i] = f
		}
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
