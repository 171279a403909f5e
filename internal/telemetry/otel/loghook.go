package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationScope = "centora.provisioning"

// recordEmitter is the subset of otellog.Logger the hook needs.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// LogHook forwards logrus entries to an OpenTelemetry LoggerProvider as log records.
type LogHook struct {
	logger recordEmitter
	levels []logrus.Level
}

// NewLogHook returns a hook emitting through provider, or nil if provider is nil.
func NewLogHook(provider *sdklog.LoggerProvider, minLevel logrus.Level) *LogHook {
	if provider == nil {
		return nil
	}
	return newLogHookWithEmitter(provider.Logger(instrumentationScope), minLevel)
}

func newLogHookWithEmitter(e recordEmitter, minLevel logrus.Level) *LogHook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &LogHook{logger: e, levels: levels}
}

// Levels implements logrus.Hook.
func (h *LogHook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook. It never fails the log call.
func (h *LogHook) Fire(entry *logrus.Entry) error {
	rec := otellog.Record{}
	ts := entry.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetSeverity(severity(entry.Level))
	rec.SetSeverityText(entry.Level.String())
	rec.SetBody(otellog.StringValue(entry.Message))
	for k, v := range entry.Data {
		rec.AddAttributes(logAttribute(k, v))
	}
	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, rec)
	return nil
}

func severity(l logrus.Level) otellog.Severity {
	switch l {
	case logrus.TraceLevel:
		return otellog.SeverityTrace
	case logrus.DebugLevel:
		return otellog.SeverityDebug
	case logrus.InfoLevel:
		return otellog.SeverityInfo
	case logrus.WarnLevel:
		return otellog.SeverityWarn
	case logrus.ErrorLevel:
		return otellog.SeverityError
	case logrus.FatalLevel:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityFatal4
	}
}

func logAttribute(key string, v any) otellog.KeyValue {
	switch val := v.(type) {
	case string:
		return otellog.String(key, val)
	case bool:
		return otellog.Bool(key, val)
	case int:
		return otellog.Int(key, val)
	case int64:
		return otellog.Int64(key, val)
	case float64:
		return otellog.Float64(key, val)
	case time.Duration:
		return otellog.String(key, val.String())
	case error:
		return otellog.String(key, val.Error())
	default:
		return otellog.String(key, fmt.Sprint(val))
	}
}
