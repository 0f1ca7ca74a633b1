package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/visa2any/fly2any-sub046/pkg/config"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

// output is the local sink chosen by InitLogger, kept so ExportLogs can tee into it.
var output io.Writer = os.Stdout

// InitLogger initializes the global zerolog logger. Extra writers, such as a
// rotated log file, receive the same events as JSON.
func InitLogger(serviceName, env string, extra ...io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		output = withExtra(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}, extra)
		log.Logger = log.Output(output).With().
			Timestamp().
			Str("service", serviceName).
			Logger()
		return
	}

	output = withExtra(os.Stdout, extra)
	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", serviceName).
		Logger()
}

func withExtra(primary io.Writer, extra []io.Writer) io.Writer {
	if len(extra) == 0 {
		return primary
	}
	return zerolog.MultiLevelWriter(append([]io.Writer{primary}, extra...)...)
}

// NewLogFile returns a size-rotated log file, or nil when no file is configured.
func NewLogFile(cfg config.LogConfig) io.WriteCloser {
	if cfg.File == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// LoggerFromContext returns logger enriched with the trace and span ids of ctx, if any.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With().
		Str("trace_id", span.SpanContext().TraceID().String()).
		Str("span_id", span.SpanContext().SpanID().String()).
		Logger()
}

// ComponentLogger derives a logger tagged with a component name from the global logger.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ExportLogs tees the global logger into an OpenTelemetry logger provider.
// Loggers derived before the call keep writing locally only.
func ExportLogs(provider otellog.LoggerProvider) {
	log.Logger = log.Logger.Output(zerolog.MultiLevelWriter(output, newOTelWriter(provider.Logger(instrumentationName))))
}

// otelWriter turns zerolog JSON events into OpenTelemetry log records.
type otelWriter struct {
	logger otellog.Logger
}

func newOTelWriter(logger otellog.Logger) *otelWriter {
	return &otelWriter{logger: logger}
}

func (w *otelWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (w *otelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err != nil {
		// Not a JSON event; nothing structured to forward.
		return len(p), nil
	}

	var rec otellog.Record
	rec.SetTimestamp(time.Now())
	rec.SetObservedTimestamp(time.Now())
	rec.SetSeverity(severity(level))
	rec.SetSeverityText(level.String())
	if msg, ok := fields[zerolog.MessageFieldName].(string); ok {
		rec.SetBody(otellog.StringValue(msg))
	}
	for k, v := range fields {
		switch k {
		case zerolog.MessageFieldName, zerolog.LevelFieldName, zerolog.TimestampFieldName:
			continue
		}
		rec.AddAttributes(attributeValue(k, v))
	}

	w.logger.Emit(context.Background(), rec)
	return len(p), nil
}

func attributeValue(key string, v interface{}) otellog.KeyValue {
	switch val := v.(type) {
	case string:
		return otellog.String(key, val)
	case bool:
		return otellog.Bool(key, val)
	case float64:
		if val == float64(int64(val)) {
			return otellog.Int64(key, int64(val))
		}
		return otellog.Float64(key, val)
	default:
		return otellog.String(key, fmt.Sprint(val))
	}
}

func severity(level zerolog.Level) otellog.Severity {
	switch level {
	case zerolog.TraceLevel:
		return otellog.SeverityTrace
	case zerolog.DebugLevel:
		return otellog.SeverityDebug
	case zerolog.InfoLevel:
		return otellog.SeverityInfo
	case zerolog.WarnLevel:
		return otellog.SeverityWarn
	case zerolog.ErrorLevel:
		return otellog.SeverityError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityUndefined
	}
}
