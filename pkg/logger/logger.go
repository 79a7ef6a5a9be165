package logger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"switchfuzz/config"
	"switchfuzz/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerParams struct {
	fx.In
	Lc        fx.Lifecycle
	AppConfig *config.AppConfig
	Telemetry telemetry.Telemetry `optional:"true"`
}

func NewLogger(p LoggerParams) *zap.Logger {
	loggerCtx, cancel := context.WithCancel(context.Background())
	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
	return Build(loggerCtx, p.AppConfig, p.Telemetry)
}

// ParseLevel maps LOG_LEVEL values to zap levels, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Build returns a development logger up to info and a production logger
// above it. With telemetry, every entry is also emitted as an OTel record.
func Build(ctx context.Context, appConfig *config.AppConfig, telem telemetry.Telemetry) *zap.Logger {
	level := ParseLevel(appConfig.LogLevel)

	var cfg zap.Config
	if level > zapcore.InfoLevel {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.InitialFields = map[string]any{"session": appConfig.SessionID}

	if telem == nil || telem.GetLogger() == nil {
		lg, err := cfg.Build()
		if err != nil {
			return zap.NewExample()
		}
		return lg
	}

	lg, err := cfg.Build(
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return &telemetryCore{
				Core:   core,
				logger: telem.GetLogger(),
				ctx:    ctx,
				attrsBase: []attribute.KeyValue{
					attribute.String("fuzz.action.name", "switchfuzz_log"),
					attribute.String("fuzz.session", appConfig.SessionID),
				},
			}
		}),
		zap.AddCaller(),
	)
	if err != nil {
		lg, err := cfg.Build()
		if err != nil {
			return zap.NewExample()
		}
		return lg
	}
	lg.Info("Logger with telemetry enabled")
	return lg
}

// telemetryCore writes through the wrapped core and mirrors every entry into
// an OpenTelemetry log record, one attribute per zap field.
type telemetryCore struct {
	zapcore.Core
	logger    log.Logger
	ctx       context.Context
	attrsBase []attribute.KeyValue
}

// With keeps the wrapper on child cores created by logger.With.
func (t *telemetryCore) With(fields []zapcore.Field) zapcore.Core {
	return &telemetryCore{
		Core:      t.Core.With(fields),
		logger:    t.logger,
		ctx:       t.ctx,
		attrsBase: append(t.attrsBase[:len(t.attrsBase):len(t.attrsBase)], fieldAttributes(fields)...),
	}
}

// Check adds this core, not the inner one, to the CheckedEntry.
func (t *telemetryCore) Check(ent zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if t.Enabled(ent.Level) {
		return checked.AddCore(ent, t)
	}
	return checked
}

func (t *telemetryCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if err := t.Core.Write(ent, fields); err != nil {
		return err
	}

	rec := log.Record{}
	rec.SetTimestamp(ent.Time)
	rec.SetBody(log.StringValue(ent.Message))
	rec.SetSeverityText(ent.Level.String())
	rec.SetSeverity(severity(ent.Level))

	for _, attr := range t.attrsBase {
		rec.AddAttributes(log.KeyValueFromAttribute(attr))
	}
	for _, attr := range fieldAttributes(fields) {
		rec.AddAttributes(log.KeyValueFromAttribute(attr))
	}

	t.logger.Emit(t.ctx, rec)
	return nil
}

func severity(level zapcore.Level) log.Severity {
	switch level {
	case zapcore.DebugLevel:
		return log.SeverityDebug
	case zapcore.InfoLevel:
		return log.SeverityInfo
	case zapcore.WarnLevel:
		return log.SeverityWarn
	case zapcore.ErrorLevel:
		return log.SeverityError
	default:
		return log.SeverityFatal
	}
}

func fieldAttributes(fields []zapcore.Field) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, f := range fields {
		switch f.Type {
		case zapcore.BoolType:
			attrs = append(attrs, attribute.Bool(f.Key, f.Integer != 0))
		case zapcore.Float64Type:
			attrs = append(attrs, attribute.Float64(f.Key, math.Float64frombits(uint64(f.Integer))))
		case zapcore.Float32Type:
			attrs = append(attrs, attribute.Float64(f.Key, float64(math.Float32frombits(uint32(f.Integer)))))
		case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
			attrs = append(attrs, attribute.Int64(f.Key, f.Integer))
		case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
			attrs = append(attrs, attribute.Int64(f.Key, f.Integer))
		case zapcore.DurationType:
			attrs = append(attrs, attribute.String(f.Key, time.Duration(f.Integer).String()))
		case zapcore.StringType:
			attrs = append(attrs, attribute.String(f.Key, f.String))
		case zapcore.ErrorType:
			if errVal, ok := f.Interface.(error); ok {
				attrs = append(attrs, attribute.String(f.Key, errVal.Error()))
			}
		default:
			attrs = append(attrs, attribute.String(f.Key, fmt.Sprint(f.Interface)))
		}
	}
	return attrs
}
