package logger

import (
	"log/slog"
	"time"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newZapHandler(cfg Config) slog.Handler {
	lvl := cfg.level()

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.AddSource {
		encCfg.EncodeCaller = zapcore.ShortCallerEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(cfg.Output),
		toZapLevel(lvl),
	)

	initial, thereafter := cfg.sampling()
	core = zapcore.NewSamplerWithOptions(core, time.Second, initial, thereafter)

	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.ErrorOutput(zapcore.AddSync(cfg.Output)))

	return slogzap.Option{Level: lvl, Logger: z}.NewZapHandler()
}

// toZapLevel maps slog's spaced levels (-4, 0, 4, 8) onto zap's (-1..2).
func toZapLevel(lvl slog.Level) zapcore.Level {
	z := zapcore.Level(lvl / 4)
	if z < zapcore.DebugLevel {
		return zapcore.DebugLevel
	}
	if z > zapcore.ErrorLevel {
		return zapcore.ErrorLevel
	}
	return z
}
