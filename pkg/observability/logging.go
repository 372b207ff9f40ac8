package observability

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger builds the process-wide sugared logger. Output goes to stdout and
// to a size-rotated file under <dataDir>/logs; the daily prune job removes
// rotated files past retention.
func InitLogger(level string, dataDir string) *zap.SugaredLogger {
	logConfig := zap.NewProductionConfig()
	logConfig.Sampling = nil
	logConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	logConfig.DisableStacktrace = true

	atomicLevel := zap.NewAtomicLevelAt(DetermineLogLevel(level))

	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Fatal(err)
	}

	fileSink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "possync.log"),
		MaxSize:    20, // MB
		MaxBackups: 30,
		Compress:   false,
	})

	encoder := zapcore.NewJSONEncoder(logConfig.EncoderConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), atomicLevel),
		zapcore.NewCore(encoder, fileSink, atomicLevel),
	)

	return zap.New(core).Sugar()
}

func DetermineLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}
