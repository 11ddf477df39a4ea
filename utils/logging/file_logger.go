package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationOptions controls where log files are written and how they rotate.
// Zero values fall back to the defaults below.
type RotationOptions struct {
	Dir        string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func filenameForAccount(account string) string {
	if account == "" {
		return "client.log"
	}
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return "client-" + r.Replace(strings.ToLower(account)) + ".log"
}

func NewRotatingFileLogger(
	debug bool,
	account string,
	filename string,
	opts RotationOptions,
) (
	*zap.Logger,
	io.Closer,
	error,
) {
	dir := opts.Dir
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}

	if filename == "" {
		filename = filenameForAccount(account)
	}

	rot := &lumberjack.Logger{
		Filename:   filepath.Join(dir, filename),
		MaxSize:    50, // megabytes per file before rotation
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   opts.Compress,
	}
	if opts.MaxSize > 0 {
		rot.MaxSize = opts.MaxSize
	}
	if opts.MaxBackups > 0 {
		rot.MaxBackups = opts.MaxBackups
	}
	if opts.MaxAge > 0 {
		rot.MaxAge = opts.MaxAge
	}

	encCfg := zap.NewProductionEncoderConfig()
	level := zap.InfoLevel
	if debug {
		encCfg = zap.NewDevelopmentEncoderConfig()
		level = zap.DebugLevel
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	enc := zapcore.NewConsoleEncoder(encCfg)

	core := zapcore.NewCore(enc, zapcore.AddSync(rot), level)
	logger := zap.New(core, zap.AddCaller())
	if account != "" {
		logger = logger.With(zap.String("account", account))
	}

	return logger, rot, nil
}
