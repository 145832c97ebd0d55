// Package logging builds the zap logger used by every command.
package logging

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	StdErr  = "stderr"
	StdOut  = "stdout"
	LogFile = "logfile"
)

type Config struct {
	Type string `mapstructure:"type"`
	File string `mapstructure:"file"`
	// Level is 0=Fatal, 1=Error, 2=Warn, 3=Info, 4 and above Debug.
	Level           int8 `mapstructure:"level"`
	MaxSize         int  `mapstructure:"max-size"`
	NumRotatedFiles int  `mapstructure:"num-rotated-files"`
	// Developer logs everything to stdout with stack traces, other
	// settings are ignored.
	Developer bool `mapstructure:"developer"`
}

// New builds a logger from c.
func New(c Config) (*zap.Logger, error) {
	if c.Developer {
		return zap.NewDevelopment()
	}

	var sink zapcore.WriteSyncer
	switch c.Type {
	case StdErr, "":
		sink = zapcore.Lock(os.Stderr)
	case StdOut:
		sink = zapcore.Lock(os.Stdout)
	case LogFile:
		if c.File == "" {
			return nil, errors.New("log.file is required when log.type is logfile")
		}
		if err := os.MkdirAll(filepath.Dir(c.File), 0755); err != nil {
			return nil, errors.Wrapf(err, "unable to create log directory for %s", c.File)
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSize,
			MaxBackups: c.NumRotatedFiles,
		})
	default:
		return nil, errors.Errorf("unsupported log.type %q", c.Type)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, zap.NewAtomicLevelAt(level(c.Level)))
	return zap.New(core, zap.AddCaller()), nil
}

func level(l int8) zapcore.Level {
	switch {
	case l <= 0:
		return zapcore.FatalLevel
	case l == 1:
		return zapcore.ErrorLevel
	case l == 2:
		return zapcore.WarnLevel
	case l == 3:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
