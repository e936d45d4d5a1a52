package logsvc

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/flowboard/core"
)

// ZapLogger is a core.Logger writing structured logs through zap.
type ZapLogger struct {
	zl *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a console logger in debug mode and a JSON logger otherwise.
func NewZapLogger(debug bool) (*ZapLogger, error) {
	var (
		zl  *zap.Logger
		err error
	)
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zl, err = cfg.Build(zap.AddCallerSkip(1))
	} else {
		zl, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return nil, err
	}
	return &ZapLogger{zl: zl}, nil
}

// WrapZap adapts an existing zap logger, e.g. zap.NewNop() in tests.
func WrapZap(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{zl: zl}
}

func (l *ZapLogger) Zap() *zap.Logger { return l.zl }

func (l *ZapLogger) Sync() error { return l.zl.Sync() }

// fields turns the logger args into zap fields.
func fields(args []interface{}) []zap.Field {
	fs := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
		case error:
			fs = append(fs, zap.Error(v))
		case core.Person:
			fs = append(fs, zap.String("person.id", v.ID), zap.String("person.username", v.Username))
		case map[string]interface{}:
			for k, val := range v {
				fs = append(fs, zap.Any(k, val))
			}
		default:
			fs = append(fs, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return fs
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.zl.Debug(msg, fields(args)...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.zl.Info(msg, fields(args)...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.zl.Warn(msg, fields(args)...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.zl.Error(msg, fields(args)...) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.zl.Fatal(msg, fields(args)...) }
