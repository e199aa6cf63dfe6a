// Package log 为全局zap日志的简单封装
package log

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// 初始化全局日志：终端输出为可读格式，重定向时输出JSON
func Init(level string, json bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	var cfg zap.Config
	if json || !term.IsTerminal(int(os.Stderr.Fd())) {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// 替换全局日志（测试中可传入zaptest等）
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

func L() *zap.Logger {
	return logger.Load()
}

func Sync() {
	_ = logger.Load().Sync()
}

func Debug(msg string, fields ...zap.Field) {
	logger.Load().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	logger.Load().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	logger.Load().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	logger.Load().Error(msg, fields...)
}
