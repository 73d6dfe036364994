package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger 初始化全局日志，没调用的话zap会用默认的no-op logger，测试里不初始化也没关系
func InitLogger(level, projectName, logPath string, maxAge, rotationTime time.Duration, rotationSize uint32, sentryDsn string) {
	initZap(projectName, logPath, maxAge, rotationTime, rotationSize, sentryDsn)
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		atomicLevel.SetLevel(parsed)
	}
}

func Debugf(template string, args ...interface{}) {
	zap.S().Debugf(template, args...)
}

func Infof(template string, args ...interface{}) {
	zap.S().Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	zap.S().Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	zap.S().Errorf(template, args...)
}

func Panicf(template string, args ...interface{}) {
	zap.S().Panicf(template, args...)
}

// Sync 退出前刷一下缓冲
func Sync() {
	_ = zap.L().Sync()
}
