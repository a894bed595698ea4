// Package logger собирает zap-логгер для бинарников проекта.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvProduction включает JSON-вывод и уровень info.
const EnvProduction = "production"

// FileOptions задаёт ротацию файла журнала.
type FileOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultFileOptions используется, когда путь к файлу задан без дополнительных настроек.
var DefaultFileOptions = FileOptions{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28}

// New создаёт логгер для окружения env. Если file не пуст, записи дублируются
// в файл с ротацией.
func New(env, file string) (*zap.Logger, error) {
	var config zap.Config

	if env == EnvProduction {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	if file == "" {
		return logger, nil
	}

	fileCore := newFileCore(file, config.Level, DefaultFileOptions)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

// newFileCore пишет JSON в файл с ротацией через lumberjack.
func newFileCore(path string, level zapcore.LevelEnabler, opts FileOptions) zapcore.Core {
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(writer), level)
}

// Must возвращает логгер или завершает процесс, если собрать его не удалось.
func Must(env, file string) *zap.Logger {
	l, err := New(env, file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return l
}
