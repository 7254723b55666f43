// Package logging provides the ambient logging interface used across voxcore.
package logging

import (
	"fmt"
	"log/slog"
)

// Logger is the interface every voxcore subsystem takes at construction time.
type Logger interface {
	ErrorPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
	Errorf(format string, args ...any) error
}

type defaultLogger struct {
	prefix string
}

// Default returns the default slog-backed logger, tagging lines with prefix.
func Default(prefix string) Logger {
	return defaultLogger{prefix: prefix}
}

func (l defaultLogger) ErrorPrintf(format string, args ...any) {
	slog.Error(l.prefix + ": " + fmt.Sprintf(format, args...))
}

func (l defaultLogger) WarnPrintf(format string, args ...any) {
	slog.Warn(l.prefix + ": " + fmt.Sprintf(format, args...))
}

func (l defaultLogger) InfoPrintf(format string, args ...any) {
	slog.Info(l.prefix + ": " + fmt.Sprintf(format, args...))
}

func (l defaultLogger) DebugPrintf(format string, args ...any) {
	slog.Debug(l.prefix + ": " + fmt.Sprintf(format, args...))
}

func (l defaultLogger) Errorf(format string, args ...any) error {
	return fmt.Errorf(l.prefix+": "+format, args...)
}

// Slog adapts an existing *slog.Logger to the Logger interface.
func Slog(l *slog.Logger, prefix string) Logger {
	return &slogLogger{Logger: l, prefix: prefix}
}

type slogLogger struct {
	*slog.Logger
	prefix string
}

func (s *slogLogger) ErrorPrintf(format string, args ...any) {
	s.Logger.Error(s.prefix + ": " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) WarnPrintf(format string, args ...any) {
	s.Logger.Warn(s.prefix + ": " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) InfoPrintf(format string, args ...any) {
	s.Logger.Info(s.prefix + ": " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) DebugPrintf(format string, args ...any) {
	s.Logger.Debug(s.prefix + ": " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) Errorf(format string, args ...any) error {
	return fmt.Errorf(s.prefix+": "+format, args...)
}
