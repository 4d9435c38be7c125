package observability

import "context"

// nopLogger is a logger that discards all output.
type nopLogger struct{}

// NopLogger returns a logger that discards all output.
// It is used as the default when no logger is configured.
func NopLogger() Logger {
	return &nopLogger{}
}

func (l *nopLogger) Debug(_ string, _ ...Field)            {}
func (l *nopLogger) Info(_ string, _ ...Field)             {}
func (l *nopLogger) Warn(_ string, _ ...Field)             {}
func (l *nopLogger) Error(_ string, _ ...Field)            {}
func (l *nopLogger) Fatal(_ string, _ ...Field)            {}
func (l *nopLogger) With(_ ...Field) Logger                { return l }
func (l *nopLogger) WithContext(_ context.Context) Logger  { return l }
func (l *nopLogger) Sync() error                           { return nil }
