package httpd

// Logger handles structured logging for the pool and the server.
type Logger interface {
	Print(v ...any)                 // Info level
	Printf(format string, v ...any) // Info level formatted
	Debugf(format string, v ...any) // Debug level
	Infof(format string, v ...any)  // Info level with formatting
	Warnf(format string, v ...any)  // Warning level
	Errorf(format string, v ...any) // Error level
}

// NoopLogger provides a default no-op logger.
type NoopLogger struct{}

func (l *NoopLogger) Print(_ ...any)            {}
func (l *NoopLogger) Printf(_ string, _ ...any) {}
func (l *NoopLogger) Debugf(_ string, _ ...any) {}
func (l *NoopLogger) Infof(_ string, _ ...any)  {}
func (l *NoopLogger) Warnf(_ string, _ ...any)  {}
func (l *NoopLogger) Errorf(_ string, _ ...any) {}
