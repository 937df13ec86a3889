package log

import (
	"os"
	"time"
)

// BaseLogger implements the Logger interface.
type BaseLogger struct {
	level     Level
	fields    Fields
	formatter Formatter
	outputs   []Output
}

// LoggerOption configures a BaseLogger.
type LoggerOption func(*BaseLogger)

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) {
		l.level = level
	}
}

// WithFormatter sets the entry formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) {
		l.formatter = formatter
	}
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) {
		l.outputs = append(l.outputs, output)
	}
}

// NewLogger creates a logger writing colored text to the console at info level.
func NewLogger(opts ...LoggerOption) *BaseLogger {
	l := &BaseLogger{
		level:  InfoLevel,
		fields: Fields{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.formatter == nil {
		l.formatter = NewTextFormatter()
	}
	if len(l.outputs) == 0 {
		l.outputs = []Output{NewConsoleOutput()}
	}
	return l
}

// Debug logs a message at the debug level.
func (l *BaseLogger) Debug(msg string, fields ...Field) { l.write(DebugLevel, msg, fields) }

// Info logs a message at the info level.
func (l *BaseLogger) Info(msg string, fields ...Field) { l.write(InfoLevel, msg, fields) }

// Warn logs a message at the warn level.
func (l *BaseLogger) Warn(msg string, fields ...Field) { l.write(WarnLevel, msg, fields) }

// Error logs a message at the error level.
func (l *BaseLogger) Error(msg string, fields ...Field) { l.write(ErrorLevel, msg, fields) }

// Fatal logs a message at the fatal level and exits.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.write(FatalLevel, msg, fields)
	os.Exit(1)
}

// With returns a new logger carrying the additional fields.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	child := l.clone()
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

// WithComponent tags entries with a component name.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

// SetLevel sets the minimum log level.
func (l *BaseLogger) SetLevel(level Level) {
	l.level = level
}

// GetLevel returns the current minimum log level.
func (l *BaseLogger) GetLevel() Level {
	return l.level
}

func (l *BaseLogger) clone() *BaseLogger {
	child := &BaseLogger{
		level:     l.level,
		fields:    make(Fields, len(l.fields)),
		formatter: l.formatter,
		outputs:   l.outputs,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	return child
}

func (l *BaseLogger) write(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := &Entry{
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
		Fields:    make(Fields, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	for _, f := range fields {
		entry.Fields[f.Key] = f.Value
	}

	formatted, err := l.formatter.Format(entry)
	if err != nil {
		return
	}
	for _, out := range l.outputs {
		// Output errors are swallowed; logging must never take the process down.
		_ = out.Write(entry, formatted)
	}
}
