package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05"

// Logger wraps logrus with additional functionality
type Logger struct {
	*logrus.Logger
	fields logrus.Fields
}

// Options controls where and how a Logger writes.
type Options struct {
	Level      string
	Format     string // json, text
	File       string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	// Output overrides stdout as the primary sink.
	Output io.Writer
}

// NewLogger creates a new logger instance
func NewLogger(level, logFile string) *Logger {
	return New(Options{Level: level, File: logFile})
}

// New builds a logger from opts. When a file is configured, output goes to
// both the primary sink and a lumberjack-rotated file.
func New(opts Options) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	log.SetOutput(out)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			fmt.Printf("Failed to create log directory: %v\n", err)
		} else {
			fileLogger := &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    valueOr(opts.MaxSize, 100),
				MaxBackups: valueOr(opts.MaxBackups, 3),
				MaxAge:     valueOr(opts.MaxAge, 28),
				Compress:   opts.Compress,
			}
			log.SetOutput(io.MultiWriter(out, fileLogger))
		}
	}

	l := &Logger{
		Logger: log,
		fields: make(logrus.Fields),
	}
	l.SetFormatter(opts.Format)
	return l
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *Logger {
	return New(Options{Level: "panic", Output: io.Discard})
}

func valueOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		Logger: l.Logger,
		fields: newFields,
	}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// Fields returns a copy of the context fields.
func (l *Logger) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}

func (l *Logger) entry() *logrus.Entry {
	return l.Logger.WithFields(l.fields)
}

// fieldsFrom turns key/value args into fields. A non-string key is
// formatted with fmt.Sprint and a trailing value without a key is kept
// under "extra".
func fieldsFrom(args []interface{}) logrus.Fields {
	fields := make(logrus.Fields, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			fields["extra"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	return fields
}

func (l *Logger) log(level logrus.Level, msg string, keyvals []interface{}) {
	entry := l.entry()
	if len(keyvals) > 0 {
		entry = entry.WithFields(fieldsFrom(keyvals))
	}
	entry.Log(level, msg)
}

// Debug logs a debug message with optional key/value pairs
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(logrus.DebugLevel, msg, keyvals)
}

// Info logs an info message. keyvals are alternating keys and values, e.g.
// Info("Login succeeded", "user", name).
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(logrus.InfoLevel, msg, keyvals)
}

// Warning logs a warning message with optional key/value pairs
func (l *Logger) Warning(msg string, keyvals ...interface{}) {
	l.log(logrus.WarnLevel, msg, keyvals)
}

// Error logs an error message with optional key/value pairs
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(logrus.ErrorLevel, msg, keyvals)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry().Infof(format, args...)
}

// Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.entry().Warningf(format, args...)
}

// Writer returns a writer whose lines are logged at info level with the
// logger's fields. The caller closes it.
func (l *Logger) Writer() *io.PipeWriter {
	return l.entry().Writer()
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, userID, details string) {
	l.WithFields(map[string]interface{}{
		"event_type": "security",
		"event":      event,
		"user_id":    userID,
		"details":    details,
		"timestamp":  time.Now().Unix(),
	}).Warning("Security event logged")
}

// AuditLogger logs audit events
func (l *Logger) AuditLogger(action, userID, resource, details string) {
	l.WithFields(map[string]interface{}{
		"event_type": "audit",
		"action":     action,
		"user_id":    userID,
		"resource":   resource,
		"details":    details,
		"timestamp":  time.Now().Unix(),
	}).Info("Audit event logged")
}

// StructuredError logs a structured error with context
func (l *Logger) StructuredError(err error, context map[string]interface{}) {
	fields := map[string]interface{}{
		"error":     err.Error(),
		"timestamp": time.Now().Unix(),
	}
	for k, v := range context {
		fields[k] = v
	}

	l.WithFields(fields).Error("Structured error logged")
}

// GetLoggerFromContext retrieves the request-scoped logger stored under
// "logger" by the request logging middleware.
func GetLoggerFromContext(c *gin.Context, fallback *Logger) *Logger {
	if logger, exists := c.Get("logger"); exists {
		if l, ok := logger.(*Logger); ok {
			return l
		}
	}
	return fallback
}

// SetLogLevel dynamically sets the log level
func (l *Logger) SetLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Logger.SetLevel(logLevel)
	return nil
}

// SetFormatter sets the log formatter
func (l *Logger) SetFormatter(format string) {
	switch format {
	case "json":
		l.Logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	default:
		l.Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}
}
