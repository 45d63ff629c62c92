package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/opensearch"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// Entry represents a structured system log entry
type Entry struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Provider    string         `json:"provider,omitempty"`
	PaymentID   string         `json:"payment_id,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Environment string         `json:"environment"`
	Service     string         `json:"service"`
}

// SystemLogger handles structured logging to console and OpenSearch
type SystemLogger struct {
	openSearchLogger *opensearch.Logger
	enableConsole    bool
	enableOpenSearch bool
	minLevel         LogLevel
	service          string
	environment      string
}

// Config represents configuration for the system logger
type Config struct {
	EnableConsole    bool
	EnableOpenSearch bool
	MinLevel         LogLevel
	Service          string
	Environment      string
}

// LogContext holds contextual information for logging
type LogContext struct {
	Provider  string
	PaymentID string
	RequestID string
	Fields    map[string]any
}

// New creates a new system logger
func New(openSearchLogger *opensearch.Logger, config Config) *SystemLogger {
	return &SystemLogger{
		openSearchLogger: openSearchLogger,
		enableConsole:    config.EnableConsole,
		enableOpenSearch: config.EnableOpenSearch && openSearchLogger != nil,
		minLevel:         config.MinLevel,
		service:          config.Service,
		environment:      config.Environment,
	}
}

// Debug logs a debug message
func (sl *SystemLogger) Debug(message string, ctx ...LogContext) {
	sl.log(LevelDebug, message, ctx...)
}

// Info logs an info message
func (sl *SystemLogger) Info(message string, ctx ...LogContext) {
	sl.log(LevelInfo, message, ctx...)
}

// Warn logs a warning message
func (sl *SystemLogger) Warn(message string, ctx ...LogContext) {
	sl.log(LevelWarn, message, ctx...)
}

// Error logs an error message
func (sl *SystemLogger) Error(message string, err error, ctx ...LogContext) {
	logCtx := LogContext{}
	if len(ctx) > 0 {
		logCtx = ctx[0]
	}

	if logCtx.Fields == nil {
		logCtx.Fields = make(map[string]any)
	}
	if err != nil {
		logCtx.Fields["error"] = err.Error()
	}

	sl.log(LevelError, message, logCtx)
}

// Fatal logs a fatal message and exits
func (sl *SystemLogger) Fatal(message string, err error, ctx ...LogContext) {
	sl.Error(message, err, ctx...)
	os.Exit(1)
}

func (sl *SystemLogger) log(level LogLevel, message string, ctx ...LogContext) {
	if !sl.shouldLog(level) {
		return
	}

	entry := Entry{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Environment: sl.environment,
		Service:     sl.service,
	}

	if len(ctx) > 0 {
		logCtx := ctx[0]
		entry.Provider = logCtx.Provider
		entry.PaymentID = logCtx.PaymentID
		entry.RequestID = logCtx.RequestID
		entry.Fields = logCtx.Fields

		if logCtx.Fields != nil {
			if errMsg, ok := logCtx.Fields["error"].(string); ok {
				entry.Error = errMsg
			}
		}
	}

	if sl.enableConsole {
		sl.logToConsole(entry)
	}

	if sl.enableOpenSearch {
		go sl.logToOpenSearch(entry)
	}
}

func (sl *SystemLogger) shouldLog(level LogLevel) bool {
	levelOrder := map[LogLevel]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
		LevelFatal: 4,
	}

	return levelOrder[level] >= levelOrder[sl.minLevel]
}

func (sl *SystemLogger) logToConsole(entry Entry) {
	var contextParts []string
	if entry.Provider != "" {
		contextParts = append(contextParts, fmt.Sprintf("provider=%s", entry.Provider))
	}
	if entry.PaymentID != "" {
		contextParts = append(contextParts, fmt.Sprintf("payment=%s", entry.PaymentID))
	}
	if entry.RequestID != "" {
		contextParts = append(contextParts, fmt.Sprintf("req_id=%s", entry.RequestID))
	}

	context := ""
	if len(contextParts) > 0 {
		context = fmt.Sprintf("[%s] ", strings.Join(contextParts, " "))
	}

	suffix := ""
	if entry.Error != "" {
		suffix = fmt.Sprintf(" - Error: %s", entry.Error)
	}

	fmt.Printf("%s [%s] %s%s%s\n",
		entry.Timestamp.Format("2006-01-02 15:04:05"),
		strings.ToUpper(string(entry.Level)),
		context,
		entry.Message,
		suffix,
	)

	for key, value := range entry.Fields {
		if key != "error" {
			fmt.Printf("  %s: %v\n", key, value)
		}
	}
}

// ContextLogger carries a fixed LogContext across log calls
type ContextLogger struct {
	logger *SystemLogger
	ctx    LogContext
}

// WithContext creates a logger bound to the given context
func (sl *SystemLogger) WithContext(ctx LogContext) *ContextLogger {
	return &ContextLogger{logger: sl, ctx: ctx}
}

// Debug logs a debug message with the bound context
func (cl *ContextLogger) Debug(message string) {
	cl.logger.Debug(message, cl.ctx)
}

// Info logs an info message with the bound context
func (cl *ContextLogger) Info(message string) {
	cl.logger.Info(message, cl.ctx)
}

// Warn logs a warning message with the bound context
func (cl *ContextLogger) Warn(message string) {
	cl.logger.Warn(message, cl.ctx)
}

// Error logs an error message with the bound context
func (cl *ContextLogger) Error(message string, err error) {
	cl.logger.Error(message, err, cl.ctx)
}

func (sl *SystemLogger) logToOpenSearch(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sl.openSearchLogger.LogSystemEvent(ctx, entry); err != nil {
		log.Printf("Failed to log to OpenSearch: %v", err)
	}
}
