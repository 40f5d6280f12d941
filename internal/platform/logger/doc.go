// Package logger provides structured logging functionality for the application
// using Go's standard library log/slog package. Loggers are injected into
// components through constructors; request-scoped loggers travel in the
// context via WithLogger and FromContext.
package logger
