// Package logger provides the structured logging facade used by every
// pipeline component, backed by zerolog.
package logger

// Logger provides structured logging with a component name and context fields
type Logger interface {
	Info(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Debug(component, message string, fields map[string]interface{})
}
