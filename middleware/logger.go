// Package middleware holds the Fiber middleware mounted in front of the
// admin panel routes.
package middleware

// Logger is the structured logger the middleware writes to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
