package core

// Logger is any leveled logging service.
// args may carry an error, a map[string]interface{} of extra context
// or a domain object identifying the acting entity.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
