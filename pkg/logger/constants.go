package logger

// log level strings
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// log format strings
const (
	ConsoleFormat = "console"
	JSONFormat    = "json"
)

// custom error fields
const (
	lineOfCode = "loc"
)

// scoped logger field keys
const (
	FieldComponent   = "component"
	FieldParticipant = "participant_id"
	FieldSession     = "session_id"
)
