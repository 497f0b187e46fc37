package logger

import (
	"fmt"

	"watch-party-sync/pkg/utils"

	zl "github.com/rs/zerolog"
)

// Scoped is a logger carrying fixed fields, e.g. the component and participant it logs for
type Scoped struct {
	fields map[string]string
}

// With returns a scoped logger that adds key/value to every entry
func With(key, value string) Scoped {
	return Scoped{fields: map[string]string{key: value}}
}

// With returns a copy of the scoped logger with an additional field
func (s Scoped) With(key, value string) Scoped {
	fields := make(map[string]string, len(s.fields)+1)
	for k, v := range s.fields {
		fields[k] = v
	}
	fields[key] = value
	return Scoped{fields: fields}
}

// Debugf logs a debug message given a template and arguments
func (s Scoped) Debugf(template string, args ...interface{}) {
	s.emit(log.engine.Debug(), fmt.Sprintf(template, args...))
}

// Infof logs an info message given a template and arguments
func (s Scoped) Infof(template string, args ...interface{}) {
	s.emit(log.engine.Info(), fmt.Sprintf(template, args...))
}

// Warnf logs a warning message given a template and arguments
func (s Scoped) Warnf(template string, args ...interface{}) {
	s.emit(log.engine.Warn(), fmt.Sprintf(template, args...))
}

// Errorf logs an error message given a template and arguments
func (s Scoped) Errorf(err error, template string, args ...interface{}) {
	ev := log.engine.Error()
	if err != nil {
		ev = log.engine.Err(err)
	}
	s.emit(ev, fmt.Sprintf(template, args...))
}

func (s Scoped) emit(ev *zl.Event, message string) {
	for k, v := range s.fields {
		ev = ev.Str(k, v)
	}
	ev.Str(lineOfCode, utils.GetFileAndLoC(2)).Msg(message)
}

// Debug logs a debug message
func Debug(message string) {
	log.engine.Debug().Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(message)
}

// Debugf logs a debug message given a template and arguments
func Debugf(template string, args ...interface{}) {
	log.engine.Debug().Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(
		fmt.Sprintf(template, args...),
	)
}

// Info logs an info message
func Info(message string) {
	log.engine.Info().Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(message)
}

// Infof logs an info message given a template and arguments
func Infof(template string, args ...interface{}) {
	log.engine.Info().Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(
		fmt.Sprintf(template, args...),
	)
}

// Warnf logs a warning message given a template and arguments
func Warnf(template string, args ...interface{}) {
	log.engine.Warn().Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(
		fmt.Sprintf(template, args...),
	)
}

// Error logs an error message with the line of code where the log is called
func Error(err error, message string) {
	if err != nil {
		log.engine.Err(err).Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(message)
		return
	}

	log.engine.Error().Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(message)
}

func Errorf(err error, template string, args ...interface{}) {
	if err != nil {
		log.engine.Err(err).Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(
			fmt.Sprintf(template, args...),
		)
		return
	}

	log.engine.Error().Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(
		fmt.Sprintf(template, args...),
	)
}

func Fatalf(template string, args ...interface{}) {
	log.engine.Fatal().Str(lineOfCode, utils.GetFileAndLoC(1)).Msg(
		fmt.Sprintf(template, args...),
	)
}
