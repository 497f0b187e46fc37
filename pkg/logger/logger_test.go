package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	zl "github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := log
	engine := zl.New(buf)
	log = &logger{engine: &engine}
	t.Cleanup(func() { log = prev })
	return buf
}

func TestScoped_AddsFieldsAndLocation(t *testing.T) {
	buf := captureJSON(t)

	With(FieldComponent, "engine").With(FieldParticipant, "p1").Infof("applied %s", "play")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine", entry[FieldComponent])
	assert.Equal(t, "p1", entry[FieldParticipant])
	assert.Equal(t, "applied play", entry["message"])
	assert.Contains(t, entry[lineOfCode], "pkg/logger/logger_test.go:")
}

func TestScoped_WithDoesNotShareFields(t *testing.T) {
	base := With(FieldComponent, "engine")
	_ = base.With(FieldSession, "s1")
	assert.Len(t, base.fields, 1)
}

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zl.Level
	}{
		{DebugLevel, zl.DebugLevel},
		{WarnLevel, zl.WarnLevel},
		{ErrorLevel, zl.ErrorLevel},
		{"verbose", zl.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, getLogLevel(tt.in))
		})
	}
}
