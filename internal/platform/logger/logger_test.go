package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, Debug, ParseLevel("DEBUG"))
	assert.Equal(t, Warn, ParseLevel(" warning "))
	assert.Equal(t, Info, ParseLevel(""))
	assert.Equal(t, Info, ParseLevel("verbose"))
	assert.Equal(t, "error", Error.String())
}

func TestNew_JSON_WithFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: Info, Format: FormatJSON, App: "adherence", Out: &buf})

	l.Debug("hidden", nil)
	l.With(map[string]any{"user_id": "u-1"}).Warn("reconcile warning", map[string]any{
		"kind": "ambiguous_log_match",
		"err":  errors.New("boom"),
		"":     "dropped",
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "reconcile warning", entry["message"])
	assert.Equal(t, "adherence", entry["app"])
	assert.Equal(t, "u-1", entry["user_id"])
	assert.Equal(t, "boom", entry["err"])
	assert.NotContains(t, entry, "")
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: Debug, Format: FormatText, Out: &buf})

	l.Info("server started", map[string]any{"addr": ":8080"})

	out := buf.String()
	assert.Contains(t, out, "server started")
	assert.Contains(t, out, "addr=:8080")
}

func TestNop(t *testing.T) {
	l := Nop()
	l.With(map[string]any{"a": 1}).Error("nothing", nil)
}
