package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetLevel("warn")
	defer SetLevel("info")

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
}

func TestInfoBlockOneRecordPerLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	InfoBlock("\n  ==== header\nrisk: 1%\n==== \n")
	InfoBlock("   ")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "risk: 1%")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestJournalWritesTaggedLine(t *testing.T) {
	var buf bytes.Buffer
	SetJournalWriter(&buf)
	defer SetJournalWriter(nil)

	Journal("open", "rsi-dip", JournalField{Key: "price", Value: "100"}, JournalField{Key: "", Value: "skip"})

	line := buf.String()
	assert.Contains(t, line, "[TRADE][open][rsi-dip] price=100")
	assert.NotContains(t, line, "skip")
}

func TestJournalDisabledIsNoop(t *testing.T) {
	SetJournalWriter(nil)
	assert.NotPanics(t, func() { Journal("close", "x") })
}
