package lib

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultLogger(t *testing.T) {
	// pre-define expected
	expected := NewLogger(LoggerConfig{
		Level: DebugLevel,
		Out:   os.Stdout,
	})
	// execute the function call
	got := NewDefaultLogger()
	// compare got vs expected
	require.Equal(t, got, expected)
}

func TestNewNullLogger(t *testing.T) {
	// pre-define expected
	expected := NewLogger(LoggerConfig{
		Level: DebugLevel,
		Out:   io.Discard,
	})
	// execute the function call
	got := NewNullLogger()
	// compare got vs expected
	require.Equal(t, got, expected)
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    int32
		log      func(l LoggerI)
		expected string
	}{
		{
			name:     "info",
			level:    DebugLevel,
			log:      func(l LoggerI) { l.Info("arg1 arg2") },
			expected: "INFO: arg1 arg2",
		},
		{
			name:     "debug formatted",
			level:    DebugLevel,
			log:      func(l LoggerI) { l.Debugf("%s %s", "arg1", "arg2") },
			expected: "DEBUG: arg1 arg2",
		},
		{
			name:     "warn",
			level:    DebugLevel,
			log:      func(l LoggerI) { l.Warn("arg1 arg2") },
			expected: "WARN: arg1 arg2",
		},
		{
			name:     "error formatted",
			level:    DebugLevel,
			log:      func(l LoggerI) { l.Errorf("%s %s", "arg1", "arg2") },
			expected: "ERROR: arg1 arg2",
		},
		{
			name:     "debug filtered at info",
			level:    InfoLevel,
			log:      func(l LoggerI) { l.Debug("arg1 arg2") },
			expected: "",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			logger := NewLogger(LoggerConfig{
				Level: test.level,
				Out:   buf,
			})
			test.log(logger)
			got := buf.String()
			if test.expected == "" {
				require.Empty(t, got)
				return
			}
			require.Contains(t, got, test.expected)
		})
	}
}

func TestNamedLogger(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	logger := NamedLogger(NewLogger(LoggerConfig{Level: DebugLevel, Out: buf}), "node-0")
	logger.Info("started")
	require.Contains(t, buf.String(), "INFO: [node-0] started")
}

func TestStructuredLogger(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	logger := NewLogger(LoggerConfig{Level: InfoLevel, JSON: true, Prefix: "node-1", Out: buf})
	logger.Debug("hidden")
	logger.Warnf("pool at %d%%", 90)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	line := make(map[string]any)
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "pool at 90%", line["msg"])
	require.Equal(t, "node-1", line["node"])
}

func TestLogBuffer(t *testing.T) {
	buf := NewLogBuffer(3)
	l := NewLogger(LoggerConfig{Level: DebugLevel, Prefix: "node-0", Out: buf})
	l.Info("started")
	l.Error("gossip failed")
	l.Debug("tick")
	l.Warn("pool almost full")
	lines := buf.Lines()
	// only the last three lines are retained, without color codes
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "ERROR: [node-0] gossip failed")
	require.NotContains(t, strings.Join(lines, ""), "\x1b[")
	// partial writes are joined
	_, _ = buf.Write([]byte("half"))
	_, _ = buf.Write([]byte(" line\n"))
	require.Equal(t, "half line", buf.Lines()[2])
}

func TestLogFilter(t *testing.T) {
	lines := []string{"INFO: a", "ERROR: b", "INFO: bc", "ERROR: c"}
	require.Equal(t, []string{"ERROR: b", "ERROR: c"}, LogFilter{OnlyErrors: true}.Apply(lines))
	require.Equal(t, []string{"ERROR: b", "INFO: bc"}, LogFilter{Contains: "b"}.Apply(lines))
	require.Equal(t, []string{"ERROR: c"}, LogFilter{OnlyErrors: true, Tail: 1}.Apply(lines))
	require.Equal(t, lines, LogFilter{}.Apply(lines))
}
