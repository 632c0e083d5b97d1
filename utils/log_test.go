package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentrySlogWriterStripsPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w := NewSentrySlogWriter(logger)

	input := []byte("[Sentry] 2026/01/02 15:04:05 transport ready\nplain line\n")
	n, err := w.Write(input)
	assert.NoError(t, err)
	assert.Equal(t, len(input), n)

	out := buf.String()
	assert.Contains(t, out, "transport ready")
	assert.NotContains(t, out, "[Sentry]")
	assert.NotContains(t, out, "2026/01/02")
	assert.Contains(t, out, "plain line")
}
