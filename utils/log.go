package utils

import (
	"log/slog"
	"strings"
)

const sentryLinePrefix = "[Sentry]"

// SentrySlogWriter funnels the Sentry SDK's debug output into slog so the
// service has a single log stream.
type SentrySlogWriter struct {
	logger *slog.Logger
}

func NewSentrySlogWriter(logger *slog.Logger) *SentrySlogWriter {
	return &SentrySlogWriter{logger: logger}
}

// Write implements io.Writer. Sentry writes lines shaped like
// "[Sentry] 2006/01/02 15:04:05 message"; the prefix and timestamp are
// dropped since slog adds its own.
func (s *SentrySlogWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		if rest, found := strings.CutPrefix(line, sentryLinePrefix+" "); found {
			fields := strings.SplitN(rest, " ", 3)
			if len(fields) == 3 {
				s.logger.Debug(fields[2])
				continue
			}
		}
		s.logger.Debug(line)
	}
	return len(p), nil
}
