package utils

import (
	"log/slog"
	net "net/http"
)

// LoggingRoundTripper traces every call to the GitHub API together with the
// rate-limit headers of the response, so quota exhaustion can be diagnosed
// from the logs.
type LoggingRoundTripper struct {
	Rt net.RoundTripper
}

func (lrt *LoggingRoundTripper) RoundTrip(req *net.Request) (*net.Response, error) {
	slog.Debug("GitHub API Request",
		"method", req.Method,
		"url_path", req.URL.Path,
	)

	resp, err := lrt.Rt.RoundTrip(req)
	if err != nil {
		slog.Error("GitHub API Request failed", "error", err)
		return nil, err
	}

	slog.Debug("GitHub API Response",
		"status", resp.Status,
		"X-RateLimit-Remaining", resp.Header.Get("X-RateLimit-Remaining"),
		"X-RateLimit-Used", resp.Header.Get("X-RateLimit-Used"),
		"X-RateLimit-Reset", resp.Header.Get("X-RateLimit-Reset"),
	)

	return resp, nil
}
