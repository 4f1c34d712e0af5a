package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// NewLogger builds the process logger. The terminal front end owns the
// screen, so it logs to a file in the data directory instead of stderr.
func NewLogger(config *Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	w, closer := stderr, io.Closer(nopCloser{})

	if config.UI == UITerminal && !config.oneShot() {
		if err := os.MkdirAll(config.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(config.DataDir, "peerpad.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = f, f
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: config.LogLevel})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// oneShot reports whether the run prints something and exits.
func (c *Config) oneShot() bool {
	return c.ShowVersion || c.ShowIP || c.Browse || c.ShowRecent || c.ShowDeviceID
}
