package foldersync

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenFolder shows path in the desktop file manager without waiting for it.
func OpenFolder(path string) error {
	cmd := exec.Command(opener(runtime.GOOS), path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	go cmd.Wait() //nolint:errcheck
	return nil
}

func opener(goos string) string {
	switch goos {
	case "darwin":
		return "open"
	case "windows":
		return "explorer"
	default:
		return "xdg-open"
	}
}
