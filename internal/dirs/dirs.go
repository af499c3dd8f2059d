// Package dirs resolves the per-user directories mapgen reads its config
// from and writes the TUI log to.
package dirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "mapgen"

// AppName returns the name used for every per-user directory.
func AppName() string {
	return appName
}

// ConfigDir is $XDG_CONFIG_HOME/mapgen (or ~/.config/mapgen) on linux and
// the platform config root elsewhere.
func ConfigDir() (string, error) {
	return userDir("XDG_CONFIG_HOME", ".config")
}

// DataDir is $XDG_DATA_HOME/mapgen (or ~/.local/share/mapgen) on linux and
// the platform config root elsewhere.
func DataDir() (string, error) {
	return userDir("XDG_DATA_HOME", ".local", "share")
}

func userDir(xdgVar string, linuxFallback ...string) (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv(xdgVar); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(append(append([]string{home}, linuxFallback...), appName)...), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", appName), nil
	default:
		root, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(root, appName), nil
	}
}

// LogFile is where logs go while the TUI owns the terminal.
func LogFile() (string, error) {
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, appName+".log"), nil
}

// Ensure creates path and its parents.
func Ensure(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// EnsureAll creates the config and data directories. Directories that cannot
// be resolved are skipped.
func EnsureAll() error {
	for _, resolve := range []func() (string, error){ConfigDir, DataDir} {
		p, err := resolve()
		if err != nil {
			continue
		}
		if err := Ensure(p); err != nil {
			return err
		}
	}
	return nil
}
