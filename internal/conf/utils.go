package conf

import (
	"os"
	"path/filepath"
)

const appDirName = "dogs"

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, appDirName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appDirName))
	}

	return append(paths, ".")
}

// DefaultConfigFile is where "dogs config init" writes when no path is given.
func DefaultConfigFile() string {
	return filepath.Join(GetDefaultConfigPaths()[0], "config.yaml")
}

// defaultDataDir places the database and images in the user cache directory.
func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}
