package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const fileTimeLayout = "20060102_150405.000"

// resolvePath places empty paths and bare filenames in home. A leading
// "~/" is expanded. Directories, and paths ending in a separator, get
// defaultName appended.
func resolvePath(path, home, defaultName string) string {
	dirArg := strings.HasSuffix(path, string(os.PathSeparator))
	switch {
	case path == "":
		return filepath.Join(home, defaultName)
	case path == "~":
		path, dirArg = home, true
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(home, path[2:])
	case !strings.ContainsRune(path, os.PathSeparator):
		path = filepath.Join(home, path)
	default:
		path = filepath.Clean(path)
	}
	if dirArg || isDir(path) {
		return filepath.Join(path, defaultName)
	}
	return path
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// checkWritable reports whether files can be created next to path.
func checkWritable(path string) error {
	dir := filepath.Dir(path)
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	return nil
}

func timestampName(prefix, ext string, t time.Time) string {
	return prefix + "_" + strings.ReplaceAll(t.UTC().Format(fileTimeLayout), ".", "_") + ext
}

func homeDir(configured string) string {
	if configured != "" {
		return configured
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}
