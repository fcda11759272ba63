package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	backupFilename     = "echotherm.backup"
	backupInfoFilename = "backup.json"
)

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

// backupManager keeps one copy of the previous binary plus its metadata.
type backupManager struct {
	mu     sync.RWMutex
	dir    string
	info   *backupInfo
	logger *slog.Logger
}

func defaultBackupDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "echotherm", "backup"), nil
}

func newBackupManager(dir string, logger *slog.Logger) (*backupManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	m := &backupManager{dir: dir, logger: logger}
	m.load()
	return m, nil
}

func (m *backupManager) binaryPath() string {
	return filepath.Join(m.dir, backupFilename)
}

func (m *backupManager) load() {
	data, err := os.ReadFile(filepath.Join(m.dir, backupInfoFilename))
	if err != nil {
		return
	}
	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		m.logger.Warn("Failed to parse backup info", "error", err)
		return
	}
	if _, err := os.Stat(m.binaryPath()); err != nil {
		m.logger.Warn("Backup file missing", "path", m.binaryPath())
		return
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
	m.logger.Info("Loaded backup info", "version", info.Version)
}

// create copies execPath into the backup directory and records version.
func (m *backupManager) create(execPath, version string) error {
	if err := copyFile(execPath, m.binaryPath()); err != nil {
		return err
	}

	info := backupInfo{Version: version, CreatedAt: time.Now(), ExecPath: execPath}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal backup info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup info: %w", err)
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
	m.logger.Info("Backup created", "version", version, "path", m.binaryPath())
	return nil
}

func (m *backupManager) restore() error {
	m.mu.RLock()
	info := m.info
	m.mu.RUnlock()
	if info == nil {
		return errors.New("no backup available")
	}

	if err := copyFile(m.binaryPath(), info.ExecPath); err != nil {
		return err
	}
	m.logger.Info("Backup restored", "version", info.Version, "path", info.ExecPath)
	return nil
}

func (m *backupManager) version() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return "", false
	}
	return m.info.Version, true
}

// copyFile writes src over dst through a temporary file in dst's directory
// so a running binary is replaced rather than truncated.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
