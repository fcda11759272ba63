package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/version"
)

// restartDelay lets the API answer before the process goes away.
const restartDelay = 500 * time.Millisecond

type service struct {
	repository selfupdate.Repository
	slug       string
	updater    *selfupdate.Updater
	backups    *backupManager
	executable string
	restart    func()

	mu          sync.RWMutex
	state       State
	latest      *selfupdate.Release
	lastChecked *time.Time
	lastError   error

	enabled        bool
	disabledReason string

	logger *slog.Logger
}

// NewService creates the updater. When the binary cannot be replaced the
// returned service is disabled rather than nil.
func NewService(opts *Options) (Service, error) {
	logger := logging.GetLogger("updater")

	exe := opts.Executable
	if exe == "" {
		var err error
		if exe, err = selfupdate.ExecutablePath(); err != nil {
			return disabled(fmt.Sprintf("failed to get executable path: %v", err), logger), nil
		}
	}
	if ok, reason := checkWritePermission(exe); !ok {
		logger.Warn("Update service disabled", "reason", reason)
		return disabled(reason, logger), nil
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}

	slug := opts.Repository
	if slug == "" {
		slug = DefaultRepository
	}
	dir := opts.BackupDir
	if dir == "" {
		if dir, err = defaultBackupDir(); err != nil {
			logger.Warn("Backups disabled", "error", err)
		}
	}
	var backups *backupManager
	if dir != "" {
		if backups, err = newBackupManager(dir, logger); err != nil {
			logger.Warn("Failed to create backup manager", "error", err)
		}
	}

	s := &service{
		repository: selfupdate.ParseSlug(slug),
		slug:       slug,
		updater:    up,
		backups:    backups,
		executable: exe,
		restart:    opts.Restart,
		state:      StateIdle,
		enabled:    true,
		logger:     logger,
	}
	if s.restart == nil {
		s.restart = s.signalRestart
	}
	return s, nil
}

func disabled(reason string, logger *slog.Logger) *service {
	return &service{state: StateIdle, disabledReason: reason, logger: logger}
}

// checkWritePermission reports whether a file can be created next to exe.
func checkWritePermission(exe string) (bool, string) {
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return false, fmt.Sprintf("failed to resolve symlinks: %v", err)
	}
	dir := filepath.Dir(resolved)
	f, err := os.CreateTemp(dir, ".echotherm.update.*")
	if err != nil {
		return false, fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return true, ""
}

func (s *service) IsEnabled() bool { return s.enabled }

func (s *service) DisabledReason() string { return s.disabledReason }

func (s *service) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if !s.enabled {
		return nil, newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if !s.transitionTo(StateChecking, StateIdle, StateAvailable, StateError, StateRolledBack) {
		return nil, newError(ErrCodeInvalidState,
			fmt.Sprintf("cannot check for updates in state %s", s.getState()), nil)
	}

	current := version.Version
	release, found, err := s.updater.DetectLatest(ctx, s.repository)

	now := time.Now()
	s.mu.Lock()
	s.lastChecked = &now
	s.mu.Unlock()

	if err != nil {
		s.setError(err)
		return nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found {
		err := fmt.Errorf("no release of %s for %s", s.slug, version.Get().Platform)
		s.setError(err)
		return nil, newError(ErrCodeNotFound, "no matching release", err)
	}

	info := &UpdateInfo{
		CurrentVersion: current,
		LatestVersion:  release.Version(),
	}
	// Development builds always count as outdated.
	if current != "dev" && !release.GreaterThan(current) {
		s.transitionTo(StateIdle)
		return info, nil
	}

	s.mu.Lock()
	s.latest = release
	s.mu.Unlock()
	s.transitionTo(StateAvailable)

	info.ReleaseNotes = release.ReleaseNotes
	info.ReleaseURL = release.URL
	info.PublishedAt = release.PublishedAt
	info.AssetSize = release.AssetByteSize
	info.UpdateAvailable = true
	return info, nil
}

func (s *service) ApplyUpdate(ctx context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}

	if s.getState() != StateAvailable {
		info, err := s.CheckForUpdate(ctx)
		if err != nil {
			return err
		}
		if !info.UpdateAvailable {
			return newError(ErrCodeNoUpdate, "no update available", nil)
		}
	}

	if !s.transitionTo(StateDownloading, StateAvailable) {
		return newError(ErrCodeInvalidState,
			fmt.Sprintf("cannot apply update in state %s", s.getState()), nil)
	}

	if s.backups != nil {
		if err := s.backups.create(s.executable, version.Version); err != nil {
			s.setError(err)
			return newError(ErrCodeBackupFailed, "failed to create backup", err)
		}
	}

	s.transitionTo(StateApplying)
	s.mu.RLock()
	release := s.latest
	s.mu.RUnlock()

	if err := s.updater.UpdateTo(ctx, release, s.executable); err != nil {
		s.setError(err)
		s.attemptRollback()
		return newError(ErrCodeApplyFailed, "failed to apply update", err)
	}

	s.transitionTo(StateRestarting)
	s.logger.Info("Update applied, restarting", "version", release.Version())
	s.scheduleRestart()
	return nil
}

func (s *service) Rollback(_ context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if _, ok := s.backupVersion(); !ok {
		return newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := s.backups.restore(); err != nil {
		return newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}

	s.transitionTo(StateRolledBack)
	s.logger.Info("Rollback completed, restarting")
	s.scheduleRestart()
	return nil
}

func (s *service) GetStatus(_ context.Context) *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &Status{
		State:          s.state,
		CurrentVersion: version.Version,
		LastChecked:    s.lastChecked,
	}
	if s.latest != nil {
		status.TargetVersion = s.latest.Version()
	}
	if s.lastError != nil {
		status.Error = s.lastError.Error()
	}
	status.BackupVersion, status.BackupAvailable = s.backupVersion()
	return status
}

func (s *service) backupVersion() (string, bool) {
	if s.backups == nil {
		return "", false
	}
	return s.backups.version()
}

// transitionTo moves to newState if the current state is one of from, or
// unconditionally when from is empty.
func (s *service) transitionTo(newState State, from ...State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(from) > 0 && !slices.Contains(from, s.state) {
		return false
	}
	s.logger.Debug("State transition", "from", s.state, "to", newState)
	s.state = newState
	s.lastError = nil
	return true
}

func (s *service) getState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *service) setError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.state = StateError
	s.mu.Unlock()
}

func (s *service) attemptRollback() {
	if _, ok := s.backupVersion(); !ok {
		s.logger.Error("No backup available for automatic rollback")
		return
	}
	if err := s.backups.restore(); err != nil {
		s.logger.Error("Failed to restore backup", "error", err)
		return
	}
	s.transitionTo(StateRolledBack)
	s.logger.Info("Automatic rollback completed")
}

func (s *service) scheduleRestart() {
	time.AfterFunc(restartDelay, s.restart)
}

func (s *service) signalRestart() {
	s.logger.Info("Sending SIGTERM to trigger restart")
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		s.logger.Error("Failed to send SIGTERM", "error", err)
	}
}
