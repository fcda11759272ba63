// Package updater replaces the running echotherm binary with the latest
// GitHub release, keeping one backup for rollback.
package updater

import (
	"context"
	"time"
)

// DefaultRepository is the release source when none is configured.
const DefaultRepository = "smazurov/echotherm"

// State is the updater's position in the check/apply cycle.
type State string

// Update states.
const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateAvailable   State = "available"
	StateDownloading State = "downloading"
	StateApplying    State = "applying"
	StateRestarting  State = "restarting"
	StateError       State = "error"
	StateRolledBack  State = "rolled_back"
)

// Service checks for, applies and rolls back updates.
type Service interface {
	// CheckForUpdate compares the latest release with the running version.
	CheckForUpdate(ctx context.Context) (*UpdateInfo, error)

	// ApplyUpdate backs up the binary, installs the latest release and
	// requests a restart.
	ApplyUpdate(ctx context.Context) error

	// Rollback restores the backup and requests a restart.
	Rollback(ctx context.Context) error

	GetStatus(ctx context.Context) *Status

	// IsEnabled is false when the binary's directory is not writable.
	IsEnabled() bool
	DisabledReason() string
}

// UpdateInfo describes the latest release.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitzero"`
	AssetSize       int       `json:"asset_size,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// Status is the updater state reported by the API.
type Status struct {
	State           State      `json:"state" enum:"idle,checking,available,downloading,applying,restarting,error,rolled_back"`
	CurrentVersion  string     `json:"current_version"`
	TargetVersion   string     `json:"target_version,omitempty"`
	Error           string     `json:"error,omitempty"`
	LastChecked     *time.Time `json:"last_checked,omitempty"`
	BackupAvailable bool       `json:"backup_available"`
	BackupVersion   string     `json:"backup_version,omitempty"`
}

// Options configures the service. Zero values pick defaults.
type Options struct {
	Repository string // GitHub slug
	Prerelease bool
	BackupDir  string // default ~/.cache/echotherm/backup
	Executable string // default: the running binary
	// Restart is called after a successful apply or rollback. The default
	// sends SIGTERM to the current process so systemd restarts it.
	Restart func()
}
