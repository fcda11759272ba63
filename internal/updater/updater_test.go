package updater

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestBackupCreateRestore(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "echotherm")
	writeFile(t, exe, "v1")

	m, err := newBackupManager(filepath.Join(dir, "backup"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.version(); ok {
		t.Fatal("fresh manager should have no backup")
	}
	if err := m.restore(); err == nil {
		t.Error("restore without backup should fail")
	}

	if err := m.create(exe, "1.0.0"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, exe, "v2")

	if err := m.restore(); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, exe); got != "v1" {
		t.Errorf("restored binary = %q, want v1", got)
	}
	info, err := os.Stat(exe)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("restored binary mode = %v, want executable", info.Mode())
	}

	reloaded, err := newBackupManager(filepath.Join(dir, "backup"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reloaded.version(); !ok || v != "1.0.0" {
		t.Errorf("reloaded version = %q, %v", v, ok)
	}
}

func TestBackupMissingBinaryIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, backupInfoFilename), `{"version":"1.0.0","exec_path":"/x"}`)

	m, err := newBackupManager(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.version(); ok {
		t.Error("metadata without a binary should not count as a backup")
	}
}

func TestDisabledService(t *testing.T) {
	svc := disabled("read-only filesystem", testLogger())
	ctx := context.Background()

	if svc.IsEnabled() || svc.DisabledReason() != "read-only filesystem" {
		t.Fatalf("enabled=%v reason=%q", svc.IsEnabled(), svc.DisabledReason())
	}
	if _, err := svc.CheckForUpdate(ctx); Code(err) != ErrCodeDisabled {
		t.Errorf("CheckForUpdate code = %q", Code(err))
	}
	if err := svc.ApplyUpdate(ctx); Code(err) != ErrCodeDisabled {
		t.Errorf("ApplyUpdate code = %q", Code(err))
	}
	if err := svc.Rollback(ctx); Code(err) != ErrCodeDisabled {
		t.Errorf("Rollback code = %q", Code(err))
	}
	if st := svc.GetStatus(ctx); st.State != StateIdle || st.BackupAvailable {
		t.Errorf("status = %+v", st)
	}
}

func TestRollback(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "echotherm")
	writeFile(t, exe, "old")

	backups, err := newBackupManager(filepath.Join(dir, "backup"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	restarted := make(chan struct{}, 1)
	svc := &service{
		backups:    backups,
		executable: exe,
		restart:    func() { restarted <- struct{}{} },
		state:      StateIdle,
		enabled:    true,
		logger:     testLogger(),
	}

	if err := svc.Rollback(context.Background()); Code(err) != ErrCodeNoBackup {
		t.Fatalf("Rollback without backup: %v", err)
	}

	if err := backups.create(exe, "0.9.0"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, exe, "new")

	if err := svc.Rollback(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, exe); got != "old" {
		t.Errorf("binary = %q, want old", got)
	}
	st := svc.GetStatus(context.Background())
	if st.State != StateRolledBack || st.BackupVersion != "0.9.0" {
		t.Errorf("status = %+v", st)
	}

	select {
	case <-restarted:
	case <-time.After(2 * time.Second):
		t.Fatal("restart was not requested")
	}
}

func TestTransitionTo(t *testing.T) {
	svc := &service{state: StateIdle, logger: testLogger()}

	if !svc.transitionTo(StateChecking, StateIdle, StateError) {
		t.Fatal("idle -> checking should be allowed")
	}
	if svc.transitionTo(StateDownloading, StateAvailable) {
		t.Fatal("checking -> downloading should be refused")
	}
	svc.setError(os.ErrPermission)
	if st := svc.GetStatus(context.Background()); st.State != StateError || st.Error == "" {
		t.Errorf("status = %+v", st)
	}
	if !svc.transitionTo(StateIdle) {
		t.Fatal("unconditional transition refused")
	}
	if st := svc.GetStatus(context.Background()); st.Error != "" {
		t.Errorf("transition should clear the error, got %q", st.Error)
	}
}

func TestCheckWritePermission(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "echotherm")
	writeFile(t, exe, "bin")

	if ok, reason := checkWritePermission(exe); !ok {
		t.Errorf("writable dir reported as %q", reason)
	}
	if ok, _ := checkWritePermission(filepath.Join(dir, "missing")); ok {
		t.Error("missing executable should not be writable")
	}
}
