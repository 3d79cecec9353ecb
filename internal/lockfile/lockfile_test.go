package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tempDir, LockFileName)
	content, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	expected := fmt.Sprintf("pid=%d\n", os.Getpid())
	if string(content) != expected {
		t.Errorf("Lock file content mismatch. Expected %q, got %q", expected, string(content))
	}
}

func TestLockConflict(t *testing.T) {
	tempDir := t.TempDir()

	lock1, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(tempDir)
	if err == nil {
		lock2.Release()
		t.Fatal("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got %T", err)
	}
	errMsg := err.Error()
	if !strings.Contains(errMsg, "another dreamstone instance") {
		t.Errorf("Error should mention another instance, got: %s", errMsg)
	}
	if !strings.Contains(errMsg, tempDir) {
		t.Errorf("Error should contain the lock path, got: %s", errMsg)
	}
	// The holder is this process, so the error should report it running.
	if !strings.Contains(errMsg, fmt.Sprintf("PID %d (running)", os.Getpid())) {
		t.Errorf("Error should report the holding PID, got: %s", errMsg)
	}

	// The failed attempt must not disturb the holder's record.
	content, err := os.ReadFile(filepath.Join(tempDir, LockFileName))
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	expected := fmt.Sprintf("pid=%d\n", os.Getpid())
	if string(content) != expected {
		t.Errorf("Lock file content after failed attempt: expected %q, got %q", expected, string(content))
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
	// Releasing again is a no-op.
	if err := lock.Release(); err != nil {
		t.Errorf("Second release should not error: %v", err)
	}

	lockPath := filepath.Join(tempDir, LockFileName)
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release: %v", err)
	}

	lock2, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	lock2.Release()
}

func TestExtractPID(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"pid=1234\n", 1234},
		{"pid=1", 1},
		{"pid=", 0},
		{"no pid here", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := extractPID(tc.content); got != tc.want {
			t.Errorf("extractPID(%q) = %d, want %d", tc.content, got, tc.want)
		}
	}
}
