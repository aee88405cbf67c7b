package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWritePIDMarkerAndParse(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	if err := writePIDMarker(dir, "abcd1234", "worker-1", 4242, at); err != nil {
		t.Fatalf("writePIDMarker: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "abcd1234.pid"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	pid, workerID, ok := parsePIDMarker(string(content))
	if !ok {
		t.Fatal("parsePIDMarker returned ok=false for a freshly written marker")
	}
	if pid != 4242 || workerID != "worker-1" {
		t.Errorf("parsePIDMarker = (%d, %q), want (4242, worker-1)", pid, workerID)
	}
}

func TestRemovePIDMarker(t *testing.T) {
	dir := t.TempDir()
	if err := writePIDMarker(dir, "abcd1234", "worker-1", 1, time.Now()); err != nil {
		t.Fatalf("writePIDMarker: %v", err)
	}
	removePIDMarker(dir, "abcd1234")

	if _, err := os.Stat(filepath.Join(dir, "abcd1234.pid")); !os.IsNotExist(err) {
		t.Errorf("marker file still present after removePIDMarker, stat error = %v", err)
	}
}

func TestParsePIDMarker_MalformedContent(t *testing.T) {
	if _, _, ok := parsePIDMarker("not-a-valid-marker"); ok {
		t.Error("parsePIDMarker should reject content with no ':' separator")
	}
	if _, _, ok := parsePIDMarker("not-a-number:worker-1:ts"); ok {
		t.Error("parsePIDMarker should reject a non-numeric pid")
	}
}

func TestProcessAlive_CurrentProcessIsAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("processAlive(os.Getpid()) should be true for the running test process")
	}
}

func TestProcessAlive_ImplausiblePIDIsNotAlive(t *testing.T) {
	if processAlive(1 << 30) {
		t.Error("processAlive should report false for a pid that almost certainly does not exist")
	}
}
