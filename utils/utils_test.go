package utils

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestEnsurePath(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a", "b", "snapshot")
	if err := EnsurePath(file, false); err != nil {
		t.Fatalf("EnsurePath failed: %v", err)
	}
	if fi, err := os.Stat(filepath.Dir(file)); err != nil || !fi.IsDir() {
		t.Errorf("Expected the parent directory to exist: %v", err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("Expected the file itself not to be created")
	}
	dir := filepath.Join(root, "c")
	if err := EnsurePath(dir, true); err != nil {
		t.Fatalf("EnsurePath failed: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("Expected %s to exist: %v", dir, err)
	}
}

func TestNowAsUnixMilli(t *testing.T) {
	before := time.Now().UnixMilli()
	now := NowAsUnixMilli()
	if now < before || now > time.Now().UnixMilli() {
		t.Errorf("Unexpected timestamp %d", now)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in       string
		expected []string
	}{
		{"", nil},
		{" , ", nil},
		{"a", []string{"a"}},
		{"a, b,,c ", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := SplitList(tt.in); !slices.Equal(got, tt.expected) {
			t.Errorf("SplitList(%q): expected %q, got %q", tt.in, tt.expected, got)
		}
	}
}
