package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-ocrion")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-ocrion" {
			t.Errorf("expected path /tmp/test-ocrion, got %s", dir.Path())
		}
	})

	t.Run("with env override", func(t *testing.T) {
		t.Setenv(EnvVar, "/tmp/from-env")
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/from-env" {
			t.Errorf("expected /tmp/from-env, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		t.Setenv(EnvVar, "")
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-ocrion")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-ocrion/config.yaml"},
		{"HistoryPath", dir.HistoryPath(), "/tmp/test-ocrion/history.db"},
		{"HistoryDSN", dir.HistoryDSN(), "sqlite:///tmp/test-ocrion/history.db"},
		{"ExportsDir", dir.ExportsDir(), "/tmp/test-ocrion/exports"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	dir, err := New(filepath.Join(t.TempDir(), "ocrion-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist yet")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	if !dir.Exists() {
		t.Error("directory should exist")
	}
	if _, err := os.Stat(dir.ExportsDir()); err != nil {
		t.Errorf("exports dir missing: %v", err)
	}
	if dir.ConfigExists() {
		t.Error("config should not exist")
	}
	if err := os.WriteFile(dir.ConfigPath(), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !dir.ConfigExists() {
		t.Error("config should exist")
	}
}
