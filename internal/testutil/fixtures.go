package testutil

import (
	"embed"
	"os"
	"path/filepath"
	"testing"

	"github.com/firefly-engineering/shellcore/internal/config"
)

//go:embed fixtures/*
var fixtures embed.FS

// Fixture returns an embedded fixture, failing the test if it is missing.
func Fixture(t testing.TB, name string) []byte {
	t.Helper()
	data, err := fixtures.ReadFile("fixtures/" + name)
	if err != nil {
		t.Fatalf("fixture %s: %v", name, err)
	}
	return data
}

// CopyFixture writes a fixture into dir and returns its path.
func CopyFixture(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Fixture(t, name), 0o644); err != nil {
		t.Fatalf("fixture %s: %v", name, err)
	}
	return path
}

// LoadRC loads an rc fixture with config.Load, the way the shell reads its
// rc file at startup.
func LoadRC(t testing.TB, name string) (*config.Config, error) {
	t.Helper()
	return config.Load(CopyFixture(t, t.TempDir(), name))
}
