package test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// ProjectRoot is the module root, two levels up from this file.
func ProjectRoot() string {
	_, b, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(b), "../..")
}

// Fixture reads internal/<pkg>/testdata/<name>.
func Fixture(t *testing.T, pkg, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(ProjectRoot(), "internal", pkg, "testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s/%s: %v", pkg, name, err)
	}
	return b
}
