package testsupport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteStagedInput creates input_<index> under a job's staging directory and
// fills it with size copies of the index digit, so tests can tell inputs
// apart by content. A size <= 0 writes one byte.
func WriteStagedInput(t testing.TB, jobDir string, index, size int) string {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", jobDir, err)
	}
	path := filepath.Join(jobDir, fmt.Sprintf("input_%d", index))
	fill := []byte{byte('0' + index%10)}
	if err := os.WriteFile(path, bytes.Repeat(fill, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
