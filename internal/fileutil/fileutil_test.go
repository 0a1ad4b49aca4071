package fileutil

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCopyStream(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "input_0")
	n, err := CopyStream(context.Background(), dst, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("CopyStream: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "hello" {
		t.Fatalf("unexpected content %q", got)
	}
}

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("stream broke")
	}
	n := min(len(p), f.after)
	f.after -= n
	return n, nil
}

func TestCopyStreamRemovesPartialOnError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "input_1")
	if _, err := CopyStream(context.Background(), dst, &failingReader{after: 10}); err == nil {
		t.Fatal("expected error from failing reader")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("expected partial file removed, stat err=%v", err)
	}
}

func TestCopyStreamHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dst := filepath.Join(t.TempDir(), "input_2")
	_, err := CopyStream(ctx, dst, io.LimitReader(zeroReader{}, 1<<20))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
