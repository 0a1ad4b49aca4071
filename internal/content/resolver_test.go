package content

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"mediaconv/internal/config"
	"mediaconv/internal/testsupport"
)

type fakeDownloader struct {
	data  map[uuid.UUID]string
	asked []uuid.UUID
}

func (f *fakeDownloader) DownloadContent(_ context.Context, id uuid.UUID) (io.ReadCloser, error) {
	f.asked = append(f.asked, id)
	body, ok := f.data[id]
	if !ok {
		return nil, errors.New("content not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestParseReference(t *testing.T) {
	ref, err := ParseReference("content://Dir/videos/a.mp4")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if ref.Store != "dir" || ref.Key != "videos/a.mp4" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	for _, bad := range []string{"http://dir/a", "content://dir/", "content:///a"} {
		if _, err := ParseReference(bad); !errors.Is(err, ErrInvalidReference) {
			t.Fatalf("ParseReference(%q) err = %v, want ErrInvalidReference", bad, err)
		}
	}
}

func TestDirStore(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "videos"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "videos", "a.mp4"), []byte("frames"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	router := NewRouter()
	router.Register(DirStoreName, DirStore{Root: root})

	rc, err := router.OpenReadStream(context.Background(), "content://dir/videos/a.mp4")
	if err != nil {
		t.Fatalf("OpenReadStream: %v", err)
	}
	if got := readAll(t, rc); got != "frames" {
		t.Fatalf("read %q", got)
	}

	// Traversal is clamped to the root.
	if _, err := router.OpenReadStream(context.Background(), "content://dir/../../etc/passwd"); err == nil {
		t.Fatal("expected traversal outside root to fail")
	}
	if _, err := router.OpenReadStream(context.Background(), "content://dir/missing.mp4"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestSimpleContentStore(t *testing.T) {
	id := uuid.New()
	fake := &fakeDownloader{data: map[uuid.UUID]string{id: "stream"}}
	router := NewRouter()
	router.Register(SimpleContentStoreName, NewSimpleContentStore(fake))

	rc, err := router.OpenReadStream(context.Background(), "content://simple-content/"+id.String())
	if err != nil {
		t.Fatalf("OpenReadStream: %v", err)
	}
	if got := readAll(t, rc); got != "stream" {
		t.Fatalf("read %q", got)
	}
	if _, err := router.OpenReadStream(context.Background(), "content://simple-content/not-a-uuid"); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	if len(fake.asked) != 1 {
		t.Fatalf("invalid ids must not reach the service, asked %v", fake.asked)
	}
	if _, err := router.OpenReadStream(context.Background(), "content://simple-content/"+uuid.NewString()); err == nil {
		t.Fatal("expected missing content error")
	}
}

func TestUnknownStore(t *testing.T) {
	router := NewRouter()
	if _, err := router.OpenReadStream(context.Background(), "content://media/1"); !errors.Is(err, ErrUnknownStore) {
		t.Fatalf("expected ErrUnknownStore, got %v", err)
	}
}

func TestNewFromConfigRegistersDirStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Content.Backend = config.ContentBackendDir
	router, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if stores := router.Stores(); len(stores) != 1 || stores[0] != DirStoreName {
		t.Fatalf("stores = %v", stores)
	}
}
