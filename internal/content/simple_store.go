package content

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	simplecontent "github.com/tendant/simple-content/pkg/simplecontent"
	simpleconfig "github.com/tendant/simple-content/pkg/simplecontent/config"

	"mediaconv/internal/config"
)

// SimpleContentStoreName is the store name of the simple-content store.
const SimpleContentStoreName = "simple-content"

// ContentDownloader is the subset of simplecontent.Service the store needs.
type ContentDownloader interface {
	DownloadContent(ctx context.Context, contentID uuid.UUID) (io.ReadCloser, error)
}

var _ ContentDownloader = (simplecontent.Service)(nil)

// SimpleContentStore streams content by UUID key.
type SimpleContentStore struct {
	svc ContentDownloader
}

// NewSimpleContentStore wraps a simple-content service.
func NewSimpleContentStore(svc ContentDownloader) *SimpleContentStore {
	return &SimpleContentStore{svc: svc}
}

// Open implements Store.
func (s *SimpleContentStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	id, err := uuid.Parse(strings.TrimSpace(key))
	if err != nil {
		return nil, fmt.Errorf("%w: content id %q: %v", ErrInvalidReference, key, err)
	}
	reader, err := s.svc.DownloadContent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("download content %s: %w", id, err)
	}
	return reader, nil
}

// BuildSimpleContentService assembles a simple-content service from config.
func BuildSimpleContentService(sc config.SimpleContent) (simplecontent.Service, error) {
	opts := []simpleconfig.Option{
		simpleconfig.WithDatabase(sc.DatabaseType, sc.DatabaseURL),
		simpleconfig.WithDatabaseSchema(sc.DatabaseSchema),
		simpleconfig.WithDefaultStorage(sc.StorageBackend),
	}
	switch sc.StorageBackend {
	case "s3":
		endpoint := strings.TrimSpace(sc.S3Endpoint)
		opts = append(opts, simpleconfig.WithS3StorageFull(
			"s3",
			sc.S3Bucket,
			sc.S3Region,
			sc.S3AccessKeyID,
			sc.S3SecretKey,
			endpoint,
			strings.HasPrefix(endpoint, "https://"),
			endpoint != "",
		))
	default:
		opts = append(opts, simpleconfig.WithMemoryStorage("memory"))
	}
	opts = append(opts, simpleconfig.WithEventLogging(false))

	cfg, err := simpleconfig.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("load simple-content config: %w", err)
	}
	svc, err := cfg.BuildService()
	if err != nil {
		return nil, fmt.Errorf("build simple-content service: %w", err)
	}
	return svc, nil
}

// NewFromConfig builds the resolver for the configured backend. The dir
// store is always registered when a root is set.
func NewFromConfig(cfg *config.Config) (*Router, error) {
	router := NewRouter()
	if cfg == nil {
		return router, nil
	}
	if root := strings.TrimSpace(cfg.Content.Root); root != "" {
		router.Register(DirStoreName, DirStore{Root: root})
	}
	if cfg.Content.Backend == config.ContentBackendSimpleContent {
		svc, err := BuildSimpleContentService(cfg.Content.SimpleContent)
		if err != nil {
			return nil, err
		}
		router.Register(SimpleContentStoreName, NewSimpleContentStore(svc))
	}
	return router, nil
}
