// Package content resolves content-store references into byte streams.
//
// References take the form content://<store>/<key>. The "dir" store maps keys
// to files below a local root; the "simple-content" store treats the key as a
// content UUID and streams it from a simple-content service.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Scheme is the URI scheme handled by this package.
const Scheme = "content"

var (
	// ErrUnknownStore reports a reference to a store that is not configured.
	ErrUnknownStore = errors.New("unknown content store")
	// ErrInvalidReference reports a malformed content reference.
	ErrInvalidReference = errors.New("invalid content reference")
)

// Resolver opens a read stream for a content reference.
type Resolver interface {
	OpenReadStream(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Store resolves keys within one named store.
type Store interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Reference is a parsed content URI.
type Reference struct {
	Store string
	Key   string
}

// ParseReference splits a content URI into store and key.
func ParseReference(uri string) (Reference, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if !strings.EqualFold(parsed.Scheme, Scheme) {
		return Reference{}, fmt.Errorf("%w: scheme %q", ErrInvalidReference, parsed.Scheme)
	}
	key := strings.TrimPrefix(parsed.Path, "/")
	if parsed.Host == "" || key == "" {
		return Reference{}, fmt.Errorf("%w: %s", ErrInvalidReference, uri)
	}
	return Reference{Store: strings.ToLower(parsed.Host), Key: key}, nil
}

// Router dispatches references to registered stores by name.
type Router struct {
	stores map[string]Store
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{stores: make(map[string]Store)}
}

// Register binds name to store.
func (r *Router) Register(name string, store Store) {
	r.stores[strings.ToLower(name)] = store
}

// Stores lists registered store names.
func (r *Router) Stores() []string {
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	return names
}

// OpenReadStream implements Resolver.
func (r *Router) OpenReadStream(ctx context.Context, uri string) (io.ReadCloser, error) {
	ref, err := ParseReference(uri)
	if err != nil {
		return nil, err
	}
	store, ok := r.stores[ref.Store]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, ref.Store)
	}
	return store.Open(ctx, ref.Key)
}
