// Package secrets resolves credentials such as document passwords from
// pluggable sources with read-through caching, so batch ingestion does not
// hit the backing store once per file.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// ErrNotFound reports a secret absent from the source.
var ErrNotFound = errors.New("secret not found")

// Key identifies a secret. Namespace groups related entries, for example
// one per document collection.
type Key struct {
	Namespace string
	Name      string
}

func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// Source fetches secret values from a backing store.
type Source interface {
	Fetch(ctx context.Context, key Key) (string, error)
}

// Cache is a read-through cache over a Source. Safe for concurrent use.
type Cache struct {
	source Source

	mu     sync.RWMutex
	values map[Key]string
}

// NewCache wraps source with caching.
func NewCache(source Source) *Cache {
	return &Cache{source: source, values: make(map[Key]string)}
}

// Get returns the cached value, fetching it on first use. Misses are not
// cached, so a secret created later becomes visible without invalidation.
func (c *Cache) Get(ctx context.Context, key Key) (string, error) {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}
	v, err := c.source.Fetch(ctx, key)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops one cached entry.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.values = make(map[Key]string)
	c.mu.Unlock()
}

// EnvSource reads secrets from process environment variables. A key maps to
// NAMESPACE_NAME, uppercased, with non-alphanumerics folded to underscores.
type EnvSource struct{}

func (EnvSource) Fetch(ctx context.Context, key Key) (string, error) {
	name := envName(key)
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("%w: env %s", ErrNotFound, name)
	}
	return v, nil
}

func envName(key Key) string {
	parts := []string{}
	if key.Namespace != "" {
		parts = append(parts, key.Namespace)
	}
	parts = append(parts, key.Name)
	name := strings.Join(parts, "_")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return name
}

// FileSource reads secrets from a dotenv-format file, loaded once at
// construction.
type FileSource struct {
	values map[string]string
}

// NewFileSource parses the dotenv file at path.
func NewFileSource(path string) (*FileSource, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	return &FileSource{values: values}, nil
}

func (s *FileSource) Fetch(ctx context.Context, key Key) (string, error) {
	name := envName(key)
	v, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}
