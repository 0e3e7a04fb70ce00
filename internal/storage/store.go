package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"skinstudio/internal/domain"
	"skinstudio/internal/infra"
)

// Storage kinds reported to clients.
const (
	KindB2    = "b2"
	KindLocal = "local"
)

// Local cache directories, also used as the public static URL path segment.
const (
	DirUploads  = "uploads"
	DirEnhanced = "enhanced"
)

// ProxyPath is the public route that streams remote objects back to clients.
const ProxyPath = "/skin-studio/b2-proxy/"

// Locator identifies where a stored image can be fetched from.
type Locator struct {
	URL  string
	Kind string
}

// Options wires a Store.
type Options struct {
	Remote        Remote
	Uploads       *FileStore
	Enhanced      *FileStore
	PublicBaseURL string
	Timeout       time.Duration
	Logger        *infra.Logger
}

// Store writes to the remote bucket when it can and degrades to the local
// caches otherwise. Put never fails because the remote is down.
type Store struct {
	remote   Remote
	uploads  *FileStore
	enhanced *FileStore
	baseURL  string
	timeout  time.Duration
	logger   *infra.Logger
}

func NewStore(opts Options) (*Store, error) {
	if opts.Uploads == nil || opts.Enhanced == nil {
		return nil, errors.New("storage: uploads and enhanced caches are required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		remote:   opts.Remote,
		uploads:  opts.Uploads,
		enhanced: opts.Enhanced,
		baseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		timeout:  timeout,
		logger:   infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Uploads returns the uploads cache.
func (s *Store) Uploads() *FileStore { return s.uploads }

// Enhanced returns the enhanced output cache.
func (s *Store) Enhanced() *FileStore { return s.enhanced }

// RemoteConfigured reports whether a remote bucket is wired.
func (s *Store) RemoteConfigured() bool { return s.remote != nil }

// Put uploads the file at localPath under key. Any remote failure is logged
// and answered with the local static locator for dir.
func (s *Store) Put(ctx context.Context, localPath, key, dir string) Locator {
	local := Locator{URL: s.LocalURL(dir, key), Kind: KindLocal}
	if s.remote == nil {
		s.logger.Debug().Str("key", key).Msg("remote storage not configured, serving locally")
		return local
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	remoteURL, err := s.remote.Upload(ctx, localPath, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("remote upload failed, falling back to local storage")
		return local
	}
	s.logger.Info().Str("key", key).Str("url", remoteURL).Msg("stored image remotely")
	return Locator{URL: remoteURL, Kind: KindB2}
}

// Open serves key from the local caches, downloading it from the remote bucket
// into the uploads cache on a miss.
func (s *Store) Open(ctx context.Context, key string) (*os.File, error) {
	if _, err := sanitizeKey(key); err != nil {
		return nil, err
	}
	if f, err := s.uploads.Open(key); err == nil {
		return f, nil
	}
	if f, err := s.enhanced.Open(key); err == nil {
		return f, nil
	}
	if s.remote == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	dest, err := s.uploads.Path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.uploads.BasePath(), 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure uploads dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.remote.Download(ctx, key, dest); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("key", key).Msg("cached remote object locally")
	return s.uploads.Open(key)
}

// Locate reports KindB2 when key exists in the remote bucket, KindLocal otherwise.
func (s *Store) Locate(ctx context.Context, key string) string {
	if s.remote == nil {
		return KindLocal
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.remote.Exists(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("remote existence check failed")
		return KindLocal
	}
	if ok {
		return KindB2
	}
	return KindLocal
}

// LocalURL returns the public static URL for key inside dir.
func (s *Store) LocalURL(dir, key string) string {
	return s.baseURL + "/" + dir + "/" + url.PathEscape(key)
}

// ProxyURL rewrites remote bucket URLs to the proxy route. Other URLs are
// returned unchanged.
func (s *Store) ProxyURL(raw string) string {
	if s.remote == nil || raw == "" {
		return raw
	}
	prefix := s.remote.URLPrefix()
	if prefix == "" || !strings.HasPrefix(raw, prefix) {
		return raw
	}
	return s.baseURL + ProxyPath + strings.TrimPrefix(raw, prefix)
}
