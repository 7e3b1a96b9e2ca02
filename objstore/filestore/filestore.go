package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

const metaDir = ".meta"

var (
	ErrInvalidKey = errors.New("invalid key")
	ErrNotFound   = errors.New("blob not found")
	ErrNoBaseURL  = errors.New("store has no public base url")
)

func verifyPath(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return fmt.Errorf("mkdir %s: %s", path, err)
			}
			return nil
		}
		return fmt.Errorf("stat %s: %s", path, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// verifyKey accepts slash separated relative keys whose components are
// neither empty nor dot segments.
func verifyKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.ContainsAny(key, "\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for i, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." || (i == 0 && part == metaDir) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// Open returns a Store keeping blobs under the directory root, creating it
// if needed. Public URLs are formed by resolving keys against baseURL; an
// empty baseURL disables them.
func Open(root, baseURL string) (*Store, error) {
	if err := verifyPath(root); err != nil {
		return nil, err
	}

	store := &Store{root: root}
	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("filestore: base url: %s", err)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		store.base = base
	}
	return store, nil
}

// A Store is a BlobStore on the local filesystem. It also serves stored
// blobs over HTTP.
type Store struct {
	root string
	base *url.URL
}

var _ proto.BlobStore = (*Store)(nil)

func (s *Store) path(key string) string { return filepath.Join(s.root, filepath.FromSlash(key)) }

func (s *Store) metaPath(key string) string {
	return filepath.Join(s.root, metaDir, filepath.FromSlash(key))
}

// Put writes data to a temporary file beside its destination and renames it
// into place, so readers never observe a partial blob.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := verifyKey(key); err != nil {
		return fmt.Errorf("filestore put: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("filestore put: %w", err)
	}

	if err := writeAtomic(s.path(key), data); err != nil {
		return fmt.Errorf("filestore put: %w", err)
	}
	if contentType != "" {
		if err := writeAtomic(s.metaPath(key), []byte(contentType)); err != nil {
			return fmt.Errorf("filestore put: content type: %w", err)
		}
	}
	return nil
}

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := verifyKey(key); err != nil {
		return fmt.Errorf("filestore delete: %w", err)
	}
	for _, p := range []string{s.path(key), s.metaPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("filestore delete: %w", err)
		}
	}
	return nil
}

func (s *Store) PublicURL(key string) (*url.URL, error) {
	if err := verifyKey(key); err != nil {
		return nil, err
	}
	if s.base == nil {
		return nil, ErrNoBaseURL
	}
	u := *s.base
	u.Path = path.Join(s.base.Path, key)
	u.RawPath = ""
	return &u, nil
}

// Get returns a stored blob and its content type.
func (s *Store) Get(key string) ([]byte, string, error) {
	if err := verifyKey(key); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	contentType := proto.OctetStream
	if meta, err := os.ReadFile(s.metaPath(key)); err == nil && len(meta) > 0 {
		contentType = string(meta)
	}
	return data, contentType, nil
}

// ServeHTTP serves the blob named by the request path.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET", "HEAD":
		s.serveGet(w, r)
	default:
		http.Error(w, "invalid method", http.StatusMethodNotAllowed)
	}
}

func (s *Store) serveGet(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	data, contentType, err := s.Get(key)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidKey):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrNotFound):
			http.NotFound(w, r)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != "HEAD" {
		w.Write(data)
	}
}
