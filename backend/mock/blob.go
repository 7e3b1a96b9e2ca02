package mock

import (
	"context"
	"net/url"
	"path"
	"sort"
	"sync"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

type blob struct {
	data        []byte
	contentType string
}

// BlobStore keeps blobs in memory. FailFunc, if set, is consulted before
// every Put and its error returned.
type BlobStore struct {
	sync.Mutex
	BaseURL  string
	FailFunc func(key string) error

	blobs map[string]blob
	puts  int
}

var _ proto.BlobStore = (*BlobStore)(nil)

func NewBlobStore(baseURL string) *BlobStore {
	return &BlobStore{BaseURL: baseURL, blobs: map[string]blob{}}
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.Lock()
	fail := s.FailFunc
	s.Unlock()
	if fail != nil {
		if err := fail(key); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	s.Lock()
	defer s.Unlock()
	if s.blobs == nil {
		s.blobs = map[string]blob{}
	}
	s.blobs[key] = blob{data: copied, contentType: contentType}
	s.puts++
	return nil
}

func (s *BlobStore) SetFailFunc(f func(key string) error) {
	s.Lock()
	s.FailFunc = f
	s.Unlock()
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *BlobStore) PublicURL(key string) (*url.URL, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join("/", u.Path, key)
	return u, nil
}

// Get returns a stored blob and its content type.
func (s *BlobStore) Get(key string) ([]byte, string, bool) {
	s.Lock()
	defer s.Unlock()
	b, ok := s.blobs[key]
	return b.data, b.contentType, ok
}

// Keys returns the keys of all stored blobs in sorted order.
func (s *BlobStore) Keys() []string {
	s.Lock()
	defer s.Unlock()
	keys := make([]string, 0, len(s.blobs))
	for key := range s.blobs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Puts counts successful puts.
func (s *BlobStore) Puts() int {
	s.Lock()
	defer s.Unlock()
	return s.puts
}
