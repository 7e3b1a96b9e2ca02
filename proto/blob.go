package proto

import (
	"context"
	"net/url"
)

const OctetStream = "application/octet-stream"

// A BlobStore durably stores opaque byte objects under string keys.
type BlobStore interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Delete removes the object stored under key. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, key string) error

	// PublicURL returns the address at which the object can be fetched,
	// if the store exposes it.
	PublicURL(key string) (*url.URL, error)
}
