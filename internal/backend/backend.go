// Package backend is a thin typed facade over the managed backend: table reads,
// remote procedures and object storage. It performs no retries, batching or caching.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Tables runs read queries and returns the matching rows as a JSON array.
type Tables interface {
	Select(ctx context.Context, q Query) ([]byte, error)
}

// Procedures invokes remote procedures by name and returns their JSON result
// ("null" for procedures without a result).
type Procedures interface {
	Call(ctx context.Context, name string, params Params) ([]byte, error)
}

// Objects is object storage scoped by bucket.
type Objects interface {
	// Upload stores body under key. With opts.Upsert false an existing key is an error.
	Upload(ctx context.Context, bucket, key string, body io.Reader, opts UploadOptions) error
	// PublicURL derives the public URL of key without a network call.
	PublicURL(bucket, key string) string
	// List returns objects directly under prefix.
	List(ctx context.Context, bucket, prefix string, limit int) ([]Object, error)
	// Remove deletes the given keys.
	Remove(ctx context.Context, bucket string, keys ...string) error
}

// Backend is the full facade handed to services.
type Backend interface {
	Tables
	Procedures
	Objects
}

// Dialer builds facades in the two supported modes.
type Dialer interface {
	// Anonymous returns a facade carrying only the public key.
	Anonymous() Backend
	// WithToken returns a facade that also attaches the admin bearer token.
	WithToken(token string) Backend
}

// Params are named procedure arguments.
type Params map[string]any

// UploadOptions control a single upload.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// Object is a storage listing entry.
type Object struct {
	Name string `json:"name"`
}

// Error is a non-success response reported by the backend.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend: %d: %s", e.Status, e.Message)
}

// SelectInto runs q and decodes the rows into T.
func SelectInto[T any](ctx context.Context, t Tables, q Query) ([]T, error) {
	raw, err := t.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", q.Table, err)
	}
	return out, nil
}

// CallInto invokes a procedure and decodes its result into T.
func CallInto[T any](ctx context.Context, p Procedures, name string, params Params) (T, error) {
	var out T
	raw, err := p.Call(ctx, name, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s result: %w", name, err)
	}
	return out, nil
}

// ObjectKey recovers the storage key from a public URL produced by o.PublicURL.
// URLs from elsewhere fall back to their last path segment.
func ObjectKey(o Objects, bucket, publicURL string) string {
	if publicURL == "" {
		return ""
	}
	prefix := o.PublicURL(bucket, "")
	if strings.HasPrefix(publicURL, prefix) {
		return strings.TrimPrefix(publicURL, prefix)
	}
	if i := strings.LastIndexByte(publicURL, '/'); i >= 0 {
		return publicURL[i+1:]
	}
	return publicURL
}

type composed struct {
	Tables
	Procedures
	Objects
}

// Compose assembles a Backend from independent transports.
func Compose(t Tables, p Procedures, o Objects) Backend {
	return composed{Tables: t, Procedures: p, Objects: o}
}
