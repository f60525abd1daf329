// Package backendtest provides an in-memory backend for tests: tables with
// filter and order support, scripted procedures and a recording object store.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/lytoranea/website/internal/backend"
)

// Call records one operation against the fake.
type Call struct {
	Op     string // select, call, upload, remove, list
	Token  string // admin token of the facade used, "" for anonymous
	Name   string // table or procedure
	Bucket string
	Keys   []string
	Params backend.Params
	Opts   backend.UploadOptions
}

// Fake is both a backend.Dialer and the shared state behind every facade it hands out.
type Fake struct {
	BaseURL string

	mu      sync.Mutex
	rows    map[string][]map[string]any
	replies map[string]func(backend.Params) ([]byte, error)
	objects map[string][]byte

	UploadErr error
	RemoveErr error
	ListErr   error
	SelectErr error

	calls []Call
}

var _ backend.Dialer = (*Fake)(nil)

// New returns an empty fake serving public URLs under https://fake.local.
func New() *Fake {
	return &Fake{
		BaseURL: "https://fake.local",
		rows:    map[string][]map[string]any{},
		replies: map[string]func(backend.Params) ([]byte, error){},
		objects: map[string][]byte{},
	}
}

// SetRows replaces the rows of table with v (any JSON-encodable slice).
func (f *Fake) SetRows(table string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(b, &rows); err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.rows[table] = rows
	f.mu.Unlock()
}

// Reply scripts procedure name to return result (JSON) or err.
func (f *Fake) Reply(name, result string, err error) {
	f.Handle(name, func(backend.Params) ([]byte, error) {
		if err != nil {
			return nil, err
		}
		return []byte(result), nil
	})
}

// Handle scripts procedure name with fn. Unscripted procedures return null.
func (f *Fake) Handle(name string, fn func(backend.Params) ([]byte, error)) {
	f.mu.Lock()
	f.replies[name] = fn
	f.mu.Unlock()
}

// PutObject seeds an object.
func (f *Fake) PutObject(bucket, key string, data []byte) {
	f.mu.Lock()
	f.objects[bucket+"/"+key] = data
	f.mu.Unlock()
}

// HasObject reports whether bucket/key is stored.
func (f *Fake) HasObject(bucket, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[bucket+"/"+key]
	return ok
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls with the given op.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ProcCalls returns the recorded invocations of procedure name.
func (f *Fake) ProcCalls(name string) []Call {
	var out []Call
	for _, c := range f.CallsOf("call") {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Anonymous implements backend.Dialer.
func (f *Fake) Anonymous() backend.Backend { return &facade{f: f} }

// WithToken implements backend.Dialer.
func (f *Fake) WithToken(token string) backend.Backend { return &facade{f: f, token: token} }

func (f *Fake) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

type facade struct {
	f     *Fake
	token string
}

func (x *facade) Select(_ context.Context, q backend.Query) ([]byte, error) {
	x.f.record(Call{Op: "select", Token: x.token, Name: q.Table})
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if x.f.SelectErr != nil {
		return nil, x.f.SelectErr
	}
	x.f.mu.Lock()
	src := x.f.rows[q.Table]
	x.f.mu.Unlock()

	out := make([]map[string]any, 0, len(src))
	for _, r := range src {
		if matches(r, q.Filters) {
			out = append(out, project(r, q.Columns))
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return json.Marshal(out)
}

func (x *facade) Call(_ context.Context, name string, p backend.Params) ([]byte, error) {
	x.f.record(Call{Op: "call", Token: x.token, Name: name, Params: p})
	x.f.mu.Lock()
	fn := x.f.replies[name]
	x.f.mu.Unlock()
	if fn == nil {
		return []byte("null"), nil
	}
	return fn(p)
}

func (x *facade) Upload(_ context.Context, bucket, key string, r io.Reader, opts backend.UploadOptions) error {
	x.f.record(Call{Op: "upload", Token: x.token, Bucket: bucket, Keys: []string{key}, Opts: opts})
	if x.f.UploadErr != nil {
		return x.f.UploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	x.f.mu.Lock()
	defer x.f.mu.Unlock()
	if _, exists := x.f.objects[bucket+"/"+key]; exists && !opts.Upsert {
		return &backend.Error{Status: 409, Code: "Duplicate", Message: "The resource already exists"}
	}
	x.f.objects[bucket+"/"+key] = data
	return nil
}

func (x *facade) PublicURL(bucket, key string) string {
	return x.f.BaseURL + "/storage/v1/object/public/" + bucket + "/" + key
}

func (x *facade) List(_ context.Context, bucket, prefix string, limit int) ([]backend.Object, error) {
	x.f.record(Call{Op: "list", Token: x.token, Bucket: bucket, Keys: []string{prefix}})
	if x.f.ListErr != nil {
		return nil, x.f.ListErr
	}
	dir := bucket + "/"
	if prefix != "" {
		dir += strings.TrimSuffix(prefix, "/") + "/"
	}
	x.f.mu.Lock()
	defer x.f.mu.Unlock()
	var out []backend.Object
	for k := range x.f.objects {
		rest, ok := strings.CutPrefix(k, dir)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, backend.Object{Name: rest})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (x *facade) Remove(_ context.Context, bucket string, keys ...string) error {
	x.f.record(Call{Op: "remove", Token: x.token, Bucket: bucket, Keys: keys})
	if x.f.RemoveErr != nil {
		return x.f.RemoveErr
	}
	x.f.mu.Lock()
	defer x.f.mu.Unlock()
	for _, k := range keys {
		delete(x.f.objects, bucket+"/"+k)
	}
	return nil
}

func matches(r map[string]any, filters []backend.Filter) bool {
	for _, fl := range filters {
		eq := fmt.Sprint(r[fl.Column]) == fmt.Sprint(fl.Value)
		if (fl.Op == backend.Eq) != eq {
			return false
		}
	}
	return true
}

func project(r map[string]any, cols []string) map[string]any {
	if len(cols) == 0 {
		return r
	}
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		out[c] = r[c]
	}
	return out
}

func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
