// Package rest implements the backend facade over the managed backend's HTTP APIs
// (PostgREST for tables and procedures, the storage API for objects).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lytoranea/website/internal/backend"
)

// AdminTokenHeader carries the admin bearer token on privileged requests.
const AdminTokenHeader = "x-admin-token"

// Config locates the backend.
type Config struct {
	BaseURL string        // e.g. https://<project>.supabase.co
	AnonKey string        // public key, sent on every request
	Timeout time.Duration // HTTP client timeout, 0 keeps the transport default
}

// Dialer builds REST facades sharing one http.Client.
type Dialer struct {
	cfg  Config
	http *http.Client
}

var _ backend.Dialer = (*Dialer)(nil)

// NewDialer constructs a dialer. A nil hc uses a client with cfg.Timeout.
func NewDialer(cfg Config, hc *http.Client) *Dialer {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Dialer{cfg: cfg, http: hc}
}

// Anonymous returns a facade without admin credentials.
func (d *Dialer) Anonymous() backend.Backend { return &Client{cfg: d.cfg, http: d.http} }

// WithToken returns a facade attaching token in AdminTokenHeader.
func (d *Dialer) WithToken(token string) backend.Backend {
	return &Client{cfg: d.cfg, http: d.http, token: token}
}

// Client is one facade instance; the token is fixed at construction.
type Client struct {
	cfg   Config
	http  *http.Client
	token string
}

var _ backend.Backend = (*Client)(nil)

// Select issues GET /rest/v1/<table> with PostgREST filters.
func (c *Client) Select(ctx context.Context, q backend.Query) ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	v := url.Values{}
	if len(q.Columns) > 0 {
		v.Set("select", strings.Join(q.Columns, ","))
	} else {
		v.Set("select", "*")
	}
	for _, f := range q.Filters {
		v.Add(f.Column, string(f.Op)+"."+fmt.Sprint(f.Value))
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		v.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	body, err := c.do(ctx, http.MethodGet, "/rest/v1/"+q.Table+"?"+v.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("[]"), nil
	}
	return body, nil
}

// Call issues POST /rest/v1/rpc/<name> with params as the JSON body.
func (c *Client) Call(ctx context.Context, name string, params backend.Params) ([]byte, error) {
	if !backend.ValidIdent(name) {
		return nil, fmt.Errorf("bad procedure %q", name)
	}
	if params == nil {
		params = backend.Params{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	hdr := http.Header{"Content-Type": {"application/json"}}
	body, err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+name, bytes.NewReader(payload), hdr)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("null"), nil
	}
	return body, nil
}

// Upload issues POST /storage/v1/object/<bucket>/<key>.
func (c *Client) Upload(ctx context.Context, bucket, key string, r io.Reader, opts backend.UploadOptions) error {
	hdr := http.Header{}
	ct := opts.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	hdr.Set("Content-Type", ct)
	if opts.CacheControl != "" {
		hdr.Set("cache-control", "max-age="+opts.CacheControl)
	}
	hdr.Set("x-upsert", strconv.FormatBool(opts.Upsert))
	_, err := c.do(ctx, http.MethodPost, "/storage/v1/object/"+bucket+"/"+key, r, hdr)
	return err
}

// PublicURL is derived locally, following the storage API's public path convention.
func (c *Client) PublicURL(bucket, key string) string {
	return c.cfg.BaseURL + "/storage/v1/object/public/" + bucket + "/" + key
}

// List issues POST /storage/v1/object/list/<bucket>.
func (c *Client) List(ctx context.Context, bucket, prefix string, limit int) ([]backend.Object, error) {
	req := map[string]any{
		"prefix": prefix,
		"limit":  limit,
		"offset": 0,
		"sortBy": map[string]string{"column": "name", "order": "asc"},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	hdr := http.Header{"Content-Type": {"application/json"}}
	body, err := c.do(ctx, http.MethodPost, "/storage/v1/object/list/"+bucket, bytes.NewReader(payload), hdr)
	if err != nil {
		return nil, err
	}
	var out []backend.Object
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return out, nil
}

// Remove issues DELETE /storage/v1/object/<bucket> with the keys as prefixes.
func (c *Client) Remove(ctx context.Context, bucket string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]string{"prefixes": keys})
	if err != nil {
		return err
	}
	hdr := http.Header{"Content-Type": {"application/json"}}
	_, err = c.do(ctx, http.MethodDelete, "/storage/v1/object/"+bucket, bytes.NewReader(payload), hdr)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, hdr http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.AnonKey)
	if c.token != "" {
		req.Header.Set(AdminTokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}

// decodeError understands both PostgREST ({code, message}) and storage
// ({statusCode, error, message}) error bodies.
func decodeError(status int, data []byte) error {
	var m struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	e := &backend.Error{Status: status}
	if json.Unmarshal(data, &m) == nil {
		e.Code = m.Code
		if e.Code == "" {
			e.Code = m.Error
		}
		e.Message = m.Message
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(data))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
