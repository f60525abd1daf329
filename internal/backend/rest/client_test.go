package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lytoranea/website/internal/backend"
)

type seen struct {
	method string
	path   string
	query  string
	header http.Header
	body   string
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *[]seen) {
	t.Helper()
	var calls []seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, seen{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			header: r.Header.Clone(),
			body:   string(b),
		})
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestAnonymous_NoAdminHeader_WithToken_HasHeader(t *testing.T) {
	srv, calls := newServer(t, 200, `[]`)
	d := NewDialer(Config{BaseURL: srv.URL + "/", AnonKey: "anon"}, srv.Client())

	_, err := d.Anonymous().Select(context.Background(), backend.From("clients"))
	require.NoError(t, err)
	_, err = d.WithToken("tok-1").Select(context.Background(), backend.From("clients"))
	require.NoError(t, err)

	require.Len(t, *calls, 2)
	anon, admin := (*calls)[0], (*calls)[1]
	require.Equal(t, "anon", anon.header.Get("apikey"))
	require.Equal(t, "Bearer anon", anon.header.Get("Authorization"))
	require.Empty(t, anon.header.Get(AdminTokenHeader))
	require.Equal(t, "tok-1", admin.header.Get(AdminTokenHeader))
	require.Equal(t, "Bearer anon", admin.header.Get("Authorization"))
}

func TestSelect_BuildsPostgrestQuery(t *testing.T) {
	srv, calls := newServer(t, 200, `[{"id":"x"}]`)
	c := NewDialer(Config{BaseURL: srv.URL, AnonKey: "k"}, srv.Client()).Anonymous()

	q := backend.From("clients").
		Select("id", "name").
		Eq("is_active", true).
		Neq("slug", "abc").
		OrderBy("display_order", false).
		OrderBy("name", true).
		WithLimit(5)
	out, err := c.Select(context.Background(), q)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"x"}]`, string(out))

	got := (*calls)[0]
	require.Equal(t, http.MethodGet, got.method)
	require.Equal(t, "/rest/v1/clients", got.path)
	require.Contains(t, got.query, "select=id%2Cname")
	require.Contains(t, got.query, "is_active=eq.true")
	require.Contains(t, got.query, "slug=neq.abc")
	require.Contains(t, got.query, "order=display_order.asc%2Cname.desc")
	require.Contains(t, got.query, "limit=5")
}

func TestSelect_RejectsBadIdentifiers(t *testing.T) {
	srv, calls := newServer(t, 200, `[]`)
	c := NewDialer(Config{BaseURL: srv.URL}, srv.Client()).Anonymous()

	_, err := c.Select(context.Background(), backend.From("clients; drop"))
	require.Error(t, err)
	require.Empty(t, *calls)
}

func TestCall_PostsParamsAndDecodesError(t *testing.T) {
	srv, calls := newServer(t, 400, `{"code":"P0001","message":"invalid token"}`)
	c := NewDialer(Config{BaseURL: srv.URL, AnonKey: "k"}, srv.Client()).WithToken("t")

	_, err := c.Call(context.Background(), backend.ProcDeleteClient, backend.Params{"p_token": "t", "p_id": "1"})
	var be *backend.Error
	require.True(t, errors.As(err, &be))
	require.Equal(t, 400, be.Status)
	require.Equal(t, "P0001", be.Code)
	require.Equal(t, "invalid token", be.Message)

	got := (*calls)[0]
	require.Equal(t, "/rest/v1/rpc/admin_delete_client", got.path)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.body), &body))
	require.Equal(t, "t", body["p_token"])
}

func TestCall_EmptyBodyIsNull(t *testing.T) {
	srv, _ := newServer(t, 204, ``)
	c := NewDialer(Config{BaseURL: srv.URL}, srv.Client()).Anonymous()

	out, err := c.Call(context.Background(), backend.ProcLogout, nil)
	require.NoError(t, err)
	require.Equal(t, "null", string(out))
}

func TestUpload_HeadersAndPath(t *testing.T) {
	srv, calls := newServer(t, 200, `{"Key":"services/a.png"}`)
	c := NewDialer(Config{BaseURL: srv.URL, AnonKey: "k"}, srv.Client()).WithToken("t")

	err := c.Upload(context.Background(), "services", "a-1.png", strings.NewReader("PNG"),
		backend.UploadOptions{ContentType: "image/png", CacheControl: "3600"})
	require.NoError(t, err)

	got := (*calls)[0]
	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, "/storage/v1/object/services/a-1.png", got.path)
	require.Equal(t, "image/png", got.header.Get("Content-Type"))
	require.Equal(t, "max-age=3600", got.header.Get("Cache-Control"))
	require.Equal(t, "false", got.header.Get("x-upsert"))
	require.Equal(t, "PNG", got.body)
}

func TestUpload_StorageErrorShape(t *testing.T) {
	srv, _ := newServer(t, 400, `{"statusCode":"400","error":"InvalidKey","message":"Invalid key: a b.png"}`)
	c := NewDialer(Config{BaseURL: srv.URL}, srv.Client()).Anonymous()

	err := c.Upload(context.Background(), "services", "a b.png", strings.NewReader("x"), backend.UploadOptions{})
	var be *backend.Error
	require.True(t, errors.As(err, &be))
	require.Equal(t, "InvalidKey", be.Code)
	require.Contains(t, be.Message, "Invalid key")
}

func TestPublicURL_AndObjectKeyRoundTrip(t *testing.T) {
	t.Parallel()
	c := NewDialer(Config{BaseURL: "https://x.example.co/"}, nil).Anonymous()

	u := c.PublicURL("clients", "42/logo.png")
	require.Equal(t, "https://x.example.co/storage/v1/object/public/clients/42/logo.png", u)
	require.Equal(t, "42/logo.png", backend.ObjectKey(c, "clients", u))
	require.Equal(t, "old.png", backend.ObjectKey(c, "clients", "https://cdn.example/other/old.png"))
}

func TestListAndRemove(t *testing.T) {
	srv, calls := newServer(t, 200, `[{"name":"logo.png"},{"name":"logo.jpg"}]`)
	c := NewDialer(Config{BaseURL: srv.URL}, srv.Client()).Anonymous()

	objs, err := c.List(context.Background(), "clients", "42", 100)
	require.NoError(t, err)
	require.Equal(t, []backend.Object{{Name: "logo.png"}, {Name: "logo.jpg"}}, objs)

	require.NoError(t, c.Remove(context.Background(), "clients", "42/logo.png"))
	require.NoError(t, c.Remove(context.Background(), "clients"))

	require.Len(t, *calls, 2)
	require.Equal(t, "/storage/v1/object/list/clients", (*calls)[0].path)
	require.Contains(t, (*calls)[0].body, `"prefix":"42"`)
	require.Equal(t, http.MethodDelete, (*calls)[1].method)
	require.JSONEq(t, `{"prefixes":["42/logo.png"]}`, (*calls)[1].body)
}
