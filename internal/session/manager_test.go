package session

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/lytoranea/website/internal/backend"
)

type fakeProcs struct {
	replies map[string]string
	errs    map[string]error
	calls   []string
	params  []backend.Params
}

var _ backend.Procedures = (*fakeProcs)(nil)

func (f *fakeProcs) Call(_ context.Context, name string, p backend.Params) ([]byte, error) {
	f.calls = append(f.calls, name)
	f.params = append(f.params, p)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if r, ok := f.replies[name]; ok {
		return []byte(r), nil
	}
	return []byte("null"), nil
}

const okReply = `{"success":true,"token":"tok-1","admin":{"id":"a1","email":"admin@lyt.com","name":"Ana"}}`

func newManager(t *testing.T, procs *fakeProcs, store Store) *Manager {
	t.Helper()
	m := NewManager(procs, store, zaptest.NewLogger(t))
	m.Restore()
	return m
}

func TestLogin_SuccessSetsMemoryAndStore(t *testing.T) {
	t.Parallel()
	procs := &fakeProcs{replies: map[string]string{backend.ProcCreateSession: okReply}}
	store := NewMemoryStore()
	m := newManager(t, procs, store)

	res := m.Login(context.Background(), "admin@lyt.com", "pw")
	if !res.Success {
		t.Fatalf("login failed: %+v", res)
	}
	if !m.IsAuthenticated() || m.Token() != "tok-1" || m.Admin() == nil || m.Admin().Email != "admin@lyt.com" {
		t.Fatalf("unexpected state: admin=%v token=%q", m.Admin(), m.Token())
	}
	if tok, ok, _ := store.Get(KeyToken); !ok || tok != "tok-1" {
		t.Fatalf("token not persisted: %q %v", tok, ok)
	}
	if blob, ok, _ := store.Get(KeyAdmin); !ok || blob == "" {
		t.Fatalf("admin not persisted")
	}
	p := procs.params[0]
	if p["admin_email"] != "admin@lyt.com" || p["admin_password"] != "pw" {
		t.Fatalf("unexpected params: %v", p)
	}
}

func TestLogin_FailuresLeaveStateUnchanged(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		reply   string
		err     error
		wantMsg string
	}{
		{"backend message", `{"success":false,"message":"Credenciais inválidas"}`, nil, "Credenciais inválidas"},
		{"no message", `{"success":false}`, nil, MsgInvalidCredentials},
		{"success without token", `{"success":true,"admin":{"id":"a"}}`, nil, MsgInvalidCredentials},
		{"success without admin", `{"success":true,"token":"t"}`, nil, MsgInvalidCredentials},
		{"null reply", `null`, nil, MsgInvalidCredentials},
		{"garbage", `"oops`, nil, MsgLoginFailed},
		{"transport error", "", errors.New("dial tcp: refused"), MsgLoginFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := NewMemoryStore()
			_ = store.Set(map[string]string{KeyAdmin: `{"id":"old","email":"old@lyt.com"}`, KeyToken: "old-tok"})
			procs := &fakeProcs{
				replies: map[string]string{backend.ProcCreateSession: tc.reply},
				errs:    map[string]error{backend.ProcCreateSession: tc.err},
			}
			m := newManager(t, procs, store)

			res := m.Login(context.Background(), "x@y.z", "bad")
			if res.Success || res.Message != tc.wantMsg {
				t.Fatalf("got %+v, want message %q", res, tc.wantMsg)
			}
			if m.Token() != "old-tok" || m.Admin().ID != "old" {
				t.Fatalf("state mutated: %v %q", m.Admin(), m.Token())
			}
			if tok, _, _ := store.Get(KeyToken); tok != "old-tok" {
				t.Fatalf("store mutated: %q", tok)
			}
		})
	}
}

func TestLogin_EmptyCredentialsMakeNoCall(t *testing.T) {
	t.Parallel()
	procs := &fakeProcs{}
	m := newManager(t, procs, NewMemoryStore())

	res := m.Login(context.Background(), "  ", "pw")
	if res.Success || res.Message != MsgMissingCredentials {
		t.Fatalf("got %+v", res)
	}
	if len(procs.calls) != 0 {
		t.Fatalf("unexpected calls: %v", procs.calls)
	}
}

type failingStore struct{ *MemoryStore }

func (failingStore) Set(map[string]string) error { return errors.New("disk full") }

func TestLogin_PersistFailureLeavesLoggedOut(t *testing.T) {
	t.Parallel()
	procs := &fakeProcs{replies: map[string]string{backend.ProcCreateSession: okReply}}
	m := newManager(t, procs, failingStore{NewMemoryStore()})

	res := m.Login(context.Background(), "admin@lyt.com", "pw")
	if res.Success {
		t.Fatalf("want failure when the session cannot be persisted")
	}
	if m.IsAuthenticated() {
		t.Fatalf("must stay logged out")
	}
}

func TestLogout_ClearsEvenWhenRevokeFails(t *testing.T) {
	t.Parallel()
	procs := &fakeProcs{
		replies: map[string]string{backend.ProcCreateSession: okReply},
		errs:    map[string]error{backend.ProcLogout: errors.New("network down")},
	}
	store := NewMemoryStore()
	m := newManager(t, procs, store)
	if !m.Login(context.Background(), "admin@lyt.com", "pw").Success {
		t.Fatalf("login failed")
	}

	m.Logout(context.Background())

	if m.IsAuthenticated() || m.Admin() != nil || m.Token() != "" {
		t.Fatalf("still authenticated after logout")
	}
	if _, ok, _ := store.Get(KeyAdmin); ok {
		t.Fatalf("admin key left in store")
	}
	if _, ok, _ := store.Get(KeyToken); ok {
		t.Fatalf("token key left in store")
	}
	last := procs.params[len(procs.params)-1]
	if procs.calls[len(procs.calls)-1] != backend.ProcLogout || last["p_token"] != "tok-1" {
		t.Fatalf("revoke not attempted with token: %v %v", procs.calls, last)
	}
}

func TestLogout_WithoutTokenSkipsRevoke(t *testing.T) {
	t.Parallel()
	procs := &fakeProcs{}
	m := newManager(t, procs, NewMemoryStore())

	m.Logout(context.Background())
	if len(procs.calls) != 0 {
		t.Fatalf("unexpected calls: %v", procs.calls)
	}
	if m.IsAuthenticated() {
		t.Fatalf("authenticated without login")
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		stored    map[string]string
		wantAuth  bool
		wantClear bool
	}{
		{"valid pair", map[string]string{KeyAdmin: `{"id":"a1","email":"a@b.c","name":"A"}`, KeyToken: "t"}, true, false},
		{"malformed admin", map[string]string{KeyAdmin: `{"id":`, KeyToken: "t"}, false, true},
		{"null admin", map[string]string{KeyAdmin: `null`, KeyToken: "t"}, false, true},
		{"admin without identity", map[string]string{KeyAdmin: `{"name":"A"}`, KeyToken: "t"}, false, true},
		{"token only", map[string]string{KeyToken: "t"}, false, true},
		{"admin only", map[string]string{KeyAdmin: `{"id":"a1"}`}, false, true},
		{"empty", map[string]string{}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := NewMemoryStore()
			_ = store.Set(tc.stored)
			m := NewManager(&fakeProcs{}, store, zaptest.NewLogger(t))

			if !m.Initializing() {
				t.Fatalf("must be initializing before Restore")
			}
			select {
			case <-m.Ready():
				t.Fatalf("ready before Restore")
			default:
			}

			m.Restore()

			if m.Initializing() {
				t.Fatalf("still initializing after Restore")
			}
			select {
			case <-m.Ready():
			default:
				t.Fatalf("ready not closed")
			}
			if m.IsAuthenticated() != tc.wantAuth {
				t.Fatalf("auth=%v want %v", m.IsAuthenticated(), tc.wantAuth)
			}
			if tc.wantClear {
				_, hasA, _ := store.Get(KeyAdmin)
				_, hasT, _ := store.Get(KeyToken)
				if hasA || hasT {
					t.Fatalf("persisted keys not cleared")
				}
			}

			m.Restore() // second call is a no-op and must not panic on close
		})
	}
}

func TestAdmin_ReturnsCopy(t *testing.T) {
	t.Parallel()
	procs := &fakeProcs{replies: map[string]string{backend.ProcCreateSession: okReply}}
	m := newManager(t, procs, NewMemoryStore())
	m.Login(context.Background(), "admin@lyt.com", "pw")

	a := m.Admin()
	a.Email = "changed"
	if got := m.Admin(); got.Email != "admin@lyt.com" {
		t.Fatalf("internal state leaked: %v", got)
	}
}
