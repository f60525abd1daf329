package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lytoranea/website/internal/backend"
	"github.com/lytoranea/website/internal/model"
)

// Messages returned in a failed LoginResult.
const (
	MsgMissingCredentials = "email and password are required"
	MsgInvalidCredentials = "invalid credentials"
	MsgLoginFailed        = "login failed"
)

// LoginResult is the outcome of a credential exchange. Login never returns an error.
type LoginResult struct {
	Success bool
	Message string
}

// TokenSource exposes the current admin token ("" when logged out).
type TokenSource interface {
	Token() string
}

// Manager owns the in-memory admin session and keeps the store in sync with it.
// Create one per process, call Restore once, share it by pointer.
type Manager struct {
	procs backend.Procedures
	store Store
	log   *zap.Logger

	mu           sync.RWMutex
	admin        *model.Admin
	token        string
	initializing bool

	ready     chan struct{}
	readyOnce sync.Once
}

var _ TokenSource = (*Manager)(nil)

// NewManager wires the manager to the anonymous procedures facade and a store.
func NewManager(procs backend.Procedures, store Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		procs:        procs,
		store:        store,
		log:          log,
		initializing: true,
		ready:        make(chan struct{}),
	}
}

type createSessionReply struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	Admin   *model.Admin `json:"admin"`
	Message string       `json:"message"`
}

// Login exchanges credentials for a session. State changes only on a complete
// success reply (success flag, token and admin all present) that was persisted.
func (m *Manager) Login(ctx context.Context, email, password string) LoginResult {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{Message: MsgMissingCredentials}
	}

	raw, err := m.procs.Call(ctx, backend.ProcCreateSession, backend.Params{
		"admin_email":    email,
		"admin_password": password,
	})
	if err != nil {
		m.log.Error("create session", zap.Error(err))
		return LoginResult{Message: MsgLoginFailed}
	}

	var reply createSessionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		m.log.Error("decode session reply", zap.Error(err))
		return LoginResult{Message: MsgLoginFailed}
	}
	if !reply.Success || reply.Token == "" || reply.Admin == nil {
		msg := reply.Message
		if msg == "" {
			msg = MsgInvalidCredentials
		}
		return LoginResult{Message: msg}
	}

	blob, err := json.Marshal(reply.Admin)
	if err != nil {
		m.log.Error("encode admin", zap.Error(err))
		return LoginResult{Message: MsgLoginFailed}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Set(map[string]string{KeyAdmin: string(blob), KeyToken: reply.Token}); err != nil {
		m.log.Error("persist session", zap.Error(err))
		return LoginResult{Message: MsgLoginFailed}
	}
	admin := *reply.Admin
	m.admin = &admin
	m.token = reply.Token
	m.log.Info("admin logged in", zap.String("email", admin.Email))
	return LoginResult{Success: true}
}

// Logout revokes the token server-side when possible and always ends logged out.
func (m *Manager) Logout(ctx context.Context) {
	if tok := m.Token(); tok != "" {
		if _, err := m.procs.Call(ctx, backend.ProcLogout, backend.Params{"p_token": tok}); err != nil {
			m.log.Warn("revoke session failed, clearing local state anyway", zap.Error(err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.admin = nil
	m.token = ""
	if err := m.store.Clear(KeyAdmin, KeyToken); err != nil {
		m.log.Warn("clear persisted session", zap.Error(err))
	}
}

// Restore loads a persisted session. A malformed admin blob, or a key without
// its partner, clears the store. Initializing reports false afterwards whatever
// the outcome; later calls are no-ops.
func (m *Manager) Restore() {
	m.readyOnce.Do(func() {
		m.restore()
		m.mu.Lock()
		m.initializing = false
		m.mu.Unlock()
		close(m.ready)
	})
}

func (m *Manager) restore() {
	blob, hasAdmin, err := m.store.Get(KeyAdmin)
	if err != nil {
		m.log.Warn("read persisted admin", zap.Error(err))
		hasAdmin = false
	}
	tok, hasToken, err := m.store.Get(KeyToken)
	if err != nil {
		m.log.Warn("read persisted token", zap.Error(err))
		hasToken = false
	}
	hasAdmin = hasAdmin && blob != ""
	hasToken = hasToken && tok != ""

	if !hasAdmin && !hasToken {
		return
	}
	if hasAdmin != hasToken {
		m.log.Warn("incomplete persisted session, clearing")
		m.clearStore()
		return
	}

	var admin *model.Admin
	if err := json.Unmarshal([]byte(blob), &admin); err != nil {
		m.log.Warn("malformed persisted admin, clearing", zap.Error(err))
		m.clearStore()
		return
	}
	// null and {} decode cleanly but carry no identity
	if admin == nil || admin.ID == "" || admin.Email == "" {
		m.log.Warn("empty persisted admin, clearing")
		m.clearStore()
		return
	}

	m.mu.Lock()
	m.admin = admin
	m.token = tok
	m.mu.Unlock()
	m.log.Info("session restored", zap.String("email", admin.Email))
}

func (m *Manager) clearStore() {
	if err := m.store.Clear(KeyAdmin, KeyToken); err != nil {
		m.log.Warn("clear persisted session", zap.Error(err))
	}
}

// Initializing is true until Restore has finished.
func (m *Manager) Initializing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initializing
}

// Ready is closed when Restore has finished.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// IsAuthenticated holds only when both an admin and a token are present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admin != nil && m.token != ""
}

// Admin returns a copy of the current identity, or nil.
func (m *Manager) Admin() *model.Admin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.admin == nil {
		return nil
	}
	a := *m.admin
	return &a
}

// Token returns the current bearer token, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}
