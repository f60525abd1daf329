package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lytoranea/website/internal/backend"
	"github.com/lytoranea/website/internal/backend/backendtest"
	"github.com/lytoranea/website/internal/crypto"
	"github.com/lytoranea/website/internal/errs"
	"github.com/lytoranea/website/internal/model"
	"github.com/lytoranea/website/internal/query"
	"github.com/lytoranea/website/internal/session"
)

const sessionReply = `{"success":true,"token":"tok-1","admin":{"id":"a1","email":"ana@lytoranea.com.br","name":"Ana"}}`

type harness struct {
	fb    *backendtest.Fake
	store *session.MemoryStore
	out   *bytes.Buffer
}

func (h *harness) app(t *testing.T, stdin string) *adminApp {
	t.Helper()
	log := zaptest.NewLogger(t)
	a := newAdminApp(h.fb, query.New(query.NewMemoryStore(), 0, log), h.store, log)
	a.in = strings.NewReader(stdin)
	a.out = h.out
	return a
}

func newHarness() *harness {
	return &harness{fb: backendtest.New(), store: session.NewMemoryStore(), out: &bytes.Buffer{}}
}

func loggedIn(t *testing.T) (*harness, *adminApp) {
	t.Helper()
	h := newHarness()
	require.NoError(t, h.store.Set(map[string]string{
		session.KeyToken: "tok-1",
		session.KeyAdmin: `{"id":"a1","email":"ana@lytoranea.com.br","name":"Ana"}`,
	}))
	return h, h.app(t, "")
}

func TestLogin_ReadsPasswordFromStdinAndPersists(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.fb.Reply(backend.ProcCreateSession, sessionReply, nil)

	a := h.app(t, "s3cret\n")
	require.NoError(t, a.run(context.Background(), "login", []string{"-email", "ana@lytoranea.com.br"}))
	require.Contains(t, h.out.String(), "logged in as Ana")

	call := h.fb.ProcCalls(backend.ProcCreateSession)[0]
	require.Equal(t, "s3cret", call.Params["admin_password"])

	// a new invocation restores the session from the store
	h.out.Reset()
	require.NoError(t, h.app(t, "").run(context.Background(), "whoami", nil))
	require.Equal(t, "Ana <ana@lytoranea.com.br>\n", h.out.String())
}

func TestLogin_FailureMessageIsUserFacing(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.fb.Reply(backend.ProcCreateSession, `{"success":false,"message":"invalid credentials"}`, nil)

	err := h.app(t, "").run(context.Background(), "login", []string{"-email", "a@b.c", "-password", "x"})
	var ue userError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, "invalid credentials", string(ue))
}

func TestWhoami_WithoutSessionIsAccessDenied(t *testing.T) {
	t.Parallel()
	err := newHarness().app(t, "").run(context.Background(), "whoami", nil)
	require.ErrorIs(t, err, errs.ErrAccessDenied)
}

func TestLogout_ClearsStore(t *testing.T) {
	t.Parallel()
	h, a := loggedIn(t)
	require.NoError(t, a.run(context.Background(), "logout", nil))
	_, ok, err := h.store.Get(session.KeyToken)
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, h.fb.ProcCalls(backend.ProcLogout), 1)
}

func TestServiceSave_UpdateKeepsUnsetFields(t *testing.T) {
	t.Parallel()
	h, a := loggedIn(t)
	id := uuid.Must(uuid.NewV4())
	img := "https://fake.local/storage/v1/object/public/services/obras-1.png"
	full := "**detalhes**"
	h.fb.SetRows(backend.TableServices, []model.Service{{
		ID: id, Title: "Obras", Slug: "obras", ShortDescription: "curta",
		FullDescription: &full, ImageURL: &img, DisplayOrder: 3,
	}})
	h.fb.Reply(backend.ProcUpsertService, `"`+id.String()+`"`, nil)

	require.NoError(t, a.run(context.Background(), "service-save", []string{"-id", id.String(), "-title", "Obras Civis"}))
	require.Equal(t, id.String()+"\n", h.out.String())

	p := h.fb.ProcCalls(backend.ProcUpsertService)[0].Params
	require.Equal(t, "Obras Civis", p["p_title"])
	require.Equal(t, "curta", p["p_short_description"])
	require.Equal(t, img, p["p_image_url"])
	require.Equal(t, full, p["p_full_description"])
	require.Equal(t, 3, p["p_display_order"])
}

func TestServiceSave_UnknownIDIsNotFound(t *testing.T) {
	t.Parallel()
	_, a := loggedIn(t)
	err := a.run(context.Background(), "service-save", []string{"-id", uuid.Must(uuid.NewV4()).String(), "-title", "x"})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestByID_ValidatesBeforeCalling(t *testing.T) {
	t.Parallel()
	h, a := loggedIn(t)
	ctx := context.Background()

	require.ErrorIs(t, a.run(ctx, "project-rm", nil), errs.ErrInvalidInput)
	require.ErrorIs(t, a.run(ctx, "image-main", []string{"-id", "nope"}), errs.ErrInvalidInput)
	require.Empty(t, h.fb.Calls())

	id := uuid.Must(uuid.NewV4())
	require.NoError(t, a.run(ctx, "image-main", []string{"-id", id.String()}))
	call := h.fb.ProcCalls(backend.ProcSetMainProjectImage)[0]
	require.Equal(t, id.String(), call.Params["p_image_id"])
	require.Equal(t, "tok-1", call.Token)
}

func TestClientLogo_UploadsFileAndPrintsURL(t *testing.T) {
	t.Parallel()
	h, a := loggedIn(t)
	id := uuid.Must(uuid.NewV4())
	h.fb.SetRows(backend.TableClients, []model.Client{{ID: id, Name: "ABC", Slug: "abc", IsActive: true}})

	path := filepath.Join(t.TempDir(), "Logo ABC.PNG")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))

	require.NoError(t, a.run(context.Background(), "client-logo", []string{"-id", id.String(), "-file", path}))
	want := "https://fake.local/storage/v1/object/public/clients/" + id.String() + "/logo.png"
	require.Equal(t, want+"\n", h.out.String())
	require.True(t, h.fb.HasObject(backend.BucketClients, id.String()+"/logo.png"))
}

func TestImageAdd_ExplicitOrder(t *testing.T) {
	t.Parallel()
	h, a := loggedIn(t)
	project := uuid.Must(uuid.NewV4())
	h.fb.SetRows(backend.TableProjects, []model.PortfolioProject{{ID: project, Slug: "ponte", Title: "Ponte"}})

	path := filepath.Join(t.TempDir(), "foto.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpg"), 0o600))

	require.NoError(t, a.run(context.Background(), "image-add",
		[]string{"-project", project.String(), "-file", path, "-order", "7", "-alt", "vista"}))
	p := h.fb.ProcCalls(backend.ProcAddProjectImage)[0].Params
	require.Equal(t, 7, p["p_display_order"])
	require.Equal(t, "vista", p["p_alt_text"])
	require.Equal(t, true, p["p_is_main"])
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()
	err := newHarness().app(t, "").run(context.Background(), "frobnicate", nil)
	require.ErrorIs(t, err, errUnknownCommand)
}

func TestHashPassword_PrintsInsert(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	require.NoError(t, cmdHashPassword(strings.NewReader("correct horse\n"), &out,
		[]string{"-email", " Ana@Lytoranea.com.br ", "-name", "Ana D'Ávila"}))

	line := out.String()
	require.True(t, strings.HasPrefix(line, "INSERT INTO admin_users (email, name, password_hash) VALUES ('ana@lytoranea.com.br', 'Ana D''Ávila', '$2a$"))
	hash := line[strings.LastIndex(line, ", '")+3 : strings.LastIndex(line, "');")]
	require.True(t, crypto.VerifyPassword("correct horse", hash))
}

func TestHashPassword_WeakAndGenerated(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	err := cmdHashPassword(strings.NewReader(""), &out, []string{"-password", "short"})
	var ue userError
	require.True(t, errors.As(err, &ue))

	out.Reset()
	require.NoError(t, cmdHashPassword(strings.NewReader(""), &out, []string{"-generate"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	pw := strings.TrimPrefix(lines[0], "password: ")
	require.True(t, crypto.VerifyPassword(pw, lines[1]))
}

func TestMigrate_NeedsDSN(t *testing.T) {
	t.Parallel()
	var ue userError
	require.True(t, errors.As(cmdMigrate(context.Background(), "", nil), &ue))
}

func TestOptionalAndSQLQuote(t *testing.T) {
	t.Parallel()
	require.Nil(t, optional("  "))
	require.Equal(t, "x", *optional("x"))
	require.Equal(t, "'it''s'", sqlQuote("it's"))
}

func TestReport_ExitCodes(t *testing.T) {
	t.Parallel()
	require.Equal(t, 0, report(nil))
	require.Equal(t, 1, report(userError("bad flag")))
	require.Equal(t, 1, report(errs.ErrAccessDenied))
}
