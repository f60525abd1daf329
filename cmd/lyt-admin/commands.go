package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/lytoranea/website/internal/backend"
	"github.com/lytoranea/website/internal/crypto"
	"github.com/lytoranea/website/internal/errs"
	"github.com/lytoranea/website/internal/migrate"
	"github.com/lytoranea/website/internal/model"
	"github.com/lytoranea/website/internal/query"
	"github.com/lytoranea/website/internal/service"
	"github.com/lytoranea/website/internal/session"
	"github.com/lytoranea/website/internal/upload"
)

// userError is printed verbatim instead of being mapped through errs.Message.
type userError string

func (e userError) Error() string { return string(e) }

var errUnknownCommand = errors.New("unknown command")

// adminApp holds the collaborators of one CLI invocation.
type adminApp struct {
	sess  *session.Manager
	admin service.AdminService
	in    io.Reader
	out   io.Writer
}

// newAdminApp restores the persisted session before any command runs.
func newAdminApp(d backend.Dialer, cache *query.Cache, store session.Store, log *zap.Logger) *adminApp {
	sess := session.NewManager(d.Anonymous(), store, log)
	sess.Restore()
	seq := upload.NewSequencer(d, sess, cache, log)
	return &adminApp{
		sess:  sess,
		admin: service.NewAdminService(d, sess, cache, seq, log),
		in:    os.Stdin,
		out:   os.Stdout,
	}
}

func (a *adminApp) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		a.sess.Logout(ctx)
		fmt.Fprintln(a.out, "ok")
		return nil
	case "whoami":
		adm := a.sess.Admin()
		if adm == nil {
			return errs.ErrAccessDenied
		}
		fmt.Fprintf(a.out, "%s <%s>\n", adm.Name, adm.Email)
		return nil

	case "services":
		return a.list(ctx, func(ctx context.Context) (any, error) { return a.admin.ListServices(ctx) })
	case "service-save":
		return a.serviceSave(ctx, args)
	case "service-image":
		return a.upload(ctx, "service-image", args, a.admin.UploadServiceImage)
	case "service-image-rm":
		return a.byID(ctx, "service-image-rm", args, a.admin.RemoveServiceImage)

	case "projects":
		return a.list(ctx, func(ctx context.Context) (any, error) { return a.admin.ListProjects(ctx) })
	case "project-save":
		return a.projectSave(ctx, args)
	case "project-rm":
		return a.byID(ctx, "project-rm", args, a.admin.DeleteProject)
	case "images":
		return a.images(ctx, args)
	case "image-add":
		return a.imageAdd(ctx, args)
	case "image-rm":
		return a.byID(ctx, "image-rm", args, a.admin.DeleteImage)
	case "image-main":
		return a.byID(ctx, "image-main", args, a.admin.SetMainImage)
	case "categories":
		return a.list(ctx, func(ctx context.Context) (any, error) { return a.admin.ListCategories(ctx) })
	case "category-save":
		return a.categorySave(ctx, args)
	case "category-rm":
		return a.byID(ctx, "category-rm", args, a.admin.DeleteCategory)

	case "clients":
		return a.list(ctx, func(ctx context.Context) (any, error) { return a.admin.ListClients(ctx) })
	case "client-save":
		return a.clientSave(ctx, args)
	case "client-rm":
		return a.byID(ctx, "client-rm", args, a.admin.DeleteClient)
	case "client-logo":
		return a.upload(ctx, "client-logo", args, a.admin.UploadClientLogo)
	case "client-logo-rm":
		return a.byID(ctx, "client-logo-rm", args, a.admin.RemoveClientLogo)
	}
	return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

// ---- session ----

func (a *adminApp) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", os.Getenv("LYT_ADMIN_EMAIL"), "admin email")
	password := fs.String("password", "", "password, '-' or empty reads a line from stdin")
	if err := parse(fs, args); err != nil {
		return err
	}
	pw := *password
	if pw == "" || pw == "-" {
		line, err := readLine(a.in)
		if err != nil {
			return err
		}
		pw = line
	}
	res := a.sess.Login(ctx, *email, pw)
	if !res.Success {
		return userError(res.Message)
	}
	adm := a.sess.Admin()
	fmt.Fprintf(a.out, "logged in as %s <%s>\n", adm.Name, adm.Email)
	return nil
}

// ---- generic shapes ----

func (a *adminApp) list(ctx context.Context, load func(context.Context) (any, error)) error {
	v, err := load(ctx)
	if err != nil {
		return err
	}
	return printJSON(a.out, v)
}

func (a *adminApp) byID(ctx context.Context, name string, args []string, op func(context.Context, uuid.UUID) error) error {
	fs := newFlagSet(name)
	raw := fs.String("id", "", "id (uuid)")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := requireID("id", *raw)
	if err != nil {
		return err
	}
	if err := op(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}

func (a *adminApp) upload(ctx context.Context, name string, args []string,
	op func(context.Context, uuid.UUID, upload.File) (upload.Result, error)) error {
	fs := newFlagSet(name)
	raw := fs.String("id", "", "owner id (uuid)")
	path := fs.String("file", "", "image file")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := requireID("id", *raw)
	if err != nil {
		return err
	}
	f, closeFn, err := openUpload(*path)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := op(ctx, id, f)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.URL)
	return nil
}

// ---- services ----

func (a *adminApp) serviceSave(ctx context.Context, args []string) error {
	fs := newFlagSet("service-save")
	raw := fs.String("id", "", "service id; empty creates")
	title := fs.String("title", "", "title")
	slug := fs.String("slug", "", "slug; derived from the title when empty")
	short := fs.String("short", "", "short description")
	full := fs.String("full", "", "full description (markdown)")
	fullFile := fs.String("full-file", "", "read the full description from a file")
	icon := fs.String("icon", "", "icon name")
	order := fs.Int("order", 0, "display order")
	if err := parse(fs, args); err != nil {
		return err
	}
	set := setFlags(fs)

	var svc model.Service
	if *raw != "" {
		id, err := requireID("id", *raw)
		if err != nil {
			return err
		}
		all, err := a.admin.ListServices(ctx)
		if err != nil {
			return err
		}
		if svc, err = findByID(all, id, func(s model.Service) uuid.UUID { return s.ID }); err != nil {
			return err
		}
	}
	if set["title"] {
		svc.Title = *title
	}
	if set["slug"] {
		svc.Slug = *slug
	}
	if set["short"] {
		svc.ShortDescription = *short
	}
	if set["full"] {
		svc.FullDescription = optional(*full)
	}
	if set["full-file"] {
		b, err := os.ReadFile(*fullFile)
		if err != nil {
			return err
		}
		svc.FullDescription = optional(string(b))
	}
	if set["icon"] {
		svc.Icon = optional(*icon)
	}
	if set["order"] {
		svc.DisplayOrder = *order
	}

	id, err := a.admin.SaveService(ctx, svc)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, id)
	return nil
}

// ---- portfolio ----

func (a *adminApp) projectSave(ctx context.Context, args []string) error {
	fs := newFlagSet("project-save")
	raw := fs.String("id", "", "project id; empty creates")
	category := fs.String("category", "", "category id")
	title := fs.String("title", "", "title")
	slug := fs.String("slug", "", "slug; derived from the title when empty")
	location := fs.String("location", "", "location")
	year := fs.String("year", "", "year")
	description := fs.String("description", "", "description")
	client := fs.String("client", "", "client name")
	if err := parse(fs, args); err != nil {
		return err
	}
	set := setFlags(fs)

	var p model.PortfolioProject
	if *raw != "" {
		id, err := requireID("id", *raw)
		if err != nil {
			return err
		}
		all, err := a.admin.ListProjects(ctx)
		if err != nil {
			return err
		}
		if p, err = findByID(all, id, func(p model.PortfolioProject) uuid.UUID { return p.ID }); err != nil {
			return err
		}
	}
	if set["category"] {
		id, err := requireID("category", *category)
		if err != nil {
			return err
		}
		p.CategoryID = id
	}
	if set["title"] {
		p.Title = *title
	}
	if set["slug"] {
		p.Slug = *slug
	}
	if set["location"] {
		p.Location = *location
	}
	if set["year"] {
		p.Year = *year
	}
	if set["description"] {
		p.Description = optional(*description)
	}
	if set["client"] {
		p.Client = optional(*client)
	}

	id, err := a.admin.SaveProject(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, id)
	return nil
}

func (a *adminApp) images(ctx context.Context, args []string) error {
	fs := newFlagSet("images")
	raw := fs.String("project", "", "project id")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := requireID("project", *raw)
	if err != nil {
		return err
	}
	imgs, err := a.admin.ListImages(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(a.out, imgs)
}

func (a *adminApp) imageAdd(ctx context.Context, args []string) error {
	fs := newFlagSet("image-add")
	raw := fs.String("project", "", "project id")
	path := fs.String("file", "", "image file")
	alt := fs.String("alt", "", "alt text")
	order := fs.Int("order", 0, "display order; appended after the last image when omitted")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := requireID("project", *raw)
	if err != nil {
		return err
	}
	opts := service.ImageOptions{AltText: *alt}
	if setFlags(fs)["order"] {
		opts.DisplayOrder = order
	}
	f, closeFn, err := openUpload(*path)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := a.admin.AddImage(ctx, id, f, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.URL)
	return nil
}

func (a *adminApp) categorySave(ctx context.Context, args []string) error {
	fs := newFlagSet("category-save")
	raw := fs.String("id", "", "category id; empty creates")
	name := fs.String("name", "", "name")
	slug := fs.String("slug", "", "slug; derived from the name when empty")
	if err := parse(fs, args); err != nil {
		return err
	}
	c := model.PortfolioCategory{Name: *name, Slug: *slug}
	if *raw != "" {
		id, err := requireID("id", *raw)
		if err != nil {
			return err
		}
		c.ID = id
	}
	id, err := a.admin.SaveCategory(ctx, c)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, id)
	return nil
}

// ---- clients ----

func (a *adminApp) clientSave(ctx context.Context, args []string) error {
	fs := newFlagSet("client-save")
	raw := fs.String("id", "", "client id; empty creates")
	name := fs.String("name", "", "name")
	slug := fs.String("slug", "", "slug; derived from the name when empty")
	website := fs.String("website", "", "website URL")
	order := fs.Int("order", 0, "display order")
	active := fs.Bool("active", true, "shown on the public site")
	if err := parse(fs, args); err != nil {
		return err
	}
	set := setFlags(fs)

	c := model.Client{IsActive: true}
	if *raw != "" {
		id, err := requireID("id", *raw)
		if err != nil {
			return err
		}
		all, err := a.admin.ListClients(ctx)
		if err != nil {
			return err
		}
		if c, err = findByID(all, id, func(c model.Client) uuid.UUID { return c.ID }); err != nil {
			return err
		}
	}
	if set["name"] {
		c.Name = *name
	}
	if set["slug"] {
		c.Slug = *slug
	}
	if set["website"] {
		c.Website = optional(*website)
	}
	if set["order"] {
		c.DisplayOrder = *order
	}
	if set["active"] {
		c.IsActive = *active
	}

	id, err := a.admin.SaveClient(ctx, c)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, id)
	return nil
}

// ---- maintenance ----

func cmdHashPassword(in io.Reader, out io.Writer, args []string) error {
	fs := newFlagSet("hash-password")
	password := fs.String("password", "", "password, '-' or empty reads a line from stdin")
	generate := fs.Bool("generate", false, "generate a random password")
	email := fs.String("email", "", "print an admin_users insert for this email")
	name := fs.String("name", "", "admin display name for the insert")
	if err := parse(fs, args); err != nil {
		return err
	}
	pw := *password
	switch {
	case *generate:
		p, err := crypto.GeneratePassword(18)
		if err != nil {
			return err
		}
		pw = p
		fmt.Fprintln(out, "password:", pw)
	case pw == "" || pw == "-":
		line, err := readLine(in)
		if err != nil {
			return err
		}
		pw = line
	}

	hash, err := crypto.HashPassword(pw)
	if errors.Is(err, crypto.ErrWeakPassword) {
		return userError(fmt.Sprintf("password must have at least %d characters", crypto.MinPasswordLen))
	}
	if err != nil {
		return err
	}
	if *email == "" {
		fmt.Fprintln(out, hash)
		return nil
	}
	fmt.Fprintf(out, "INSERT INTO admin_users (email, name, password_hash) VALUES (%s, %s, %s);\n",
		sqlQuote(strings.ToLower(strings.TrimSpace(*email))), sqlQuote(*name), sqlQuote(hash))
	return nil
}

func cmdMigrate(ctx context.Context, dsn string, args []string) error {
	if dsn == "" {
		return userError("migrate needs -dsn or LYT_DATABASE_URL")
	}
	command := "up"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	return migrate.Run(ctx, dsn, command, args...)
}

// ---- utils ----

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// parse reports flag errors verbatim; the flag set already printed its usage.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return userError(err.Error())
	}
	return nil
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func requireID(name, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: need -%s", errs.ErrInvalidInput, name)
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: -%s %q is not a uuid", errs.ErrInvalidInput, name, raw)
	}
	return id, nil
}

func findByID[T any](all []T, id uuid.UUID, key func(T) uuid.UUID) (T, error) {
	for _, v := range all {
		if key(v) == id {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%s: %w", id, errs.ErrNotFound)
}

// optional maps blank input to nil so the backend stores NULL.
func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func openUpload(path string) (upload.File, func(), error) {
	if path == "" {
		return upload.File{}, nil, fmt.Errorf("%w: need -file", errs.ErrInvalidInput)
	}
	f, err := os.Open(path)
	if err != nil {
		return upload.File{}, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return upload.File{}, nil, err
	}
	return upload.File{Name: filepath.Base(path), Size: st.Size(), Body: f}, func() { _ = f.Close() }, nil
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: no input on stdin", errs.ErrInvalidInput)
	}
	return strings.TrimRight(sc.Text(), "\r"), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sqlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
