// Package service contains the admin write flows and the cached public reads.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/lytoranea/website/internal/backend"
	"github.com/lytoranea/website/internal/convert"
	"github.com/lytoranea/website/internal/errs"
	"github.com/lytoranea/website/internal/model"
	"github.com/lytoranea/website/internal/query"
	"github.com/lytoranea/website/internal/session"
	"github.com/lytoranea/website/internal/slug"
	"github.com/lytoranea/website/internal/upload"
)

// Slug fallbacks for names that reduce to nothing.
const (
	FallbackService  = "servico"
	FallbackProject  = "projeto"
	FallbackClient   = "cliente"
	FallbackCategory = "categoria"
)

// legacyListLimit bounds storage listings used for cleanup.
const legacyListLimit = 100

// ImageOptions are the optional fields of a new portfolio image.
type ImageOptions struct {
	AltText      string
	DisplayOrder *int // nil appends after the existing images
}

// AdminService defines the privileged operations behind the admin tools.
type AdminService interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	SaveService(ctx context.Context, s model.Service) (uuid.UUID, error)
	UploadServiceImage(ctx context.Context, serviceID uuid.UUID, f upload.File) (upload.Result, error)
	RemoveServiceImage(ctx context.Context, serviceID uuid.UUID) error

	ListProjects(ctx context.Context) ([]model.PortfolioProject, error)
	SaveProject(ctx context.Context, p model.PortfolioProject) (uuid.UUID, error)
	DeleteProject(ctx context.Context, projectID uuid.UUID) error
	ListImages(ctx context.Context, projectID uuid.UUID) ([]model.PortfolioImage, error)
	AddImage(ctx context.Context, projectID uuid.UUID, f upload.File, opts ImageOptions) (upload.Result, error)
	DeleteImage(ctx context.Context, imageID uuid.UUID) error
	SetMainImage(ctx context.Context, imageID uuid.UUID) error

	ListCategories(ctx context.Context) ([]model.PortfolioCategory, error)
	SaveCategory(ctx context.Context, c model.PortfolioCategory) (uuid.UUID, error)
	DeleteCategory(ctx context.Context, categoryID uuid.UUID) error

	ListClients(ctx context.Context) ([]model.Client, error)
	SaveClient(ctx context.Context, c model.Client) (uuid.UUID, error)
	DeleteClient(ctx context.Context, clientID uuid.UUID) error
	UploadClientLogo(ctx context.Context, clientID uuid.UUID, f upload.File) (upload.Result, error)
	RemoveClientLogo(ctx context.Context, clientID uuid.UUID) error
}

type AdminServiceImpl struct {
	dialer backend.Dialer
	tokens session.TokenSource
	cache  *query.Cache
	seq    *upload.Sequencer
	log    *zap.Logger
}

var _ AdminService = (*AdminServiceImpl)(nil)

// NewAdminService constructs AdminService with required dependencies.
func NewAdminService(dialer backend.Dialer, tokens session.TokenSource, cache *query.Cache, seq *upload.Sequencer, log *zap.Logger) *AdminServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminServiceImpl{dialer: dialer, tokens: tokens, cache: cache, seq: seq, log: log}
}

// admin returns a token-attaching facade built now, so it carries the token
// current at this moment.
func (s *AdminServiceImpl) admin() (backend.Backend, string, error) {
	tok := s.tokens.Token()
	if tok == "" {
		return nil, "", errs.ErrAccessDenied
	}
	return s.dialer.WithToken(tok), tok, nil
}

// uploadAdmin is admin for upload flows: the file is size-checked before any
// backend call, so a rejected file never reaches lookups or cleanup.
func (s *AdminServiceImpl) uploadAdmin(f upload.File) (backend.Backend, string, error) {
	b, tok, err := s.admin()
	if err != nil {
		return nil, "", err
	}
	if err := upload.CheckSize(f); err != nil {
		return nil, "", err
	}
	return b, tok, nil
}

func (s *AdminServiceImpl) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.Warn("invalidate", zap.Strings("keys", keys), zap.Error(err))
	}
}

func upsertID(ctx context.Context, b backend.Procedures, proc string, p backend.Params) (uuid.UUID, error) {
	raw, err := backend.CallInto[*string](ctx, b, proc, p)
	if err != nil {
		return uuid.Nil, err
	}
	if raw == nil {
		return uuid.Nil, nil
	}
	return uuid.FromStringOrNil(*raw), nil
}

func one[T any](ctx context.Context, t backend.Tables, q backend.Query) (T, error) {
	var zero T
	rows, err := backend.SelectInto[T](ctx, t, q.WithLimit(1))
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("%s: %w", q.Table, errs.ErrNotFound)
	}
	return rows[0], nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func required(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", errs.ErrInvalidInput, fields[i])
		}
	}
	return nil
}

// normalizeSlug derives a slug from name when s is empty and cleans a given one.
func normalizeSlug(s, name, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return slug.Base(name, fallback)
	}
	return slug.Base(s, fallback)
}

// --- services ---

// ListServices returns all services ordered for display.
func (s *AdminServiceImpl) ListServices(ctx context.Context) ([]model.Service, error) {
	b, _, err := s.admin()
	if err != nil {
		return nil, err
	}
	return query.Fetch(ctx, s.cache, query.KeyServices, func(ctx context.Context) ([]model.Service, error) {
		return loadServices(ctx, b)
	})
}

// SaveService inserts (nil ID) or updates a service.
func (s *AdminServiceImpl) SaveService(ctx context.Context, svc model.Service) (uuid.UUID, error) {
	b, tok, err := s.admin()
	if err != nil {
		return uuid.Nil, err
	}
	if err := required("title", svc.Title, "short description", svc.ShortDescription); err != nil {
		return uuid.Nil, err
	}
	svc.Slug = normalizeSlug(svc.Slug, svc.Title, FallbackService)

	id, err := upsertID(ctx, b, backend.ProcUpsertService, convert.UpsertService(tok, svc))
	if err != nil {
		return uuid.Nil, fmt.Errorf("save service: %w", err)
	}
	s.invalidate(ctx, query.KeyServices)
	return id, nil
}

// UploadServiceImage replaces the image of a service.
func (s *AdminServiceImpl) UploadServiceImage(ctx context.Context, serviceID uuid.UUID, f upload.File) (upload.Result, error) {
	b, tok, err := s.uploadAdmin(f)
	if err != nil {
		return upload.Result{}, err
	}
	svc, err := one[model.Service](ctx, b, backend.From(backend.TableServices).Eq("id", serviceID))
	if err != nil {
		return upload.Result{}, err
	}
	target := upload.Target{
		Bucket:      backend.BucketServices,
		Base:        svc.Slug,
		Fallback:    FallbackService,
		PreviousURL: deref(svc.ImageURL),
		Invalidate:  []string{query.KeyServices},
	}
	return s.seq.UploadAndLink(ctx, f, target, func(ctx context.Context, p backend.Procedures, url string) error {
		_, err := p.Call(ctx, backend.ProcUpdateServiceImage, convert.ServiceImage(tok, serviceID, url))
		return err
	})
}

// RemoveServiceImage clears the image of a service and deletes the stored object.
func (s *AdminServiceImpl) RemoveServiceImage(ctx context.Context, serviceID uuid.UUID) error {
	b, tok, err := s.admin()
	if err != nil {
		return err
	}
	svc, err := one[model.Service](ctx, b, backend.From(backend.TableServices).Eq("id", serviceID))
	if err != nil {
		return err
	}
	if _, err := b.Call(ctx, backend.ProcRemoveServiceImage, convert.ServiceRef(tok, serviceID)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRemovalFailed, err)
	}
	s.invalidate(ctx, query.KeyServices)

	if key := backend.ObjectKey(b, backend.BucketServices, deref(svc.ImageURL)); key != "" {
		if err := b.Remove(ctx, backend.BucketServices, key); err != nil {
			return fmt.Errorf("%w: object %s: %w", errs.ErrRemovalFailed, key, err)
		}
	}
	return nil
}

// --- portfolio ---

// ListProjects returns every project, newest first, with its category.
func (s *AdminServiceImpl) ListProjects(ctx context.Context) ([]model.PortfolioProject, error) {
	b, _, err := s.admin()
	if err != nil {
		return nil, err
	}
	return query.Fetch(ctx, s.cache, query.KeyAdminPortfolioProjects, func(ctx context.Context) ([]model.PortfolioProject, error) {
		return loadProjects(ctx, b, false)
	})
}

// SaveProject inserts (nil ID) or updates a project.
func (s *AdminServiceImpl) SaveProject(ctx context.Context, p model.PortfolioProject) (uuid.UUID, error) {
	b, tok, err := s.admin()
	if err != nil {
		return uuid.Nil, err
	}
	if p.CategoryID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: category is required", errs.ErrInvalidInput)
	}
	if err := required("title", p.Title, "location", p.Location, "year", p.Year); err != nil {
		return uuid.Nil, err
	}
	p.Slug = normalizeSlug(p.Slug, p.Title, FallbackProject)

	id, err := upsertID(ctx, b, backend.ProcUpsertProject, convert.UpsertProject(tok, p))
	if err != nil {
		return uuid.Nil, fmt.Errorf("save project: %w", err)
	}
	s.invalidate(ctx, query.KeyAdminPortfolioProjects, query.KeyPortfolio)
	return id, nil
}

// DeleteProject removes a project; its stored images are deleted best-effort.
func (s *AdminServiceImpl) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	b, tok, err := s.admin()
	if err != nil {
		return err
	}
	images, err := backend.SelectInto[model.PortfolioImage](ctx, b,
		backend.From(backend.TableImages).Select("image_url").Eq("project_id", projectID))
	if err != nil {
		s.log.Warn("list project images before delete", zap.Error(err))
	}

	if _, err := b.Call(ctx, backend.ProcDeleteProject, convert.ByID(tok, projectID)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRemovalFailed, err)
	}
	s.invalidate(ctx, query.KeyAdminPortfolioProjects, query.KeyPortfolio, query.ProjectImages(projectID.String()))

	var keys []string
	for _, img := range images {
		if k := backend.ObjectKey(b, backend.BucketPortfolio, img.ImageURL); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		if err := b.Remove(ctx, backend.BucketPortfolio, keys...); err != nil {
			s.log.Warn("remove project images", zap.Strings("keys", keys), zap.Error(err))
		}
	}
	return nil
}

// ListImages returns a project's gallery in display order.
func (s *AdminServiceImpl) ListImages(ctx context.Context, projectID uuid.UUID) ([]model.PortfolioImage, error) {
	b, _, err := s.admin()
	if err != nil {
		return nil, err
	}
	return query.Fetch(ctx, s.cache, query.ProjectImages(projectID.String()), func(ctx context.Context) ([]model.PortfolioImage, error) {
		return loadImages(ctx, b, projectID)
	})
}

// AddImage uploads a gallery image. The first image of a project becomes its
// main image; later ones append after the existing images unless an order is given.
func (s *AdminServiceImpl) AddImage(ctx context.Context, projectID uuid.UUID, f upload.File, opts ImageOptions) (upload.Result, error) {
	b, tok, err := s.uploadAdmin(f)
	if err != nil {
		return upload.Result{}, err
	}
	project, err := one[model.PortfolioProject](ctx, b, backend.From(backend.TableProjects).Eq("id", projectID))
	if err != nil {
		return upload.Result{}, err
	}
	existing, err := loadImages(ctx, b, projectID)
	if err != nil {
		return upload.Result{}, err
	}

	img := model.PortfolioImage{
		ProjectID:    projectID,
		IsMain:       len(existing) == 0,
		DisplayOrder: len(existing),
	}
	if opts.DisplayOrder != nil {
		img.DisplayOrder = *opts.DisplayOrder
	}
	if alt := strings.TrimSpace(opts.AltText); alt != "" {
		img.AltText = &alt
	}

	target := upload.Target{
		Bucket:     backend.BucketPortfolio,
		Base:       project.Slug,
		Fallback:   FallbackProject,
		Invalidate: []string{query.ProjectImages(projectID.String()), query.KeyAdminPortfolioProjects, query.KeyPortfolio},
	}
	return s.seq.UploadAndLink(ctx, f, target, func(ctx context.Context, p backend.Procedures, url string) error {
		img.ImageURL = url
		_, err := p.Call(ctx, backend.ProcAddProjectImage, convert.AddImage(tok, img))
		return err
	})
}

// DeleteImage removes a gallery image record and its stored object.
func (s *AdminServiceImpl) DeleteImage(ctx context.Context, imageID uuid.UUID) error {
	b, tok, err := s.admin()
	if err != nil {
		return err
	}
	img, err := one[model.PortfolioImage](ctx, b, backend.From(backend.TableImages).Eq("id", imageID))
	if err != nil {
		return err
	}
	if _, err := b.Call(ctx, backend.ProcDeleteProjectImage, convert.ImageRef(tok, imageID)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRemovalFailed, err)
	}
	s.invalidate(ctx, query.ProjectImages(img.ProjectID.String()), query.KeyAdminPortfolioProjects, query.KeyPortfolio)

	if key := backend.ObjectKey(b, backend.BucketPortfolio, img.ImageURL); key != "" {
		if err := b.Remove(ctx, backend.BucketPortfolio, key); err != nil {
			return fmt.Errorf("%w: object %s: %w", errs.ErrRemovalFailed, key, err)
		}
	}
	return nil
}

// SetMainImage marks an image as its project's main image. Keeping a single
// main image per project is the backend's job.
func (s *AdminServiceImpl) SetMainImage(ctx context.Context, imageID uuid.UUID) error {
	b, tok, err := s.admin()
	if err != nil {
		return err
	}
	img, err := one[model.PortfolioImage](ctx, b, backend.From(backend.TableImages).Select("id", "project_id").Eq("id", imageID))
	if err != nil {
		return err
	}
	if _, err := b.Call(ctx, backend.ProcSetMainProjectImage, convert.ImageRef(tok, imageID)); err != nil {
		return fmt.Errorf("set main image: %w", err)
	}
	s.invalidate(ctx, query.ProjectImages(img.ProjectID.String()), query.KeyAdminPortfolioProjects, query.KeyPortfolio)
	return nil
}

// ListCategories returns the categories by name.
func (s *AdminServiceImpl) ListCategories(ctx context.Context) ([]model.PortfolioCategory, error) {
	b, _, err := s.admin()
	if err != nil {
		return nil, err
	}
	return query.Fetch(ctx, s.cache, query.KeyAdminPortfolioCategories, func(ctx context.Context) ([]model.PortfolioCategory, error) {
		return loadCategories(ctx, b)
	})
}

// SaveCategory inserts (nil ID) or updates a category.
func (s *AdminServiceImpl) SaveCategory(ctx context.Context, c model.PortfolioCategory) (uuid.UUID, error) {
	b, tok, err := s.admin()
	if err != nil {
		return uuid.Nil, err
	}
	if err := required("name", c.Name); err != nil {
		return uuid.Nil, err
	}
	c.Slug = normalizeSlug(c.Slug, c.Name, FallbackCategory)

	id, err := upsertID(ctx, b, backend.ProcUpsertCategory, convert.UpsertCategory(tok, c))
	if err != nil {
		return uuid.Nil, fmt.Errorf("save category: %w", err)
	}
	s.invalidate(ctx, query.KeyPortfolioCategories, query.KeyAdminPortfolioCategories)
	return id, nil
}

// DeleteCategory removes a category. Projects still using it make the backend refuse.
func (s *AdminServiceImpl) DeleteCategory(ctx context.Context, categoryID uuid.UUID) error {
	b, tok, err := s.admin()
	if err != nil {
		return err
	}
	if _, err := b.Call(ctx, backend.ProcDeleteCategory, convert.ByID(tok, categoryID)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRemovalFailed, err)
	}
	s.invalidate(ctx, query.KeyPortfolioCategories, query.KeyAdminPortfolioCategories,
		query.KeyAdminPortfolioProjects, query.KeyPortfolio)
	return nil
}

// --- clients ---

// ListClients returns all clients, active or not, in display order.
func (s *AdminServiceImpl) ListClients(ctx context.Context) ([]model.Client, error) {
	b, _, err := s.admin()
	if err != nil {
		return nil, err
	}
	return query.Fetch(ctx, s.cache, query.KeyAdminClients, func(ctx context.Context) ([]model.Client, error) {
		return backend.SelectInto[model.Client](ctx, b,
			backend.From(backend.TableClients).OrderBy("display_order", false).OrderBy("name", false))
	})
}

// SaveClient inserts (nil ID) or updates a client. An empty slug is derived from the name.
func (s *AdminServiceImpl) SaveClient(ctx context.Context, c model.Client) (uuid.UUID, error) {
	b, tok, err := s.admin()
	if err != nil {
		return uuid.Nil, err
	}
	if err := required("name", c.Name); err != nil {
		return uuid.Nil, err
	}
	c.Slug = normalizeSlug(c.Slug, c.Name, FallbackClient)

	id, err := upsertID(ctx, b, backend.ProcUpsertClient, convert.UpsertClient(tok, c))
	if err != nil {
		return uuid.Nil, fmt.Errorf("save client: %w", err)
	}
	s.invalidate(ctx, query.KeyAdminClients, query.KeyClients)
	return id, nil
}

// DeleteClient removes a client; its logo folder is cleaned up best-effort.
func (s *AdminServiceImpl) DeleteClient(ctx context.Context, clientID uuid.UUID) error {
	b, tok, err := s.admin()
	if err != nil {
		return err
	}
	if _, err := b.Call(ctx, backend.ProcDeleteClient, convert.ByID(tok, clientID)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRemovalFailed, err)
	}
	s.invalidate(ctx, query.KeyAdminClients, query.KeyClients)
	if err := s.clearFolder(ctx, b, clientID.String(), ""); err != nil {
		s.log.Warn("remove client folder", zap.String("client", clientID.String()), zap.Error(err))
	}
	return nil
}

// UploadClientLogo stores the logo as <clientID>/logo.<ext>. Once linked, the
// rest of the client folder and any legacy root logo are removed.
func (s *AdminServiceImpl) UploadClientLogo(ctx context.Context, clientID uuid.UUID, f upload.File) (upload.Result, error) {
	b, tok, err := s.uploadAdmin(f)
	if err != nil {
		return upload.Result{}, err
	}
	c, err := one[model.Client](ctx, b, backend.From(backend.TableClients).Eq("id", clientID))
	if err != nil {
		return upload.Result{}, err
	}
	folder := clientID.String()

	target := upload.Target{
		Bucket:      backend.BucketClients,
		KeyFunc:     func(ext string) string { return folder + "/logo." + ext },
		Upsert:      true,
		PreviousURL: deref(c.LogoURL),
		Invalidate:  []string{query.KeyAdminClients, query.KeyClients},
	}
	res, err := s.seq.UploadAndLink(ctx, f, target, func(ctx context.Context, p backend.Procedures, url string) error {
		_, err := p.Call(ctx, backend.ProcUpdateClientLogo, convert.ClientLogo(tok, clientID, url))
		return err
	})
	if err != nil {
		return res, err
	}
	if err := s.clearFolder(ctx, b, folder, res.Key); err != nil {
		s.log.Warn("prune client folder", zap.String("client", folder), zap.Error(err))
	}
	// objects from before per-client folders sat at the root as <slug>.<ext>
	s.removeLegacyLogos(ctx, b, slug.Base(c.Slug, FallbackClient))
	return res, nil
}

// RemoveClientLogo clears the logo and deletes the client's stored files.
func (s *AdminServiceImpl) RemoveClientLogo(ctx context.Context, clientID uuid.UUID) error {
	b, tok, err := s.admin()
	if err != nil {
		return err
	}
	if _, err := b.Call(ctx, backend.ProcRemoveClientLogo, convert.ClientRef(tok, clientID)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRemovalFailed, err)
	}
	s.invalidate(ctx, query.KeyAdminClients, query.KeyClients)
	if err := s.clearFolder(ctx, b, clientID.String(), ""); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRemovalFailed, err)
	}
	return nil
}

// clearFolder deletes every object directly under folder except keep.
func (s *AdminServiceImpl) clearFolder(ctx context.Context, o backend.Objects, folder, keep string) error {
	objs, err := o.List(ctx, backend.BucketClients, folder, legacyListLimit)
	if err != nil {
		return err
	}
	var keys []string
	for _, obj := range objs {
		if k := folder + "/" + obj.Name; k != keep {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return o.Remove(ctx, backend.BucketClients, keys...)
}

func (s *AdminServiceImpl) removeLegacyLogos(ctx context.Context, o backend.Objects, base string) {
	objs, err := o.List(ctx, backend.BucketClients, "", legacyListLimit)
	if err != nil {
		s.log.Warn("list legacy logos", zap.Error(err))
		return
	}
	var keys []string
	for _, obj := range objs {
		if strings.HasPrefix(obj.Name, base+".") {
			keys = append(keys, obj.Name)
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := o.Remove(ctx, backend.BucketClients, keys...); err != nil {
		s.log.Warn("remove legacy logos", zap.Strings("keys", keys), zap.Error(err))
	}
}
