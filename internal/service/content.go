package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/lytoranea/website/internal/backend"
	"github.com/lytoranea/website/internal/errs"
	"github.com/lytoranea/website/internal/model"
	"github.com/lytoranea/website/internal/query"
)

// ContentService defines the public, cached reads behind the site.
type ContentService interface {
	Services(ctx context.Context) ([]model.Service, error)
	Service(ctx context.Context, slug string) (model.Service, error)
	Projects(ctx context.Context) ([]model.PortfolioProject, error)
	Project(ctx context.Context, slug string) (model.ProjectDetail, error)
	Categories(ctx context.Context) ([]model.PortfolioCategory, error)
	Clients(ctx context.Context) ([]model.Client, error)
	// Ping checks that the backend answers a minimal read.
	Ping(ctx context.Context) error
}

type ContentServiceImpl struct {
	tables backend.Tables
	cache  *query.Cache
	log    *zap.Logger
}

var _ ContentService = (*ContentServiceImpl)(nil)

// NewContentService constructs ContentService over the anonymous facade.
func NewContentService(tables backend.Tables, cache *query.Cache, log *zap.Logger) *ContentServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContentServiceImpl{tables: tables, cache: cache, log: log}
}

// Services returns all services in Brazilian Portuguese alphabetical order.
func (s *ContentServiceImpl) Services(ctx context.Context) ([]model.Service, error) {
	return query.Fetch(ctx, s.cache, query.KeyServices, func(ctx context.Context) ([]model.Service, error) {
		return loadServices(ctx, s.tables)
	})
}

// Service returns the service with the given slug.
func (s *ContentServiceImpl) Service(ctx context.Context, slug string) (model.Service, error) {
	all, err := s.Services(ctx)
	if err != nil {
		return model.Service{}, err
	}
	for _, svc := range all {
		if svc.Slug == slug {
			return svc, nil
		}
	}
	return model.Service{}, fmt.Errorf("service %q: %w", slug, errs.ErrNotFound)
}

// Projects returns projects with a known category, newest first.
func (s *ContentServiceImpl) Projects(ctx context.Context) ([]model.PortfolioProject, error) {
	return query.Fetch(ctx, s.cache, query.KeyPortfolio, func(ctx context.Context) ([]model.PortfolioProject, error) {
		return loadProjects(ctx, s.tables, true)
	})
}

// Project returns a project page: the project, its gallery and the next project
// in listing order (wrapping to the first; none when it is the only one).
func (s *ContentServiceImpl) Project(ctx context.Context, slug string) (model.ProjectDetail, error) {
	all, err := s.Projects(ctx)
	if err != nil {
		return model.ProjectDetail{}, err
	}
	idx := -1
	for i, p := range all {
		if p.Slug == slug {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.ProjectDetail{}, fmt.Errorf("project %q: %w", slug, errs.ErrNotFound)
	}
	project := all[idx]

	images, err := query.Fetch(ctx, s.cache, query.ProjectImages(project.ID.String()), func(ctx context.Context) ([]model.PortfolioImage, error) {
		return loadImages(ctx, s.tables, project.ID)
	})
	if err != nil {
		return model.ProjectDetail{}, err
	}

	detail := model.ProjectDetail{Project: project, Images: images}
	if len(all) > 1 {
		next := all[(idx+1)%len(all)]
		detail.Next = &model.ProjectRef{Title: next.Title, Slug: next.Slug}
	}
	return detail, nil
}

// Categories returns the categories by name.
func (s *ContentServiceImpl) Categories(ctx context.Context) ([]model.PortfolioCategory, error) {
	return query.Fetch(ctx, s.cache, query.KeyPortfolioCategories, func(ctx context.Context) ([]model.PortfolioCategory, error) {
		return loadCategories(ctx, s.tables)
	})
}

// Clients returns the active clients in display order.
func (s *ContentServiceImpl) Clients(ctx context.Context) ([]model.Client, error) {
	return query.Fetch(ctx, s.cache, query.KeyClients, func(ctx context.Context) ([]model.Client, error) {
		return backend.SelectInto[model.Client](ctx, s.tables,
			backend.From(backend.TableClients).Eq("is_active", true).OrderBy("display_order", false))
	})
}

// Ping bypasses the cache.
func (s *ContentServiceImpl) Ping(ctx context.Context) error {
	_, err := s.tables.Select(ctx, backend.From(backend.TableServices).Select("id").WithLimit(1))
	return err
}

// --- loaders shared with the admin service ---

func loadServices(ctx context.Context, t backend.Tables) ([]model.Service, error) {
	rows, err := backend.SelectInto[model.Service](ctx, t, backend.From(backend.TableServices))
	if err != nil {
		return nil, err
	}
	SortServices(rows)
	return rows, nil
}

// SortServices orders services by title the way a Brazilian reader expects:
// case and accents only break ties.
func SortServices(rows []model.Service) {
	col := collate.New(language.BrazilianPortuguese, collate.Loose)
	sort.SliceStable(rows, func(i, j int) bool {
		if c := col.CompareString(rows[i].Title, rows[j].Title); c != 0 {
			return c < 0
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
}

// loadProjects joins categories locally. With publicOnly, projects whose
// category is missing are dropped, matching an inner join.
func loadProjects(ctx context.Context, t backend.Tables, publicOnly bool) ([]model.PortfolioProject, error) {
	projects, err := backend.SelectInto[model.PortfolioProject](ctx, t,
		backend.From(backend.TableProjects).OrderBy("created_at", true).OrderBy("id", false))
	if err != nil {
		return nil, err
	}
	cats, err := loadCategories(ctx, t)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.PortfolioCategory, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}

	out := projects[:0]
	for _, p := range projects {
		if c, ok := byID[p.CategoryID]; ok {
			p.Category = &c
		} else if publicOnly {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func loadImages(ctx context.Context, t backend.Tables, projectID uuid.UUID) ([]model.PortfolioImage, error) {
	return backend.SelectInto[model.PortfolioImage](ctx, t,
		backend.From(backend.TableImages).Eq("project_id", projectID).OrderBy("display_order", false).OrderBy("id", false))
}

func loadCategories(ctx context.Context, t backend.Tables) ([]model.PortfolioCategory, error) {
	return backend.SelectInto[model.PortfolioCategory](ctx, t,
		backend.From(backend.TableCategories).OrderBy("name", false))
}
