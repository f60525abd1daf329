package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/lytoranea/website/internal/backend"
	"github.com/lytoranea/website/internal/errs"
	"github.com/lytoranea/website/internal/model"
)

func TestServices_SortedForPortuguese(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	e.fb.SetRows(backend.TableServices, []model.Service{
		{ID: newID(t), Title: "Obras", Slug: "obras"},
		{ID: newID(t), Title: "Ética", Slug: "etica"},
		{ID: newID(t), Title: "alvenaria", Slug: "alvenaria"},
		{ID: newID(t), Title: "Edificações", Slug: "edificacoes"},
	})

	got, err := e.content.Services(context.Background())
	if err != nil {
		t.Fatalf("Services: %v", err)
	}
	want := []string{"alvenaria", "Edificações", "Ética", "Obras"}
	for i, w := range want {
		if got[i].Title != w {
			t.Fatalf("order %v, want %v", titles(got), want)
		}
	}
}

func titles(ss []model.Service) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Title
	}
	return out
}

func TestService_BySlug(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	e.fb.SetRows(backend.TableServices, []model.Service{{ID: newID(t), Title: "Obras", Slug: "obras"}})
	ctx := context.Background()

	svc, err := e.content.Service(ctx, "obras")
	if err != nil || svc.Title != "Obras" {
		t.Fatalf("got %v %v", svc, err)
	}
	if _, err := e.content.Service(ctx, "nope"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestClients_OnlyActiveInOrder(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	e.fb.SetRows(backend.TableClients, []model.Client{
		{ID: newID(t), Name: "B", DisplayOrder: 2, IsActive: true},
		{ID: newID(t), Name: "Hidden", DisplayOrder: 0, IsActive: false},
		{ID: newID(t), Name: "A", DisplayOrder: 1, IsActive: true},
	})
	got, err := e.content.Clients(context.Background())
	if err != nil {
		t.Fatalf("Clients: %v", err)
	}
	if len(got) != 2 || got[0].Name != "A" || got[1].Name != "B" {
		t.Fatalf("got %+v", got)
	}
	for _, c := range e.fb.CallsOf("select") {
		if c.Token != "" {
			t.Fatalf("public reads must be anonymous, got token %q", c.Token)
		}
	}
}

func seedPortfolio(t *testing.T, e *env) (cat uuid.UUID, ids []uuid.UUID) {
	t.Helper()
	cat = newID(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ids = []uuid.UUID{newID(t), newID(t), newID(t)}
	e.fb.SetRows(backend.TableCategories, []model.PortfolioCategory{{ID: cat, Name: "Pontes", Slug: "pontes"}})
	e.fb.SetRows(backend.TableProjects, []model.PortfolioProject{
		{ID: ids[0], Title: "Antigo", Slug: "antigo", CategoryID: cat, CreatedAt: base},
		{ID: ids[1], Title: "Novo", Slug: "novo", CategoryID: cat, CreatedAt: base.Add(48 * time.Hour)},
		{ID: ids[2], Title: "Meio", Slug: "meio", CategoryID: cat, CreatedAt: base.Add(24 * time.Hour)},
		{ID: newID(t), Title: "Sem categoria", Slug: "orfao", CategoryID: newID(t), CreatedAt: base.Add(72 * time.Hour)},
	})
	return cat, ids
}

func TestProjects_NewestFirstWithCategory(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	seedPortfolio(t, e)

	got, err := e.content.Projects(context.Background())
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(got) != 3 || got[0].Slug != "novo" || got[1].Slug != "meio" || got[2].Slug != "antigo" {
		t.Fatalf("got %+v", got)
	}
	if got[0].Category == nil || got[0].Category.Name != "Pontes" {
		t.Fatalf("category not joined: %+v", got[0].Category)
	}
}

func TestProject_NextIsStableSuccessor(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	_, ids := seedPortfolio(t, e)
	e.fb.SetRows(backend.TableImages, []model.PortfolioImage{
		{ID: newID(t), ProjectID: ids[2], ImageURL: "b", DisplayOrder: 1},
		{ID: newID(t), ProjectID: ids[2], ImageURL: "a", DisplayOrder: 0, IsMain: true},
		{ID: newID(t), ProjectID: ids[0], ImageURL: "other", DisplayOrder: 0},
	})
	ctx := context.Background()

	cases := map[string]string{"novo": "meio", "meio": "antigo", "antigo": "novo"}
	for slug, next := range cases {
		d, err := e.content.Project(ctx, slug)
		if err != nil {
			t.Fatalf("Project(%s): %v", slug, err)
		}
		if d.Next == nil || d.Next.Slug != next {
			t.Fatalf("next of %s = %+v, want %s", slug, d.Next, next)
		}
	}

	d, err := e.content.Project(ctx, "meio")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(d.Images) != 2 || d.Images[0].ImageURL != "a" || d.Images[1].ImageURL != "b" {
		t.Fatalf("images %+v", d.Images)
	}

	if _, err := e.content.Project(ctx, "orfao"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("project without category must be hidden, got %v", err)
	}
}

func TestProject_SingleHasNoNext(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	cat := newID(t)
	e.fb.SetRows(backend.TableCategories, []model.PortfolioCategory{{ID: cat, Name: "C"}})
	e.fb.SetRows(backend.TableProjects, []model.PortfolioProject{{ID: newID(t), Slug: "so", CategoryID: cat}})

	d, err := e.content.Project(context.Background(), "so")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if d.Next != nil {
		t.Fatalf("want no next, got %+v", d.Next)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	if err := e.content.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	e.fb.SelectErr = errors.New("down")
	if err := e.content.Ping(context.Background()); err == nil {
		t.Fatalf("want error")
	}
}
