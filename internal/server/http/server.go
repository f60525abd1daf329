// Package httpserver exposes the public read API consumed by the site pages.
package httpserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/lytoranea/website/internal/errs"
	"github.com/lytoranea/website/internal/model"
	"github.com/lytoranea/website/internal/service"
)

// md renders service descriptions. Raw HTML in the source is escaped.
var md = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Options configure the router.
type Options struct {
	AllowOrigins []string      // CORS origins; empty allows any origin
	PingTimeout  time.Duration // upper bound for /healthz backend probe
}

// Server wires the content service into HTTP handlers.
type Server struct {
	content service.ContentService
	log     *zap.Logger
	opts    Options
}

// New constructs the handlers.
func New(content service.ContentService, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	return &Server{content: content, log: log, opts: opts}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(Recover(s.log), Logging(s.log))

	cc := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.opts.AllowOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = s.opts.AllowOrigins
	}
	r.Use(cors.New(cc))

	r.GET("/healthz", s.healthz)

	api := r.Group("/api")
	{
		api.GET("/services", s.listServices)
		api.GET("/services/:slug", s.getService)

		api.GET("/portfolio", s.listProjects)
		api.GET("/portfolio/categories", s.listCategories)
		api.GET("/portfolio/:slug", s.getProject)

		api.GET("/clients", s.listClients)
	}
	return r
}

// ServiceView adds the rendered description to a service.
type ServiceView struct {
	model.Service
	FullDescriptionHTML string `json:"full_description_html,omitempty"`
}

// RenderMarkdown converts src to HTML with raw HTML escaped.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.PingTimeout)
	defer cancel()
	if err := s.content.Ping(ctx); err != nil {
		s.log.Warn("health probe", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listServices(c *gin.Context) {
	out, err := s.content.Services(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getService(c *gin.Context) {
	svc, err := s.content.Service(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.fail(c, err)
		return
	}
	view := ServiceView{Service: svc}
	if svc.FullDescription != nil && *svc.FullDescription != "" {
		html, err := RenderMarkdown(*svc.FullDescription)
		if err != nil {
			s.log.Warn("render description", zap.String("slug", svc.Slug), zap.Error(err))
		} else {
			view.FullDescriptionHTML = html
		}
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) listProjects(c *gin.Context) {
	out, err := s.content.Projects(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listCategories(c *gin.Context) {
	out, err := s.content.Categories(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getProject(c *gin.Context) {
	d, err := s.content.Project(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) listClients(c *gin.Context) {
	out, err := s.content.Clients(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
