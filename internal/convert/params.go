// Package convert maps domain values to remote procedure parameters.
package convert

import (
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/lytoranea/website/internal/backend"
	"github.com/lytoranea/website/internal/model"
)

// --- helpers ---

// id maps uuid.Nil to SQL null, which the upsert procedures read as "insert".
func id(v uuid.UUID) any {
	if v == uuid.Nil {
		return nil
	}
	return v.String()
}

// text maps nil and blank strings to SQL null.
func text(s *string) any {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return *s
}

// Token carries only the bearer token.
func Token(token string) backend.Params { return backend.Params{"p_token": token} }

// --- services ---

// UpsertService builds admin_upsert_service parameters.
func UpsertService(token string, s model.Service) backend.Params {
	return backend.Params{
		"p_token":             token,
		"p_id":                id(s.ID),
		"p_title":             s.Title,
		"p_slug":              s.Slug,
		"p_short_description": s.ShortDescription,
		"p_full_description":  text(s.FullDescription),
		"p_icon":              text(s.Icon),
		"p_display_order":     s.DisplayOrder,
		"p_image_url":         text(s.ImageURL),
	}
}

// ServiceImage builds admin_update_service_image parameters.
func ServiceImage(token string, serviceID uuid.UUID, url string) backend.Params {
	return backend.Params{"p_token": token, "p_service_id": serviceID.String(), "p_image_url": url}
}

// ServiceRef builds parameters naming a service (admin_remove_service_image).
func ServiceRef(token string, serviceID uuid.UUID) backend.Params {
	return backend.Params{"p_token": token, "p_service_id": serviceID.String()}
}

// --- portfolio ---

// UpsertProject builds admin_upsert_portfolio_project parameters.
func UpsertProject(token string, p model.PortfolioProject) backend.Params {
	return backend.Params{
		"p_token":          token,
		"p_id":             id(p.ID),
		"p_category_id":    p.CategoryID.String(),
		"p_title":          p.Title,
		"p_slug":           p.Slug,
		"p_location":       p.Location,
		"p_year":           p.Year,
		"p_description":    text(p.Description),
		"p_client":         text(p.Client),
		"p_main_image_url": text(p.MainImageURL),
	}
}

// AddImage builds admin_add_portfolio_image parameters.
func AddImage(token string, img model.PortfolioImage) backend.Params {
	return backend.Params{
		"p_token":         token,
		"p_project_id":    img.ProjectID.String(),
		"p_image_url":     img.ImageURL,
		"p_alt_text":      text(img.AltText),
		"p_is_main":       img.IsMain,
		"p_display_order": img.DisplayOrder,
	}
}

// ImageRef builds parameters naming an image (delete, set main).
func ImageRef(token string, imageID uuid.UUID) backend.Params {
	return backend.Params{"p_token": token, "p_image_id": imageID.String()}
}

// UpsertCategory builds admin_upsert_portfolio_category parameters.
func UpsertCategory(token string, c model.PortfolioCategory) backend.Params {
	return backend.Params{"p_token": token, "p_id": id(c.ID), "p_name": c.Name, "p_slug": c.Slug}
}

// --- clients ---

// UpsertClient builds admin_upsert_client parameters.
func UpsertClient(token string, c model.Client) backend.Params {
	return backend.Params{
		"p_token":         token,
		"p_id":            id(c.ID),
		"p_name":          c.Name,
		"p_slug":          c.Slug,
		"p_logo_url":      text(c.LogoURL),
		"p_website":       text(c.Website),
		"p_display_order": c.DisplayOrder,
		"p_is_active":     c.IsActive,
	}
}

// ClientLogo builds admin_update_client_logo parameters.
func ClientLogo(token string, clientID uuid.UUID, url string) backend.Params {
	return backend.Params{"p_token": token, "p_client_id": clientID.String(), "p_logo_url": url}
}

// ClientRef builds parameters naming a client by p_client_id (admin_remove_client_logo).
func ClientRef(token string, clientID uuid.UUID) backend.Params {
	return backend.Params{"p_token": token, "p_client_id": clientID.String()}
}

// ByID builds {p_token, p_id} for the delete procedures.
func ByID(token string, v uuid.UUID) backend.Params {
	return backend.Params{"p_token": token, "p_id": v.String()}
}
