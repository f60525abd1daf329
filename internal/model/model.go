// Package model defines domain entities exchanged with the backend.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Admin is the identity returned by a successful credential exchange.
type Admin struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Service is an offered service shown on the public site.
type Service struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Slug             string    `json:"slug"`
	ShortDescription string    `json:"short_description"`
	FullDescription  *string   `json:"full_description"`
	ImageURL         *string   `json:"image_url"`
	Icon             *string   `json:"icon"`
	DisplayOrder     int       `json:"display_order"`
}

// PortfolioCategory groups portfolio projects.
type PortfolioCategory struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// PortfolioProject is a finished work shown in the portfolio.
type PortfolioProject struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Location     string    `json:"location"`
	Year         string    `json:"year"`
	Description  *string   `json:"description"`
	Client       *string   `json:"client"`
	MainImageURL *string   `json:"main_image_url"`
	CategoryID   uuid.UUID `json:"category_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Category is filled by joins done on the client side.
	Category *PortfolioCategory `json:"category,omitempty"`
}

// PortfolioImage belongs to exactly one project; at most one per project is main.
type PortfolioImage struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"project_id"`
	ImageURL     string    `json:"image_url"`
	AltText      *string   `json:"alt_text"`
	IsMain       bool      `json:"is_main"`
	DisplayOrder int       `json:"display_order"`
}

// Client is a customer whose logo is shown on the public site when active.
type Client struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	LogoURL      *string   `json:"logo_url"`
	Website      *string   `json:"website"`
	DisplayOrder int       `json:"display_order"`
	IsActive     bool      `json:"is_active"`
}

// ProjectRef is a lightweight link to another project.
type ProjectRef struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// ProjectDetail is the public project page: project, gallery and navigation.
type ProjectDetail struct {
	Project PortfolioProject `json:"project"`
	Images  []PortfolioImage `json:"images"`
	Next    *ProjectRef      `json:"next,omitempty"`
}
