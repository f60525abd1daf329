package backend

// Remote procedures exposed by the backend. Every admin_* procedure except
// admin_create_session takes the bearer token as p_token.
const (
	ProcCreateSession       = "admin_create_session"
	ProcLogout              = "admin_logout"
	ProcUpsertService       = "admin_upsert_service"
	ProcUpdateServiceImage  = "admin_update_service_image"
	ProcRemoveServiceImage  = "admin_remove_service_image"
	ProcUpsertProject       = "admin_upsert_portfolio_project"
	ProcDeleteProject       = "admin_delete_portfolio_project"
	ProcAddProjectImage     = "admin_add_portfolio_image"
	ProcDeleteProjectImage  = "admin_delete_portfolio_image"
	ProcSetMainProjectImage = "admin_set_main_portfolio_image"
	ProcUpsertCategory      = "admin_upsert_portfolio_category"
	ProcDeleteCategory      = "admin_delete_portfolio_category"
	ProcUpsertClient        = "admin_upsert_client"
	ProcDeleteClient        = "admin_delete_client"
	ProcUpdateClientLogo    = "admin_update_client_logo"
	ProcRemoveClientLogo    = "admin_remove_client_logo"
)

// AllProcedures lists every procedure above.
var AllProcedures = []string{
	ProcCreateSession, ProcLogout,
	ProcUpsertService, ProcUpdateServiceImage, ProcRemoveServiceImage,
	ProcUpsertProject, ProcDeleteProject,
	ProcAddProjectImage, ProcDeleteProjectImage, ProcSetMainProjectImage,
	ProcUpsertCategory, ProcDeleteCategory,
	ProcUpsertClient, ProcDeleteClient, ProcUpdateClientLogo, ProcRemoveClientLogo,
}

// Tables and buckets.
const (
	TableServices   = "services"
	TableProjects   = "portfolio_projects"
	TableImages     = "portfolio_images"
	TableCategories = "portfolio_categories"
	TableClients    = "clients"

	BucketServices  = "services"
	BucketPortfolio = "portfolio"
	BucketClients   = "clients"
)
