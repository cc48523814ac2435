package handler

import (
	"github.com/crmigrate/backend/internal/interfaces/http/router"
)

// MigrationRoutes creates the route group for migration endpoints
func MigrationRoutes(h *MigrationHandler) *router.DomainGroup {
	group := router.NewDomainGroup("/migrations")

	group.GET("", h.ListMigrations)
	group.POST("/:source", h.StartMigration)

	// Administrative override for a stale lock
	group.DELETE("/lock", h.ForceUnlock)

	group.GET("/:id", h.GetMigration)
	group.GET("/:id/report", h.GetMigrationReport)

	return group
}
