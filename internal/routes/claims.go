package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/buygag/claimdesk/internal/claim"
)

// RegisterClaimRoutes wires the claim workflow endpoints. idempotency may be
// nil; when set it guards confirm against replayed submissions.
func RegisterClaimRoutes(router fiber.Router, service *claim.Service, idempotency fiber.Handler) {
	h := claim.NewHandler(service)
	group := router.Group("/claims")
	group.Post("/sessions", h.Start)
	group.Get("/sessions/:id", h.Get)
	group.Post("/verify", h.Verify)
	group.Post("/back", h.Back)
	if idempotency != nil {
		group.Post("/confirm", idempotency, h.Confirm)
	} else {
		group.Post("/confirm", h.Confirm)
	}
}
