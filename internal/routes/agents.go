package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/buygag/claimdesk/internal/agent"
)

// RegisterAgentRoutes exposes delivery agent presence for the final step.
func RegisterAgentRoutes(router fiber.Router, directory *agent.Directory, limit fiber.Handler) {
	router.Get("/agents/status", limit, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"agents": directory.Statuses(c.UserContext())})
	})
}
