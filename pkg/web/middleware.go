package web

import (
	"strings"

	"github.com/gofiber/fiber/v3"
)

// OwnerHeader carries the caller identity. There is no authentication layer
// in front of it; deployments put the API behind a gateway that sets it.
const OwnerHeader = "X-Owner-ID"

const ownerLocalsKey = "owner_id"

// RequireOwner rejects requests that do not identify an owner and stores the
// owner for the handlers downstream.
func RequireOwner() fiber.Handler {
	return func(c fiber.Ctx) error {
		owner := strings.TrimSpace(c.Get(OwnerHeader))
		if owner == "" {
			return badRequest(c, OwnerHeader+" header is required")
		}

		c.Locals(ownerLocalsKey, owner)

		return c.Next()
	}
}

// ownerID returns the owner established by RequireOwner.
func ownerID(c fiber.Ctx) string {
	owner, _ := c.Locals(ownerLocalsKey).(string)

	return owner
}
