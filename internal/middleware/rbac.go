package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/rbac"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
	"github.com/noah-isme/campus-ops-api/pkg/response"
)

// RequirePermission rejects callers whose role holds none of perms. It is a
// coarse route guard; services repeat the check for the exact operation.
func RequirePermission(perms ...models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if len(perms) > 0 && !rbac.AnyOf(actor.Role, perms...) {
			response.Error(c, appErrors.PermissionDenied(string(actor.Role), string(perms[0])))
			return
		}
		c.Next()
	}
}
