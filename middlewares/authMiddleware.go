package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/Ntsinga/Zesha-App/models"
	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/gin-gonic/gin"
)

type authString string

// AuthMiddleware accepts a Bearer JWT as an alternative to the redis-backed
// session, for service-to-service calls (ops tooling, schedulers) that never
// log in interactively. An admin-role claim grants the same admin context a
// session would.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		customClaim, _ := validate.Claims.(*utils.JwtCustomClaim)

		ctx := context.WithValue(c.Request.Context(), authString("auth"), customClaim)
		if customClaim != nil {
			ctx = utils.SetUserIdInContext(ctx, customClaim.ID)
			if customClaim.Role == string(models.UserRoleAdmin) {
				ctx = utils.SetIsAdminInContext(ctx, true)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func CtxValue(ctx context.Context) *utils.JwtCustomClaim {
	raw, _ := ctx.Value(authString("auth")).(*utils.JwtCustomClaim)
	return raw
}
